// internal/analysis/cost.go
package analysis

import "github.com/shopspring/decimal"

var perMillion = decimal.NewFromInt(1_000_000)

// Pricing is a provider's USD price per million tokens.
type Pricing struct {
	InputPerMillion  decimal.Decimal
	OutputPerMillion decimal.Decimal
}

func NewPricing(inputPerMillion, outputPerMillion float64) Pricing {
	return Pricing{
		InputPerMillion:  decimal.NewFromFloat(inputPerMillion),
		OutputPerMillion: decimal.NewFromFloat(outputPerMillion),
	}
}

// Cost prices one call in USD, rounded to micro-dollars. Providers that only
// report a total are billed at the input rate.
func (p Pricing) Cost(u Usage) decimal.Decimal {
	in, out := u.PromptTokens, u.CompletionTokens
	if in == 0 && out == 0 {
		in = u.TotalTokens
	}
	cost := decimal.NewFromInt(int64(in)).Mul(p.InputPerMillion).
		Add(decimal.NewFromInt(int64(out)).Mul(p.OutputPerMillion))
	return cost.Div(perMillion).Round(6)
}
