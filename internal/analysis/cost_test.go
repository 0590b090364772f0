// internal/analysis/cost_test.go
package analysis

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPricingCost(t *testing.T) {
	p := NewPricing(0.10, 0.40)

	tests := []struct {
		name  string
		usage Usage
		want  string
	}{
		{name: "split usage", usage: Usage{PromptTokens: 1200, CompletionTokens: 300, TotalTokens: 1500}, want: "0.00024"},
		{name: "total only", usage: Usage{TotalTokens: 1000}, want: "0.0001"},
		{name: "no usage", usage: Usage{}, want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Cost(tt.usage)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestPricingZeroValue(t *testing.T) {
	assert.True(t, Pricing{}.Cost(Usage{PromptTokens: 5000}).IsZero())
}
