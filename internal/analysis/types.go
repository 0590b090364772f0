// internal/analysis/types.go
package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type MealContext string

const (
	MealBreakfast MealContext = "breakfast"
	MealLunch     MealContext = "lunch"
	MealDinner    MealContext = "dinner"
	MealSnack     MealContext = "snack"
)

// ParseMealContext maps free text to a MealContext. Empty input means snack.
func ParseMealContext(s string) (MealContext, error) {
	switch MealContext(strings.ToLower(strings.TrimSpace(s))) {
	case "", MealSnack:
		return MealSnack, nil
	case MealBreakfast:
		return MealBreakfast, nil
	case MealLunch:
		return MealLunch, nil
	case MealDinner:
		return MealDinner, nil
	default:
		return "", fmt.Errorf("unknown meal type %q", s)
	}
}

// Request is one photo to analyze. Image holds base64 data, optionally with a
// data URI prefix.
type Request struct {
	Image              string
	MealContext        MealContext
	DietaryPreferences []string
	HealthFocus        []string
}

type FoodItem struct {
	LocalizedName  string  `json:"name_tr"`
	AlternateName  string  `json:"name_en"`
	EstimatedGrams float64 `json:"estimated_grams"`
	Confidence     float64 `json:"confidence"`
	Calories       float64 `json:"calories"`
	Protein        float64 `json:"protein"`
	Carbs          float64 `json:"carbs"`
	Fat            float64 `json:"fat"`
	Fiber          float64 `json:"fiber"`
}

type Totals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
}

// Usage is the provider-reported token accounting for the successful attempt.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Result struct {
	Items          []FoodItem      `json:"foods"`
	Totals         Totals          `json:"totals"`
	HealthScore    *int            `json:"health_score,omitempty"`
	Insight        string          `json:"insight,omitempty"`
	ProcessingTime time.Duration   `json:"-"`
	Provider       string          `json:"provider"`
	Model          string          `json:"model"`
	Attempts       int             `json:"attempts"`
	Usage          Usage           `json:"usage"`
	EstimatedCost  decimal.Decimal `json:"estimated_cost_usd"`

	// CapturedAt is the photo's EXIF capture time, when present.
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

// ProcessingTimeMs is the wall-clock duration of the call, retries included.
func (r *Result) ProcessingTimeMs() int64 {
	return r.ProcessingTime.Milliseconds()
}

// AverageConfidence is the mean item confidence.
func (r *Result) AverageConfidence() float64 {
	if len(r.Items) == 0 {
		return 0
	}
	var sum float64
	for _, item := range r.Items {
		sum += item.Confidence
	}
	return sum / float64(len(r.Items))
}

// Names joins item names in the requested language.
func (r *Result) Names(localized bool) string {
	names := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		if localized {
			names = append(names, item.LocalizedName)
		} else {
			names = append(names, item.AlternateName)
		}
	}
	return strings.Join(names, ", ")
}

func sumTotals(items []FoodItem) Totals {
	var t Totals
	for _, item := range items {
		t.Calories += item.Calories
		t.Protein += item.Protein
		t.Carbs += item.Carbs
		t.Fat += item.Fat
		t.Fiber += item.Fiber
	}
	return t
}
