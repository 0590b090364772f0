// internal/models/meal.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Meal struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	MealType    string     `json:"meal_type"`
	Timestamp   time.Time  `json:"timestamp"`
	Items       []MealItem `json:"items"`
	Calories    float64    `json:"calories"`
	Protein     float64    `json:"protein"`
	Carbs       float64    `json:"carbs"`
	Fat         float64    `json:"fat"`
	Fiber       float64    `json:"fiber"`
	HealthScore *int       `json:"health_score,omitempty"`
	Insight     string     `json:"insight,omitempty"`
	Confidence  float64    `json:"confidence"`
	Source      string     `json:"source"` // "ai_photo", "manual"
	CreatedAt   time.Time  `json:"created_at"`
}

const (
	SourceAIPhoto = "ai_photo"
	SourceManual  = "manual"
)

type MealItem struct {
	NameTr     string          `json:"name_tr"`
	NameEn     string          `json:"name_en"`
	Grams      float64         `json:"estimated_grams"`
	Confidence float64         `json:"confidence"`
	Level      ConfidenceLevel `json:"confidence_level"`
	Calories   float64         `json:"calories"`
	Protein    float64         `json:"protein"`
	Carbs      float64         `json:"carbs"`
	Fat        float64         `json:"fat"`
	Fiber      float64         `json:"fiber"`
}

type ConfidenceLevel string

const (
	HighConfidence   ConfidenceLevel = "high"
	MediumConfidence ConfidenceLevel = "medium"
	LowConfidence    ConfidenceLevel = "low"
)

// LevelFor buckets a 0..1 confidence score for display.
func LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.8:
		return HighConfidence
	case confidence >= 0.5:
		return MediumConfidence
	default:
		return LowConfidence
	}
}

// AnalysisLog records one analysis call, successful or not.
type AnalysisLog struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Provider         string          `json:"provider"`
	Model            string          `json:"model"`
	Attempts         int             `json:"attempts"`
	LatencyMs        int64           `json:"latency_ms"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	TotalTokens      int             `json:"total_tokens"`
	EstimatedCostUSD decimal.Decimal `json:"estimated_cost_usd"`
	ItemCount        int             `json:"item_count"`
	ConfidenceAvg    float64         `json:"confidence_avg"`
	Outcome          string          `json:"outcome"` // "success" or the error kind
	ErrorKind        string          `json:"error_kind,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

const OutcomeSuccess = "success"

type WaterLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	AmountMl  int       `json:"amount_ml"`
	Timestamp time.Time `json:"timestamp"`
}

type PlanType string

const (
	PlanFree    PlanType = "free"
	PlanPremium PlanType = "premium"
)

func (p PlanType) Valid() bool {
	return p == PlanFree || p == PlanPremium
}

type Subscription struct {
	UserID    string    `json:"user_id"`
	Plan      PlanType  `json:"plan_type"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Totals sums macros for a set of meals.
type Totals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
}

// WeeklyStats covers one Monday-based week. DailyCalories is indexed Monday
// first; AvgCalories averages only the days that have meals.
type WeeklyStats struct {
	UserID        string    `json:"user_id"`
	WeekStart     string    `json:"week_start"`
	DailyCalories []float64 `json:"daily_calories"`
	TotalMeals    int       `json:"total_meals"`
	AvgCalories   int       `json:"avg_calories"`
	TotalScans    int       `json:"total_scans"` // meals logged from a photo
	Streak        int       `json:"streak_days"`
}

type DailySummary struct {
	UserID    string `json:"user_id"`
	Date      string `json:"date"`
	Totals    Totals `json:"totals"`
	MealCount int    `json:"meal_count"`
	WaterMl   int    `json:"water_ml"`
	Streak    int    `json:"streak_days"`
}
