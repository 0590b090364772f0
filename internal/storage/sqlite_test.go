// internal/storage/sqlite_test.go
package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-meal-vision/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "meals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func meal(user string, ts time.Time, kcal float64) *models.Meal {
	score := 70
	return &models.Meal{
		UserID:      user,
		Name:        "Lentil soup, Bread",
		MealType:    "lunch",
		Timestamp:   ts,
		Calories:    kcal,
		Protein:     10,
		Carbs:       30,
		Fat:         5,
		Fiber:       2,
		HealthScore: &score,
		Confidence:  0.85,
		Source:      models.SourceAIPhoto,
		Items: []models.MealItem{
			{NameTr: "Mercimek çorbası", NameEn: "Lentil soup", Grams: 250, Confidence: 0.9, Calories: kcal - 100, Protein: 6, Carbs: 20, Fat: 4, Fiber: 1},
			{NameTr: "Ekmek", NameEn: "Bread", Grams: 40, Confidence: 0.8, Calories: 100, Protein: 4, Carbs: 10, Fat: 1, Fiber: 1},
		},
	}
}

func TestSaveAndGetMeals(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	day := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	first := meal("u1", day, 300)
	require.NoError(t, s.SaveMeal(ctx, first))
	assert.NotEmpty(t, first.ID)

	require.NoError(t, s.SaveMeal(ctx, meal("u1", day.Add(6*time.Hour), 500)))
	require.NoError(t, s.SaveMeal(ctx, meal("u1", day.AddDate(0, 0, 2), 400)))
	require.NoError(t, s.SaveMeal(ctx, meal("u2", day, 900)))

	meals, err := s.GetMeals(ctx, "u1", "", "", 10)
	require.NoError(t, err)
	require.Len(t, meals, 3)
	assert.Equal(t, float64(400), meals[0].Calories)
	assert.True(t, meals[0].Timestamp.After(meals[1].Timestamp))

	got := meals[2]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "u1", got.UserID)
	require.NotNil(t, got.HealthScore)
	assert.Equal(t, 70, *got.HealthScore)
	assert.True(t, got.Timestamp.Equal(day))
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Mercimek çorbası", got.Items[0].NameTr)
	assert.Equal(t, models.HighConfidence, got.Items[0].Level)

	ranged, err := s.GetMeals(ctx, "u1", "2026-03-10", "2026-03-10", 10)
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	limited, err := s.GetMeals(ctx, "u1", "", "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.GetMeals(ctx, "nobody", "", "", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSaveMeal_RequiresUser(t *testing.T) {
	s := newTestStorage(t)
	assert.Error(t, s.SaveMeal(context.Background(), &models.Meal{}))
}

func TestDailyTotals(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	day := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveMeal(ctx, meal("u1", day, 300)))
	require.NoError(t, s.SaveMeal(ctx, meal("u1", day.Add(4*time.Hour), 450)))
	require.NoError(t, s.SaveMeal(ctx, meal("u1", day.AddDate(0, 0, 1), 999)))

	totals, count, err := s.DailyTotals(ctx, "u1", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.InDelta(t, 750, totals.Calories, 1e-9)
	assert.InDelta(t, 20, totals.Protein, 1e-9)
	assert.InDelta(t, 4, totals.Fiber, 1e-9)

	empty, count, err := s.DailyTotals(ctx, "u1", "2026-01-01")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, empty.Calories)
}

func TestStreak(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		daysAgo []int
		want    int
	}{
		{name: "no meals", want: 0},
		{name: "today only", daysAgo: []int{0}, want: 1},
		{name: "today empty keeps streak", daysAgo: []int{1, 2, 3}, want: 3},
		{name: "gap breaks streak", daysAgo: []int{0, 1, 3, 4}, want: 2},
		{name: "two days ago only", daysAgo: []int{2}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStorage(t)
			for _, d := range tt.daysAgo {
				require.NoError(t, s.SaveMeal(ctx, meal("u1", now.AddDate(0, 0, -d), 100)))
			}
			got, err := s.Streak(ctx, "u1", now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWater(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveWater(ctx, &models.WaterLog{UserID: "u1", AmountMl: 250, Timestamp: ts}))
	require.NoError(t, s.SaveWater(ctx, &models.WaterLog{UserID: "u1", AmountMl: 500, Timestamp: ts.Add(time.Hour)}))
	require.NoError(t, s.SaveWater(ctx, &models.WaterLog{UserID: "u2", AmountMl: 1000, Timestamp: ts}))
	assert.Error(t, s.SaveWater(ctx, &models.WaterLog{UserID: "u1", AmountMl: 0}))

	total, err := s.DailyWater(ctx, "u1", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, 750, total)
}

func TestAnalysisLogs(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.SaveAnalysisLog(ctx, &models.AnalysisLog{
		UserID: "u1", Provider: "gemini", Model: "gemini-2.0-flash", Attempts: 1,
		LatencyMs: 820, TotalTokens: 900, ItemCount: 2, ConfidenceAvg: 0.8,
		EstimatedCostUSD: decimal.RequireFromString("0.00012"),
		Outcome: models.OutcomeSuccess,
	}))
	require.NoError(t, s.SaveAnalysisLog(ctx, &models.AnalysisLog{
		UserID: "u1", Provider: "gemini", Attempts: 3, Outcome: "timeout", ErrorKind: "timeout",
		CreatedAt: time.Now().Add(time.Minute),
	}))

	logs, err := s.AnalysisLogs(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "timeout", logs[0].ErrorKind)
	assert.Equal(t, 3, logs[0].Attempts)
	assert.Equal(t, int64(820), logs[1].LatencyMs)
	assert.Equal(t, "0.00012", logs[1].EstimatedCostUSD.String())
	assert.True(t, logs[0].EstimatedCostUSD.IsZero())
}

func TestPlans(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	plan, err := s.GetPlan(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, plan)

	require.NoError(t, s.SetPlan(ctx, "u1", models.PlanPremium))
	plan, err = s.GetPlan(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanPremium, plan)

	require.NoError(t, s.SetPlan(ctx, "u1", models.PlanFree))
	plan, err = s.GetPlan(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, plan)

	assert.Error(t, s.SetPlan(ctx, "u1", "gold"))
}

func TestGetMeals_SubSecondOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	noon := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	whole := meal("u1", noon, 300)
	half := meal("u1", noon.Add(500*time.Millisecond), 400)
	require.NoError(t, s.SaveMeal(ctx, whole))
	require.NoError(t, s.SaveMeal(ctx, half))

	meals, err := s.GetMeals(ctx, "u1", "", "", 10)
	require.NoError(t, err)
	require.Len(t, meals, 2)
	assert.Equal(t, half.ID, meals[0].ID)
	assert.Equal(t, whole.ID, meals[1].ID)
	assert.True(t, meals[0].Timestamp.Equal(half.Timestamp))

	assert.Equal(t, "2026-03-10T12:00:00.000000000Z", formatTime(noon))
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), "2026-03-09"},   // Monday
		{time.Date(2026, 3, 12, 18, 0, 0, 0, time.UTC), "2026-03-09"}, // Thursday
		{time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC), "2026-03-09"},
		{time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), "2026-02-23"}, // Sunday across a month
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dayOf(WeekStart(tt.in)), tt.in.String())
	}
}

func TestWeeklyStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	monday := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveMeal(ctx, meal("u1", monday, 400)))
	require.NoError(t, s.SaveMeal(ctx, meal("u1", monday.Add(4*time.Hour), 300)))
	require.NoError(t, s.SaveMeal(ctx, meal("u1", monday.AddDate(0, 0, 2), 500)))
	sunday := meal("u1", monday.AddDate(0, 0, 6), 250)
	sunday.Source = models.SourceManual
	require.NoError(t, s.SaveMeal(ctx, sunday))

	// Outside the week or another user.
	require.NoError(t, s.SaveMeal(ctx, meal("u1", monday.AddDate(0, 0, -1), 900)))
	require.NoError(t, s.SaveMeal(ctx, meal("u1", monday.AddDate(0, 0, 7), 900)))
	require.NoError(t, s.SaveMeal(ctx, meal("u2", monday, 900)))

	stats, err := s.WeeklyStats(ctx, "u1", monday.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-09", stats.WeekStart)
	assert.Equal(t, []float64{700, 0, 500, 0, 0, 0, 250}, stats.DailyCalories)
	assert.Equal(t, 4, stats.TotalMeals)
	assert.Equal(t, 3, stats.TotalScans)
	assert.Equal(t, 483, stats.AvgCalories) // 1450 / 3 days
}

func TestWeeklyStats_Empty(t *testing.T) {
	stats, err := newTestStorage(t).WeeklyStats(context.Background(), "nobody", time.Now())
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 7), stats.DailyCalories)
	assert.Zero(t, stats.AvgCalories)
	assert.Zero(t, stats.TotalMeals)
}
