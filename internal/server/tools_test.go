// internal/server/tools_test.go
package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-meal-vision/internal/analysis"
	"mcp-meal-vision/internal/analysis/stub"
	"mcp-meal-vision/internal/models"
)

func TestLogManualMeal(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})
	ctx := context.Background()

	var got logMealResponse
	decodeResult(t, env.call(t, "log_manual_meal", map[string]interface{}{
		"user_id":   "u1",
		"name":      "Simit",
		"meal_type": "breakfast",
		"calories":  280,
		"protein":   9,
		"carbs":     52,
		"timestamp": "2026-03-10T08:15:00Z",
	}), &got)
	require.NotNil(t, got.Meal)
	assert.Equal(t, models.SourceManual, got.Meal.Source)
	assert.Equal(t, "breakfast", got.Meal.MealType)
	assert.Nil(t, got.Quota)

	meals, err := env.storage.GetMeals(ctx, "u1", "2026-03-10", "2026-03-10", 10)
	require.NoError(t, err)
	require.Len(t, meals, 1)
	assert.Equal(t, "Simit", meals[0].Name)
	assert.Equal(t, float64(280), meals[0].Calories)
	require.Len(t, meals[0].Items, 1)
	assert.Equal(t, "Simit", meals[0].Items[0].NameTr)
	assert.Equal(t, "Simit", meals[0].Items[0].NameEn)

	logs, err := env.storage.AnalysisLogs(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestLogManualMeal_InvalidParams(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"no user", map[string]interface{}{"name": "Simit", "calories": 280}},
		{"no name", map[string]interface{}{"user_id": "u1", "calories": 280}},
		{"no calories", map[string]interface{}{"user_id": "u1", "name": "Simit"}},
		{"negative calories", map[string]interface{}{"user_id": "u1", "name": "Simit", "calories": -5}},
		{"huge calories", map[string]interface{}{"user_id": "u1", "name": "Simit", "calories": 1e6}},
		{"negative fat", map[string]interface{}{"user_id": "u1", "name": "Simit", "calories": 280, "fat": -1}},
		{"unknown meal type", map[string]interface{}{"user_id": "u1", "name": "Simit", "calories": 280, "meal_type": "brunch"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.call(t, "log_manual_meal", tt.args)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestWeeklyStats(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{text: soupReply, creds: true})
	now := time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC) // Wednesday
	env.server.now = func() time.Time { return now }

	w := env.call(t, "log_meal", map[string]interface{}{
		"user_id": "u1", "image_base64": testPNG(t), "timestamp": "2026-03-09T12:00:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.call(t, "log_meal", map[string]interface{}{
		"user_id": "u1", "image_base64": testPNG(t), "timestamp": "2026-03-10T12:00:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.call(t, "log_manual_meal", map[string]interface{}{
		"user_id": "u1", "name": "Ayran", "calories": 60, "timestamp": "2026-03-11T13:00:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got models.WeeklyStats
	decodeResult(t, env.call(t, "get_weekly_stats", map[string]interface{}{"user_id": "u1"}), &got)
	assert.Equal(t, "2026-03-09", got.WeekStart)
	assert.Equal(t, []float64{180, 180, 60, 0, 0, 0, 0}, got.DailyCalories)
	assert.Equal(t, 3, got.TotalMeals)
	assert.Equal(t, 2, got.TotalScans)
	assert.Equal(t, 140, got.AvgCalories)
	assert.Equal(t, 3, got.Streak)

	decodeResult(t, env.call(t, "get_weekly_stats", map[string]interface{}{"user_id": "u1", "date": "2026-03-02"}), &got)
	assert.Equal(t, "2026-03-02", got.WeekStart)
	assert.Zero(t, got.TotalMeals)

	w = env.call(t, "get_weekly_stats", map[string]interface{}{"user_id": "u1", "date": "11.03.2026"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuggestRecipes(t *testing.T) {
	env := newTestEnv(t, stub.NewClient())

	var got recipesResponse
	decodeResult(t, env.call(t, "suggest_recipes", map[string]interface{}{
		"ingredients": []string{"mercimek", "soğan"},
		"meal_type":   "dinner",
		"diabetic":    true,
	}), &got)
	require.NotNil(t, got.RecipeSuggestions)
	assert.Len(t, got.Recipes, 3)
	assert.Equal(t, "stub", got.Provider)
	assert.Equal(t, 1, got.Attempts)
	assert.Empty(t, got.IngredientsDetected)

	decodeResult(t, env.call(t, "suggest_recipes", map[string]interface{}{"image_base64": testPNG(t)}), &got)
	assert.Equal(t, []string{"domates", "soğan"}, got.IngredientsDetected)

	w := env.call(t, "suggest_recipes", map[string]interface{}{"meal_type": "brunch"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuggestRecipes_ProviderFailure(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{text: `{"recipes":[]}`, creds: true})

	w := env.call(t, "suggest_recipes", map[string]interface{}{"ingredients": []string{"yumurta"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "invalid_schema", decodeError(t, w).Kind)
}

func TestAnalysisLogs(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{text: soupReply, creds: true})

	for i := 0; i < 2; i++ {
		w := env.call(t, "analyze_food", map[string]interface{}{"user_id": "u1", "image_base64": testPNG(t)})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	var logs []*models.AnalysisLog
	decodeResult(t, env.call(t, "get_analysis_logs", map[string]interface{}{"user_id": "u1", "limit": 1}), &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, models.OutcomeSuccess, logs[0].Outcome)
	assert.Equal(t, "scripted", logs[0].Provider)
	assert.Equal(t, 1, logs[0].ItemCount)

	decodeResult(t, env.call(t, "get_analysis_logs", map[string]interface{}{"user_id": "u1"}), &logs)
	assert.Len(t, logs, 2)

	w := env.call(t, "get_analysis_logs", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogMeal_OverflowingNumberIsRejected(t *testing.T) {
	reply := `{"foods":[{"name_tr":"Baklava","name_en":"Baklava","estimated_grams":100,
		"confidence":0.9,"calories":1e999,"protein":6,"carbs":50,"fat":20}]}`
	env := newTestEnv(t, &scriptedProvider{text: reply, creds: true})

	w := env.call(t, "log_meal", map[string]interface{}{"user_id": "u1", "image_base64": testPNG(t)})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, string(analysis.KindInvalidSchema), decodeError(t, w).Kind)

	meals, err := env.storage.GetMeals(context.Background(), "u1", "", "", 10)
	require.NoError(t, err)
	assert.Empty(t, meals)
}

func TestInputSchema(t *testing.T) {
	schema := inputSchema(LogMealParams{})
	assert.Equal(t, []string{"user_id", "image_base64"}, schema.Required)
	assert.Contains(t, schema.Properties, "meal_type")
	assert.Contains(t, schema.Properties, "timestamp")

	prefs, ok := schema.Properties["dietary_preferences"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "array", prefs["type"])
	assert.Equal(t, map[string]interface{}{"type": "string"}, prefs["items"])

	manual := inputSchema(LogManualMealParams{})
	assert.Equal(t, []string{"user_id", "name", "calories"}, manual.Required)
	calories, ok := manual.Properties["calories"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "number", calories["type"])

	recipes := inputSchema(SuggestRecipesParams{})
	assert.Empty(t, recipes.Required)
	diabetic, ok := recipes.Properties["diabetic"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "boolean", diabetic["type"])
}
