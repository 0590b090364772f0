// internal/server/tools.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
	"github.com/apex/log"

	"mcp-meal-vision/internal/analysis"
	"mcp-meal-vision/internal/metrics"
	"mcp-meal-vision/internal/models"
	"mcp-meal-vision/internal/quota"
)

const (
	dayLayout        = "2006-01-02"
	defaultMealLimit = 20
	maxMealLimit     = 100
	maxWaterMl       = 5000
	maxManualKcal    = 10000
)

// photoParams are the photo-analysis arguments shared by analyze_food and
// log_meal.
type photoParams struct {
	ImageBase64        string   `json:"image_base64" description:"Base64 photo, optionally as a data URI"`
	MealType           string   `json:"meal_type,omitempty" description:"breakfast, lunch, dinner or snack"`
	DietaryPreferences []string `json:"dietary_preferences,omitempty" description:"e.g. vegetarian, gluten-free"`
	HealthFocus        []string `json:"health_focus,omitempty" description:"e.g. low sodium, high protein"`
}

type AnalyzeFoodParams struct {
	UserID string `json:"user_id,omitempty" description:"Optional user id; when set the daily quota applies"`
	photoParams
}

type LogMealParams struct {
	UserID string `json:"user_id" description:"User who ate the meal"`
	photoParams
	Timestamp string `json:"timestamp,omitempty" description:"ISO timestamp of when meal was eaten (defaults to the photo's capture time, then now)"`
}

type LogManualMealParams struct {
	UserID    string   `json:"user_id" description:"User who ate the meal"`
	Name      string   `json:"name" description:"What was eaten"`
	MealType  string   `json:"meal_type,omitempty" description:"breakfast, lunch, dinner or snack"`
	Calories  *float64 `json:"calories" description:"kcal for the portion"`
	Protein   float64  `json:"protein,omitempty" description:"Protein in grams"`
	Carbs     float64  `json:"carbs,omitempty" description:"Carbohydrates in grams"`
	Fat       float64  `json:"fat,omitempty" description:"Fat in grams"`
	Fiber     float64  `json:"fiber,omitempty" description:"Fiber in grams"`
	Grams     float64  `json:"grams,omitempty" description:"Portion weight in grams"`
	Timestamp string   `json:"timestamp,omitempty" description:"ISO timestamp of when meal was eaten (defaults to now)"`
}

type GetMealsParams struct {
	UserID    string `json:"user_id" description:"User whose meals to list"`
	StartDate string `json:"start_date,omitempty" description:"Start date for meal query (YYYY-MM-DD)"`
	EndDate   string `json:"end_date,omitempty" description:"End date for meal query (YYYY-MM-DD)"`
	Limit     int    `json:"limit,omitempty" description:"Maximum number of meals to return"`
}

type DailySummaryParams struct {
	UserID string `json:"user_id" description:"User to summarize"`
	Date   string `json:"date,omitempty" description:"Day to summarize (YYYY-MM-DD, defaults to today UTC)"`
}

type WeeklyStatsParams struct {
	UserID string `json:"user_id" description:"User to summarize"`
	Date   string `json:"date,omitempty" description:"Any day of the Monday-based week (YYYY-MM-DD, defaults to today UTC)"`
}

type LogWaterParams struct {
	UserID    string `json:"user_id" description:"User who drank the water"`
	AmountMl  int    `json:"amount_ml" description:"Amount in milliliters"`
	Timestamp string `json:"timestamp,omitempty" description:"ISO timestamp (defaults to now)"`
}

type SetPlanParams struct {
	UserID   string `json:"user_id" description:"User whose plan changes"`
	PlanType string `json:"plan_type" description:"free or premium"`
}

type SuggestRecipesParams struct {
	Ingredients        []string `json:"ingredients,omitempty" description:"Ingredients at hand"`
	ImageBase64        string   `json:"image_base64,omitempty" description:"Optional base64 photo of the ingredients"`
	MealType           string   `json:"meal_type,omitempty" description:"breakfast, lunch, dinner or snack (defaults to any)"`
	DietaryPreferences []string `json:"dietary_preferences,omitempty" description:"e.g. vegetarian, gluten-free"`
	HealthFocus        []string `json:"health_focus,omitempty" description:"e.g. low sodium, high protein"`
	KitchenPreferences []string `json:"kitchen_preferences,omitempty" description:"e.g. no oven, under 30 minutes"`
	Diabetic           bool     `json:"diabetic,omitempty" description:"Prefer low-carb recipes"`
}

type AnalysisLogsParams struct {
	UserID string `json:"user_id" description:"User whose analysis history to list"`
	Limit  int    `json:"limit,omitempty" description:"Maximum number of records to return"`
}

type toolHandler func(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

type tool struct {
	description string
	params      interface{}
	handler     toolHandler
	schema      protocol.InputSchema
}

type toolInfo struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	InputSchema protocol.InputSchema `json:"inputSchema"`
}

var toolOrder = []string{
	"analyze_food", "log_meal", "log_manual_meal", "get_meals", "get_daily_summary",
	"get_weekly_stats", "log_water", "set_plan", "suggest_recipes", "get_analysis_logs",
}

// registerTools builds the tool table used by the JSON endpoint and registers
// the same tools with the MCP server.
func (s *MealVisionServer) registerTools() map[string]tool {
	tools := map[string]tool{
		"analyze_food":      {description: "Analyze a food photo and return items, macros and a health score", params: AnalyzeFoodParams{}, handler: s.handleAnalyzeFood},
		"log_meal":          {description: "Analyze a food photo and save it as a meal", params: LogMealParams{}, handler: s.handleLogMeal},
		"log_manual_meal":   {description: "Save a meal entered by hand, without a photo", params: LogManualMealParams{}, handler: s.handleLogManualMeal},
		"get_meals":         {description: "List saved meals for a user", params: GetMealsParams{}, handler: s.handleGetMeals},
		"get_daily_summary": {description: "Daily calorie and macro totals, water intake and streak", params: DailySummaryParams{}, handler: s.handleDailySummary},
		"get_weekly_stats":  {description: "Calories per day for a Monday-based week, with averages, scan count and streak", params: WeeklyStatsParams{}, handler: s.handleWeeklyStats},
		"log_water":         {description: "Record water intake", params: LogWaterParams{}, handler: s.handleLogWater},
		"set_plan":          {description: "Switch a user between the free and premium plans", params: SetPlanParams{}, handler: s.handleSetPlan},
		"suggest_recipes":   {description: "Suggest recipes from ingredients or a photo of them", params: SuggestRecipesParams{}, handler: s.handleSuggestRecipes},
		"get_analysis_logs": {description: "List recent analysis calls with attempts, tokens and cost", params: AnalysisLogsParams{}, handler: s.handleAnalysisLogs},
	}
	for _, name := range toolOrder {
		t := tools[name]
		t.schema = inputSchema(t.params)
		tools[name] = t

		s.mcp.RegisterTool(&protocol.Tool{
			Name:        name,
			Description: t.description,
			InputSchema: t.schema,
		}, s.mcpHandler(name, t.handler))
		s.logger.WithField("tool", name).Debug("tool.registered")
	}
	return tools
}

// mcpHandler adapts a tool to go-mcp. Calls run under the server context, as
// the message request that carried them has already been answered.
func (s *MealVisionServer) mcpHandler(name string, handler toolHandler) server.ToolHandlerFunc {
	return func(req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
		result, err := handler(s.ctx, req)
		if err != nil {
			return s.errorResult(name, err), nil
		}
		return result, nil
	}
}

// extractParams decodes the request arguments into target.
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return paramError("failed to marshal arguments: %v", err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return paramError("failed to unmarshal parameters: %v", err)
	}

	return nil
}

func parseTimestamp(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return now, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, paramError("invalid timestamp format: %v", err)
	}
	return ts, nil
}

func validDay(value, name string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(dayLayout, value); err != nil {
		return paramError("%s must be YYYY-MM-DD", name)
	}
	return nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return paramError("user_id is required")
	}
	return nil
}

func (p *photoParams) request() (*analysis.Request, error) {
	if strings.TrimSpace(p.ImageBase64) == "" {
		return nil, paramError("image_base64 is required")
	}
	meal, err := analysis.ParseMealContext(p.MealType)
	if err != nil {
		return nil, paramError("%v", err)
	}
	return &analysis.Request{
		Image:              p.ImageBase64,
		MealContext:        meal,
		DietaryPreferences: p.DietaryPreferences,
		HealthFocus:        p.HealthFocus,
	}, nil
}

type analyzeResponse struct {
	*analysis.Result
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	Quota            *quota.Status `json:"quota,omitempty"`
}

type logMealResponse struct {
	Meal             *models.Meal  `json:"meal"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	Quota            *quota.Status `json:"quota,omitempty"`
}

// handleAnalyzeFood analyzes a photo without saving it. The quota applies
// only when a user id is given.
func (s *MealVisionServer) handleAnalyzeFood(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params AnalyzeFoodParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	analysisReq, err := params.request()
	if err != nil {
		return nil, err
	}

	if params.UserID == "" {
		result, err := s.analyzer.Analyze(ctx, analysisReq)
		if err != nil {
			return nil, err
		}
		return s.createJSONResponse(analyzeResponse{Result: result, ProcessingTimeMs: result.ProcessingTimeMs()})
	}

	result, status, err := s.analyzeForUser(ctx, params.UserID, analysisReq)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(analyzeResponse{Result: result, ProcessingTimeMs: result.ProcessingTimeMs(), Quota: status})
}

// handleLogMeal analyzes a photo and persists the outcome as a meal.
func (s *MealVisionServer) handleLogMeal(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params LogMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := requireUser(params.UserID); err != nil {
		return nil, err
	}
	analysisReq, err := params.request()
	if err != nil {
		return nil, err
	}
	timestamp, err := parseTimestamp(params.Timestamp, s.now())
	if err != nil {
		return nil, err
	}

	result, status, err := s.analyzeForUser(ctx, params.UserID, analysisReq)
	if err != nil {
		return nil, err
	}

	if params.Timestamp == "" && result.CapturedAt != nil {
		timestamp = *result.CapturedAt
	}
	meal := mealFromResult(params.UserID, analysisReq.MealContext, result, timestamp)
	if err := s.storage.SaveMeal(ctx, meal); err != nil {
		return nil, fmt.Errorf("failed to save meal: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"user_id":  params.UserID,
		"meal_id":  meal.ID,
		"calories": meal.Calories,
		"items":    len(meal.Items),
	}).Info("meal.logged")

	return s.createJSONResponse(logMealResponse{Meal: meal, ProcessingTimeMs: result.ProcessingTimeMs(), Quota: status})
}

// analyzeForUser wraps an analysis with the quota reservation and the
// analysis log. Failed analyses hand their slot back.
func (s *MealVisionServer) analyzeForUser(ctx context.Context, userID string, req *analysis.Request) (*analysis.Result, *quota.Status, error) {
	plan, err := s.storage.GetPlan(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	reservation, status, err := s.limiter.Reserve(ctx, userID, plan)
	if err != nil {
		if errors.Is(err, quota.ErrDailyLimitReached) {
			metrics.QuotaRejectionsTotal.Inc()
			return nil, nil, &quotaError{status: status}
		}
		return nil, nil, fmt.Errorf("failed to reserve quota: %w", err)
	}

	result, err := s.analyzer.Analyze(ctx, req)
	s.recordAnalysis(ctx, userID, result, err)
	if err != nil {
		// The caller's context may be gone; the release must still land.
		if relErr := reservation.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logger.WithError(relErr).WithField("user_id", userID).Warn("quota.release.failed")
		}
		return nil, nil, err
	}
	return result, &status, nil
}

func (s *MealVisionServer) recordAnalysis(ctx context.Context, userID string, result *analysis.Result, err error) {
	provider := s.analyzer.Provider()
	entry := &models.AnalysisLog{
		UserID:   userID,
		Provider: provider.Name(),
		Model:    provider.Model(),
		Outcome:  models.OutcomeSuccess,
	}
	if err != nil {
		var analysisErr *analysis.Error
		if errors.As(err, &analysisErr) {
			entry.Attempts = analysisErr.Attempts
		}
		entry.ErrorKind = metrics.Outcome(err)
		entry.Outcome = entry.ErrorKind
	} else {
		entry.Attempts = result.Attempts
		entry.LatencyMs = result.ProcessingTimeMs()
		entry.PromptTokens = result.Usage.PromptTokens
		entry.CompletionTokens = result.Usage.CompletionTokens
		entry.TotalTokens = result.Usage.TotalTokens
		entry.EstimatedCostUSD = result.EstimatedCost
		entry.ItemCount = len(result.Items)
		entry.ConfidenceAvg = result.AverageConfidence()
		if result.Model != "" {
			entry.Model = result.Model
		}
	}

	if err := s.storage.SaveAnalysisLog(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("analysis.log.failed")
	}
}

func mealFromResult(userID string, mealType analysis.MealContext, result *analysis.Result, timestamp time.Time) *models.Meal {
	items := make([]models.MealItem, 0, len(result.Items))
	for _, food := range result.Items {
		items = append(items, models.MealItem{
			NameTr:     food.LocalizedName,
			NameEn:     food.AlternateName,
			Grams:      food.EstimatedGrams,
			Confidence: food.Confidence,
			Level:      models.LevelFor(food.Confidence),
			Calories:   food.Calories,
			Protein:    food.Protein,
			Carbs:      food.Carbs,
			Fat:        food.Fat,
			Fiber:      food.Fiber,
		})
	}
	return &models.Meal{
		UserID:      userID,
		Name:        result.Names(true),
		MealType:    string(mealType),
		Timestamp:   timestamp,
		Items:       items,
		Calories:    result.Totals.Calories,
		Protein:     result.Totals.Protein,
		Carbs:       result.Totals.Carbs,
		Fat:         result.Totals.Fat,
		Fiber:       result.Totals.Fiber,
		HealthScore: result.HealthScore,
		Insight:     result.Insight,
		Confidence:  result.AverageConfidence(),
		Source:      models.SourceAIPhoto,
	}
}

// handleGetMeals retrieves meals from storage
func (s *MealVisionServer) handleGetMeals(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetMealsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := requireUser(params.UserID); err != nil {
		return nil, err
	}
	if err := validDay(params.StartDate, "start_date"); err != nil {
		return nil, err
	}
	if err := validDay(params.EndDate, "end_date"); err != nil {
		return nil, err
	}

	if params.Limit <= 0 {
		params.Limit = defaultMealLimit
	}
	params.Limit = min(params.Limit, maxMealLimit)

	meals, err := s.storage.GetMeals(ctx, params.UserID, params.StartDate, params.EndDate, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve meals: %w", err)
	}

	return s.createJSONResponse(meals)
}

type dailySummaryResponse struct {
	models.DailySummary
	Quota *quota.Status `json:"quota,omitempty"`
}

func (s *MealVisionServer) handleDailySummary(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params DailySummaryParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := requireUser(params.UserID); err != nil {
		return nil, err
	}
	if err := validDay(params.Date, "date"); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	day := params.Date
	if day == "" {
		day = now.Format(dayLayout)
	}

	totals, count, err := s.storage.DailyTotals(ctx, params.UserID, day)
	if err != nil {
		return nil, err
	}
	water, err := s.storage.DailyWater(ctx, params.UserID, day)
	if err != nil {
		return nil, err
	}
	streak, err := s.storage.Streak(ctx, params.UserID, now)
	if err != nil {
		return nil, err
	}

	resp := dailySummaryResponse{
		DailySummary: models.DailySummary{
			UserID:    params.UserID,
			Date:      day,
			Totals:    totals,
			MealCount: count,
			WaterMl:   water,
			Streak:    streak,
		},
	}

	plan, err := s.storage.GetPlan(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	status, err := s.limiter.Allow(ctx, params.UserID, plan)
	if err == nil || errors.Is(err, quota.ErrDailyLimitReached) {
		resp.Quota = &status
	}

	return s.createJSONResponse(resp)
}

func (s *MealVisionServer) handleLogWater(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params LogWaterParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := requireUser(params.UserID); err != nil {
		return nil, err
	}
	if params.AmountMl <= 0 || params.AmountMl > maxWaterMl {
		return nil, paramError("amount_ml must be between 1 and %d", maxWaterMl)
	}
	timestamp, err := parseTimestamp(params.Timestamp, s.now())
	if err != nil {
		return nil, err
	}

	entry := &models.WaterLog{UserID: params.UserID, AmountMl: params.AmountMl, Timestamp: timestamp}
	if err := s.storage.SaveWater(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save water log: %w", err)
	}

	total, err := s.storage.DailyWater(ctx, params.UserID, timestamp.UTC().Format(dayLayout))
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(map[string]interface{}{
		"entry":          entry,
		"daily_total_ml": total,
	})
}

func (s *MealVisionServer) handleSetPlan(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SetPlanParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := requireUser(params.UserID); err != nil {
		return nil, err
	}
	plan := models.PlanType(strings.ToLower(strings.TrimSpace(params.PlanType)))
	if !plan.Valid() {
		return nil, paramError("plan_type must be free or premium")
	}

	if err := s.storage.SetPlan(ctx, params.UserID, plan); err != nil {
		return nil, err
	}
	s.logger.WithFields(log.Fields{"user_id": params.UserID, "plan": plan}).Info("plan.updated")

	return s.createJSONResponse(models.Subscription{
		UserID:    params.UserID,
		Plan:      plan,
		UpdatedAt: s.now().UTC(),
	})
}

// handleLogManualMeal saves a meal typed in by the user. No analysis runs, so
// the quota does not apply.
func (s *MealVisionServer) handleLogManualMeal(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params LogManualMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := requireUser(params.UserID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, paramError("name is required")
	}
	if params.Calories == nil {
		return nil, paramError("calories is required")
	}
	if *params.Calories < 0 || *params.Calories > maxManualKcal {
		return nil, paramError("calories must be between 0 and %d", maxManualKcal)
	}
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"protein", params.Protein},
		{"carbs", params.Carbs},
		{"fat", params.Fat},
		{"fiber", params.Fiber},
		{"grams", params.Grams},
	} {
		if v.value < 0 {
			return nil, paramError("%s must not be negative", v.name)
		}
	}
	var mealType analysis.MealContext
	if strings.TrimSpace(params.MealType) != "" {
		meal, err := analysis.ParseMealContext(params.MealType)
		if err != nil {
			return nil, paramError("%v", err)
		}
		mealType = meal
	}
	timestamp, err := parseTimestamp(params.Timestamp, s.now())
	if err != nil {
		return nil, err
	}

	meal := &models.Meal{
		UserID:    params.UserID,
		Name:      name,
		MealType:  string(mealType),
		Timestamp: timestamp,
		Items: []models.MealItem{{
			NameTr:     name,
			NameEn:     name,
			Grams:      params.Grams,
			Confidence: 1,
			Level:      models.HighConfidence,
			Calories:   *params.Calories,
			Protein:    params.Protein,
			Carbs:      params.Carbs,
			Fat:        params.Fat,
			Fiber:      params.Fiber,
		}},
		Calories:   *params.Calories,
		Protein:    params.Protein,
		Carbs:      params.Carbs,
		Fat:        params.Fat,
		Fiber:      params.Fiber,
		Confidence: 1,
		Source:     models.SourceManual,
	}
	if err := s.storage.SaveMeal(ctx, meal); err != nil {
		return nil, fmt.Errorf("failed to save meal: %w", err)
	}
	s.logger.WithFields(log.Fields{
		"user_id":  params.UserID,
		"meal_id":  meal.ID,
		"calories": meal.Calories,
		"source":   meal.Source,
	}).Info("meal.logged")

	return s.createJSONResponse(logMealResponse{Meal: meal})
}

func (s *MealVisionServer) handleWeeklyStats(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params WeeklyStatsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := requireUser(params.UserID); err != nil {
		return nil, err
	}
	if err := validDay(params.Date, "date"); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	weekOf := now
	if params.Date != "" {
		weekOf, _ = time.Parse(dayLayout, params.Date)
	}

	stats, err := s.storage.WeeklyStats(ctx, params.UserID, weekOf)
	if err != nil {
		return nil, err
	}
	if stats.Streak, err = s.storage.Streak(ctx, params.UserID, now); err != nil {
		return nil, err
	}
	return s.createJSONResponse(stats)
}

type recipesResponse struct {
	*analysis.RecipeSuggestions
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// handleSuggestRecipes is not metered by the daily photo quota.
func (s *MealVisionServer) handleSuggestRecipes(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SuggestRecipesParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	var mealType analysis.MealContext
	if strings.TrimSpace(params.MealType) != "" {
		meal, err := analysis.ParseMealContext(params.MealType)
		if err != nil {
			return nil, paramError("%v", err)
		}
		mealType = meal
	}

	out, err := s.analyzer.SuggestRecipes(ctx, &analysis.RecipeRequest{
		Ingredients:        params.Ingredients,
		Image:              params.ImageBase64,
		MealContext:        mealType,
		DietaryPreferences: params.DietaryPreferences,
		HealthFocus:        params.HealthFocus,
		KitchenPreferences: params.KitchenPreferences,
		Diabetic:           params.Diabetic,
	})
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(recipesResponse{
		RecipeSuggestions: out,
		ProcessingTimeMs:  out.ProcessingTime.Milliseconds(),
	})
}

func (s *MealVisionServer) handleAnalysisLogs(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params AnalysisLogsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := requireUser(params.UserID); err != nil {
		return nil, err
	}
	if params.Limit <= 0 {
		params.Limit = defaultMealLimit
	}
	params.Limit = min(params.Limit, maxMealLimit)

	logs, err := s.storage.AnalysisLogs(ctx, params.UserID, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve analysis logs: %w", err)
	}
	return s.createJSONResponse(logs)
}
