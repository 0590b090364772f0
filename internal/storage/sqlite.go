// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"mcp-meal-vision/internal/models"
)

const (
	dayLayout     = "2006-01-02"
	streakHorizon = 90

	// timeLayout always writes nine fractional digits so stored timestamps
	// sort correctly as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db, now: time.Now}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Ping is used by the health check.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS meals (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        name TEXT NOT NULL,
        meal_type TEXT NOT NULL,
        calories REAL NOT NULL,
        protein REAL NOT NULL,
        carbs REAL NOT NULL,
        fat REAL NOT NULL,
        fiber REAL NOT NULL,
        health_score INTEGER,
        insight TEXT NOT NULL DEFAULT '',
        confidence REAL NOT NULL,
        source TEXT NOT NULL,
        day TEXT NOT NULL,
        timestamp TEXT NOT NULL,
        created_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS meal_items (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        meal_id TEXT NOT NULL,
        name_tr TEXT NOT NULL,
        name_en TEXT NOT NULL,
        grams REAL NOT NULL,
        confidence REAL NOT NULL,
        calories REAL NOT NULL,
        protein REAL NOT NULL,
        carbs REAL NOT NULL,
        fat REAL NOT NULL,
        fiber REAL NOT NULL,
        FOREIGN KEY (meal_id) REFERENCES meals(id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS analysis_logs (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        provider TEXT NOT NULL,
        model TEXT NOT NULL,
        attempts INTEGER NOT NULL,
        latency_ms INTEGER NOT NULL,
        prompt_tokens INTEGER NOT NULL,
        completion_tokens INTEGER NOT NULL,
        total_tokens INTEGER NOT NULL,
        estimated_cost_usd TEXT NOT NULL DEFAULT '0',
        item_count INTEGER NOT NULL,
        confidence_avg REAL NOT NULL,
        outcome TEXT NOT NULL,
        error_kind TEXT NOT NULL DEFAULT '',
        created_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS water_logs (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        amount_ml INTEGER NOT NULL,
        day TEXT NOT NULL,
        timestamp TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS subscriptions (
        user_id TEXT PRIMARY KEY,
        plan_type TEXT NOT NULL,
        updated_at TEXT NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_meals_user_day ON meals(user_id, day);
    CREATE INDEX IF NOT EXISTS idx_meals_user_timestamp ON meals(user_id, timestamp);
    CREATE INDEX IF NOT EXISTS idx_meal_items_meal_id ON meal_items(meal_id);
    CREATE INDEX IF NOT EXISTS idx_analysis_logs_user ON analysis_logs(user_id, created_at);
    CREATE INDEX IF NOT EXISTS idx_water_logs_user_day ON water_logs(user_id, day);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime also reads rows written with a variable-width fraction.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func dayOf(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// SaveMeal stores a meal and its items in one transaction. Empty ID and
// CreatedAt are filled in.
func (s *SQLiteStorage) SaveMeal(ctx context.Context, meal *models.Meal) error {
	if meal.UserID == "" {
		return errors.New("meal user_id is required")
	}
	if meal.ID == "" {
		meal.ID = uuid.NewString()
	}
	if meal.CreatedAt.IsZero() {
		meal.CreatedAt = s.now().UTC()
	}
	if meal.Timestamp.IsZero() {
		meal.Timestamp = meal.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var healthScore sql.NullInt64
	if meal.HealthScore != nil {
		healthScore = sql.NullInt64{Int64: int64(*meal.HealthScore), Valid: true}
	}

	mealQuery := `
        INSERT INTO meals (id, user_id, name, meal_type, calories, protein, carbs, fat, fiber,
            health_score, insight, confidence, source, day, timestamp, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = tx.ExecContext(ctx, mealQuery,
		meal.ID, meal.UserID, meal.Name, meal.MealType,
		meal.Calories, meal.Protein, meal.Carbs, meal.Fat, meal.Fiber,
		healthScore, meal.Insight, meal.Confidence, meal.Source,
		dayOf(meal.Timestamp), formatTime(meal.Timestamp), formatTime(meal.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert meal: %w", err)
	}

	itemQuery := `
        INSERT INTO meal_items (meal_id, name_tr, name_en, grams, confidence, calories, protein, carbs, fat, fiber)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	for _, item := range meal.Items {
		_, err = tx.ExecContext(ctx, itemQuery,
			meal.ID, item.NameTr, item.NameEn, item.Grams, item.Confidence,
			item.Calories, item.Protein, item.Carbs, item.Fat, item.Fiber)
		if err != nil {
			return fmt.Errorf("failed to insert meal item: %w", err)
		}
	}

	return tx.Commit()
}

// GetMeals lists a user's meals newest first. startDate and endDate are
// optional inclusive YYYY-MM-DD bounds.
func (s *SQLiteStorage) GetMeals(ctx context.Context, userID, startDate, endDate string, limit int) ([]*models.Meal, error) {
	query := `
        SELECT id, user_id, name, meal_type, calories, protein, carbs, fat, fiber,
            health_score, insight, confidence, source, timestamp, created_at
        FROM meals
        WHERE user_id = ?
    `
	args := []interface{}{userID}

	if startDate != "" {
		query += " AND day >= ?"
		args = append(args, startDate)
	}
	if endDate != "" {
		query += " AND day <= ?"
		args = append(args, endDate)
	}

	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query meals: %w", err)
	}
	defer rows.Close()

	meals := []*models.Meal{}
	for rows.Next() {
		meal := &models.Meal{}
		var timestampStr, createdAtStr string
		var healthScore sql.NullInt64

		err := rows.Scan(
			&meal.ID, &meal.UserID, &meal.Name, &meal.MealType,
			&meal.Calories, &meal.Protein, &meal.Carbs, &meal.Fat, &meal.Fiber,
			&healthScore, &meal.Insight, &meal.Confidence, &meal.Source,
			&timestampStr, &createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}

		if meal.Timestamp, err = parseTime(timestampStr); err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		if meal.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if healthScore.Valid {
			score := int(healthScore.Int64)
			meal.HealthScore = &score
		}

		meals = append(meals, meal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read meals: %w", err)
	}

	for _, meal := range meals {
		if err := s.loadItemsForMeal(ctx, meal); err != nil {
			return nil, fmt.Errorf("failed to load items for meal %s: %w", meal.ID, err)
		}
	}

	return meals, nil
}

func (s *SQLiteStorage) loadItemsForMeal(ctx context.Context, meal *models.Meal) error {
	query := `
        SELECT name_tr, name_en, grams, confidence, calories, protein, carbs, fat, fiber
        FROM meal_items
        WHERE meal_id = ?
        ORDER BY id
    `

	rows, err := s.db.QueryContext(ctx, query, meal.ID)
	if err != nil {
		return fmt.Errorf("failed to query meal items: %w", err)
	}
	defer rows.Close()

	items := []models.MealItem{}
	for rows.Next() {
		item := models.MealItem{}
		err := rows.Scan(
			&item.NameTr, &item.NameEn, &item.Grams, &item.Confidence,
			&item.Calories, &item.Protein, &item.Carbs, &item.Fat, &item.Fiber)
		if err != nil {
			return fmt.Errorf("failed to scan meal item: %w", err)
		}
		item.Level = models.LevelFor(item.Confidence)
		items = append(items, item)
	}

	meal.Items = items
	return rows.Err()
}

// DailyTotals sums the macros of a user's meals on day (YYYY-MM-DD, UTC).
func (s *SQLiteStorage) DailyTotals(ctx context.Context, userID, day string) (models.Totals, int, error) {
	query := `
        SELECT COALESCE(SUM(calories), 0), COALESCE(SUM(protein), 0), COALESCE(SUM(carbs), 0),
            COALESCE(SUM(fat), 0), COALESCE(SUM(fiber), 0), COUNT(*)
        FROM meals
        WHERE user_id = ? AND day = ?
    `
	var (
		totals models.Totals
		count  int
	)
	err := s.db.QueryRowContext(ctx, query, userID, day).Scan(
		&totals.Calories, &totals.Protein, &totals.Carbs, &totals.Fat, &totals.Fiber, &count)
	if err != nil {
		return models.Totals{}, 0, fmt.Errorf("failed to sum meals: %w", err)
	}
	return totals, count, nil
}

// Streak counts consecutive days with at least one meal, ending today. A
// day without meals so far today does not break the streak.
func (s *SQLiteStorage) Streak(ctx context.Context, userID string, now time.Time) (int, error) {
	today := now.UTC()
	from := today.AddDate(0, 0, -streakHorizon)

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT day FROM meals WHERE user_id = ? AND day >= ? AND day <= ?`,
		userID, dayOf(from), dayOf(today))
	if err != nil {
		return 0, fmt.Errorf("failed to query meal days: %w", err)
	}
	defer rows.Close()

	days := make(map[string]bool)
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return 0, fmt.Errorf("failed to scan meal day: %w", err)
		}
		days[day] = true
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read meal days: %w", err)
	}

	cursor := today
	if !days[dayOf(cursor)] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	streak := 0
	for streak < streakHorizon && days[dayOf(cursor)] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak, nil
}

// WeekStart is the Monday (UTC) of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
}

// WeeklyStats aggregates a user's meals for the Monday-based week that
// contains weekOf. The streak is left for the caller, which knows "today".
func (s *SQLiteStorage) WeeklyStats(ctx context.Context, userID string, weekOf time.Time) (*models.WeeklyStats, error) {
	monday := WeekStart(weekOf)
	sunday := monday.AddDate(0, 0, 6)

	query := `
        SELECT day, COALESCE(SUM(calories), 0), COUNT(*),
            COALESCE(SUM(CASE WHEN source = ? THEN 1 ELSE 0 END), 0)
        FROM meals
        WHERE user_id = ? AND day >= ? AND day <= ?
        GROUP BY day
    `
	rows, err := s.db.QueryContext(ctx, query, models.SourceAIPhoto, userID, dayOf(monday), dayOf(sunday))
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly meals: %w", err)
	}
	defer rows.Close()

	stats := &models.WeeklyStats{
		UserID:        userID,
		WeekStart:     dayOf(monday),
		DailyCalories: make([]float64, 7),
	}
	for rows.Next() {
		var (
			day      string
			calories float64
			meals    int
			scans    int
		)
		if err := rows.Scan(&day, &calories, &meals, &scans); err != nil {
			return nil, fmt.Errorf("failed to scan weekly meals: %w", err)
		}
		date, err := time.Parse(dayLayout, day)
		if err != nil {
			return nil, fmt.Errorf("failed to parse meal day: %w", err)
		}
		idx := int(date.Sub(monday).Hours() / 24)
		if idx < 0 || idx > 6 {
			continue
		}
		stats.DailyCalories[idx] += calories
		stats.TotalMeals += meals
		stats.TotalScans += scans
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read weekly meals: %w", err)
	}

	var total float64
	daysWithData := 0
	for _, kcal := range stats.DailyCalories {
		total += kcal
		if kcal > 0 {
			daysWithData++
		}
	}
	if daysWithData > 0 {
		stats.AvgCalories = int(math.Round(total / float64(daysWithData)))
	}
	return stats, nil
}

func (s *SQLiteStorage) SaveWater(ctx context.Context, entry *models.WaterLog) error {
	if entry.AmountMl <= 0 {
		return fmt.Errorf("water amount must be positive, got %d", entry.AmountMl)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO water_logs (id, user_id, amount_ml, day, timestamp) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.AmountMl, dayOf(entry.Timestamp), formatTime(entry.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to insert water log: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DailyWater(ctx context.Context, userID, day string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_ml), 0) FROM water_logs WHERE user_id = ? AND day = ?`,
		userID, day).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum water logs: %w", err)
	}
	return total, nil
}

func (s *SQLiteStorage) SaveAnalysisLog(ctx context.Context, entry *models.AnalysisLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	query := `
        INSERT INTO analysis_logs (id, user_id, provider, model, attempts, latency_ms,
            prompt_tokens, completion_tokens, total_tokens, estimated_cost_usd, item_count,
            confidence_avg, outcome, error_kind, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Provider, entry.Model, entry.Attempts, entry.LatencyMs,
		entry.PromptTokens, entry.CompletionTokens, entry.TotalTokens, entry.EstimatedCostUSD.String(), entry.ItemCount,
		entry.ConfidenceAvg, entry.Outcome, entry.ErrorKind, formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert analysis log: %w", err)
	}
	return nil
}

// AnalysisLogs returns a user's most recent analysis records.
func (s *SQLiteStorage) AnalysisLogs(ctx context.Context, userID string, limit int) ([]*models.AnalysisLog, error) {
	query := `
        SELECT id, user_id, provider, model, attempts, latency_ms, prompt_tokens,
            completion_tokens, total_tokens, estimated_cost_usd, item_count, confidence_avg,
            outcome, error_kind, created_at
        FROM analysis_logs
        WHERE user_id = ?
        ORDER BY created_at DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AnalysisLog
	for rows.Next() {
		entry := &models.AnalysisLog{}
		var createdAtStr string
		err := rows.Scan(&entry.ID, &entry.UserID, &entry.Provider, &entry.Model, &entry.Attempts,
			&entry.LatencyMs, &entry.PromptTokens, &entry.CompletionTokens, &entry.TotalTokens,
			&entry.EstimatedCostUSD, &entry.ItemCount, &entry.ConfidenceAvg, &entry.Outcome, &entry.ErrorKind, &createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis log: %w", err)
		}
		if entry.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// GetPlan returns the user's plan; users without a subscription row are on
// the free plan.
func (s *SQLiteStorage) GetPlan(ctx context.Context, userID string) (models.PlanType, error) {
	var plan string
	err := s.db.QueryRowContext(ctx,
		`SELECT plan_type FROM subscriptions WHERE user_id = ?`, userID).Scan(&plan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PlanFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query subscription: %w", err)
	}
	return models.PlanType(plan), nil
}

func (s *SQLiteStorage) SetPlan(ctx context.Context, userID string, plan models.PlanType) error {
	if !plan.Valid() {
		return fmt.Errorf("unknown plan type %q", plan)
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO subscriptions (user_id, plan_type, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET plan_type = excluded.plan_type, updated_at = excluded.updated_at
    `, userID, string(plan), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}
