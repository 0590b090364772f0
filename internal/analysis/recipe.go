// internal/analysis/recipe.go
package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const maxRecipeIngredients = 30

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// RecipeRequest asks for recipe ideas. Ingredients and Image are both
// optional; with neither the model suggests popular healthy recipes.
type RecipeRequest struct {
	Ingredients        []string
	Image              string
	MealContext        MealContext // empty means any meal
	DietaryPreferences []string
	HealthFocus        []string
	KitchenPreferences []string
	Diabetic           bool
}

type Recipe struct {
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Ingredients       []string   `json:"ingredients"`
	Instructions      []string   `json:"instructions"`
	PrepTimeMinutes   int        `json:"prep_time"`
	Calories          float64    `json:"calories"`
	Protein           float64    `json:"protein"`
	Carbs             float64    `json:"carbs"`
	Fat               float64    `json:"fat"`
	Difficulty        Difficulty `json:"difficulty,omitempty"`
	SuitabilityScore  *int       `json:"suitability_score,omitempty"`
	SuitabilityReason string     `json:"suitability_reason,omitempty"`
}

type RecipeSuggestions struct {
	Recipes             []Recipe        `json:"recipes"`
	IngredientsDetected []string        `json:"ingredients_detected,omitempty"`
	ProcessingTime      time.Duration   `json:"-"`
	Provider            string          `json:"provider"`
	Model               string          `json:"model"`
	Attempts            int             `json:"attempts"`
	Usage               Usage           `json:"usage"`
	EstimatedCost       decimal.Decimal `json:"estimated_cost_usd"`
}

var (
	recipeListKeys   = []string{"recipes", "suggestions", "recipe_suggestions"}
	titleKeys        = []string{"title", "name", "recipe_name"}
	instructionKeys  = []string{"instructions", "steps", "directions"}
	prepTimeKeys     = []string{"prep_time", "prep_time_minutes", "prepTime", "time_minutes"}
	suitabilityKeys  = []string{"suitability_score", "suitabilityScore", "score"}
	detectedListKeys = []string{"ingredients_detected", "detected_ingredients", "ingredientsDetected"}
)

var difficulties = map[string]Difficulty{
	"easy":   DifficultyEasy,
	"medium": DifficultyMedium,
	"hard":   DifficultyHard,
}

// SuggestRecipes runs the recipe prompt through the same timeout, retry,
// extraction and error classification as Analyze. Errors are always *Error.
func (c *Client) SuggestRecipes(ctx context.Context, req *RecipeRequest) (*RecipeSuggestions, error) {
	start := c.now()
	out, err := c.suggestRecipes(ctx, req)
	elapsed := c.now().Sub(start)

	name := c.providerName()
	if err != nil {
		c.logger.WithFields(log.Fields{
			"provider": name,
			"kind":     err.Kind,
			"status":   err.Status,
			"attempts": err.Attempts,
			"elapsed":  elapsed.String(),
		}).Error("recipes.failed")
		return nil, err
	}

	out.ProcessingTime = elapsed
	c.logger.WithFields(log.Fields{
		"provider": name,
		"recipes":  len(out.Recipes),
		"attempts": out.Attempts,
		"elapsed":  elapsed.String(),
	}).Info("recipes.suggested")
	return out, nil
}

func (c *Client) suggestRecipes(ctx context.Context, req *RecipeRequest) (*RecipeSuggestions, *Error) {
	const op = "analysis.SuggestRecipes"

	if c.provider == nil || !c.provider.HasCredentials() {
		return nil, newError(KindMissingCredentials, op, "provider API key is not configured")
	}
	if req == nil {
		return nil, newError(KindInvalidRequest, op, "request is required")
	}

	normalized := *req
	if strings.TrimSpace(string(req.MealContext)) != "" {
		meal, err := ParseMealContext(string(req.MealContext))
		if err != nil {
			return nil, wrapError(KindInvalidRequest, op, "invalid meal context", err)
		}
		normalized.MealContext = meal
	}
	normalized.Ingredients = cleanTags(req.Ingredients)
	if len(normalized.Ingredients) > maxRecipeIngredients {
		return nil, newError(KindInvalidRequest, op,
			fmt.Sprintf("at most %d ingredients are allowed, got %d", maxRecipeIngredients, len(normalized.Ingredients)))
	}

	var img *Image
	normalized.Image = strings.TrimSpace(req.Image)
	if normalized.Image != "" {
		var imgErr *Error
		if img, imgErr = prepareImage(op, normalized.Image, c.opts.MaxImageBytes); imgErr != nil {
			return nil, imgErr
		}
	}

	prompt := BuildRecipePrompt(&normalized, img, c.opts.Prompt)
	out, call, typed := withRetries(ctx, c, prompt, decodeRecipes)
	if typed != nil {
		return nil, typed
	}
	out.Provider = c.provider.Name()
	out.Model = c.provider.Model()
	out.Attempts = call.attempts
	out.Usage = call.usage
	out.EstimatedCost = c.opts.Pricing.Cost(call.usage)
	return out, nil
}

func decodeRecipes(raw string) (*RecipeSuggestions, *Error) {
	out, err := NormalizeRecipes(raw)
	if err != nil {
		return nil, asError(err)
	}
	return out, nil
}

// NormalizeRecipes validates a parsed recipe answer. Failures are
// KindInvalidSchema.
func NormalizeRecipes(raw string) (*RecipeSuggestions, error) {
	const op = "analysis.NormalizeRecipes"

	root := gjson.Parse(raw)
	if !root.IsObject() {
		return nil, schemaError(op, raw, "top-level value is not an object")
	}
	if _, ok := lookup(root, recipeListKeys); !ok {
		for _, key := range wrapperKeys {
			if inner := root.Get(key); inner.IsObject() {
				if _, ok := lookup(inner, recipeListKeys); ok {
					root = inner
					break
				}
			}
		}
	}

	list, ok := lookup(root, recipeListKeys)
	if !ok {
		return nil, schemaError(op, raw, "no recipe list in response")
	}
	if !list.IsArray() {
		return nil, schemaError(op, raw, "recipe list is not an array")
	}

	out := &RecipeSuggestions{Recipes: make([]Recipe, 0, len(list.Array()))}
	for i, entry := range list.Array() {
		if !entry.IsObject() {
			return nil, schemaError(op, raw, fmt.Sprintf("recipes[%d] is not an object", i))
		}
		recipe, err := normalizeRecipe(entry)
		if err != nil {
			return nil, schemaError(op, raw, fmt.Sprintf("recipes[%d]: %v", i, err))
		}
		out.Recipes = append(out.Recipes, recipe)
	}
	if len(out.Recipes) == 0 {
		return nil, schemaError(op, raw, "no recipes suggested")
	}

	if v, ok := lookup(root, detectedListKeys); ok && v.IsArray() {
		out.IngredientsDetected = stringList(v)
	}
	return out, nil
}

func normalizeRecipe(obj gjson.Result) (Recipe, error) {
	var r Recipe

	if r.Title = stringField(obj, titleKeys); r.Title == "" {
		return r, fmt.Errorf("title is required")
	}
	r.Description = stringField(obj, []string{"description"})

	ingredients := obj.Get("ingredients")
	if !ingredients.IsArray() {
		return r, fmt.Errorf("ingredients must be a list")
	}
	if r.Ingredients = stringList(ingredients); len(r.Ingredients) == 0 {
		return r, fmt.Errorf("ingredients must not be empty")
	}
	steps, ok := lookup(obj, instructionKeys)
	if !ok || !steps.IsArray() {
		return r, fmt.Errorf("instructions must be a list")
	}
	if r.Instructions = stringList(steps); len(r.Instructions) == 0 {
		return r, fmt.Errorf("instructions must not be empty")
	}

	if v, ok := lookup(obj, prepTimeKeys); ok && v.Type != gjson.Null {
		minutes, err := number(v)
		if err != nil {
			return r, fmt.Errorf("prep_time: %w", err)
		}
		if minutes < 0 {
			return r, fmt.Errorf("prep_time must not be negative, got %v", minutes)
		}
		r.PrepTimeMinutes = int(math.Round(minutes))
	}

	macros := []struct {
		dst  *float64
		keys []string
		name string
	}{
		{&r.Calories, caloriesKeys, "calories"},
		{&r.Protein, proteinKeys, "protein"},
		{&r.Carbs, carbsKeys, "carbs"},
		{&r.Fat, fatKeys, "fat"},
	}
	var err error
	for _, m := range macros {
		if *m.dst, err = requiredNumber(obj, m.keys, m.name, false, 0); err != nil {
			return r, err
		}
		if *m.dst < 0 {
			return r, fmt.Errorf("%s must not be negative, got %v", m.name, *m.dst)
		}
	}

	if d := stringField(obj, []string{"difficulty"}); d != "" {
		level, ok := difficulties[strings.ToLower(d)]
		if !ok {
			return r, fmt.Errorf("unknown difficulty %q", d)
		}
		r.Difficulty = level
	}

	if v, ok := lookup(obj, suitabilityKeys); ok && v.Type != gjson.Null {
		score, err := number(v)
		if err != nil {
			return r, fmt.Errorf("suitability_score: %w", err)
		}
		if score < 0 || score > 100 {
			return r, fmt.Errorf("suitability_score %v out of range [0,100]", score)
		}
		rounded := int(math.Round(score))
		r.SuitabilityScore = &rounded
	}
	r.SuitabilityReason = stringField(obj, []string{"suitability_reason", "reason"})

	return r, nil
}

// stringList keeps the non-empty strings of a JSON array.
func stringList(v gjson.Result) []string {
	var out []string
	for _, entry := range v.Array() {
		if entry.Type != gjson.String {
			continue
		}
		if s := strings.TrimSpace(entry.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
