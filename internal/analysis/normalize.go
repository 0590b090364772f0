// internal/analysis/normalize.go
package analysis

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Field aliases seen across the providers this service has been wired to.
var (
	itemListKeys  = []string{"foods", "items", "food_items", "foodItems", "detected_foods", "detectedFoods"}
	wrapperKeys   = []string{"result", "analysis", "data"}
	localizedKeys = []string{"name_tr", "localized_name", "localizedName", "name_local", "food_name", "name"}
	alternateKeys = []string{"name_en", "alternate_name", "alternateName", "english_name", "name"}
	gramsKeys     = []string{"estimated_grams", "estimatedGrams", "grams", "portion_grams", "weight_g", "weight_grams", "serving_grams"}
	confKeys      = []string{"confidence", "confidence_score", "confidenceScore"}
	caloriesKeys  = []string{"calories", "kcal", "energy_kcal", "calories_kcal"}
	proteinKeys   = []string{"protein", "protein_g", "proteins"}
	carbsKeys     = []string{"carbs", "carbohydrates", "carbs_g", "carbohydrates_g", "carbohydrate"}
	fatKeys       = []string{"fat", "fat_g", "fats", "total_fat"}
	fiberKeys     = []string{"fiber", "fibre", "fiber_g", "dietary_fiber"}
	scoreKeys     = []string{"health_score", "healthScore"}
	insightKeys   = []string{"insight", "notes", "summary"}
)

const (
	flatDefaultGrams      = 100
	flatDefaultConfidence = 1.0
)

// Named confidence levels, as some models answer "high" instead of a number.
var confidenceLevels = map[string]float64{
	"high":   0.9,
	"medium": 0.6,
	"low":    0.3,
}

// Normalize validates a parsed provider object and maps it into a Result.
// Totals are always recomputed from the items; provider-reported totals are
// ignored.
func Normalize(raw string) (*Result, error) {
	const op = "analysis.Normalize"

	root := gjson.Parse(raw)
	if !root.IsObject() {
		return nil, schemaError(op, raw, "top-level value is not an object")
	}
	root = unwrap(root)

	var (
		items []FoodItem
		err   error
	)
	if list, ok := lookup(root, itemListKeys); ok {
		if !list.IsArray() {
			return nil, schemaError(op, raw, "food list is not an array")
		}
		items, err = normalizeItems(list.Array())
	} else if isFlatFood(root) {
		var item FoodItem
		item, err = normalizeItem(root, true)
		items = []FoodItem{item}
	} else {
		return nil, schemaError(op, raw, "no food list in response")
	}
	if err != nil {
		return nil, schemaError(op, raw, err.Error())
	}
	if len(items) == 0 {
		return nil, schemaError(op, raw, "no food detected in image")
	}

	result := &Result{
		Items:  items,
		Totals: sumTotals(items),
	}

	if v, ok := lookup(root, scoreKeys); ok && v.Type != gjson.Null {
		score, err := number(v)
		if err != nil {
			return nil, schemaError(op, raw, "health_score: "+err.Error())
		}
		if score < 0 || score > 100 {
			return nil, schemaError(op, raw, fmt.Sprintf("health_score %v out of range [0,100]", score))
		}
		rounded := int(math.Round(score))
		result.HealthScore = &rounded
	}
	if v, ok := lookup(root, insightKeys); ok && v.Type == gjson.String {
		result.Insight = strings.TrimSpace(v.String())
	}

	return result, nil
}

func schemaError(op, raw, message string) *Error {
	e := newError(KindInvalidSchema, op, message)
	e.Snippet = truncate(raw, snippetLimit)
	return e
}

// unwrap descends into {"result": {...}} style envelopes when the item list
// is not at the top level.
func unwrap(root gjson.Result) gjson.Result {
	if _, ok := lookup(root, itemListKeys); ok {
		return root
	}
	for _, key := range wrapperKeys {
		inner := root.Get(key)
		if inner.IsObject() {
			if _, ok := lookup(inner, itemListKeys); ok || isFlatFood(inner) {
				return inner
			}
		}
	}
	return root
}

func isFlatFood(obj gjson.Result) bool {
	_, hasName := lookup(obj, localizedKeys)
	if !hasName {
		_, hasName = lookup(obj, alternateKeys)
	}
	_, hasCalories := lookup(obj, caloriesKeys)
	return hasName && hasCalories
}

func normalizeItems(list []gjson.Result) ([]FoodItem, error) {
	items := make([]FoodItem, 0, len(list))
	for i, entry := range list {
		if !entry.IsObject() {
			return nil, fmt.Errorf("foods[%d] is not an object", i)
		}
		item, err := normalizeItem(entry, false)
		if err != nil {
			return nil, fmt.Errorf("foods[%d]: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func normalizeItem(obj gjson.Result, flat bool) (FoodItem, error) {
	var item FoodItem

	item.LocalizedName = stringField(obj, localizedKeys)
	item.AlternateName = stringField(obj, alternateKeys)
	switch {
	case item.LocalizedName == "" && item.AlternateName == "":
		return item, fmt.Errorf("name is required")
	case item.LocalizedName == "":
		return item, fmt.Errorf("name_tr is required")
	case item.AlternateName == "":
		return item, fmt.Errorf("name_en is required")
	}

	var err error
	if item.EstimatedGrams, err = requiredNumber(obj, gramsKeys, "estimated_grams", flat, flatDefaultGrams); err != nil {
		return item, err
	}
	if item.EstimatedGrams <= 0 {
		return item, fmt.Errorf("estimated_grams must be positive, got %v", item.EstimatedGrams)
	}

	if item.Confidence, err = confidence(obj, flat); err != nil {
		return item, err
	}
	if item.Confidence < 0 || item.Confidence > 1 {
		return item, fmt.Errorf("confidence %v out of range [0,1]", item.Confidence)
	}

	macros := []struct {
		dst  *float64
		keys []string
		name string
	}{
		{&item.Calories, caloriesKeys, "calories"},
		{&item.Protein, proteinKeys, "protein"},
		{&item.Carbs, carbsKeys, "carbs"},
		{&item.Fat, fatKeys, "fat"},
	}
	for _, m := range macros {
		if *m.dst, err = requiredNumber(obj, m.keys, m.name, false, 0); err != nil {
			return item, err
		}
		if *m.dst < 0 {
			return item, fmt.Errorf("%s must not be negative, got %v", m.name, *m.dst)
		}
	}

	// Fiber is missing from several provider schemas; absent means 0.
	if v, ok := lookup(obj, fiberKeys); ok && v.Type != gjson.Null {
		if item.Fiber, err = number(v); err != nil {
			return item, fmt.Errorf("fiber: %w", err)
		}
		if item.Fiber < 0 {
			return item, fmt.Errorf("fiber must not be negative, got %v", item.Fiber)
		}
	}

	return item, nil
}

func confidence(obj gjson.Result, flat bool) (float64, error) {
	v, ok := lookup(obj, confKeys)
	if !ok || v.Type == gjson.Null {
		if flat {
			return flatDefaultConfidence, nil
		}
		return 0, fmt.Errorf("confidence is required")
	}
	if v.Type == gjson.String {
		if level, ok := confidenceLevels[strings.ToLower(strings.TrimSpace(v.String()))]; ok {
			return level, nil
		}
	}
	c, err := number(v)
	if err != nil {
		return 0, fmt.Errorf("confidence: %w", err)
	}
	return c, nil
}

func requiredNumber(obj gjson.Result, keys []string, name string, useDefault bool, def float64) (float64, error) {
	v, ok := lookup(obj, keys)
	if !ok || v.Type == gjson.Null {
		if useDefault {
			return def, nil
		}
		return 0, fmt.Errorf("%s is required", name)
	}
	n, err := number(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// number accepts JSON numbers and numeric strings such as "12.5".
func number(v gjson.Result) (float64, error) {
	switch v.Type {
	case gjson.Number:
		n := v.Float()
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%s is out of range", v.Raw)
		}
		return n, nil
	case gjson.String:
		s := strings.TrimSpace(v.String())
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%q is not a number", s)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected a number, got %s", v.Type)
	}
}

func stringField(obj gjson.Result, keys []string) string {
	if v, ok := lookup(obj, keys); ok && v.Type == gjson.String {
		return strings.TrimSpace(v.String())
	}
	return ""
}

// lookup returns the first key present on obj.
func lookup(obj gjson.Result, keys []string) (gjson.Result, bool) {
	for _, key := range keys {
		v := obj.Get(key)
		if v.Exists() {
			return v, true
		}
	}
	return gjson.Result{}, false
}
