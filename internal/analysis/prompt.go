// internal/analysis/prompt.go
package analysis

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a professional nutritionist. Analyze the food in the photo and estimate portions and nutrition for every visible item.

Respond with a single JSON object and nothing else. Do not wrap it in markdown code fences. Do not add explanations before or after it.

The object MUST have exactly this shape:
{
  "foods": [
    {
      "name_tr": "food name in Turkish",
      "name_en": "food name in English",
      "estimated_grams": 150,
      "confidence": 0.85,
      "calories": 250,
      "protein": 12.5,
      "carbs": 30.0,
      "fat": 8.0,
      "fiber": 3.0
    }
  ],
  "health_score": 75,
  "insight": "one or two sentences about this meal"
}

Rules:
- List every visible food item separately; side dishes such as bread, rice or salad count as their own item.
- estimated_grams is the portion weight in grams and must be greater than 0. Use a standard 26 cm dinner plate as the size reference.
- calories is kcal for the estimated portion; protein, carbs, fat and fiber are grams for the estimated portion. None may be negative.
- confidence is a number from 0 to 1.
- health_score is an integer from 0 (very unhealthy) to 100 (very healthy).
- If the photo contains no food, return "foods": [].`

// BuildPrompt renders the provider-neutral prompt for req. The image is
// expected to be prechecked already.
func BuildPrompt(req *Request, img *Image, opts PromptOptions) *Prompt {
	return &Prompt{
		Task:            TaskFoodAnalysis,
		System:          systemPrompt,
		User:            userPrompt(req, opts.InsightLanguage),
		ImageBase64:     img.Base64,
		ImageMIME:       img.MIME,
		MaxOutputTokens: opts.MaxOutputTokens,
		Temperature:     opts.Temperature,
	}
}

// PromptOptions tunes generation; zero values fall back to defaults.
type PromptOptions struct {
	InsightLanguage string
	MaxOutputTokens int
	Temperature     float32
}

func userPrompt(req *Request, language string) string {
	if language == "" {
		language = "Turkish"
	}
	meal := req.MealContext
	if meal == "" {
		meal = MealSnack
	}

	var b strings.Builder
	b.WriteString("Analyze this meal photo.\n")
	fmt.Fprintf(&b, "- Meal type: %s\n", meal)
	if prefs := cleanTags(req.DietaryPreferences); len(prefs) > 0 {
		fmt.Fprintf(&b, "- User dietary preferences: %s\n", strings.Join(prefs, ", "))
	}
	if focus := cleanTags(req.HealthFocus); len(focus) > 0 {
		fmt.Fprintf(&b, "- User health focus: %s\n", strings.Join(focus, ", "))
	}
	fmt.Fprintf(&b, "- Write the insight in %s and take the preferences above into account.\n", language)
	b.WriteString("Return ONLY the JSON object.")
	return b.String()
}

// cleanTags trims, drops empties and de-duplicates case-insensitively,
// keeping first-seen order.
func cleanTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}
