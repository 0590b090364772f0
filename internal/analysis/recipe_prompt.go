// internal/analysis/recipe_prompt.go
package analysis

import (
	"fmt"
	"strings"
)

const (
	recipeTemperature     = 0.7
	recipeMaxOutputTokens = 2000
)

const recipeSystemPrompt = `You are a creative chef. Suggest 3 diverse recipes based on the user's input.

Respond with a single JSON object and nothing else. Do not wrap it in markdown code fences. Do not add explanations before or after it.

The object MUST have exactly this shape:
{
  "recipes": [
    {
      "title": "Recipe name",
      "description": "Brief description",
      "ingredients": ["ingredient 1", "ingredient 2"],
      "instructions": ["Step 1", "Step 2"],
      "prep_time": 30,
      "calories": 450,
      "protein": 25,
      "carbs": 40,
      "fat": 15,
      "difficulty": "Easy",
      "suitability_score": 85,
      "suitability_reason": "Why this recipe suits the user"
    }
  ],
  "ingredients_detected": ["ingredient seen in the photo"]
}

Rules:
- prep_time is in minutes.
- calories is kcal per serving; protein, carbs and fat are grams per serving. None may be negative.
- difficulty is one of Easy, Medium or Hard.
- suitability_score is an integer from 0 to 100.
- When a photo is attached, list the ingredients you can see in ingredients_detected.`

// BuildRecipePrompt renders the recipe prompt. img may be nil.
func BuildRecipePrompt(req *RecipeRequest, img *Image, opts PromptOptions) *Prompt {
	prompt := &Prompt{
		Task:            TaskRecipes,
		System:          recipeSystemPrompt,
		User:            recipeUserPrompt(req, opts.InsightLanguage),
		MaxOutputTokens: recipeMaxOutputTokens,
		Temperature:     recipeTemperature,
	}
	if img != nil {
		prompt.ImageBase64 = img.Base64
		prompt.ImageMIME = img.MIME
	}
	return prompt
}

func recipeUserPrompt(req *RecipeRequest, language string) string {
	if language == "" {
		language = "Turkish"
	}
	meal := string(req.MealContext)
	if meal == "" {
		meal = "any"
	}

	var b strings.Builder
	b.WriteString("Suggest recipes for me.\n")
	fmt.Fprintf(&b, "- Meal type: %s\n", meal)
	if ingredients := cleanTags(req.Ingredients); len(ingredients) > 0 {
		fmt.Fprintf(&b, "- My ingredients: %s\n", strings.Join(ingredients, ", "))
	} else if req.Image == "" {
		b.WriteString("- I have no particular ingredients; suggest popular healthy recipes.\n")
	}
	if req.Image != "" {
		b.WriteString("- The attached photo shows ingredients I have.\n")
	}
	if req.Diabetic {
		b.WriteString("- I am diabetic; suggest low-carb recipes.\n")
	}
	if prefs := cleanTags(req.DietaryPreferences); len(prefs) > 0 {
		fmt.Fprintf(&b, "- Dietary preferences: %s\n", strings.Join(prefs, ", "))
	}
	if focus := cleanTags(req.HealthFocus); len(focus) > 0 {
		fmt.Fprintf(&b, "- Health focus: %s\n", strings.Join(focus, ", "))
	}
	if kitchen := cleanTags(req.KitchenPreferences); len(kitchen) > 0 {
		fmt.Fprintf(&b, "- Kitchen preferences: %s\n", strings.Join(kitchen, ", "))
	}
	fmt.Fprintf(&b, "- Write recipe titles, descriptions and steps in %s.\n", language)
	b.WriteString("Return ONLY the JSON object.")
	return b.String()
}
