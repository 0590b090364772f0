// internal/analysis/stub/stub.go
package stub

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"mcp-meal-vision/internal/analysis"
)

// Client is a deterministic, no-network provider for CI and local runs. It
// answers with schema-valid JSON derived from the image hash, so the full
// pipeline including storage can be exercised without an API key.
type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) Name() string { return "stub" }

func (c *Client) Model() string { return "stub-v1" }

func (c *Client) HasCredentials() bool { return true }

type cannedFood struct {
	tr, en                                  string
	grams, kcal, protein, carbs, fat, fiber float64
}

var menu = []cannedFood{
	{"Mercimek çorbası", "Lentil soup", 250, 180, 11, 27, 3.5, 7},
	{"Pilav", "Rice pilaf", 150, 195, 3.6, 42, 1.4, 0.6},
	{"Çoban salatası", "Shepherd's salad", 120, 60, 1.5, 7, 3, 2.2},
	{"Izgara tavuk", "Grilled chicken", 160, 264, 49, 0, 5.8, 0},
	{"Menemen", "Menemen", 200, 210, 11, 9, 15, 2},
	{"Ekmek", "Bread", 50, 130, 4.5, 25, 1.2, 1.4},
}

func (c *Client) Generate(ctx context.Context, prompt *analysis.Prompt) (*analysis.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if prompt.Task == analysis.TaskRecipes {
		return recipes(prompt)
	}

	sum := sha256.Sum256([]byte(prompt.ImageBase64))
	count := 1 + int(sum[0])%2

	foods := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		f := menu[int(sum[i+1])%len(menu)]
		foods = append(foods, map[string]any{
			"name_tr":         f.tr,
			"name_en":         f.en,
			"estimated_grams": f.grams,
			"confidence":      0.5 + float64(sum[i+3]%50)/100,
			"calories":        f.kcal,
			"protein":         f.protein,
			"carbs":           f.carbs,
			"fat":             f.fat,
			"fiber":           f.fiber,
		})
	}

	out := map[string]any{
		"foods":        foods,
		"health_score": 40 + int(sum[5])%60,
		"insight":      fmt.Sprintf("Stub analysis %x", sum[:4]),
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &analysis.Completion{
		Text:         string(b),
		FinishReason: analysis.FinishStop,
	}, nil
}

type cannedRecipe struct {
	title       string
	ingredients []string
	steps       []string
	minutes     int
	kcal        float64
	macros      [3]float64
	difficulty  string
}

var cookbook = []cannedRecipe{
	{"Mercimek çorbası", []string{"kırmızı mercimek", "soğan", "havuç"}, []string{"Sebzeleri kavur.", "Mercimeği ekleyip pişir.", "Blenderdan geçir."}, 35, 220, [3]float64{13, 34, 4}, "Easy"},
	{"Zeytinyağlı taze fasulye", []string{"taze fasulye", "domates", "zeytinyağı"}, []string{"Soğanı kavur.", "Fasulye ve domatesi ekle.", "Kısık ateşte pişir."}, 50, 180, [3]float64{4, 18, 11}, "Medium"},
	{"Izgara tavuk salatası", []string{"tavuk göğsü", "marul", "limon"}, []string{"Tavuğu ızgarada pişir.", "Yeşillikleri doğra.", "Limonla karıştır."}, 25, 340, [3]float64{38, 9, 15}, "Easy"},
	{"Fırında sebzeli bulgur", []string{"bulgur", "kabak", "biber"}, []string{"Sebzeleri doğra.", "Bulgurla karıştır.", "Fırında pişir."}, 45, 310, [3]float64{9, 55, 6}, "Medium"},
}

// recipes answers a recipe prompt with three entries picked by the prompt
// hash.
func recipes(prompt *analysis.Prompt) (*analysis.Completion, error) {
	sum := sha256.Sum256([]byte(prompt.User + prompt.ImageBase64))

	list := make([]map[string]any, 0, 3)
	for i := 0; i < 3; i++ {
		r := cookbook[(int(sum[0])+i)%len(cookbook)]
		list = append(list, map[string]any{
			"title":              r.title,
			"description":        "Stub recipe",
			"ingredients":        r.ingredients,
			"instructions":       r.steps,
			"prep_time":          r.minutes,
			"calories":           r.kcal,
			"protein":            r.macros[0],
			"carbs":              r.macros[1],
			"fat":                r.macros[2],
			"difficulty":         r.difficulty,
			"suitability_score":  60 + int(sum[i+1])%40,
			"suitability_reason": fmt.Sprintf("Stub suggestion %x", sum[:2]),
		})
	}

	out := map[string]any{"recipes": list}
	if prompt.ImageBase64 != "" {
		out["ingredients_detected"] = []string{"domates", "soğan"}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &analysis.Completion{Text: string(b), FinishReason: analysis.FinishStop}, nil
}
