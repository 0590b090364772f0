// internal/analysis/normalize_test.go
package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_RecomputesTotals(t *testing.T) {
	raw := `{"foods":[
		{"name_tr":"Elma","name_en":"Apple","estimated_grams":180,"confidence":0.9,"calories":94,"protein":0.5,"carbs":25,"fat":0.3},
		{"name_tr":"Yoğurt","name_en":"Yogurt","estimated_grams":150,"confidence":0.8,"calories":90,"protein":5,"carbs":7,"fat":5,"fiber":0}
	],"totals":{"calories":9999}}`

	res, err := Normalize(raw)
	require.NoError(t, err)
	assert.InDelta(t, 184, res.Totals.Calories, 1e-9)
	assert.InDelta(t, 5.5, res.Totals.Protein, 1e-9)
	assert.Zero(t, res.Items[0].Fiber)
	assert.Nil(t, res.HealthScore)
}

func TestNormalize_FlatObject(t *testing.T) {
	res, err := Normalize(`{"name":"Banana","calories":105,"protein":1.3,"carbs":27,"fat":0.4}`)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	item := res.Items[0]
	assert.Equal(t, "Banana", item.LocalizedName)
	assert.Equal(t, "Banana", item.AlternateName)
	assert.Equal(t, float64(100), item.EstimatedGrams)
	assert.Equal(t, 1.0, item.Confidence)
	assert.Equal(t, float64(105), res.Totals.Calories)
}

func TestNormalize_Aliases(t *testing.T) {
	raw := `{"analysis":{"items":[
		{"localized_name":"Pilav","english_name":"Rice","grams":"150","confidence":"high",
		 "kcal":195,"protein_g":3.6,"carbohydrates":42,"fat_g":1.4,"fibre":0.6}
	],"healthScore":61.6,"summary":"  Fine.  "}}`

	res, err := Normalize(raw)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	item := res.Items[0]
	assert.Equal(t, "Pilav", item.LocalizedName)
	assert.Equal(t, "Rice", item.AlternateName)
	assert.Equal(t, float64(150), item.EstimatedGrams)
	assert.Equal(t, 0.9, item.Confidence)
	assert.Equal(t, 0.6, item.Fiber)
	require.NotNil(t, res.HealthScore)
	assert.Equal(t, 62, *res.HealthScore)
	assert.Equal(t, "Fine.", res.Insight)
}

func TestNormalize_Rejects(t *testing.T) {
	item := func(extra string) string {
		return `{"foods":[{"name_tr":"Çorba","name_en":"Soup","estimated_grams":200,"confidence":0.7,"calories":120,"protein":5,"carbs":10` + extra + `}]}`
	}
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not an object", raw: `[1,2]`},
		{name: "no list", raw: `{"hello":"world"}`},
		{name: "list not array", raw: `{"foods":{"a":1}}`},
		{name: "empty list", raw: `{"foods":[]}`},
		{name: "entry not object", raw: `{"foods":["soup"]}`},
		{name: "missing fat", raw: item(``)},
		{name: "negative fat", raw: item(`,"fat":-1`)},
		{name: "negative fiber", raw: item(`,"fat":1,"fiber":-2`)},
		{name: "missing name", raw: `{"foods":[{"estimated_grams":10,"confidence":0.5,"calories":1,"protein":0,"carbs":0,"fat":0}]}`},
		{name: "zero grams", raw: `{"foods":[{"name":"x","estimated_grams":0,"confidence":0.5,"calories":1,"protein":0,"carbs":0,"fat":0}]}`},
		{name: "missing confidence", raw: `{"foods":[{"name":"x","estimated_grams":10,"calories":1,"protein":0,"carbs":0,"fat":0}]}`},
		{name: "confidence above one", raw: `{"foods":[{"name":"x","estimated_grams":10,"confidence":1.5,"calories":1,"protein":0,"carbs":0,"fat":0}]}`},
		{name: "non numeric calories", raw: `{"foods":[{"name":"x","estimated_grams":10,"confidence":0.5,"calories":"lots","protein":0,"carbs":0,"fat":0}]}`},
		{name: "only english name", raw: `{"foods":[{"name_en":"Soup","estimated_grams":10,"confidence":0.5,"calories":1,"protein":0,"carbs":0,"fat":0}]}`},
		{name: "only localized name", raw: `{"foods":[{"name_tr":"Çorba","estimated_grams":10,"confidence":0.5,"calories":1,"protein":0,"carbs":0,"fat":0}]}`},
		{name: "overflowing calories", raw: `{"foods":[{"name":"x","estimated_grams":10,"confidence":0.5,"calories":1e999,"protein":0,"carbs":0,"fat":0}]}`},
		{name: "overflowing grams", raw: `{"foods":[{"name":"x","estimated_grams":-1e999,"confidence":0.5,"calories":1,"protein":0,"carbs":0,"fat":0}]}`},
		{name: "health score out of range", raw: `{"foods":[{"name":"x","estimated_grams":10,"confidence":0.5,"calories":1,"protein":0,"carbs":0,"fat":0}],"health_score":140}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, KindInvalidSchema, e.Kind)
			assert.NotEmpty(t, e.Snippet)
		})
	}
}

func TestNormalize_SharedNameAlias(t *testing.T) {
	res, err := Normalize(`{"foods":[{"name":"Ayran","estimated_grams":200,"confidence":0.8,"calories":76,"protein":3.4,"carbs":5,"fat":3.6}]}`)
	require.NoError(t, err)
	assert.Equal(t, "Ayran", res.Items[0].LocalizedName)
	assert.Equal(t, "Ayran", res.Items[0].AlternateName)
}
