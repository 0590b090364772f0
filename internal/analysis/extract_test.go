// internal/analysis/extract_test.go
package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`},
		{name: "json fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "inline fence", in: "```json{\"a\":1}```", want: `{"a":1}`},
		{name: "prose around", in: "Here you go: {\"a\":1} Enjoy!", want: `{"a":1}`},
		{name: "trailing comma in object", in: `{"a":1,}`, want: `{"a":1}`},
		{name: "trailing comma in array", in: `{"a":[1,2, ]}`, want: `{"a":[1,2]}`},
		{name: "comma inside string kept", in: `{"a":"x,}"}`, want: `{"a":"x,}"}`},
		{name: "escaped quote in string", in: `{"a":"say \"hi\",","b":2,}`, want: `{"a":"say \"hi\",","b":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestExtractJSON_Idempotent(t *testing.T) {
	once, err := ExtractJSON("```json\n" + wellFormed + "\n```")
	require.NoError(t, err)
	twice, err := ExtractJSON(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestExtractJSON_Malformed(t *testing.T) {
	for _, in := range []string{
		"",
		"no json here",
		"} backwards {",
		`{"a": 1`,
		`{"a": }`,
	} {
		_, err := ExtractJSON(in)
		var e *Error
		require.ErrorAs(t, err, &e, "input %q", in)
		assert.Equal(t, KindMalformed, e.Kind)
	}
}
