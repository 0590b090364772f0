// internal/analysis/gemini/gemini_test.go
package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-meal-vision/internal/analysis"
)

func testPrompt() *analysis.Prompt {
	return &analysis.Prompt{
		System:          "system",
		User:            "user",
		ImageBase64:     "AAAA",
		ImageMIME:       "image/jpeg",
		MaxOutputTokens: 512,
		Temperature:     0.2,
	}
}

func newServer(t *testing.T, status int, body string, inspect func(r *http.Request)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "key-123", BaseURL: srv.URL}, srv.Client())
}

func TestGenerate_Success(t *testing.T) {
	var got geminiRequest
	c := newServer(t, http.StatusOK, `{
		"candidates":[{"content":{"parts":[{"text":"{\"foods\":"},{"text":"[]}"}]},"finishReason":"STOP"}],
		"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}
	}`, func(r *http.Request) {
		assert.Equal(t, "/v1beta/models/"+DefaultModel+":generateContent", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	})

	completion, err := c.Generate(context.Background(), testPrompt())
	require.NoError(t, err)
	assert.Equal(t, `{"foods":[]}`, completion.Text)
	assert.Equal(t, analysis.FinishStop, completion.FinishReason)
	assert.Equal(t, 15, completion.Usage.TotalTokens)

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "system", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 2)
	assert.Equal(t, "image/jpeg", got.Contents[0].Parts[1].InlineData.MimeType)
	assert.Equal(t, 512, got.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
}

func TestGenerate_FinishReasons(t *testing.T) {
	tests := []struct {
		reason string
		want   analysis.FinishReason
		block  bool
	}{
		{"STOP", analysis.FinishStop, false},
		{"MAX_TOKENS", analysis.FinishLength, false},
		{"SAFETY", analysis.FinishSafety, true},
		{"PROHIBITED_CONTENT", analysis.FinishSafety, true},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			c := newServer(t, http.StatusOK,
				`{"candidates":[{"content":{"parts":[{"text":"{}"}]},"finishReason":"`+tt.reason+`"}]}`, nil)
			completion, err := c.Generate(context.Background(), testPrompt())
			require.NoError(t, err)
			assert.Equal(t, tt.want, completion.FinishReason)
			assert.Equal(t, tt.block, completion.BlockReason != "")
		})
	}
}

func TestGenerate_PromptBlocked(t *testing.T) {
	c := newServer(t, http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`, nil)
	completion, err := c.Generate(context.Background(), testPrompt())
	require.NoError(t, err)
	assert.Equal(t, "SAFETY", completion.BlockReason)
}

func TestGenerate_Errors(t *testing.T) {
	c := newServer(t, http.StatusUnauthorized, `{"error":{"message":"API key not valid"}}`, nil)
	_, err := c.Generate(context.Background(), testPrompt())
	var statusErr *analysis.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Contains(t, statusErr.Body, "API key not valid")

	c = newServer(t, http.StatusOK, `<html>gateway</html>`, nil)
	_, err = c.Generate(context.Background(), testPrompt())
	assert.True(t, analysis.IsKind(err, analysis.KindMalformed))

	c = newServer(t, http.StatusOK, `{"candidates":[]}`, nil)
	_, err = c.Generate(context.Background(), testPrompt())
	assert.True(t, analysis.IsKind(err, analysis.KindMalformed))
}

func TestHasCredentials(t *testing.T) {
	assert.False(t, NewClient(Config{APIKey: "  "}, nil).HasCredentials())
	assert.True(t, NewClient(Config{APIKey: "k"}, nil).HasCredentials())
	assert.Equal(t, DefaultModel, NewClient(Config{}, nil).Model())
}

func TestGenerate_TextOnlyPrompt(t *testing.T) {
	var got geminiRequest
	c := newServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"{}"}]},"finishReason":"STOP"}]}`,
		func(r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		})

	prompt := testPrompt()
	prompt.ImageBase64, prompt.ImageMIME = "", ""
	_, err := c.Generate(context.Background(), prompt)
	require.NoError(t, err)

	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 1)
	assert.Equal(t, "user", got.Contents[0].Parts[0].Text)
	assert.Nil(t, got.Contents[0].Parts[0].InlineData)
}
