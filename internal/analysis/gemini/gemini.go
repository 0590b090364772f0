// internal/analysis/gemini/gemini.go
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mcp-meal-vision/internal/analysis"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"

	maxErrorBody = 4096
)

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float32 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *content         `json:"system_instruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Finish reasons that mean the model refused to describe the image.
var safetyFinishReasons = map[string]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
	"IMAGE_SAFETY":       true,
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client talks to the Gemini generateContent endpoint directly over HTTP.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// NewClient builds a Gemini provider. httpClient may be nil; timeouts are
// enforced by the caller's context.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) Name() string {
	return "gemini"
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) HasCredentials() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

func (c *Client) Generate(ctx context.Context, prompt *analysis.Prompt) (*analysis.Completion, error) {
	const op = "gemini.Generate"

	parts := []part{{Text: prompt.User}}
	if prompt.ImageBase64 != "" {
		parts = append(parts, part{InlineData: &inlineData{MimeType: prompt.ImageMIME, Data: prompt.ImageBase64}})
	}

	body := geminiRequest{
		SystemInstruction: &content{Parts: []part{{Text: prompt.System}}},
		Contents:          []content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{
			Temperature:      prompt.Temperature,
			MaxOutputTokens:  prompt.MaxOutputTokens,
			ResponseMimeType: "application/json",
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &analysis.StatusError{Code: resp.StatusCode, Body: string(bodyBytes)}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var gr geminiResponse
	if err := json.Unmarshal(bodyBytes, &gr); err != nil {
		e := analysis.NewError(analysis.KindMalformed, op, "response envelope is not JSON", err)
		e.Snippet = string(bodyBytes[:min(len(bodyBytes), 200)])
		return nil, e
	}

	completion := &analysis.Completion{
		FinishReason: analysis.FinishStop,
		Usage: analysis.Usage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		},
	}
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		completion.BlockReason = gr.PromptFeedback.BlockReason
		return completion, nil
	}
	if len(gr.Candidates) == 0 {
		return nil, analysis.NewError(analysis.KindMalformed, op, "no candidates in response", nil)
	}

	candidate := gr.Candidates[0]
	switch reason := strings.ToUpper(candidate.FinishReason); {
	case reason == "MAX_TOKENS":
		completion.FinishReason = analysis.FinishLength
	case safetyFinishReasons[reason]:
		completion.FinishReason = analysis.FinishSafety
		completion.BlockReason = reason
	}

	var text strings.Builder
	for _, p := range candidate.Content.Parts {
		text.WriteString(p.Text)
	}
	completion.Text = text.String()
	return completion, nil
}
