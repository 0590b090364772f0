// internal/analysis/openai/openai.go
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"mcp-meal-vision/internal/analysis"
)

const DefaultModel = openai.GPT4o

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client is the OpenAI chat-completions vision provider.
type Client struct {
	apiKey string
	model  string
	client *openai.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if httpClient != nil {
		clientConfig.HTTPClient = httpClient
	}

	return &Client{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

func (c *Client) Name() string {
	return "openai"
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) HasCredentials() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

func (c *Client) Generate(ctx context.Context, prompt *analysis.Prompt) (*analysis.Completion, error) {
	const op = "openai.Generate"

	var parts []openai.ChatMessagePart
	if prompt.ImageBase64 != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", prompt.ImageMIME, prompt.ImageBase64),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: prompt.User,
	})

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: prompt.System,
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		MaxTokens:   prompt.MaxOutputTokens,
		Temperature: prompt.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, analysis.NewError(analysis.KindMalformed, op, "no choices in response", nil)
	}

	choice := resp.Choices[0]
	completion := &analysis.Completion{
		Text:         choice.Message.Content,
		FinishReason: analysis.FinishStop,
		Usage: analysis.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	switch choice.FinishReason {
	case openai.FinishReasonLength:
		completion.FinishReason = analysis.FinishLength
	case openai.FinishReasonContentFilter:
		completion.FinishReason = analysis.FinishSafety
		completion.BlockReason = string(choice.FinishReason)
	}
	if choice.Message.Refusal != "" {
		completion.BlockReason = choice.Message.Refusal
	}
	return completion, nil
}

// translateError turns go-openai HTTP errors into StatusError and leaves
// transport errors untouched for the client to classify.
func translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &analysis.StatusError{Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &analysis.StatusError{Code: reqErr.HTTPStatusCode, Body: body}
	}
	return err
}
