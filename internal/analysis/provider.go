// internal/analysis/provider.go
package analysis

import "context"

type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
	FinishSafety FinishReason = "safety"
)

// Task names what a prompt asks for. Providers do not need it; offline
// providers use it to pick a canned answer.
type Task string

const (
	TaskFoodAnalysis Task = "food_analysis"
	TaskRecipes      Task = "recipes"
)

// Prompt is the provider-neutral request. Providers only decide how to lay it
// out on the wire. ImageBase64 may be empty for text-only tasks.
type Prompt struct {
	Task            Task
	System          string
	User            string
	ImageBase64     string
	ImageMIME       string
	MaxOutputTokens int
	Temperature     float32
}

// Completion is the raw provider answer before extraction.
type Completion struct {
	Text         string
	FinishReason FinishReason
	// BlockReason is set when the provider refused the input outright.
	BlockReason string
	Usage       Usage
}

// Provider adapts one model API. Generate must honour ctx and return
// *StatusError for non-2xx responses.
type Provider interface {
	Name() string
	Model() string
	HasCredentials() bool
	Generate(ctx context.Context, prompt *Prompt) (*Completion, error)
}
