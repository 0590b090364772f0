// internal/analysis/client.go
package analysis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/apex/log"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultTimeout     = 30 * time.Second
)

// Options configures a Client. Zero values fall back to the defaults above,
// except BaseDelay: zero disables backoff and a negative value means
// DefaultBaseDelay.
type Options struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	Timeout       time.Duration
	MaxImageBytes int
	Prompt        PromptOptions
	Pricing       Pricing
	Logger        log.Interface
	Observer      Observer
}

// Observer receives per-attempt and per-call outcomes, e.g. for metrics.
type Observer interface {
	AttemptFinished(provider string, attempt int, err error, elapsed time.Duration)
	AnalysisFinished(provider string, err error, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) AttemptFinished(string, int, error, time.Duration) {}
func (nopObserver) AnalysisFinished(string, error, time.Duration)     {}

// Client turns a food photo into a validated nutrition estimate. It keeps no
// per-call state, so one Client can serve concurrent calls.
type Client struct {
	provider Provider
	opts     Options
	logger   log.Interface
	observer Observer

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewClient(provider Provider, opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay < 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	c := &Client{
		provider: provider,
		opts:     opts,
		logger:   opts.Logger,
		observer: opts.Observer,
		sleep:    sleepContext,
		now:      time.Now,
	}
	if c.logger == nil {
		c.logger = log.Log
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	return c
}

// Provider returns the adapter the client was built with.
func (c *Client) Provider() Provider {
	return c.provider
}

// retryState lives for one Analyze call.
type retryState struct {
	attempt int
	lastErr *Error
}

// Analyze runs the full pipeline. On failure the returned error is always an
// *Error; when retries run out it is the last attempt's error.
func (c *Client) Analyze(ctx context.Context, req *Request) (*Result, error) {
	start := c.now()
	result, err := c.analyze(ctx, req)
	elapsed := c.now().Sub(start)

	name := c.providerName()
	c.observer.AnalysisFinished(name, errOrNil(err), elapsed)
	if err != nil {
		c.logger.WithFields(log.Fields{
			"provider": name,
			"kind":     err.Kind,
			"status":   err.Status,
			"attempts": err.Attempts,
			"elapsed":  elapsed.String(),
		}).Error("analysis.failed")
		return nil, err
	}

	result.ProcessingTime = elapsed
	c.logger.WithFields(log.Fields{
		"provider": name,
		"model":    result.Model,
		"items":    len(result.Items),
		"calories": result.Totals.Calories,
		"attempts": result.Attempts,
		"elapsed":  elapsed.String(),
	}).Info("analysis.succeeded")
	return result, nil
}

func (c *Client) analyze(ctx context.Context, req *Request) (*Result, *Error) {
	const op = "analysis.Analyze"

	if c.provider == nil || !c.provider.HasCredentials() {
		return nil, newError(KindMissingCredentials, op, "provider API key is not configured")
	}
	if req == nil {
		return nil, newError(KindInvalidRequest, op, "request is required")
	}
	meal, err := ParseMealContext(string(req.MealContext))
	if err != nil {
		return nil, wrapError(KindInvalidRequest, op, "invalid meal context", err)
	}
	img, imgErr := prepareImage(op, req.Image, c.opts.MaxImageBytes)
	if imgErr != nil {
		return nil, imgErr
	}

	normalized := *req
	normalized.MealContext = meal
	prompt := BuildPrompt(&normalized, img, c.opts.Prompt)

	result, call, typed := withRetries(ctx, c, prompt, decodeFoods)
	if typed != nil {
		return nil, typed
	}
	result.Provider = c.provider.Name()
	result.Model = c.provider.Model()
	result.Attempts = call.attempts
	result.Usage = call.usage
	result.EstimatedCost = c.opts.Pricing.Cost(call.usage)
	if !img.TakenAt.IsZero() {
		taken := img.TakenAt
		result.CapturedAt = &taken
	}
	return result, nil
}

func prepareImage(op, data string, maxBytes int) (*Image, *Error) {
	img, err := PrepareImage(data, maxBytes)
	if err != nil {
		var typed *Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, wrapError(KindInvalidRequest, op, "invalid image", err)
	}
	return img, nil
}

func decodeFoods(raw string) (*Result, *Error) {
	result, err := Normalize(raw)
	if err != nil {
		return nil, asError(err)
	}
	return result, nil
}

// callInfo describes the successful attempt of a retried provider call.
type callInfo struct {
	attempts int
	usage    Usage
}

// withRetries runs prompt through the provider with the per-attempt timeout
// and linear backoff. decode sees the extracted JSON of a complete answer.
// When retries run out the last attempt's error is returned.
func withRetries[T any](ctx context.Context, c *Client, prompt *Prompt, decode func(raw string) (T, *Error)) (T, callInfo, *Error) {
	const op = "analysis.retry"

	var zero T
	state := retryState{}
	for state.attempt = 1; state.attempt <= c.opts.MaxAttempts; state.attempt++ {
		if state.lastErr != nil {
			delay := time.Duration(state.attempt-1) * c.opts.BaseDelay
			c.logger.WithFields(log.Fields{
				"provider": c.provider.Name(),
				"attempt":  state.attempt - 1,
				"kind":     state.lastErr.Kind,
				"status":   state.lastErr.Status,
				"backoff":  delay.String(),
			}).Warn("analysis.attempt.retrying")
			if err := c.sleep(ctx, delay); err != nil {
				e := wrapError(KindCanceled, op, "analysis canceled during backoff", err)
				e.Attempts = state.attempt - 1
				return zero, callInfo{}, e
			}
		}

		value, usage, attemptErr := attemptOnce(ctx, c, prompt, state.attempt, decode)
		if attemptErr == nil {
			return value, callInfo{attempts: state.attempt, usage: usage}, nil
		}

		state.lastErr = attemptErr
		state.lastErr.Attempts = state.attempt
		if !attemptErr.Retryable() {
			break
		}
	}

	if state.lastErr.Snippet != "" {
		c.logger.WithField("snippet", state.lastErr.Snippet).Debug("analysis.failed.snippet")
	}
	return zero, callInfo{}, state.lastErr
}

func attemptOnce[T any](ctx context.Context, c *Client, prompt *Prompt, n int, decode func(raw string) (T, *Error)) (T, Usage, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := c.now()
	completion, err := c.provider.Generate(attemptCtx, prompt)

	var (
		value    T
		classErr *Error
	)
	if err != nil {
		classErr = c.classify(ctx, attemptCtx, err)
	} else {
		var raw string
		if raw, classErr = interpret(completion); classErr == nil {
			value, classErr = decode(raw)
		}
	}
	c.observer.AttemptFinished(c.provider.Name(), n, errOrNil(classErr), c.now().Sub(start))
	if classErr != nil {
		var zero T
		return zero, Usage{}, classErr
	}
	return value, completion.Usage, nil
}

// classify maps a transport-level failure to a Kind.
func (c *Client) classify(parent, attemptCtx context.Context, err error) *Error {
	const op = "analysis.Generate"

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	if parent.Err() != nil {
		return wrapError(KindCanceled, op, "analysis canceled by caller", err)
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return wrapError(KindTimeout, op, "provider call timed out after "+c.opts.Timeout.String(), err)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		e := wrapError(KindProvider, op, "provider rejected the request", err)
		e.Status = statusErr.Code
		e.Snippet = truncate(statusErr.Body, snippetLimit)
		return e
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return wrapError(KindTimeout, op, "provider call timed out", err)
	}
	return wrapError(KindNetwork, op, "provider unreachable", err)
}

// interpret checks completion status before touching the text: truncated and
// refused answers are reported as such, never as parse errors. It returns
// the extracted JSON object.
func interpret(completion *Completion) (string, *Error) {
	const op = "analysis.interpret"

	if completion == nil {
		return "", newError(KindMalformed, op, "provider returned no completion")
	}
	switch {
	case completion.FinishReason == FinishLength:
		e := newError(KindTruncated, op, "response was cut off at the output token limit")
		e.Snippet = truncate(completion.Text, snippetLimit)
		return "", e
	case completion.FinishReason == FinishSafety || completion.BlockReason != "":
		msg := "provider refused the request"
		if completion.BlockReason != "" {
			msg += ": " + completion.BlockReason
		}
		e := newError(KindRejected, op, msg)
		e.Snippet = truncate(completion.Text, snippetLimit)
		return "", e
	}
	if completion.Text == "" {
		return "", newError(KindMalformed, op, "provider returned an empty response")
	}

	raw, err := ExtractJSON(completion.Text)
	if err != nil {
		return "", asError(err)
	}
	return raw, nil
}

func asError(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return wrapError(KindMalformed, "analysis", "unexpected failure", err)
}

func (c *Client) providerName() string {
	if c.provider == nil {
		return "none"
	}
	return c.provider.Name()
}

// errOrNil avoids handing a typed nil *Error to an error interface.
func errOrNil(err *Error) error {
	if err == nil {
		return nil
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
