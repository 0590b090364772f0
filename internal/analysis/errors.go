// internal/analysis/errors.go
package analysis

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// Kind classifies why an analysis failed. Callers switch on it to pick the
// message shown to the user.
type Kind string

const (
	KindTimeout            Kind = "timeout"
	KindNetwork            Kind = "network_error"
	KindProvider           Kind = "provider_error"
	KindTruncated          Kind = "truncated"
	KindRejected           Kind = "rejected"
	KindMalformed          Kind = "malformed_response"
	KindInvalidSchema      Kind = "invalid_schema"
	KindMissingCredentials Kind = "missing_credentials"
	KindInvalidRequest     Kind = "invalid_request"
	KindCanceled           Kind = "canceled"
)

const snippetLimit = 200

// Error is the only error type Analyze returns.
type Error struct {
	Kind     Kind
	Op       string
	Message  string
	Status   int    // HTTP status, KindProvider only
	Snippet  string // start of the raw provider output, for diagnostics
	Attempts int
	Cause    error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, msg, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another attempt with the same request may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindProvider:
		return e.Status >= 500 || e.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// NewError lets providers report a classified failure, for example a 200
// response whose envelope cannot be decoded.
func NewError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

func newError(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func wrapError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in the chain, or "" if none.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

// IsKind checks whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusError is returned by providers for non-2xx HTTP responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Code, truncate(e.Body, snippetLimit))
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary so snippets stay valid UTF-8.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
