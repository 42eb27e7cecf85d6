// Package vision provides vision model client interfaces for Lambda functions.
package vision

import (
	"context"
	"fmt"
)

// Client defines the single-shot generation operation against a vision model.
type Client interface {
	Generate(ctx context.Context, req Request) (Completion, error)
}

// Request describes one generation attempt: instructions, an optional inline
// image, and generation parameters.
type Request struct {
	Model       string
	System      string
	User        string
	ImageData   []byte // nil for text-only requests (e.g. the JSON repair pass)
	ImageMIME   string
	MaxTokens   int
	Temperature float32
	ForceJSON   bool // request application/json output where the provider supports it
}

// Completion is the extracted textual payload of a model response.
type Completion struct {
	Text      string
	Truncated bool // generation stopped at the output-token ceiling
}

// ErrorKind classifies provider failures independent of the SDK in use.
type ErrorKind string

const (
	ErrAuth        ErrorKind = "auth"
	ErrRateLimited ErrorKind = "rate_limited"
	ErrTransient   ErrorKind = "transient"
	ErrBadRequest  ErrorKind = "bad_request"
)

// Error wraps a provider failure with a provider-agnostic classification.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("vision %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// classifyStatus maps an HTTP status from a provider into an ErrorKind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrAuth
	case status == 429:
		return ErrRateLimited
	case status >= 500:
		return ErrTransient
	default:
		return ErrBadRequest
	}
}
