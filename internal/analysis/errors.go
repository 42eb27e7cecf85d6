package analysis

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind identifies one failure class of the pipeline. Each kind maps to
// exactly one machine-readable code at the HTTP boundary.
type ErrorKind string

const (
	// ErrInvalidCut means the species/cut pair could not be resolved.
	ErrInvalidCut ErrorKind = "invalid_cut"
	// ErrUpstreamAuth means the model provider rejected the credential.
	ErrUpstreamAuth ErrorKind = "upstream_auth"
	// ErrUpstreamRateLimited means the provider signalled throttling.
	ErrUpstreamRateLimited ErrorKind = "upstream_rate_limited"
	// ErrUpstreamTimeout means an attempt exceeded the timeout bound.
	ErrUpstreamTimeout ErrorKind = "upstream_timeout"
	// ErrUpstreamTransient covers 5xx and network-level failures.
	ErrUpstreamTransient ErrorKind = "upstream_transient"
	// ErrUpstreamRejected means the provider refused the request itself
	// (4xx other than auth or throttling), as opposed to producing a bad
	// response. Not retryable: the same request would be refused again.
	ErrUpstreamRejected ErrorKind = "upstream_rejected"
	// ErrResponseTruncated means generation stopped at the output-token ceiling.
	ErrResponseTruncated ErrorKind = "response_truncated"
	// ErrInvalidAIResponse means the response text survived every extraction
	// strategy unparsed, including the repair pass, or carried no text at all.
	ErrInvalidAIResponse ErrorKind = "invalid_ai_response"
	// ErrRawSchemaViolation means the parsed JSON fails the raw contract.
	ErrRawSchemaViolation ErrorKind = "raw_schema_violation"
	// ErrEngineInvariant means the engine's own output failed the final
	// contract. This is an internal defect, not an input error.
	ErrEngineInvariant ErrorKind = "engine_invariant"
)

// Error is the single typed error the pipeline surfaces on any fatal
// condition. No partial results accompany it.
type Error struct {
	Kind     ErrorKind
	Msg      string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("analysis %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, or empty string if err is not a
// pipeline error.
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// retryable reports whether a failure of this kind may be retried once.
// Truncated responses are retried per observed upstream behavior even though
// a retry rarely helps without a higher output ceiling.
func retryable(kind ErrorKind) bool {
	switch kind {
	case ErrUpstreamRateLimited, ErrUpstreamTimeout, ErrUpstreamTransient, ErrResponseTruncated:
		return true
	default:
		return false
	}
}
