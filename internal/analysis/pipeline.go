package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/meatgrade/meatgrade-service/internal/meat"
	"github.com/meatgrade/meatgrade-service/internal/obs"
	"github.com/meatgrade/meatgrade-service/internal/vision"
)

const (
	// maxAttempts bounds the request state machine: one initial attempt plus
	// at most one retry for retryable failures.
	maxAttempts = 2

	defaultTimeout   = 25 * time.Second
	defaultRetryBase = 1500 * time.Millisecond
	defaultMaxTokens = 2048
	defaultTemp      = float32(0.2)
)

// Config wires an Analyzer.
type Config struct {
	Client      vision.Client
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration // per-attempt ceiling, also used by the repair pass
	RetryBase   time.Duration // linear backoff base, scaled by attempt number
	Events      obs.Logger
}

// Analyzer runs the full request→model→raw-result→verdict pipeline. It is
// stateless across requests and safe for concurrent use.
type Analyzer struct {
	client      vision.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	retryBase   time.Duration
	events      obs.Logger

	sleep func(time.Duration)
}

// New creates an Analyzer, filling zero config values with defaults.
func New(cfg Config) *Analyzer {
	a := &Analyzer{
		client:      cfg.Client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		retryBase:   cfg.RetryBase,
		events:      cfg.Events,
		sleep:       time.Sleep,
	}
	if a.maxTokens == 0 {
		a.maxTokens = defaultMaxTokens
	}
	if a.temperature == 0 {
		a.temperature = defaultTemp
	}
	if a.timeout == 0 {
		a.timeout = defaultTimeout
	}
	if a.retryBase == 0 {
		a.retryBase = defaultRetryBase
	}
	if a.events == nil {
		a.events = obs.NopLogger{}
	}
	return a
}

// Analyze runs one analysis request end to end. On any unrecovered failure
// it returns a typed *Error and no partial result.
func (a *Analyzer) Analyze(ctx context.Context, imageData []byte, mimeType string, meatType meat.Type, cutKey string) (*Result, error) {
	start := time.Now()

	cut, err := meat.ResolveCut(meatType, cutKey)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidCut, Msg: "resolve cut", Err: err}
	}

	a.events.Emit("analysis_started", obs.LevelInfo, map[string]any{
		"meatType": string(meatType),
		"cut":      cutKey,
		"mimeType": mimeType,
	})

	prompts := BuildAnalysisPrompt(cut)
	text, err := a.requestWithRetry(ctx, vision.Request{
		Model:       a.model,
		System:      prompts.System,
		User:        prompts.User,
		ImageData:   imageData,
		ImageMIME:   mimeType,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		ForceJSON:   true,
	})
	if err != nil {
		a.failEvent(start, meatType, cutKey, err)
		return nil, err
	}

	data, err := ExtractJSON(text)
	if err != nil {
		a.events.Emit("parse_failed", obs.LevelWarn, map[string]any{
			"meatType": string(meatType),
			"cut":      cutKey,
			"snippet":  Snippet(text),
		})
		data, err = a.repair(ctx, text)
		if err != nil {
			a.failEvent(start, meatType, cutKey, err)
			return nil, err
		}
	}

	raw, err := ValidateRawResult(data)
	if err != nil {
		a.events.Emit("raw_validation_failed", obs.LevelError, map[string]any{
			"meatType": string(meatType),
			"cut":      cutKey,
			"error":    err.Error(),
		})
		a.failEvent(start, meatType, cutKey, err)
		return nil, err
	}

	result := PostProcess(raw, &Context{MeatType: meatType, CutKey: cutKey})

	if err := ValidateFinalResult(result); err != nil {
		a.events.Emit("engine_invariant_violation", obs.LevelError, map[string]any{
			"error": err.Error(),
		})
		a.failEvent(start, meatType, cutKey, err)
		return nil, err
	}

	a.events.Emit("analysis_succeeded", obs.LevelInfo, map[string]any{
		"meatType":       string(meatType),
		"cut":            cutKey,
		"durationMs":     obs.DurationMS(start),
		"overallScore":   result.OverallScore,
		"recommendation": string(result.BuyRecommendation),
	})

	return &result, nil
}

func (a *Analyzer) failEvent(start time.Time, meatType meat.Type, cutKey string, err error) {
	a.events.Emit("analysis_failed", obs.LevelError, map[string]any{
		"meatType":   string(meatType),
		"cut":        cutKey,
		"durationMs": obs.DurationMS(start),
		"kind":       string(KindOf(err)),
	})
}

// requestWithRetry drives the attempt state machine: each attempt is bounded
// by the timeout; retryable failures earn at most one retry after a linear
// backoff; the last error propagates tagged with attempt count and elapsed
// time.
func (a *Analyzer) requestWithRetry(ctx context.Context, req vision.Request) (string, error) {
	start := time.Now()
	var lastErr *Error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptStart := time.Now()
		text, err := a.generateOnce(ctx, req)

		outcome := "success"
		if err != nil {
			outcome = string(KindOf(err))
		}
		a.events.Emit("model_attempt", obs.LevelInfo, map[string]any{
			"attempt":    attempt,
			"durationMs": obs.DurationMS(attemptStart),
			"outcome":    outcome,
		})

		if err == nil {
			return text, nil
		}

		lastErr = asPipelineError(err)
		lastErr.Attempts = attempt
		lastErr.Elapsed = time.Since(start)

		if attempt < maxAttempts && retryable(lastErr.Kind) {
			a.sleep(a.retryBase * time.Duration(attempt))
			continue
		}
		break
	}

	return "", lastErr
}

// generateOnce performs a single attempt, racing the model call against a
// timer. On timeout the in-flight call is abandoned and its eventual result
// discarded.
func (a *Analyzer) generateOnce(ctx context.Context, req vision.Request) (string, error) {
	type generateResult struct {
		completion vision.Completion
		err        error
	}
	ch := make(chan generateResult, 1)

	go func() {
		completion, err := a.client.Generate(ctx, req)
		ch <- generateResult{completion, err}
	}()

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", classifyVisionError(r.err)
		}
		if r.completion.Truncated {
			return "", &Error{Kind: ErrResponseTruncated, Msg: "generation stopped at output-token ceiling"}
		}
		if r.completion.Text == "" {
			return "", &Error{Kind: ErrInvalidAIResponse, Msg: "response carried no text"}
		}
		return r.completion.Text, nil
	case <-timer.C:
		return "", &Error{Kind: ErrUpstreamTimeout, Msg: "attempt exceeded timeout"}
	case <-ctx.Done():
		return "", &Error{Kind: ErrUpstreamTimeout, Msg: "request context done", Err: ctx.Err()}
	}
}

// repair is the one-shot fallback for unparseable model text: same timeout
// as a normal attempt, no retry. Any failure here is fatal and surfaces as
// an invalid-AI-response condition.
func (a *Analyzer) repair(ctx context.Context, brokenText string) (json.RawMessage, error) {
	prompts := BuildRepairPrompt(brokenText)

	text, err := a.generateOnce(ctx, vision.Request{
		Model:       a.model,
		System:      prompts.System,
		User:        prompts.User,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		ForceJSON:   true,
	})
	a.events.Emit("repair_attempted", obs.LevelWarn, map[string]any{
		"succeeded": err == nil,
	})
	if err != nil {
		return nil, &Error{Kind: ErrInvalidAIResponse, Msg: "repair call failed", Err: err}
	}

	data, err := ExtractJSON(text)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidAIResponse, Msg: "repaired text still unparseable: " + Snippet(text)}
	}
	return data, nil
}

// classifyVisionError maps provider-level failures into the pipeline error
// taxonomy.
func classifyVisionError(err error) *Error {
	var ve *vision.Error
	if errors.As(err, &ve) {
		switch ve.Kind {
		case vision.ErrAuth:
			return &Error{Kind: ErrUpstreamAuth, Msg: "provider rejected credential", Err: err}
		case vision.ErrRateLimited:
			return &Error{Kind: ErrUpstreamRateLimited, Msg: "provider throttled request", Err: err}
		case vision.ErrBadRequest:
			return &Error{Kind: ErrUpstreamRejected, Msg: "provider refused the request", Err: err}
		default:
			return &Error{Kind: ErrUpstreamTransient, Msg: "provider transient failure", Err: err}
		}
	}
	return &Error{Kind: ErrUpstreamTransient, Msg: "model call failed", Err: err}
}

func asPipelineError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: ErrUpstreamTransient, Msg: "model call failed", Err: err}
}
