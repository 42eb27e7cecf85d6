package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meatgrade/meatgrade-service/internal/meat"
	"github.com/meatgrade/meatgrade-service/internal/obs"
	"github.com/meatgrade/meatgrade-service/internal/vision"
)

type recordedEvent struct {
	Name  string
	Level obs.Level
	Data  map[string]any
}

type recordingLogger struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (l *recordingLogger) Emit(name string, level obs.Level, data map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, recordedEvent{Name: name, Level: level, Data: data})
}

func (l *recordingLogger) count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

func newTestAnalyzer(client vision.Client, events obs.Logger) *Analyzer {
	if events == nil {
		events = obs.NopLogger{}
	}
	a := New(Config{
		Client:    client,
		Model:     "gemini-2.5-flash",
		Timeout:   200 * time.Millisecond,
		RetryBase: time.Millisecond,
		Events:    events,
	})
	a.sleep = func(time.Duration) {}
	return a
}

func TestAnalyze_Success(t *testing.T) {
	mock := &vision.MockClient{
		GenerateFn: func(ctx context.Context, req vision.Request) (vision.Completion, error) {
			return vision.Completion{Text: validRawJSON}, nil
		},
	}
	logger := &recordingLogger{}
	a := newTestAnalyzer(mock, logger)

	result, err := a.Analyze(context.Background(), []byte("img"), "image/jpeg", meat.Pork, "belly")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.BuyRecommendation == "" || len(result.Reasons) == 0 {
		t.Errorf("incomplete result: %+v", result)
	}
	if len(mock.Calls) != 1 {
		t.Errorf("model calls = %d, want 1", len(mock.Calls))
	}
	if !mock.Calls[0].ForceJSON {
		t.Error("analysis request should ask for JSON output")
	}
	if mock.Calls[0].ImageData == nil {
		t.Error("analysis request should carry the image")
	}
	if logger.count("analysis_started") != 1 || logger.count("analysis_succeeded") != 1 {
		t.Errorf("missing lifecycle events: %+v", logger.events)
	}
	if logger.count("model_attempt") != 1 {
		t.Errorf("model_attempt events = %d, want 1", logger.count("model_attempt"))
	}
}

func TestAnalyze_InvalidCutMakesNoModelCall(t *testing.T) {
	mock := &vision.MockClient{}
	a := newTestAnalyzer(mock, nil)

	_, err := a.Analyze(context.Background(), []byte("img"), "image/jpeg", meat.Beef, "belly")
	if KindOf(err) != ErrInvalidCut {
		t.Fatalf("kind = %s, want invalid_cut", KindOf(err))
	}
	if len(mock.Calls) != 0 {
		t.Errorf("model calls = %d, want 0", len(mock.Calls))
	}
}

func TestAnalyze_RetryableErrorExhaustsBudget(t *testing.T) {
	tests := []struct {
		name     string
		visErr   *vision.Error
		wantKind ErrorKind
	}{
		{"rate limited", &vision.Error{Kind: vision.ErrRateLimited, StatusCode: 429, Err: errors.New("429")}, ErrUpstreamRateLimited},
		{"server error", &vision.Error{Kind: vision.ErrTransient, StatusCode: 503, Err: errors.New("503")}, ErrUpstreamTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &vision.MockClient{
				GenerateFn: func(ctx context.Context, req vision.Request) (vision.Completion, error) {
					return vision.Completion{}, tt.visErr
				},
			}
			a := newTestAnalyzer(mock, nil)

			_, err := a.Analyze(context.Background(), []byte("img"), "image/jpeg", meat.Pork, "belly")
			if KindOf(err) != tt.wantKind {
				t.Fatalf("kind = %s, want %s", KindOf(err), tt.wantKind)
			}
			if len(mock.Calls) != 2 {
				t.Errorf("model calls = %d, want 2 (one retry)", len(mock.Calls))
			}

			var ae *Error
			if !errors.As(err, &ae) {
				t.Fatal("expected *analysis.Error")
			}
			if ae.Attempts != 2 {
				t.Errorf("attempts = %d, want 2", ae.Attempts)
			}
			if ae.Elapsed <= 0 {
				t.Error("elapsed time not recorded")
			}
		})
	}
}

func TestAnalyze_NonRetryableErrorSingleAttempt(t *testing.T) {
	tests := []struct {
		name     string
		visErr   *vision.Error
		wantKind ErrorKind
	}{
		{"auth failure", &vision.Error{Kind: vision.ErrAuth, StatusCode: 401, Err: errors.New("bad key")}, ErrUpstreamAuth},
		{"request refused", &vision.Error{Kind: vision.ErrBadRequest, StatusCode: 400, Err: errors.New("unsupported image")}, ErrUpstreamRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &vision.MockClient{
				GenerateFn: func(ctx context.Context, req vision.Request) (vision.Completion, error) {
					return vision.Completion{}, tt.visErr
				},
			}
			a := newTestAnalyzer(mock, nil)

			_, err := a.Analyze(context.Background(), []byte("img"), "image/jpeg", meat.Pork, "belly")
			if KindOf(err) != tt.wantKind {
				t.Fatalf("kind = %s, want %s", KindOf(err), tt.wantKind)
			}
			if len(mock.Calls) != 1 {
				t.Errorf("model calls = %d, want 1 (no retry)", len(mock.Calls))
			}
		})
	}
}

func TestAnalyze_TruncatedResponseIsRetried(t *testing.T) {
	mock := &vision.MockClient{
		GenerateFn: func(ctx context.Context, req vision.Request) (vision.Completion, error) {
			return vision.Completion{Text: `{"partial":`, Truncated: true}, nil
		},
	}
	a := newTestAnalyzer(mock, nil)

	_, err := a.Analyze(context.Background(), []byte("img"), "image/jpeg", meat.Pork, "belly")
	if KindOf(err) != ErrResponseTruncated {
		t.Fatalf("kind = %s, want response_truncated", KindOf(err))
	}
	if len(mock.Calls) != 2 {
		t.Errorf("model calls = %d, want 2", len(mock.Calls))
	}
}

func TestAnalyze_EmptyResponseNotRetried(t *testing.T) {
	mock := &vision.MockClient{
		GenerateFn: func(ctx context.Context, req vision.Request) (vision.Completion, error) {
			return vision.Completion{}, nil
		},
	}
	a := newTestAnalyzer(mock, nil)

	_, err := a.Analyze(context.Background(), []byte("img"), "image/jpeg", meat.Pork, "belly")
	if KindOf(err) != ErrInvalidAIResponse {
		t.Fatalf("kind = %s, want invalid_ai_response", KindOf(err))
	}
	if len(mock.Calls) != 1 {
		t.Errorf("model calls = %d, want 1", len(mock.Calls))
	}
}

func TestAnalyze_TimeoutRetriedThenSurfaced(t *testing.T) {
	mock := &vision.MockClient{
		GenerateFn: func(ctx context.Context, req vision.Request) (vision.Completion, error) {
			time.Sleep(100 * time.Millisecond)
			return vision.Completion{Text: validRawJSON}, nil
		},
	}
	logger := &recordingLogger{}
	a := New(Config{
		Client:    mock,
		Model:     "gemini-2.5-flash",
		Timeout:   5 * time.Millisecond,
		RetryBase: time.Millisecond,
		Events:    logger,
	})
	a.sleep = func(time.Duration) {}

	_, err := a.Analyze(context.Background(), []byte("img"), "image/jpeg", meat.Pork, "belly")
	if KindOf(err) != ErrUpstreamTimeout {
		t.Fatalf("kind = %s, want upstream_timeout", KindOf(err))
	}
	if logger.count("model_attempt") != 2 {
		t.Errorf("model_attempt events = %d, want 2", logger.count("model_attempt"))
	}
}

func TestAnalyze_RepairPassRecoversBrokenJSON(t *testing.T) {
	broken := "The result is:\n```json\n{\"overallScore\": 75, \"broken\"\n```"
	calls := 0
	mock := &vision.MockClient{
		GenerateFn: func(ctx context.Context, req vision.Request) (vision.Completion, error) {
			calls++
			if calls == 1 {
				return vision.Completion{Text: broken}, nil
			}
			return vision.Completion{Text: validRawJSON}, nil
		},
	}
	logger := &recordingLogger{}
	a := newTestAnalyzer(mock, logger)

	result, err := a.Analyze(context.Background(), []byte("img"), "image/jpeg", meat.Pork, "belly")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OverallScore <= 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	if len(mock.Calls) != 2 {
		t.Fatalf("model calls = %d, want 2 (analysis + repair)", len(mock.Calls))
	}
	repairReq := mock.Calls[1]
	if repairReq.ImageData != nil {
		t.Error("repair request must not resend the image")
	}
	if !strings.Contains(repairReq.User, "overallScore") {
		t.Error("repair request must carry the broken text")
	}
	if logger.count("parse_failed") != 1 || logger.count("repair_attempted") != 1 {
		t.Errorf("missing repair events: %+v", logger.events)
	}
}

func TestAnalyze_RepairFailureIsFatal(t *testing.T) {
	mock := &vision.MockClient{
		GenerateFn: func(ctx context.Context, req vision.Request) (vision.Completion, error) {
			return vision.Completion{Text: "still not json at all"}, nil
		},
	}
	a := newTestAnalyzer(mock, nil)

	_, err := a.Analyze(context.Background(), []byte("img"), "image/jpeg", meat.Pork, "belly")
	if KindOf(err) != ErrInvalidAIResponse {
		t.Fatalf("kind = %s, want invalid_ai_response", KindOf(err))
	}
	// One analysis attempt plus exactly one repair attempt, never more.
	if len(mock.Calls) != 2 {
		t.Errorf("model calls = %d, want 2", len(mock.Calls))
	}
}

func TestAnalyze_RawSchemaViolationNotRetried(t *testing.T) {
	mock := &vision.MockClient{
		GenerateFn: func(ctx context.Context, req vision.Request) (vision.Completion, error) {
			return vision.Completion{Text: `{"overallGrade": "excellent", "overallScore": 120}`}, nil
		},
	}
	logger := &recordingLogger{}
	a := newTestAnalyzer(mock, logger)

	_, err := a.Analyze(context.Background(), []byte("img"), "image/jpeg", meat.Pork, "belly")
	if KindOf(err) != ErrRawSchemaViolation {
		t.Fatalf("kind = %s, want raw_schema_violation", KindOf(err))
	}
	if len(mock.Calls) != 1 {
		t.Errorf("model calls = %d, want 1", len(mock.Calls))
	}
	if logger.count("raw_validation_failed") != 1 {
		t.Error("missing raw_validation_failed event")
	}
	if logger.count("analysis_failed") != 1 {
		t.Error("missing analysis_failed event")
	}
}

func TestAnalyze_LinearBackoff(t *testing.T) {
	mock := &vision.MockClient{
		GenerateFn: func(ctx context.Context, req vision.Request) (vision.Completion, error) {
			return vision.Completion{}, &vision.Error{Kind: vision.ErrTransient, StatusCode: 500, Err: errors.New("boom")}
		},
	}
	a := New(Config{
		Client:    mock,
		Model:     "gemini-2.5-flash",
		Timeout:   time.Second,
		RetryBase: 10 * time.Millisecond,
		Events:    obs.NopLogger{},
	})

	var slept []time.Duration
	a.sleep = func(d time.Duration) { slept = append(slept, d) }

	_, _ = a.Analyze(context.Background(), []byte("img"), "image/jpeg", meat.Pork, "belly")

	if len(slept) != 1 {
		t.Fatalf("sleep calls = %d, want 1", len(slept))
	}
	if slept[0] != 10*time.Millisecond {
		t.Errorf("backoff = %v, want base*1 = 10ms", slept[0])
	}
}
