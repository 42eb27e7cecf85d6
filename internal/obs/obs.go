// Package obs emits structured observability events as JSON lines, with an
// optional bounded fan-out to an SQS queue.
package obs

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/meatgrade/meatgrade-service/internal/awsutil"
)

// Level is the event severity.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one structured observability record.
type Event struct {
	Name  string         `json:"event"`
	Level Level          `json:"level"`
	TS    string         `json:"ts"`
	Data  map[string]any `json:"data,omitempty"`
}

// Logger is the sink interface handed to pipeline components. Emission must
// never block or fail the caller.
type Logger interface {
	Emit(name string, level Level, data map[string]any)
}

// StdLogger writes events as JSON lines through the standard logger and,
// when a queue URL is configured, forwards a copy to SQS. The send is
// synchronous with a short deadline: Lambda freezes the runtime after the
// response, so a background goroutine may never run.
type StdLogger struct {
	SQS      awsutil.SQSClient // optional
	QueueURL string
}

// sqsSendTimeout bounds the fan-out send so a slow queue cannot stall the
// request path.
const sqsSendTimeout = 2 * time.Second

// NewStdLogger creates a stdout logger with an optional SQS fan-out.
func NewStdLogger(sqsClient awsutil.SQSClient, queueURL string) *StdLogger {
	return &StdLogger{SQS: sqsClient, QueueURL: queueURL}
}

func (l *StdLogger) Emit(name string, level Level, data map[string]any) {
	if level == "" {
		level = LevelInfo
	}
	event := Event{
		Name:  name,
		Level: level,
		TS:    time.Now().UTC().Format(time.RFC3339Nano),
		Data:  data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("WARNING: marshal obs event %s: %v", name, err)
		return
	}
	log.Printf("%s", payload)

	if l.SQS != nil && l.QueueURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), sqsSendTimeout)
		defer cancel()
		if err := l.SQS.SendMessage(ctx, l.QueueURL, string(payload)); err != nil {
			log.Printf("WARNING: obs sqs fan-out: %v", err)
		}
	}
}

// NopLogger discards all events.
type NopLogger struct{}

func (NopLogger) Emit(string, Level, map[string]any) {}

// DurationMS returns elapsed wall time in milliseconds for event payloads.
func DurationMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

// MaskIP redacts the host portion of a client IP for logging.
func MaskIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	if strings.Contains(ip, ".") {
		parts := strings.Split(ip, ".")
		if len(parts) == 4 {
			return parts[0] + "." + parts[1] + ".x.x"
		}
	}
	if len(ip) <= 6 {
		return ip + "***"
	}
	return ip[:6] + "***"
}
