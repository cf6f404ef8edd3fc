package transcription

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// DefaultMinBytes is the smallest buffer worth sending, about 50ms of
// 16 kHz 16-bit mono
const DefaultMinBytes = 1600

// Service turns a WAV buffer into text with a single synchronous attempt
type Service interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Observer receives one call per service invocation
type Observer interface {
	RecordTranscription(success bool, elapsed time.Duration)
}

// Trigger guards a Service against noise-sized buffers and normalizes its
// output
type Trigger struct {
	service  Service
	minBytes int
	logger   *slog.Logger
	observer Observer
}

// NewTrigger creates a trigger; minBytes <= 0 selects DefaultMinBytes
func NewTrigger(service Service, minBytes int, logger *slog.Logger) *Trigger {
	if minBytes <= 0 {
		minBytes = DefaultMinBytes
	}

	return &Trigger{
		service:  service,
		minBytes: minBytes,
		logger:   logger,
	}
}

// SetObserver attaches an observer; call before the trigger is shared
func (t *Trigger) SetObserver(o Observer) {
	t.observer = o
}

// Transcribe returns "" without calling the service when wav is shorter
// than the minimum. Otherwise newlines in the result become spaces and
// surrounding whitespace is trimmed. Service errors are returned as is.
func (t *Trigger) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if len(wav) < t.minBytes {
		t.logger.Debug("Speech buffer too short for transcription",
			slog.Int("bytes", len(wav)),
			slog.Int("min_bytes", t.minBytes),
		)
		return "", nil
	}

	start := time.Now()
	text, err := t.service.Transcribe(ctx, wav)
	if t.observer != nil {
		t.observer.RecordTranscription(err == nil, time.Since(start))
	}
	if err != nil {
		return "", err
	}

	return Clean(text), nil
}

// Clean collapses newlines to spaces and trims surrounding whitespace
func Clean(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}
