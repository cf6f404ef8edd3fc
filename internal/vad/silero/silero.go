// Package silero runs the Silero VAD ONNX model behind the vad.Detector
// interface. It requires cgo and the ONNX runtime shared library.
package silero

import (
	"errors"
	"fmt"
	"sync"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/KlinikX/aione/internal/vad"
)

// Config contains Silero model configuration
type Config struct {
	ModelPath            string
	SampleRate           int
	Threshold            float32
	MinSilenceDurationMs int
	SpeechPadMs          int
	PoolSize             int
}

// ErrClosed is returned by Detect after Close
var ErrClosed = errors.New("silero pool closed")

// model is the part of speech.Detector the pool uses
type model interface {
	Detect(pcm []float32) ([]speech.Segment, error)
	Reset() error
	Destroy() error
}

// Pool shares a fixed set of model instances between sessions. A
// speech.Detector carries recurrent state, so each call checks one out
// exclusively and resets it before use.
type Pool struct {
	detectors  chan model
	all        []model
	sampleRate int

	// held for reading by Detect so Close never destroys a model in use
	mu     sync.RWMutex
	closed bool
}

// NewPool loads PoolSize detectors from the model file
func NewPool(cfg Config) (*Pool, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}

	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}

	p := &Pool{
		detectors:  make(chan model, cfg.PoolSize),
		sampleRate: cfg.SampleRate,
	}

	for i := 0; i < cfg.PoolSize; i++ {
		d, err := speech.NewDetector(speech.DetectorConfig{
			ModelPath:            cfg.ModelPath,
			SampleRate:           cfg.SampleRate,
			Threshold:            cfg.Threshold,
			MinSilenceDurationMs: cfg.MinSilenceDurationMs,
			SpeechPadMs:          cfg.SpeechPadMs,
		})
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to create silero detector %d: %w", i, err)
		}

		p.all = append(p.all, d)
		p.detectors <- d
	}

	return p, nil
}

// newPoolWith builds a pool around already loaded models
func newPoolWith(sampleRate int, models ...model) *Pool {
	p := &Pool{
		detectors:  make(chan model, len(models)),
		all:        models,
		sampleRate: sampleRate,
	}
	for _, m := range models {
		p.detectors <- m
	}
	return p
}

// Detect implements vad.Detector
func (p *Pool) Detect(samples []float32, sampleRate int) ([]vad.Interval, error) {
	if sampleRate != p.sampleRate {
		return nil, fmt.Errorf("%w: model loaded for %d Hz, got %d Hz", vad.ErrSampleRate, p.sampleRate, sampleRate)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrClosed
	}

	d := <-p.detectors
	defer func() { p.detectors <- d }()

	if err := d.Reset(); err != nil {
		return nil, fmt.Errorf("silero reset failed: %w", err)
	}

	segments, err := d.Detect(samples)
	if err != nil {
		return nil, fmt.Errorf("silero detect failed: %w", err)
	}

	intervals := make([]vad.Interval, 0, len(segments))
	for _, s := range segments {
		iv := vad.Interval{Start: int(s.SpeechStartAt * float64(sampleRate))}
		if s.SpeechEndAt > 0 {
			iv.End = int(s.SpeechEndAt * float64(sampleRate))
		} else {
			// speech still open at the end of the input
			iv.End = len(samples)
		}
		intervals = append(intervals, iv)
	}

	return intervals, nil
}

// Size returns the number of pooled detectors
func (p *Pool) Size() int {
	return len(p.all)
}

// Close waits for in-flight calls and releases every model instance.
// Later Detect calls return ErrClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	for _, d := range p.all {
		if err := d.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.all = nil
	return firstErr
}
