package vad

import (
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/KlinikX/aione/internal/audio"
)

// Config holds the segmentation thresholds
type Config struct {
	SampleRate int           // required input rate, 16000 for Silero
	MinSpeech  time.Duration // intervals must be longer than this to be kept
	MinSilence time.Duration // gaps shorter than this are bridged
}

// DefaultConfig returns the reference thresholds: 16 kHz, 250ms, 100ms
func DefaultConfig() Config {
	return Config{
		SampleRate: audio.TargetSampleRate,
		MinSpeech:  250 * time.Millisecond,
		MinSilence: 100 * time.Millisecond,
	}
}

// Observer receives one call per segmentation
type Observer interface {
	RecordVAD(outcome string, speechSeconds float64, elapsed time.Duration)
}

// Segmenter turns detector output into filtered speech intervals and the
// concatenated speech waveform. It holds no per-call state and is safe for
// concurrent use when its Detector is.
type Segmenter struct {
	detector Detector
	config   Config
	logger   *slog.Logger
	observer Observer

	calls         atomic.Uint64
	speech        atomic.Uint64
	silence       atomic.Uint64
	skipped       atomic.Uint64
	speechSamples atomic.Uint64
}

// SegmenterStats represents segmentation statistics
type SegmenterStats struct {
	Calls         uint64  `json:"calls"`
	Speech        uint64  `json:"speech"`
	Silence       uint64  `json:"silence"`
	Skipped       uint64  `json:"skipped"`
	SpeechSeconds float64 `json:"speech_seconds"`
}

// NewSegmenter creates a segmenter over the given detector
func NewSegmenter(detector Detector, config Config, logger *slog.Logger) (*Segmenter, error) {
	if detector == nil {
		return nil, fmt.Errorf("detector cannot be nil")
	}

	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.MinSpeech < 0 || config.MinSilence < 0 {
		return nil, fmt.Errorf("min speech and min silence cannot be negative")
	}

	return &Segmenter{
		detector: detector,
		config:   config,
		logger:   logger,
	}, nil
}

// SetObserver attaches an observer; call before the segmenter is shared
func (s *Segmenter) SetObserver(o Observer) {
	s.observer = o
}

// DetectSpeech finds speech in w and returns the concatenated speech
// samples. Detector failures are logged and reported as OutcomeSkip.
func (s *Segmenter) DetectSpeech(w audio.Waveform) Result {
	start := time.Now()
	result := s.detectSpeech(w)
	s.record(result, time.Since(start))
	return result
}

func (s *Segmenter) detectSpeech(w audio.Waveform) Result {
	if w.SampleRate != s.config.SampleRate {
		return Result{
			Outcome: OutcomeSkip,
			Err:     fmt.Errorf("%w: expected %d Hz, got %d Hz", ErrSampleRate, s.config.SampleRate, w.SampleRate),
		}
	}

	if w.Len() == 0 {
		return Result{Outcome: OutcomeSilence}
	}

	raw, err := s.detector.Detect(w.Samples, w.SampleRate)
	if err != nil {
		s.logger.Warn("VAD model failed, treating input as silence",
			slog.Int("samples", w.Len()),
			slog.String("error", err.Error()),
		)
		return Result{Outcome: OutcomeSkip, Err: fmt.Errorf("vad detection failed: %w", err)}
	}

	intervals := s.filter(raw, w.Len())
	if len(intervals) == 0 {
		return Result{Outcome: OutcomeSilence}
	}

	parts := make([]audio.Waveform, 0, len(intervals))
	for _, iv := range intervals {
		parts = append(parts, w.Slice(iv.Start, iv.End))
	}

	return Result{
		Outcome:   OutcomeSpeech,
		Intervals: intervals,
		Speech:    audio.Concat(w.SampleRate, parts...),
	}
}

// filter clamps raw spans to [0, n), bridges short gaps and drops short
// intervals
func (s *Segmenter) filter(raw []Interval, n int) []Interval {
	minSilence := audio.SamplesFor(s.config.MinSilence, s.config.SampleRate)
	minSpeech := audio.SamplesFor(s.config.MinSpeech, s.config.SampleRate)

	clamped := make([]Interval, 0, len(raw))
	for _, iv := range raw {
		if iv.Start < 0 {
			iv.Start = 0
		}
		if iv.End > n {
			iv.End = n
		}
		if iv.Len() > 0 {
			clamped = append(clamped, iv)
		}
	}

	sort.Slice(clamped, func(i, j int) bool { return clamped[i].Start < clamped[j].Start })

	merged := make([]Interval, 0, len(clamped))
	for _, iv := range clamped {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if iv.Start-last.End < minSilence {
				if iv.End > last.End {
					last.End = iv.End
				}
				continue
			}
		}
		merged = append(merged, iv)
	}

	kept := merged[:0]
	for _, iv := range merged {
		if iv.Len() > minSpeech {
			kept = append(kept, iv)
		}
	}

	return kept
}

func (s *Segmenter) record(r Result, elapsed time.Duration) {
	s.calls.Add(1)

	var speechSeconds float64
	switch r.Outcome {
	case OutcomeSpeech:
		s.speech.Add(1)
		s.speechSamples.Add(uint64(r.Speech.Len()))
		speechSeconds = r.Speech.Duration().Seconds()
	case OutcomeSilence:
		s.silence.Add(1)
	case OutcomeSkip:
		s.skipped.Add(1)
	}

	if s.observer != nil {
		s.observer.RecordVAD(r.Outcome.String(), speechSeconds, elapsed)
	}
}

// Stats returns current segmentation statistics
func (s *Segmenter) Stats() SegmenterStats {
	return SegmenterStats{
		Calls:         s.calls.Load(),
		Speech:        s.speech.Load(),
		Silence:       s.silence.Load(),
		Skipped:       s.skipped.Load(),
		SpeechSeconds: float64(s.speechSamples.Load()) / float64(s.config.SampleRate),
	}
}
