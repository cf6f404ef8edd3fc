package vad

import (
	"errors"

	"github.com/KlinikX/aione/internal/audio"
)

// ErrSampleRate is returned for input that is not at the model sample rate
var ErrSampleRate = errors.New("unsupported sample rate")

// Interval is a half-open [Start, End) range of sample indices
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of samples covered
func (i Interval) Len() int {
	return i.End - i.Start
}

// Detector scores a mono waveform and returns the raw spans whose voice
// probability is at or above its threshold. Spans are ascending and
// non-overlapping but not yet filtered by duration. Implementations must
// be safe for concurrent use.
type Detector interface {
	Detect(samples []float32, sampleRate int) ([]Interval, error)
}

// Outcome classifies one segmentation call
type Outcome int

const (
	// OutcomeSilence means no interval survived filtering
	OutcomeSilence Outcome = iota
	// OutcomeSpeech means at least one interval was kept
	OutcomeSpeech
	// OutcomeSkip means the input could not be processed; treat as silence
	OutcomeSkip
)

// String returns the outcome label used in logs and metrics
func (o Outcome) String() string {
	switch o {
	case OutcomeSilence:
		return "silence"
	case OutcomeSpeech:
		return "speech"
	case OutcomeSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Result is the outcome of DetectSpeech. Intervals and Speech are set only
// for OutcomeSpeech; Err only for OutcomeSkip.
type Result struct {
	Outcome   Outcome
	Intervals []Interval
	Speech    audio.Waveform
	Err       error
}

// HasSpeech reports whether the result carries a speech waveform
func (r Result) HasSpeech() bool {
	return r.Outcome == OutcomeSpeech
}
