package vad

import (
	"fmt"
	"math"
)

// referenceRMS is the frame RMS (about -34 dBFS) that scores probability 1.
// At the usual 0.5 threshold a frame needs roughly -40 dBFS, below
// conversational speech at -20 to -30 dBFS and above a quiet room.
const referenceRMS = 0.02

// EnergyDetector classifies fixed-size frames by RMS energy. It is the
// fallback for hosts without the ONNX runtime: unlike Silero it cannot tell
// speech from other sound of the same loudness. It keeps no state between
// calls, so one instance can serve every session.
type EnergyDetector struct {
	threshold  float32
	windowSize int
}

// NewEnergyDetector creates a new energy based detector
func NewEnergyDetector(threshold float32, windowSize int) (*EnergyDetector, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}

	return &EnergyDetector{
		threshold:  threshold,
		windowSize: windowSize,
	}, nil
}

// Detect implements Detector. The trailing partial frame is scored over
// the samples it has.
func (e *EnergyDetector) Detect(samples []float32, sampleRate int) ([]Interval, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	var intervals []Interval
	inSpeech := false
	start := 0

	for offset := 0; offset < len(samples); offset += e.windowSize {
		end := offset + e.windowSize
		if end > len(samples) {
			end = len(samples)
		}

		voiced := Probability(samples[offset:end]) >= e.threshold

		switch {
		case voiced && !inSpeech:
			inSpeech = true
			start = offset
		case !voiced && inSpeech:
			inSpeech = false
			intervals = append(intervals, Interval{Start: start, End: offset})
		}
	}

	if inSpeech {
		intervals = append(intervals, Interval{Start: start, End: len(samples)})
	}

	return intervals, nil
}

// Probability returns the energy based voice probability of one frame
func Probability(frame []float32) float32 {
	if len(frame) == 0 {
		return 0
	}

	var energy float64
	for _, s := range frame {
		energy += float64(s) * float64(s)
	}
	rms := math.Sqrt(energy / float64(len(frame)))

	p := rms / referenceRMS
	if p > 1 {
		p = 1
	}
	return float32(p)
}
