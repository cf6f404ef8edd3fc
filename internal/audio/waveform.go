package audio

import "time"

// Waveform is a mono sequence of samples normalized to [-1, 1).
// Transforms never modify a Waveform in place; they return a new one.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Len returns the number of samples
func (w Waveform) Len() int {
	return len(w.Samples)
}

// Duration returns the playback length of the waveform
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(w.Samples)) / float64(w.SampleRate) * float64(time.Second))
}

// Slice copies samples [start, end) into a new waveform. Bounds are clamped.
func (w Waveform) Slice(start, end int) Waveform {
	if start < 0 {
		start = 0
	}
	if end > len(w.Samples) {
		end = len(w.Samples)
	}
	if start >= end {
		return Waveform{SampleRate: w.SampleRate}
	}

	samples := make([]float32, end-start)
	copy(samples, w.Samples[start:end])
	return Waveform{Samples: samples, SampleRate: w.SampleRate}
}

// Concat joins waveforms end to end with no padding between them.
// All inputs are expected to share sampleRate.
func Concat(sampleRate int, parts ...Waveform) Waveform {
	total := 0
	for _, p := range parts {
		total += len(p.Samples)
	}

	samples := make([]float32, 0, total)
	for _, p := range parts {
		samples = append(samples, p.Samples...)
	}

	return Waveform{Samples: samples, SampleRate: sampleRate}
}

// SamplesFor converts a duration to a sample count at rate
func SamplesFor(d time.Duration, rate int) int {
	return int(d.Seconds() * float64(rate))
}
