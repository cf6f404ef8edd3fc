package audio

import "fmt"

// Resample converts w to dstRate using linear interpolation.
// A waveform already at dstRate is returned as a copy.
func Resample(w Waveform, dstRate int) (Waveform, error) {
	if w.SampleRate <= 0 {
		return Waveform{}, fmt.Errorf("source sample rate must be positive, got %d", w.SampleRate)
	}

	if dstRate <= 0 {
		return Waveform{}, fmt.Errorf("target sample rate must be positive, got %d", dstRate)
	}

	if w.SampleRate == dstRate {
		return w.Slice(0, len(w.Samples)), nil
	}

	n := len(w.Samples)
	if n == 0 {
		return Waveform{SampleRate: dstRate}, nil
	}

	outLen := int(int64(n) * int64(dstRate) / int64(w.SampleRate))
	out := make([]float32, outLen)
	ratio := float64(w.SampleRate) / float64(dstRate)

	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := w.Samples[srcIdx]
		s1 := s0
		if srcIdx+1 < n {
			s1 = w.Samples[srcIdx+1]
		}

		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}

	return Waveform{Samples: out, SampleRate: dstRate}, nil
}
