// Package audiotest generates synthetic audio for tests.
package audiotest

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/KlinikX/aione/internal/audio"
)

// Silence returns d of zero samples at rate
func Silence(d time.Duration, rate int) audio.Waveform {
	return audio.Waveform{
		Samples:    make([]float32, audio.SamplesFor(d, rate)),
		SampleRate: rate,
	}
}

// Tone returns a sine wave of freq Hz at the given amplitude
func Tone(d time.Duration, rate int, freq, amplitude float64) audio.Waveform {
	n := audio.SamplesFor(d, rate)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return audio.Waveform{Samples: samples, SampleRate: rate}
}

// Speech returns a 440 Hz tone loud enough to be classified as voice
func Speech(d time.Duration, rate int) audio.Waveform {
	return Tone(d, rate, 440, 0.5)
}

// PCM16 encodes a waveform as little-endian signed 16-bit mono PCM
func PCM16(w audio.Waveform) []byte {
	ints := audio.ToInt16(w.Samples)
	out := make([]byte, len(ints)*2)
	for i, v := range ints {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// WAV frames a waveform as 16-bit mono WAV at its own rate
func WAV(w audio.Waveform) []byte {
	return audio.Frame(PCM16(w), audio.Format{SampleRate: w.SampleRate, Channels: 1, SampleWidth: 2})
}
