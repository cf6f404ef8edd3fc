package audio

import (
	"bytes"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// TargetSampleRate is the rate the VAD model and transcription expect
const TargetSampleRate = 16000

// DecodeWAV decodes a PCM WAV buffer to a mono waveform at the source rate.
// Multi-channel input is downmixed by averaging.
func DecodeWAV(data []byte) (Waveform, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return Waveform{}, fmt.Errorf("%w: not a valid WAV file", ErrInvalidWAV)
	}

	if d.WavAudioFormat != 1 {
		return Waveform{}, fmt.Errorf("%w: unsupported audio format %d (only PCM is supported)",
			ErrInvalidWAV, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("failed to read PCM data: %w", err)
	}

	channels := int(d.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	if channels < 1 {
		return Waveform{}, fmt.Errorf("%w: no channels", ErrInvalidWAV)
	}

	bitDepth := int(d.BitDepth)
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}

	// the decoder pads a trailing partial frame into a whole sample
	frames := len(buf.Data) / channels
	if blockAlign := channels * ((bitDepth + 7) / 8); blockAlign > 0 && d.PCMSize > 0 {
		if whole := d.PCMSize / blockAlign; frames > whole {
			frames = whole
		}
	}
	if frames == 0 {
		return Waveform{}, fmt.Errorf("%w: no audio data found", ErrInvalidWAV)
	}

	scale, offset, err := normalization(bitDepth)
	if err != nil {
		return Waveform{}, err
	}

	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c] - offset)
		}
		samples[i] = float32(sum / float64(channels) / scale)
	}

	return Waveform{Samples: samples, SampleRate: int(d.SampleRate)}, nil
}

// normalization returns the divisor and zero offset for a PCM bit depth.
// 8-bit WAV samples are unsigned.
func normalization(bitDepth int) (float64, int, error) {
	switch bitDepth {
	case 8:
		return 128, 128, nil
	case 16:
		return 32768, 0, nil
	case 24:
		return 8388608, 0, nil
	case 32:
		return 2147483648, 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bitDepth)
	}
}

// EncodeWAV encodes a waveform as 16-bit mono PCM WAV at its own rate
func EncodeWAV(w Waveform) ([]byte, error) {
	if w.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", w.SampleRate)
	}

	if len(w.Samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           ToInt16(w.Samples),
		SourceBitDepth: 16,
	}

	out := &writerseeker.WriterSeeker{}
	encoder := wav.NewEncoder(out, w.SampleRate, 16, 1, 1)
	if err := encoder.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write WAV samples: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize WAV: %w", err)
	}

	data, err := io.ReadAll(out.Reader())
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded WAV: %w", err)
	}

	return data, nil
}

// ToInt16 scales normalized samples by 32767 and clamps to the int16 range
func ToInt16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := int(float64(s) * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = v
	}
	return out
}
