package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KlinikX/aione/internal/audio"
	"github.com/KlinikX/aione/internal/vad"
)

// SpeechDetector extracts speech from a 16 kHz mono waveform
type SpeechDetector interface {
	DetectSpeech(w audio.Waveform) vad.Result
}

// Combiner decodes WAV chunks, strips non-speech from each and joins the
// speech into one 16 kHz mono 16-bit WAV buffer
type Combiner struct {
	detector   SpeechDetector
	targetRate int
	logger     *slog.Logger
}

// NewCombiner creates a combiner that feeds detector at 16 kHz
func NewCombiner(detector SpeechDetector, logger *slog.Logger) *Combiner {
	return &Combiner{
		detector:   detector,
		targetRate: audio.TargetSampleRate,
		logger:     logger,
	}
}

// Combine runs every chunk through decode, resample and VAD in order and
// returns the encoded speech, or nil when no chunk contained speech. A
// chunk that fails is logged and skipped. The only error returned is a
// context error between chunks.
func (c *Combiner) Combine(ctx context.Context, chunks [][]byte) ([]byte, error) {
	parts := make([]audio.Waveform, 0, len(chunks))

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if speech, ok := c.ChunkSpeech(i, chunk); ok {
			parts = append(parts, speech)
		}
	}

	return c.Encode(parts)
}

// ChunkSpeech returns the speech contained in one WAV chunk. ok is false
// for silence and for chunks that could not be processed.
func (c *Combiner) ChunkSpeech(index int, chunk []byte) (speech audio.Waveform, ok bool) {
	w, err := audio.DecodeWAV(chunk)
	if err != nil {
		c.logger.Warn("Skipping undecodable audio chunk",
			slog.Int("chunk_index", index),
			slog.Int("chunk_bytes", len(chunk)),
			slog.String("error", err.Error()),
		)
		return audio.Waveform{}, false
	}

	if w.SampleRate != c.targetRate {
		w, err = audio.Resample(w, c.targetRate)
		if err != nil {
			c.logger.Warn("Skipping audio chunk that could not be resampled",
				slog.Int("chunk_index", index),
				slog.String("error", err.Error()),
			)
			return audio.Waveform{}, false
		}
	}

	result := c.detector.DetectSpeech(w)
	switch result.Outcome {
	case vad.OutcomeSpeech:
		return result.Speech, true
	case vad.OutcomeSkip:
		c.logger.Warn("Skipping audio chunk after VAD failure",
			slog.Int("chunk_index", index),
			slog.String("error", errString(result.Err)),
		)
	}

	return audio.Waveform{}, false
}

// Encode concatenates speech parts in order and encodes them as WAV.
// It returns nil, nil for no parts.
func (c *Combiner) Encode(parts []audio.Waveform) ([]byte, error) {
	if len(parts) == 0 {
		return nil, nil
	}

	joined := audio.Concat(c.targetRate, parts...)
	if joined.Len() == 0 {
		return nil, nil
	}

	data, err := audio.EncodeWAV(joined)
	if err != nil {
		return nil, fmt.Errorf("failed to encode combined speech: %w", err)
	}

	return data, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
