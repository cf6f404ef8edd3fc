//go:build !nosilero

package main

import (
	"fmt"

	"github.com/KlinikX/aione/internal/audio"
	"github.com/KlinikX/aione/internal/config"
	"github.com/KlinikX/aione/internal/vad"
	"github.com/KlinikX/aione/internal/vad/silero"
)

func newSileroDetector(cfg config.VADConfig) (vad.Detector, func(), error) {
	pool, err := silero.NewPool(silero.Config{
		ModelPath:            cfg.ModelPath,
		SampleRate:           audio.TargetSampleRate,
		Threshold:            cfg.Threshold,
		MinSilenceDurationMs: int(cfg.GetMinSilenceDuration().Milliseconds()),
		SpeechPadMs:          int(cfg.GetSpeechPad().Milliseconds()),
		PoolSize:             cfg.PoolSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load VAD model: %w", err)
	}
	return pool, func() { _ = pool.Close() }, nil
}
