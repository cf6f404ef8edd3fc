//go:build nosilero

package main

import (
	"fmt"

	"github.com/KlinikX/aione/internal/config"
	"github.com/KlinikX/aione/internal/vad"
)

// newSileroDetector fails in builds without cgo and the ONNX runtime;
// set vad.provider to "energy" there
func newSileroDetector(cfg config.VADConfig) (vad.Detector, func(), error) {
	return nil, nil, fmt.Errorf("silero VAD is not available in this build (built with -tags nosilero); use provider \"energy\"")
}
