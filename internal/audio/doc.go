// Package audio handles PCM framing and WAV conversion for streamed audio.
// It wraps raw client PCM in WAV containers, decodes WAV buffers into
// normalized mono waveforms, resamples them and encodes speech back to WAV.
package audio
