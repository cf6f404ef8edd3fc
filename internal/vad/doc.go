// Package vad provides voice activity detection over 16 kHz mono waveforms.
// A Detector scores frames and returns raw voiced spans; the Segmenter bridges
// short gaps, drops short bursts and concatenates the surviving speech.
package vad
