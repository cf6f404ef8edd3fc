// Package metrics exposes Prometheus instrumentation for sessions, VAD,
// transcription, completions and the HTTP API.
package metrics
