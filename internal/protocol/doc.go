// Package protocol defines the JSON messages exchanged on the audio WebSocket.
// Clients send base64 PCM in stream_bytes; the server answers with keep-alive
// pings and transcription results.
package protocol
