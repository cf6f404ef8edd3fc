// Package transcription converts speech-only WAV buffers to text.
// Trigger guards against noise-sized buffers and normalizes output; Service
// implementations call the OpenAI Whisper API or a compatible HTTP endpoint.
package transcription
