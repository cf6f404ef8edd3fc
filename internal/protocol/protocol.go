package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Outbound message labels
const (
	MessagePing          = "ping"
	MessageTranscription = "Transcriptions Generated"
)

// Inbound is a client message. Only stream_bytes is meaningful; messages
// without it are ignored by the session.
type Inbound struct {
	StreamBytes string `json:"stream_bytes,omitempty"` // base64 PCM
}

// Outbound is a server message
type Outbound struct {
	Message       string `json:"message"`
	Transcription string `json:"transcription,omitempty"`
}

// Ping returns the keep-alive message
func Ping() Outbound {
	return Outbound{Message: MessagePing}
}

// Transcription returns a transcription result message
func Transcription(text string) Outbound {
	return Outbound{Message: MessageTranscription, Transcription: text}
}

// ParseInbound decodes one JSON text frame
func ParseInbound(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, fmt.Errorf("failed to parse message: %w", err)
	}
	return msg, nil
}

// HasAudio reports whether the message carries an audio payload
func (m Inbound) HasAudio() bool {
	return m.StreamBytes != ""
}

// Audio decodes the base64 payload to raw PCM bytes
func (m Inbound) Audio() ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(m.StreamBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid stream_bytes encoding: %w", err)
	}
	return pcm, nil
}

// AudioMessage builds the inbound message a client sends for pcm
func AudioMessage(pcm []byte) Inbound {
	return Inbound{StreamBytes: base64.StdEncoding.EncodeToString(pcm)}
}

// Encode marshals an outbound message
func (o Outbound) Encode() ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// String returns a human-readable representation of the message
func (o Outbound) String() string {
	if o.Transcription == "" {
		return fmt.Sprintf("Outbound{Message:%q}", o.Message)
	}
	return fmt.Sprintf("Outbound{Message:%q, TranscriptionLen:%d}", o.Message, len(o.Transcription))
}
