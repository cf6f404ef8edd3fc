package transcription

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig contains Whisper API configuration
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

// OpenAIService transcribes through the OpenAI audio API
type OpenAIService struct {
	client   *openai.Client
	model    string
	language string
}

// NewOpenAIService creates a new Whisper backed service
func NewOpenAIService(cfg OpenAIConfig) (*OpenAIService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}

	if cfg.Language == "" {
		cfg.Language = "en"
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIService{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    cfg.Model,
		language: cfg.Language,
	}, nil
}

// Transcribe implements Service
func (s *OpenAIService) Transcribe(ctx context.Context, wav []byte) (string, error) {
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.model,
		FilePath: uploadName(),
		Reader:   bytes.NewReader(wav),
		Format:   openai.AudioResponseFormatText,
		Language: s.language,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription failed: %w", err)
	}

	return resp.Text, nil
}

// uploadName returns the multipart file name, audio_NNNNNN.wav
func uploadName() string {
	return fmt.Sprintf("audio_%06d.wav", rand.IntN(1000000))
}
