package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"
)

// ErrEmptyResponse is returned when the model returns no choices
var ErrEmptyResponse = errors.New("no response choices")

// Service generates text from a system and a user prompt
type Service interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Stream(ctx context.Context, system, user string) (<-chan string, <-chan error)
}

// Config contains OpenAI chat settings
type Config struct {
	APIKey        string
	BaseURL       string // empty for api.openai.com
	Model         string // used by Complete
	StreamModel   string // used by Stream
	MaxConcurrent int
	Timeout       time.Duration
}

// OpenAIService implements Service with the chat completions API. At most
// MaxConcurrent requests are in flight at once.
type OpenAIService struct {
	client *openai.Client
	config Config
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewOpenAIService creates a chat completion client
func NewOpenAIService(config Config, logger *slog.Logger) (*OpenAIService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("api key cannot be empty")
	}

	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	if config.StreamModel == "" {
		config.StreamModel = "gpt-4o-2024-05-13"
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 8
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIService{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
		logger: logger,
	}, nil
}

func messages(system, user string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})
}

// Complete returns the full completion for the prompts
func (s *OpenAIService) Complete(ctx context.Context, system, user string) (string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("failed to acquire completion slot: %w", err)
	}
	defer s.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.config.Model,
		Messages: messages(system, user),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	s.logger.Debug("Completion finished",
		slog.String("model", s.config.Model),
		slog.Int("total_tokens", resp.Usage.TotalTokens),
		slog.Duration("elapsed", time.Since(start)),
	)

	return resp.Choices[0].Message.Content, nil
}

// Stream sends content deltas on the first channel as they arrive. Both
// channels are closed when the stream ends; at most one error is sent.
func (s *OpenAIService) Stream(ctx context.Context, system, user string) (<-chan string, <-chan error) {
	out := make(chan string, 16)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		if err := s.stream(ctx, system, user, out); err != nil {
			errc <- err
		}
	}()

	return out, errc
}

func (s *OpenAIService) stream(ctx context.Context, system, user string, out chan<- string) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire completion slot: %w", err)
	}
	defer s.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    s.config.StreamModel,
		Messages: messages(system, user),
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to create completion stream: %w", err)
	}
	defer stream.Close()

	deltas := 0
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			s.logger.Debug("Completion stream finished",
				slog.String("model", s.config.StreamModel),
				slog.Int("deltas", deltas),
			)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read completion stream: %w", err)
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}

		select {
		case out <- resp.Choices[0].Delta.Content:
			deltas++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
