package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/KlinikX/aione/internal/audio"
)

// Environment variables that override secrets from the config file
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvRedisPassword = "AIONE_REDIS_PASSWORD"
	EnvTranscribeKey = "AIONE_TRANSCRIPTION_API_KEY"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	LLM           LLMConfig           `yaml:"llm"`
	Store         StoreConfig         `yaml:"store"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// ServerConfig contains HTTP and WebSocket server configuration
type ServerConfig struct {
	Address           string   `yaml:"address"`
	Port              int      `yaml:"port"`
	WSPath            string   `yaml:"ws_path"`
	KeepAliveInterval float64  `yaml:"keepalive_interval"` // seconds
	ReceiveTimeout    float64  `yaml:"receive_timeout"`    // seconds
	ProcessTimeout    int      `yaml:"process_timeout"`    // seconds
	ShutdownTimeout   int      `yaml:"shutdown_timeout"`   // seconds
	RequireAuth       bool     `yaml:"require_auth"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
}

// AudioConfig describes inbound PCM and how chunks are combined
type AudioConfig struct {
	SampleRate         int    `yaml:"sample_rate"`
	Channels           int    `yaml:"channels"`
	SampleWidth        int    `yaml:"sample_width"` // bytes per sample
	MinTranscribeBytes int    `yaml:"min_transcribe_bytes"`
	CombineStrategy    string `yaml:"combine_strategy"`
}

// VADConfig contains Voice Activity Detection configuration
type VADConfig struct {
	Provider           string  `yaml:"provider"` // energy or silero
	ModelPath          string  `yaml:"model_path"`
	Threshold          float32 `yaml:"threshold"`
	WindowSize         int     `yaml:"window_size"`          // samples
	MinSpeechDuration  float64 `yaml:"min_speech_duration"`  // seconds
	MinSilenceDuration float64 `yaml:"min_silence_duration"` // seconds
	SpeechPad          float64 `yaml:"speech_pad"`           // seconds, silero only
	PoolSize           int     `yaml:"pool_size"`
}

// TranscriptionConfig contains speech-to-text configuration
type TranscriptionConfig struct {
	Provider      string `yaml:"provider"` // openai or http
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Language      string `yaml:"language"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxConcurrent int    `yaml:"max_concurrent"`
	OutputFormat  string `yaml:"output_format"`
}

// LLMConfig contains completion endpoint configuration
type LLMConfig struct {
	Enabled       bool   `yaml:"enabled"`
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	StreamModel   string `yaml:"stream_model"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	Timeout       int    `yaml:"timeout"` // seconds
}

// StoreConfig selects the user token store
type StoreConfig struct {
	Backend       string `yaml:"backend"` // memory or redis
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
	TTL           int    `yaml:"ttl"`            // seconds
	SweepInterval int    `yaml:"sweep_interval"` // seconds, memory only

	// Users are written to the store at startup
	Users []UserConfig `yaml:"users"`
}

// UserConfig is a user provisioned from configuration
type UserConfig struct {
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with the Silero VAD, OpenAI
// transcription and the in-memory store. An API key and the model file
// still have to be supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:           "0.0.0.0",
			Port:              8000,
			WSPath:            "/ws/audio",
			KeepAliveInterval: 10,
			ReceiveTimeout:    5,
			ProcessTimeout:    60,
			ShutdownTimeout:   10,
			AllowedOrigins:    []string{"*"},
		},
		Audio: AudioConfig{
			SampleRate:         16000,
			Channels:           1,
			SampleWidth:        2,
			MinTranscribeBytes: 1600,
			CombineStrategy:    "incremental",
		},
		VAD: VADConfig{
			Provider:           "silero",
			ModelPath:          "./models/silero_vad.onnx",
			Threshold:          0.5,
			WindowSize:         512,
			MinSpeechDuration:  0.25,
			MinSilenceDuration: 0.1,
			SpeechPad:          0.03,
			PoolSize:           4,
		},
		Transcription: TranscriptionConfig{
			Provider:      "openai",
			Endpoint:      "https://api.openai.com/v1",
			Model:         "whisper-1",
			Language:      "en",
			Timeout:       30,
			MaxConcurrent: 10,
			OutputFormat:  "text",
		},
		LLM: LLMConfig{
			Enabled:       true,
			Model:         "gpt-4o-mini",
			StreamModel:   "gpt-4o-2024-05-13",
			MaxConcurrent: 8,
			Timeout:       60,
		},
		Store: StoreConfig{
			Backend:       "memory",
			RedisAddr:     "localhost:6379",
			KeyPrefix:     "aione:user:",
			TTL:           86400,
			SweepInterval: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a .env file if present, parses the configuration file over
// the defaults, applies environment overrides and validates the result
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides secrets with environment variables when they are set
func (c *Config) ApplyEnv() {
	if key := os.Getenv(EnvOpenAIKey); key != "" {
		c.LLM.APIKey = key
		if c.Transcription.Provider == "openai" {
			c.Transcription.APIKey = key
		}
	}

	if key := os.Getenv(EnvTranscribeKey); key != "" {
		c.Transcription.APIKey = key
	}

	if password := os.Getenv(EnvRedisPassword); password != "" {
		c.Store.RedisPassword = password
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if len(s.WSPath) == 0 || s.WSPath[0] != '/' {
		return fmt.Errorf("ws_path must start with '/', got '%s'", s.WSPath)
	}

	if s.KeepAliveInterval <= 0 {
		return fmt.Errorf("keepalive_interval must be positive, got %f", s.KeepAliveInterval)
	}

	if s.ReceiveTimeout <= 0 {
		return fmt.Errorf("receive_timeout must be positive, got %f", s.ReceiveTimeout)
	}

	if s.ProcessTimeout < 1 {
		return fmt.Errorf("process_timeout must be at least 1 second, got %d", s.ProcessTimeout)
	}

	if s.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", s.ShutdownTimeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	if a.SampleWidth != 1 && a.SampleWidth != 2 && a.SampleWidth != 4 {
		return fmt.Errorf("sample_width must be 1, 2 or 4 bytes, got %d", a.SampleWidth)
	}

	if err := a.Format().Validate(); err != nil {
		return fmt.Errorf("invalid audio format: %w", err)
	}

	if a.MinTranscribeBytes < 0 {
		return fmt.Errorf("min_transcribe_bytes cannot be negative, got %d", a.MinTranscribeBytes)
	}

	validStrategies := map[string]bool{"incremental": true, "full": true}
	if !validStrategies[a.CombineStrategy] {
		return fmt.Errorf("combine_strategy must be 'incremental' or 'full', got '%s'", a.CombineStrategy)
	}

	return nil
}

// Format returns the inbound PCM encoding
func (a *AudioConfig) Format() audio.Format {
	return audio.Format{
		SampleRate:  a.SampleRate,
		Channels:    a.Channels,
		SampleWidth: a.SampleWidth,
	}
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	switch v.Provider {
	case "energy":
	case "silero":
		if v.ModelPath == "" {
			return fmt.Errorf("model_path cannot be empty for the silero provider")
		}
		if v.PoolSize < 1 {
			return fmt.Errorf("pool_size must be at least 1, got %d", v.PoolSize)
		}
	default:
		return fmt.Errorf("provider must be 'energy' or 'silero', got '%s'", v.Provider)
	}

	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}

	if v.WindowSize < 256 || v.WindowSize > 2048 {
		return fmt.Errorf("window_size must be between 256 and 2048 samples, got %d", v.WindowSize)
	}

	if v.MinSpeechDuration < 0 {
		return fmt.Errorf("min_speech_duration cannot be negative, got %f", v.MinSpeechDuration)
	}

	if v.MinSilenceDuration < 0 {
		return fmt.Errorf("min_silence_duration cannot be negative, got %f", v.MinSilenceDuration)
	}

	if v.SpeechPad < 0 {
		return fmt.Errorf("speech_pad cannot be negative, got %f", v.SpeechPad)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	switch t.Provider {
	case "openai":
		if t.APIKey == "" {
			return fmt.Errorf("api_key cannot be empty for the openai provider (set %s)", EnvOpenAIKey)
		}
	case "http":
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the http provider")
		}
		if t.MaxConcurrent < 1 {
			return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
		}
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[t.OutputFormat] {
			return fmt.Errorf("output_format must be 'json' or 'text', got '%s'", t.OutputFormat)
		}
	default:
		return fmt.Errorf("provider must be 'openai' or 'http', got '%s'", t.Provider)
	}

	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates LLM configuration
func (l *LLMConfig) Validate() error {
	if !l.Enabled {
		return nil
	}

	if l.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty when llm is enabled (set %s)", EnvOpenAIKey)
	}

	if l.Model == "" || l.StreamModel == "" {
		return fmt.Errorf("model and stream_model cannot be empty")
	}

	if l.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", l.MaxConcurrent)
	}

	if l.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", l.Timeout)
	}

	return nil
}

// Validate validates store configuration
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case "memory":
		if s.SweepInterval < 1 {
			return fmt.Errorf("sweep_interval must be at least 1 second, got %d", s.SweepInterval)
		}
	case "redis":
		if s.RedisAddr == "" {
			return fmt.Errorf("redis_addr cannot be empty for the redis backend")
		}
		if s.RedisDB < 0 {
			return fmt.Errorf("redis_db cannot be negative, got %d", s.RedisDB)
		}
	default:
		return fmt.Errorf("backend must be 'memory' or 'redis', got '%s'", s.Backend)
	}

	if s.TTL < 1 {
		return fmt.Errorf("ttl must be at least 1 second, got %d", s.TTL)
	}

	for i, u := range s.Users {
		if u.Email == "" {
			return fmt.Errorf("users[%d]: email cannot be empty", i)
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output is stdout, stderr or a file path

	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if m.Enabled && (len(m.Path) == 0 || m.Path[0] != '/') {
		return fmt.Errorf("path must start with '/', got '%s'", m.Path)
	}
	return nil
}

// Redacted returns a copy with secrets masked, for monitoring output
func (c *Config) Redacted() Config {
	out := *c
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	out.Transcription.APIKey = mask(c.Transcription.APIKey)
	out.LLM.APIKey = mask(c.LLM.APIKey)
	out.Store.RedisPassword = mask(c.Store.RedisPassword)
	out.Store.Users = make([]UserConfig, len(c.Store.Users))
	for i, u := range c.Store.Users {
		u.Token = mask(u.Token)
		out.Store.Users[i] = u
	}
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// GetKeepAliveInterval returns the ping period as a time.Duration
func (s *ServerConfig) GetKeepAliveInterval() time.Duration {
	return time.Duration(s.KeepAliveInterval * float64(time.Second))
}

// GetReceiveTimeout returns the receive polling tick as a time.Duration
func (s *ServerConfig) GetReceiveTimeout() time.Duration {
	return time.Duration(s.ReceiveTimeout * float64(time.Second))
}

// GetProcessTimeout returns the per-message processing bound
func (s *ServerConfig) GetProcessTimeout() time.Duration {
	return time.Duration(s.ProcessTimeout) * time.Second
}

// GetShutdownTimeout returns the graceful shutdown bound
func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// GetListenAddress returns address:port
func (s *ServerConfig) GetListenAddress() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// GetMinSpeechDuration returns the minimum speech duration as a time.Duration
func (v *VADConfig) GetMinSpeechDuration() time.Duration {
	return time.Duration(v.MinSpeechDuration * float64(time.Second))
}

// GetMinSilenceDuration returns the minimum silence duration as a time.Duration
func (v *VADConfig) GetMinSilenceDuration() time.Duration {
	return time.Duration(v.MinSilenceDuration * float64(time.Second))
}

// GetSpeechPad returns the silero speech padding as a time.Duration
func (v *VADConfig) GetSpeechPad() time.Duration {
	return time.Duration(v.SpeechPad * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the completion timeout as a time.Duration
func (l *LLMConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(l.Timeout) * time.Second
}

// GetTTL returns the token lifetime as a time.Duration
func (s *StoreConfig) GetTTL() time.Duration {
	return time.Duration(s.TTL) * time.Second
}

// GetSweepInterval returns the memory store eviction period
func (s *StoreConfig) GetSweepInterval() time.Duration {
	return time.Duration(s.SweepInterval) * time.Second
}
