package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/KlinikX/aione/internal/audio"
	"github.com/KlinikX/aione/internal/config"
	"github.com/KlinikX/aione/internal/llm"
	"github.com/KlinikX/aione/internal/metrics"
	"github.com/KlinikX/aione/internal/server"
	"github.com/KlinikX/aione/internal/store"
	"github.com/KlinikX/aione/internal/stream"
	"github.com/KlinikX/aione/internal/transcription"
	"github.com/KlinikX/aione/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "aione"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("listen_address", cfg.Server.GetListenAddress()),
		slog.String("ws_path", cfg.Server.WSPath),
		slog.Bool("require_auth", cfg.Server.RequireAuth),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.String("combine_strategy", cfg.Audio.CombineStrategy),
		slog.String("vad_provider", cfg.VAD.Provider),
		slog.Float64("vad_threshold", float64(cfg.VAD.Threshold)),
		slog.String("transcription_provider", cfg.Transcription.Provider),
		slog.Bool("llm_enabled", cfg.LLM.Enabled),
		slog.String("store_backend", cfg.Store.Backend),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)
	logger.Info("Prometheus metrics initialized")

	detector, closeDetector, err := newDetector(cfg.VAD)
	if err != nil {
		return err
	}
	defer closeDetector()

	segmenter, err := vad.NewSegmenter(detector, vad.Config{
		SampleRate: audio.TargetSampleRate,
		MinSpeech:  cfg.VAD.GetMinSpeechDuration(),
		MinSilence: cfg.VAD.GetMinSilenceDuration(),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create segmenter: %w", err)
	}
	segmenter.SetObserver(appMetrics)

	components := map[string]func() any{
		"vad": func() any { return segmenter.Stats() },
	}

	service, err := newTranscriptionService(cfg.Transcription, components)
	if err != nil {
		return err
	}
	if c, ok := service.(*transcription.Client); ok {
		defer c.Close()
	}

	trigger := transcription.NewTrigger(service, cfg.Audio.MinTranscribeBytes, logger)
	trigger.SetObserver(appMetrics)

	manager, err := stream.NewManager(logger, stream.ManagerConfig{
		Session: stream.SessionConfig{
			KeepAliveInterval: cfg.Server.GetKeepAliveInterval(),
			ReceiveTimeout:    cfg.Server.GetReceiveTimeout(),
			ProcessTimeout:    cfg.Server.GetProcessTimeout(),
			Format:            cfg.Audio.Format(),
		},
		Strategy: cfg.Audio.CombineStrategy,
	}, stream.NewCombiner(segmenter, logger), trigger)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	manager.SetObserver(appMetrics)
	defer manager.Stop()

	users, err := newUserStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer users.Close()

	var completions llm.Service
	if cfg.LLM.Enabled {
		completions, err = llm.NewOpenAIService(llm.Config{
			APIKey:        cfg.LLM.APIKey,
			BaseURL:       cfg.LLM.BaseURL,
			Model:         cfg.LLM.Model,
			StreamModel:   cfg.LLM.StreamModel,
			MaxConcurrent: cfg.LLM.MaxConcurrent,
			Timeout:       cfg.LLM.GetTimeoutDuration(),
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create completion service: %w", err)
		}
		logger.Info("Completion service initialized", slog.String("model", cfg.LLM.Model))
	}

	httpServer, err := server.NewHTTPServer(server.Options{
		Config:     cfg,
		Logger:     logger,
		Manager:    manager,
		LLM:        completions,
		Users:      users,
		Metrics:    appMetrics,
		Gatherer:   registry,
		Components: components,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", cfg.Server.GetListenAddress()),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout())
	defer shutdownCancel()

	// stop accepting connections before live sessions are closed by the
	// deferred manager.Stop
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	stats := manager.Stats()
	logger.Info("Final session statistics",
		slog.Int("active_sessions", stats.ActiveSessions),
		slog.Uint64("sessions_created", stats.SessionsCreated),
		slog.Uint64("sessions_closed", stats.SessionsClosed),
	)

	return nil
}

// newDetector builds the configured speech detector and a release func
func newDetector(cfg config.VADConfig) (vad.Detector, func(), error) {
	switch cfg.Provider {
	case "silero":
		return newSileroDetector(cfg)
	default:
		detector, err := vad.NewEnergyDetector(cfg.Threshold, cfg.WindowSize)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create energy detector: %w", err)
		}
		return detector, func() {}, nil
	}
}

func newTranscriptionService(cfg config.TranscriptionConfig, components map[string]func() any) (transcription.Service, error) {
	if cfg.Provider == "http" {
		client, err := transcription.NewClient(transcription.Config{
			Endpoint:      cfg.Endpoint,
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			Language:      cfg.Language,
			Timeout:       cfg.GetTimeoutDuration(),
			MaxConcurrent: cfg.MaxConcurrent,
			OutputFormat:  cfg.OutputFormat,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create transcription client: %w", err)
		}
		components["transcription"] = func() any { return client.GetStats() }
		return client, nil
	}

	service, err := transcription.NewOpenAIService(transcription.OpenAIConfig{
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Language: cfg.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription service: %w", err)
	}
	return service, nil
}

// newUserStore opens the token store and provisions configured users
func newUserStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.UserStore, error) {
	users, err := store.New(ctx, store.Config{
		Backend:       cfg.Backend,
		TTL:           cfg.GetTTL(),
		SweepInterval: cfg.GetSweepInterval(),
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		KeyPrefix:     cfg.KeyPrefix,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open user store: %w", err)
	}

	provisioned := make([]store.User, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		provisioned = append(provisioned, store.User{Email: u.Email, Name: u.Name, Token: u.Token})
	}

	issued, err := store.Provision(ctx, users, provisioned)
	if err != nil {
		users.Close()
		return nil, err
	}

	// the log is the only place an issued token appears
	for _, u := range issued {
		logger.Warn("Issued bearer token",
			slog.String("email", u.Email),
			slog.String("token", u.Token),
		)
	}

	logger.Info("User store initialized",
		slog.String("backend", cfg.Backend),
		slog.Int("provisioned_users", len(cfg.Users)),
	)
	return users, nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
