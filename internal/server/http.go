package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KlinikX/aione/internal/config"
	"github.com/KlinikX/aione/internal/llm"
	"github.com/KlinikX/aione/internal/metrics"
	"github.com/KlinikX/aione/internal/store"
	"github.com/KlinikX/aione/internal/stream"
)

const (
	serviceName    = "aione"
	serviceVersion = "1.0.0"
)

// Options wires the HTTP server to the rest of the service. LLM, Users,
// Metrics and Gatherer are optional.
type Options struct {
	Config   *config.Config
	Logger   *slog.Logger
	Manager  *stream.Manager
	LLM      llm.Service
	Users    store.UserStore
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// Components adds named statistics to /stats
	Components map[string]func() any
}

// HTTPServer serves the audio WebSocket, the completion API and the
// monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	engine   *gin.Engine
	upgrader *websocket.Upgrader
	logger   *slog.Logger
	config   *config.Config
	manager  *stream.Manager
	llm      llm.Service
	users    store.UserStore
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	stats    map[string]func() any

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(opts Options) (*HTTPServer, error) {
	if opts.Config == nil || opts.Logger == nil || opts.Manager == nil {
		return nil, fmt.Errorf("config, logger and manager are required")
	}

	if opts.Config.Server.RequireAuth && opts.Users == nil {
		return nil, fmt.Errorf("require_auth is set but no user store is configured")
	}

	h := &HTTPServer{
		upgrader:  newUpgrader(opts.Config.Server.AllowedOrigins),
		logger:    opts.Logger,
		config:    opts.Config,
		manager:   opts.Manager,
		llm:       opts.LLM,
		users:     opts.Users,
		metrics:   opts.Metrics,
		gatherer:  opts.Gatherer,
		stats:     opts.Components,
		startTime: time.Now(),
	}

	if opts.Config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	h.engine = gin.New()
	h.engine.Use(gin.Recovery())
	h.engine.Use(h.loggingMiddleware())
	if h.metrics != nil {
		h.engine.Use(h.metricsMiddleware())
	}
	h.engine.Use(cors.New(h.corsConfig()))

	h.setupRoutes()

	h.server = &http.Server{
		Addr:              opts.Config.Server.GetListenAddress(),
		Handler:           h.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return h, nil
}

func (h *HTTPServer) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	origins := h.config.Server.AllowedOrigins
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}

	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes() {
	r := h.engine

	r.GET("/", h.handleRoot)
	r.GET("/health", h.handleHealth)
	r.GET("/sessions", h.handleSessions)
	r.GET("/sessions/:id", h.handleSessionDetail)
	r.GET("/stats", h.handleStats)
	r.GET("/config", h.handleConfig)

	if h.gatherer != nil && h.config.Metrics.Enabled {
		r.GET(h.config.Metrics.Path, gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	secured := r.Group("")
	if h.config.Server.RequireAuth {
		secured.Use(requireUser(h.users, h.logger))
	}

	secured.GET(h.config.Server.WSPath, h.handleAudioStream)

	if h.llm != nil {
		secured.POST("/v1/completions", h.handleCompletion)
	}

	if h.users != nil {
		r.GET("/verify-token", requireUser(h.users, h.logger), h.handleVerifyToken)
	}
}

// Handler returns the root handler, for tests and embedding
func (h *HTTPServer) Handler() http.Handler {
	return h.engine
}

func (h *HTTPServer) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}

		h.logger.Log(c.Request.Context(), level, "HTTP request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

// metricsMiddleware records every request under its route pattern
func (h *HTTPServer) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		// a hijacked connection still reports gin's default 200; failed
		// handshakes carry their own error status
		if c.IsWebsocket() && endpoint == h.config.Server.WSPath && c.Writer.Status() == http.StatusOK {
			h.metrics.RecordHTTPUpgrade(c.Request.Method, endpoint)
			return
		}

		h.metrics.RecordHTTPRequest(c.Request.Method, endpoint,
			strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
		slog.String("ws_path", h.config.Server.WSPath),
		slog.Bool("require_auth", h.config.Server.RequireAuth),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server. Hijacked WebSocket connections
// are not tracked by Shutdown; the session manager closes those.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(c *gin.Context) {
	managerStats := h.manager.Stats()

	components := gin.H{
		"session_manager": gin.H{
			"status":          "running",
			"active_sessions": managerStats.ActiveSessions,
			"strategy":        managerStats.Strategy,
		},
		"llm": gin.H{
			"enabled": h.llm != nil,
		},
		"user_store": gin.H{
			"enabled": h.users != nil,
			"backend": h.config.Store.Backend,
		},
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": gin.H{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": components,
	})
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(c *gin.Context) {
	sessions := h.manager.GetAllSessions()
	infos := make([]stream.SessionInfo, 0, len(sessions))

	for _, session := range sessions {
		infos = append(infos, session.GetSessionInfo())
	}

	c.JSON(http.StatusOK, gin.H{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

// handleSessionDetail implements the /sessions/:id endpoint
func (h *HTTPServer) handleSessionDetail(c *gin.Context) {
	session, exists := h.manager.GetSession(c.Param("id"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
		return
	}

	c.JSON(http.StatusOK, session.GetSessionInfo())
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(c *gin.Context) {
	stats := gin.H{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions":  h.manager.Stats(),
	}

	for name, fn := range h.stats {
		stats[name] = fn()
	}

	c.JSON(http.StatusOK, stats)
}

// handleConfig returns the configuration with secrets masked
func (h *HTTPServer) handleConfig(c *gin.Context) {
	c.YAML(http.StatusOK, h.config.Redacted())
}

// handleRoot lists the available endpoints
func (h *HTTPServer) handleRoot(c *gin.Context) {
	endpoints := gin.H{
		"GET /":              "API documentation",
		"GET /health":        "Service health check",
		"GET /sessions":      "List live audio sessions",
		"GET /sessions/{id}": "Get detailed session information",
		"GET /stats":         "Get service statistics",
		"GET /config":        "Get service configuration",
	}

	endpoints["GET "+h.config.Server.WSPath] = "Audio streaming WebSocket"

	if h.gatherer != nil && h.config.Metrics.Enabled {
		endpoints["GET "+h.config.Metrics.Path] = "Prometheus metrics"
	}
	if h.llm != nil {
		endpoints["POST /v1/completions"] = "Generate post text"
	}
	if h.users != nil {
		endpoints["GET /verify-token"] = "Check a bearer token"
	}

	c.JSON(http.StatusOK, gin.H{
		"service":   "AiOne Audio Transcription Service",
		"version":   serviceVersion,
		"endpoints": endpoints,
		"timestamp": time.Now().UTC(),
	})
}

// handleVerifyToken returns basic information about the token owner
func (h *HTTPServer) handleVerifyToken(c *gin.Context) {
	u := currentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"email": u.Email,
		"name":  u.Name,
	})
}
