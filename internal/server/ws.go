package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/KlinikX/aione/internal/stream"
)

// newUpgrader accepts any origin when allowed contains "*"
func newUpgrader(allowed []string) *websocket.Upgrader {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[o] = true
	}

	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if origins["*"] {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origins[origin]
		},
	}
}

// handleAudioStream upgrades the request and runs a session until the
// client goes away
func (h *HTTPServer) handleAudioStream(c *gin.Context) {
	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.logger.Warn("WebSocket upgrade failed",
			slog.String("remote_addr", c.ClientIP()),
			slog.String("error", err.Error()),
		)
		return
	}

	attrs := []any{slog.String("remote_addr", c.ClientIP())}
	if u := currentUser(c); u != nil {
		attrs = append(attrs, slog.String("user", u.Email))
	}
	h.logger.Info("WebSocket connection accepted", attrs...)

	if err := h.manager.Serve(c.Request.Context(), newWSConn(socket), c.ClientIP()); err != nil {
		h.logger.Warn("Audio session ended with error", slog.String("error", err.Error()))
	}
}

var _ stream.Conn = (*wsConn)(nil)
