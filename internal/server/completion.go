package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

type completionRequest struct {
	System string `json:"system"`
	Prompt string `json:"prompt" binding:"required"`
	Stream bool   `json:"stream"`
}

type completionResponse struct {
	Content string `json:"content"`
}

// handleCompletion generates text for a prompt. With "stream": true the
// response is a server-sent event stream of "delta" events followed by
// "done", or "error" if generation fails part way.
func (h *HTTPServer) handleCompletion(c *gin.Context) {
	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	if req.Stream {
		h.streamCompletion(c, req)
		return
	}

	text, err := h.llm.Complete(c.Request.Context(), req.System, req.Prompt)
	h.recordCompletion("complete", err == nil)
	if err != nil {
		h.logger.Error("Completion failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"detail": "Completion failed"})
		return
	}

	c.JSON(http.StatusOK, completionResponse{Content: text})
}

func (h *HTTPServer) streamCompletion(c *gin.Context, req completionRequest) {
	deltas, errc := h.llm.Stream(c.Request.Context(), req.System, req.Prompt)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		delta, ok := <-deltas
		if ok {
			c.SSEvent("delta", delta)
			return true
		}

		if err := <-errc; err != nil {
			h.recordCompletion("stream", false)
			h.logger.Error("Completion stream failed", slog.String("error", err.Error()))
			c.SSEvent("error", "Completion failed")
			return false
		}

		h.recordCompletion("stream", true)
		c.SSEvent("done", "")
		return false
	})
}

func (h *HTTPServer) recordCompletion(mode string, success bool) {
	if h.metrics != nil {
		h.metrics.RecordCompletion(mode, success)
	}
}
