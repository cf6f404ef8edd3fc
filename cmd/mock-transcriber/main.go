// Command mock-transcriber is a stand-in for a Whisper-compatible
// transcription endpoint. Point transcription.endpoint at it with
// provider "http" to run the service without an API key.
package main

import (
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KlinikX/aione/internal/audio"
)

const defaultText = "This is a test transcription of the submitted audio."

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	text := flag.String("text", defaultText, "Transcription returned for every request")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/transcribe", transcribeHandler(logger, *text, *delay))

	logger.Info("Mock transcriber listening",
		slog.String("address", *addr),
		slog.String("endpoint", "/transcribe"),
	)

	if err := r.Run(*addr); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func transcribeHandler(logger *slog.Logger, text string, delay time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			c.String(http.StatusBadRequest, "Error getting audio file")
			return
		}

		file, err := header.Open()
		if err != nil {
			c.String(http.StatusInternalServerError, "Error opening audio file")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			c.String(http.StatusInternalServerError, "Error reading audio file")
			return
		}

		info, err := audio.Info(data)
		if err != nil {
			logger.Warn("Rejected upload", slog.String("filename", header.Filename), slog.String("error", err.Error()))
			c.String(http.StatusBadRequest, "Invalid WAV: %v", err)
			return
		}

		logger.Info("Transcription request",
			slog.String("filename", header.Filename),
			slog.Int("bytes", len(data)),
			slog.Float64("duration", info.Duration.Seconds()),
			slog.String("model", c.PostForm("model")),
			slog.String("language", c.PostForm("language")),
			slog.String("response_format", c.PostForm("response_format")),
		)

		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			return
		}

		if c.PostForm("response_format") == "json" {
			c.JSON(http.StatusOK, gin.H{"text": text})
			return
		}
		c.String(http.StatusOK, text)
	}
}
