package transcription

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClientDefaults(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("Expected error for empty endpoint")
	}

	c, err := NewClient(Config{Endpoint: "http://localhost"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if c.config.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", c.config.Timeout)
	}
	if c.config.MaxConcurrent != 10 {
		t.Errorf("Expected default max concurrent 10, got %d", c.config.MaxConcurrent)
	}
	if c.config.OutputFormat != "text" {
		t.Errorf("Expected default output format text, got %s", c.config.OutputFormat)
	}
	if c.config.Model != "whisper-1" {
		t.Errorf("Expected default model whisper-1, got %s", c.config.Model)
	}
}

func TestClientTranscribeText(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Expected bearer auth, got %q", r.Header.Get("Authorization"))
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		if r.FormValue("model") != "whisper-1" || r.FormValue("language") != "en" ||
			r.FormValue("response_format") != "text" {
			t.Errorf("Unexpected form fields: %v", r.MultipartForm.Value)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing file: %v", err)
			return
		}
		defer file.Close()

		if !regexp.MustCompile(`^audio_\d{6}\.wav$`).MatchString(header.Filename) {
			t.Errorf("Unexpected upload name %q", header.Filename)
		}

		data, _ := io.ReadAll(file)
		if len(data) != 2048 {
			t.Errorf("Expected 2048 bytes of audio, got %d", len(data))
		}

		io.WriteString(w, "patient intake notes\n")
	}))
	defer server.Close()

	c, err := NewClient(Config{Endpoint: server.URL, APIKey: "secret", Language: "en"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	text, err := c.Transcribe(context.Background(), make([]byte, 2048))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if text != "patient intake notes\n" {
		t.Errorf("Expected raw service text, got %q", text)
	}

	stats := c.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 || stats.SuccessRate != 100 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestClientTranscribeJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"hello"}`)
	}))
	defer server.Close()

	c, _ := NewClient(Config{Endpoint: server.URL, OutputFormat: "json"})

	text, err := c.Transcribe(context.Background(), make([]byte, 2048))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if text != "hello" {
		t.Errorf("Expected %q, got %q", "hello", text)
	}
}

func TestClientSingleAttemptOnError(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, _ := NewClient(Config{Endpoint: server.URL})

	_, err := c.Transcribe(context.Background(), make([]byte, 2048))
	if err == nil {
		t.Fatal("Expected error for 503 response")
	}

	if !strings.Contains(err.Error(), "HTTP error 503") {
		t.Errorf("Expected HTTP status in error, got %v", err)
	}

	if requests.Load() != 1 {
		t.Errorf("Expected exactly 1 request, got %d", requests.Load())
	}

	if stats := c.GetStats(); stats.FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", stats.FailedRequests)
	}
}

func TestClientCancelledWhileWaitingForSlot(t *testing.T) {
	c, _ := NewClient(Config{Endpoint: "http://127.0.0.1:1", MaxConcurrent: 1})
	c.semaphore <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Transcribe(ctx, make([]byte, 2048)); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
