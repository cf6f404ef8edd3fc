package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionDuration prometheus.Histogram

	// Chunk metrics
	ChunksReceived prometheus.Counter
	ChunkSize      prometheus.Histogram
	ChunksRejected *prometheus.CounterVec

	// VAD metrics
	VADSegmentations  *prometheus.CounterVec
	VADSpeechDuration prometheus.Histogram
	VADProcessingTime prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram

	// Completion metrics
	CompletionRequests *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aione_active_sessions",
			Help: "Current number of open audio sessions",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "aione_sessions_started_total",
			Help: "Total number of audio sessions started",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aione_session_duration_seconds",
			Help:    "Duration of audio sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		// Chunk metrics
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "aione_audio_chunks_received_total",
			Help: "Total number of audio chunks received",
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aione_audio_chunk_size_bytes",
			Help:    "Size of received PCM chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10), // 1KB to ~512KB
		}),
		ChunksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aione_audio_chunks_rejected_total",
			Help: "Total number of audio messages rejected",
		}, []string{"reason"}),

		// VAD metrics
		VADSegmentations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aione_vad_segmentations_total",
			Help: "Total number of VAD runs by outcome",
		}, []string{"outcome"}),
		VADSpeechDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aione_vad_speech_duration_seconds",
			Help:    "Speech retained per VAD run",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to 32s
		}),
		VADProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aione_vad_processing_duration_seconds",
			Help:    "Time spent in VAD per chunk",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aione_transcription_requests_total",
			Help: "Total number of transcription requests by result",
		}, []string{"result"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aione_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),

		// Completion metrics
		CompletionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aione_completion_requests_total",
			Help: "Total number of LLM completion requests",
		}, []string{"mode", "result"}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "http_status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// SessionStarted records a new session
func (m *Metrics) SessionStarted() {
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// SessionEnded records a closed session and its lifetime
func (m *Metrics) SessionEnded(duration time.Duration) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(duration.Seconds())
}

// ChunkReceived records an accepted audio chunk
func (m *Metrics) ChunkReceived(bytes int) {
	m.ChunksReceived.Inc()
	m.ChunkSize.Observe(float64(bytes))
}

// ChunkRejected records a rejected audio message
func (m *Metrics) ChunkRejected(reason string) {
	m.ChunksRejected.WithLabelValues(reason).Inc()
}

// RecordVAD records one segmentation run
func (m *Metrics) RecordVAD(outcome string, speechSeconds float64, elapsed time.Duration) {
	m.VADSegmentations.WithLabelValues(outcome).Inc()
	m.VADProcessingTime.Observe(elapsed.Seconds())
	if speechSeconds > 0 {
		m.VADSpeechDuration.Observe(speechSeconds)
	}
}

// RecordTranscription records a transcription request
func (m *Metrics) RecordTranscription(success bool, elapsed time.Duration) {
	m.TranscriptionRequests.WithLabelValues(result(success)).Inc()
	m.TranscriptionDuration.Observe(elapsed.Seconds())
}

// RecordCompletion records an LLM completion request
func (m *Metrics) RecordCompletion(mode string, success bool) {
	m.CompletionRequests.WithLabelValues(mode, result(success)).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPUpgrade counts a protocol switch. The connection lifetime is
// a session, not a request, so no duration is observed.
func (m *Metrics) RecordHTTPUpgrade(method, endpoint string) {
	m.HTTPRequests.WithLabelValues(method, endpoint, "101").Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
