package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KlinikX/aione/internal/audio"
	"github.com/KlinikX/aione/internal/protocol"
)

// ErrDisconnected is returned by Conn.ReadMessage when the client closed
// the connection
var ErrDisconnected = errors.New("client disconnected")

// Conn is one client connection. ReadMessage blocks until a message, a
// disconnect or an error. WriteMessage must be safe for concurrent use.
// Close must unblock a pending ReadMessage.
type Conn interface {
	ReadMessage() (protocol.Inbound, error)
	WriteMessage(msg protocol.Outbound) error
	Close() error
}

// Transcriber converts speech WAV to text
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// State is the lifecycle state of a session
type State int32

const (
	StateAccepted State = iota
	StateActive
	StateClosing
	StateClosed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// SessionConfig contains per-connection timing and format settings
type SessionConfig struct {
	KeepAliveInterval time.Duration // ping period
	ReceiveTimeout    time.Duration // polling tick while waiting for messages
	ProcessTimeout    time.Duration // bound on combine plus transcription per message
	Format            audio.Format  // encoding of inbound PCM
}

// DefaultSessionConfig returns 10s keep-alive, 5s receive tick and 16 kHz
// mono 16-bit input
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		KeepAliveInterval: 10 * time.Second,
		ReceiveTimeout:    5 * time.Second,
		ProcessTimeout:    60 * time.Second,
		Format:            audio.DefaultFormat,
	}
}

type readResult struct {
	msg protocol.Inbound
	err error
}

// Session serves one WebSocket connection: a keep-alive loop and a receive
// loop that frames audio, accumulates speech and returns transcriptions.
// The receive loop is the only goroutine that touches the accumulator.
type Session struct {
	ID         string
	RemoteAddr string
	StartTime  time.Time

	conn        Conn
	acc         Accumulator
	transcriber Transcriber
	config      SessionConfig
	logger      *slog.Logger
	observer    Observer

	state        atomic.Int32
	lastActivity atomic.Int64

	incoming chan readResult
	done     chan struct{}
	readerWG sync.WaitGroup

	// Statistics
	chunksReceived      atomic.Uint64
	chunksRejected      atomic.Uint64
	bytesReceived       atomic.Uint64
	bufferedChunks      atomic.Int64
	transcriptions      atomic.Uint64
	transcriptionErrors atomic.Uint64
	pingsSent           atomic.Uint64
}

// NewSession creates a session in the accepted state
func NewSession(id string, conn Conn, acc Accumulator, transcriber Transcriber,
	config SessionConfig, logger *slog.Logger) *Session {

	now := time.Now()
	s := &Session{
		ID:          id,
		StartTime:   now,
		conn:        conn,
		acc:         acc,
		transcriber: transcriber,
		config:      config,
		logger:      logger.With(slog.String("session_id", id)),
		observer:    noopObserver{},
		incoming:    make(chan readResult),
		done:        make(chan struct{}),
	}
	s.lastActivity.Store(now.UnixNano())
	return s
}

// SetObserver attaches an observer; call before Run
func (s *Session) SetObserver(o Observer) {
	if o != nil {
		s.observer = o
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run drives the session until the client disconnects, a transport error
// occurs or ctx is cancelled, then tears it down. The returned error is
// the transport or processing error that ended the session, if any.
func (s *Session) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateAccepted), int32(StateActive)) {
		return fmt.Errorf("session %s already started", s.ID)
	}

	s.logger.Info("Session active", slog.String("remote_addr", s.RemoteAddr))

	s.readerWG.Add(1)
	go s.readLoop()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		s.keepAlive(gctx)
		return nil
	})
	g.Go(func() error {
		// ending the receive loop stops the keep-alive
		defer cancel()
		return s.receiveLoop(gctx)
	})

	err := g.Wait()
	s.teardown(err)
	return err
}

// readLoop hands inbound messages to the receive loop until the first error
func (s *Session) readLoop() {
	defer s.readerWG.Done()

	for {
		msg, err := s.conn.ReadMessage()
		select {
		case s.incoming <- readResult{msg: msg, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// keepAlive sends a ping every KeepAliveInterval until ctx is cancelled or
// a send fails
func (s *Session) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteMessage(protocol.Ping()); err != nil {
				s.logger.Debug("Keep-alive stopped", slog.String("error", err.Error()))
				return
			}
			s.pingsSent.Add(1)
		}
	}
}

// receiveLoop waits for messages in ReceiveTimeout ticks. A disconnect or
// cancellation returns nil; transport and unexpected errors are returned.
func (s *Session) receiveLoop(ctx context.Context) error {
	timer := time.NewTimer(s.config.ReceiveTimeout)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.config.ReceiveTimeout)

		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			// polling tick, not an idle timeout
			continue

		case r := <-s.incoming:
			if r.err != nil {
				if errors.Is(r.err, ErrDisconnected) {
					s.logger.Info("Client disconnected")
					return nil
				}
				s.logger.Error("Failed to receive message", slog.String("error", r.err.Error()))
				return fmt.Errorf("receive failed: %w", r.err)
			}

			s.lastActivity.Store(time.Now().UnixNano())
			if err := s.handleMessage(ctx, r.msg); err != nil {
				s.logger.Error("Closing session after processing error", slog.String("error", err.Error()))
				return err
			}
		}
	}
}

// handleMessage processes one inbound message. Chunk, VAD and
// transcription failures are logged and swallowed; only a failed send or a
// panic is returned.
func (s *Session) handleMessage(ctx context.Context, msg protocol.Inbound) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing message: %v", r)
		}
	}()

	if !msg.HasAudio() {
		s.logger.Debug("Ignoring message without stream_bytes")
		return nil
	}

	pcm, err := msg.Audio()
	if err != nil {
		s.chunksRejected.Add(1)
		s.observer.ChunkRejected("invalid_encoding")
		s.logger.Warn("Skipping audio message", slog.String("error", err.Error()))
		return nil
	}

	chunk := audio.Frame(pcm, s.config.Format)
	s.chunksReceived.Add(1)
	s.bytesReceived.Add(uint64(len(pcm)))
	s.observer.ChunkReceived(len(pcm))

	// in-flight work finishes even if the session is being torn down
	procCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ProcessTimeout)
	defer cancel()

	speech, err := s.acc.Add(procCtx, chunk)
	s.bufferedChunks.Store(int64(s.acc.Len()))
	if err != nil {
		s.logger.Warn("Failed to combine audio", slog.String("error", err.Error()))
		return nil
	}

	if speech == nil {
		s.logger.Debug("No speech detected yet", slog.Int("chunks", s.acc.Len()))
		return nil
	}

	text, err := s.transcriber.Transcribe(procCtx, speech)
	if err != nil {
		s.transcriptionErrors.Add(1)
		s.logger.Error("Transcription failed",
			slog.Int("speech_bytes", len(speech)),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if text == "" {
		return nil
	}

	if err := s.conn.WriteMessage(protocol.Transcription(text)); err != nil {
		return fmt.Errorf("failed to send transcription: %w", err)
	}
	s.transcriptions.Add(1)

	s.logger.Debug("Transcription sent",
		slog.Int("speech_bytes", len(speech)),
		slog.Int("text_length", len(text)),
	)
	return nil
}

// teardown runs after both loops have returned
func (s *Session) teardown(cause error) {
	s.state.Store(int32(StateClosing))

	s.acc.Reset()
	s.bufferedChunks.Store(0)

	close(s.done)
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("Error closing connection", slog.String("error", err.Error()))
	}
	s.readerWG.Wait()

	s.state.Store(int32(StateClosed))

	attrs := []any{
		slog.Duration("duration", time.Since(s.StartTime)),
		slog.Uint64("chunks_received", s.chunksReceived.Load()),
		slog.Uint64("transcriptions", s.transcriptions.Load()),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	s.logger.Info("Session closed", attrs...)
}

// SessionInfo represents session information for monitoring APIs
type SessionInfo struct {
	ID                  string        `json:"id"`
	RemoteAddr          string        `json:"remote_addr"`
	State               string        `json:"state"`
	StartTime           time.Time     `json:"start_time"`
	LastActivity        time.Time     `json:"last_activity"`
	Duration            time.Duration `json:"duration"`
	ChunksReceived      uint64        `json:"chunks_received"`
	ChunksRejected      uint64        `json:"chunks_rejected"`
	BytesReceived       uint64        `json:"bytes_received"`
	BufferedChunks      int64         `json:"buffered_chunks"`
	Transcriptions      uint64        `json:"transcriptions"`
	TranscriptionErrors uint64        `json:"transcription_errors"`
	PingsSent           uint64        `json:"pings_sent"`
}

// GetSessionInfo returns a snapshot of session statistics
func (s *Session) GetSessionInfo() SessionInfo {
	return SessionInfo{
		ID:                  s.ID,
		RemoteAddr:          s.RemoteAddr,
		State:               s.State().String(),
		StartTime:           s.StartTime,
		LastActivity:        time.Unix(0, s.lastActivity.Load()),
		Duration:            time.Since(s.StartTime),
		ChunksReceived:      s.chunksReceived.Load(),
		ChunksRejected:      s.chunksRejected.Load(),
		BytesReceived:       s.bytesReceived.Load(),
		BufferedChunks:      s.bufferedChunks.Load(),
		Transcriptions:      s.transcriptions.Load(),
		TranscriptionErrors: s.transcriptionErrors.Load(),
		PingsSent:           s.pingsSent.Load(),
	}
}
