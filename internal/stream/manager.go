package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrManagerStopped is returned by Serve after Stop
var ErrManagerStopped = errors.New("session manager stopped")

// Observer receives session lifecycle and chunk events
type Observer interface {
	SessionStarted()
	SessionEnded(duration time.Duration)
	ChunkReceived(bytes int)
	ChunkRejected(reason string)
}

type noopObserver struct{}

func (noopObserver) SessionStarted()            {}
func (noopObserver) SessionEnded(time.Duration) {}
func (noopObserver) ChunkReceived(int)          {}
func (noopObserver) ChunkRejected(string)       {}

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	Session  SessionConfig
	Strategy string // StrategyIncremental or StrategyFull
}

// Manager registers live sessions for monitoring and closes them on
// shutdown. Sessions share only the combiner and transcriber.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	config   ManagerConfig

	combiner    *Combiner
	transcriber Transcriber
	observer    Observer

	// Lifecycle statistics
	sessionsCreated atomic.Uint64
	sessionsClosed  atomic.Uint64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool // guarded by mu
}

// ManagerStats represents manager statistics
type ManagerStats struct {
	ActiveSessions  int    `json:"active_sessions"`
	SessionsCreated uint64 `json:"sessions_created"`
	SessionsClosed  uint64 `json:"sessions_closed"`
	Strategy        string `json:"strategy"`
}

// NewManager creates a new session manager
func NewManager(logger *slog.Logger, config ManagerConfig, combiner *Combiner, transcriber Transcriber) (*Manager, error) {
	if combiner == nil {
		return nil, fmt.Errorf("combiner cannot be nil")
	}

	if transcriber == nil {
		return nil, fmt.Errorf("transcriber cannot be nil")
	}

	if config.Strategy == "" {
		config.Strategy = StrategyIncremental
	}

	if _, err := NewAccumulator(config.Strategy, combiner); err != nil {
		return nil, err
	}

	if config.Session.KeepAliveInterval <= 0 || config.Session.ReceiveTimeout <= 0 {
		return nil, fmt.Errorf("keep-alive interval and receive timeout must be positive")
	}

	if config.Session.ProcessTimeout <= 0 {
		config.Session.ProcessTimeout = DefaultSessionConfig().ProcessTimeout
	}

	if err := config.Session.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid inbound audio format: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		sessions:    make(map[string]*Session),
		logger:      logger,
		config:      config,
		combiner:    combiner,
		transcriber: transcriber,
		observer:    noopObserver{},
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// SetObserver attaches an observer; call before serving connections
func (m *Manager) SetObserver(o Observer) {
	if o != nil {
		m.observer = o
	}
}

// Serve runs a new session on conn and blocks until it is closed. The
// session ends when ctx is cancelled, when Stop is called or when the
// client goes away.
func (m *Manager) Serve(ctx context.Context, conn Conn, remoteAddr string) error {
	// Cannot fail: the strategy was validated in NewManager
	acc, _ := NewAccumulator(m.config.Strategy, m.combiner)

	session := NewSession(uuid.NewString(), conn, acc, m.transcriber, m.config.Session, m.logger)
	session.RemoteAddr = remoteAddr
	session.SetObserver(m.observer)

	if err := m.register(session); err != nil {
		conn.Close()
		return err
	}
	defer m.unregister(session)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	return session.Run(sessionCtx)
}

func (m *Manager) register(s *Session) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	m.sessions[s.ID] = s
	m.wg.Add(1)
	count := len(m.sessions)
	m.mu.Unlock()

	m.sessionsCreated.Add(1)
	m.observer.SessionStarted()

	m.logger.Info("Session created",
		slog.String("session_id", s.ID),
		slog.String("remote_addr", s.RemoteAddr),
		slog.Int("active_sessions", count),
	)
	return nil
}

func (m *Manager) unregister(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	count := len(m.sessions)
	m.mu.Unlock()

	m.sessionsClosed.Add(1)
	m.observer.SessionEnded(time.Since(s.StartTime))
	m.wg.Done()

	m.logger.Info("Session removed",
		slog.String("session_id", s.ID),
		slog.Int("active_sessions", count),
	)
}

// GetSession returns a live session by ID
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// GetAllSessions returns all live sessions
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

// GetActiveSessionCount returns the number of live sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stats returns current manager statistics
func (m *Manager) Stats() ManagerStats {
	return ManagerStats{
		ActiveSessions:  m.GetActiveSessionCount(),
		SessionsCreated: m.sessionsCreated.Load(),
		SessionsClosed:  m.sessionsClosed.Load(),
		Strategy:        m.config.Strategy,
	}
}

// Stop closes every live session and waits for them to finish
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	m.logger.Info("Stopping session manager...",
		slog.Int("active_sessions", m.GetActiveSessionCount()),
	)

	m.cancel()
	m.wg.Wait()

	m.logger.Info("Session manager stopped")
}
