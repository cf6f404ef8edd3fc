package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore keeps users in a map and evicts expired tokens on a timer
type MemoryStore struct {
	users  map[string]User
	mu     sync.RWMutex
	ttl    time.Duration
	logger *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMemoryStore creates an in-memory store. A sweep runs every
// sweepInterval; zero disables it.
func NewMemoryStore(ttl, sweepInterval time.Duration, logger *slog.Logger) *MemoryStore {
	s := &MemoryStore{
		users:  make(map[string]User),
		ttl:    ttl,
		logger: logger,
		stop:   make(chan struct{}),
	}

	if sweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop(sweepInterval)
	}

	return s
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(time.Now()); n > 0 {
				s.logger.Debug("Evicted expired tokens", slog.Int("count", n))
			}
		case <-s.stop:
			return
		}
	}
}

// Sweep removes every user whose token expired before now and returns
// how many were removed
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, u := range s.users {
		if u.Expired(now) {
			delete(s.users, token)
			removed++
		}
	}
	return removed
}

// UserByToken implements UserStore
func (s *MemoryStore) UserByToken(_ context.Context, token string) (*User, error) {
	s.mu.RLock()
	u, ok := s.users[token]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if u.Expired(time.Now()) {
		return nil, ErrExpired
	}
	return &u, nil
}

// PutUser implements UserStore
func (s *MemoryStore) PutUser(_ context.Context, user User) error {
	if user.Token == "" {
		return fmt.Errorf("token required")
	}
	stamp(&user, s.ttl, time.Now())

	s.mu.Lock()
	s.users[user.Token] = user
	s.mu.Unlock()
	return nil
}

// RemoveToken implements UserStore
func (s *MemoryStore) RemoveToken(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.users, token)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored tokens, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Close stops the sweep goroutine
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}
