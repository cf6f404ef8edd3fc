package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrNotFound is returned when no user holds the token
	ErrNotFound = errors.New("user not found")
	// ErrExpired is returned when the token is past its expiry
	ErrExpired = errors.New("token expired")
)

// User is an account identified by its bearer token
type User struct {
	Email     string     `json:"email"`
	Name      string     `json:"name,omitempty"`
	Token     string     `json:"bearer_token"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token has passed its expiry at now
func (u *User) Expired(now time.Time) bool {
	return u.ExpiresAt != nil && now.After(*u.ExpiresAt)
}

// UserStore resolves bearer tokens to users
type UserStore interface {
	UserByToken(ctx context.Context, token string) (*User, error)
	PutUser(ctx context.Context, user User) error
	RemoveToken(ctx context.Context, token string) error
	Close() error
}

// Config selects and configures a store backend
type Config struct {
	Backend       string // memory or redis
	TTL           time.Duration
	SweepInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// New builds the configured backend
func New(ctx context.Context, cfg Config, logger *slog.Logger) (UserStore, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryStore(cfg.TTL, cfg.SweepInterval, logger), nil
	case "redis":
		return NewRedisStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// NewToken returns 32 random bytes hex encoded
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Provision writes users to s, issuing a NewToken to any user without one.
// It returns the users whose tokens were issued.
func Provision(ctx context.Context, s UserStore, users []User) ([]User, error) {
	var issued []User
	for _, u := range users {
		fresh := u.Token == ""
		if fresh {
			token, err := NewToken()
			if err != nil {
				return issued, err
			}
			u.Token = token
		}

		if err := s.PutUser(ctx, u); err != nil {
			return issued, fmt.Errorf("failed to provision user %s: %w", u.Email, err)
		}

		if fresh {
			issued = append(issued, u)
		}
	}
	return issued, nil
}

// stamp fills CreatedAt and, when ttl is positive and no expiry is set,
// ExpiresAt
func stamp(u *User, ttl time.Duration, now time.Time) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.ExpiresAt == nil && ttl > 0 {
		exp := now.Add(ttl)
		u.ExpiresAt = &exp
	}
}
