package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps users as JSON under prefix+token with a Redis TTL
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore connects and pings the server
func NewRedisStore(ctx context.Context, cfg Config) (*RedisStore, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "aione:user:"
	}

	return &RedisStore{
		client: client,
		ttl:    cfg.TTL,
		prefix: prefix,
	}, nil
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

// UserByToken implements UserStore
func (s *RedisStore) UserByToken(ctx context.Context, token string) (*User, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}

	if u.Expired(time.Now()) {
		_ = s.RemoveToken(ctx, token)
		return nil, ErrExpired
	}

	return &u, nil
}

// PutUser implements UserStore. The key expires with the token.
func (s *RedisStore) PutUser(ctx context.Context, user User) error {
	if user.Token == "" {
		return fmt.Errorf("token required")
	}
	now := time.Now()
	stamp(&user, s.ttl, now)

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	var expiry time.Duration
	if user.ExpiresAt != nil {
		expiry = user.ExpiresAt.Sub(now)
		if expiry <= 0 {
			return ErrExpired
		}
	}

	if err := s.client.Set(ctx, s.key(user.Token), data, expiry).Err(); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}

// RemoveToken implements UserStore
func (s *RedisStore) RemoveToken(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
