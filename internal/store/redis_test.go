package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	s, err := NewRedisStore(context.Background(), Config{
		Backend:   "redis",
		RedisAddr: mr.Addr(),
		TTL:       ttl,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, mr
}

func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedis(t, time.Hour)

	require.NoError(t, s.PutUser(ctx, User{Email: "dr@example.com", Name: "Dr Who", Token: "tok-1"}))

	assert.True(t, mr.Exists("aione:user:tok-1"))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL("aione:user:tok-1").Seconds(), 5)

	u, err := s.UserByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "dr@example.com", u.Email)
	assert.Equal(t, "Dr Who", u.Name)

	_, err = s.UserByToken(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.RemoveToken(ctx, "tok-1"))
	_, err = s.UserByToken(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreTTLEviction(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedis(t, time.Minute)

	require.NoError(t, s.PutUser(ctx, User{Email: "a@example.com", Token: "tok"}))

	mr.FastForward(2 * time.Minute)

	_, err := s.UserByToken(ctx, "tok")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreExpiredOnPut(t *testing.T) {
	s, _ := newTestRedis(t, time.Hour)

	past := time.Now().Add(-time.Second)
	err := s.PutUser(context.Background(), User{Email: "a@example.com", Token: "tok", ExpiresAt: &past})
	assert.ErrorIs(t, err, ErrExpired)
}

func TestRedisStoreCorruptValue(t *testing.T) {
	s, mr := newTestRedis(t, time.Hour)

	require.NoError(t, mr.Set("aione:user:bad", "{not json"))

	_, err := s.UserByToken(context.Background(), "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), Config{RedisAddr: addr})
	assert.Error(t, err)

	_, err = NewRedisStore(context.Background(), Config{})
	assert.Error(t, err)
}
