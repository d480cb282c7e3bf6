package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSlidingWindowAllow(t *testing.T) {
	l := SlidingWindow{Client: newRedis(t), Prefix: "test:"}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, remaining, _, err := l.Allow(ctx, "key", 2*time.Second, 2)
		require.NoError(t, err)
		require.True(t, allowed, "request %d", i)
		require.Equal(t, 1-i, remaining)
	}
	allowed, remaining, _, err := l.Allow(ctx, "key", 2*time.Second, 2)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)

	allowed, _, _, err = l.Allow(ctx, "other", 2*time.Second, 2)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestFixedWindowMemory(t *testing.T) {
	l := NewMemoryFixedWindow("test")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, _, err := l.Allow(ctx, "1.2.3.4", time.Minute, 3)
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, remaining, reset, err := l.Allow(ctx, "1.2.3.4", time.Minute, 3)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)
	require.True(t, reset.After(time.Now()))
}

func TestFixedWindowRedis(t *testing.T) {
	l, err := NewRedisFixedWindow(newRedis(t), "test")
	require.NoError(t, err)

	allowed, remaining, _, err := l.Allow(context.Background(), "k", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 1, remaining)
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	h := Handler{
		Limiter: SlidingWindow{Client: newRedis(t), Prefix: "rl:"},
		Config:  Config{Key: ClientIPKey("login:"), Window: time.Minute, Max: 1},
	}
	next := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rr := httptest.NewRecorder()
	next.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	rr = httptest.NewRecorder()
	next.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
	require.Contains(t, rr.Body.String(), "RATE_LIMITED")
}

type failing struct{}

func (failing) Allow(context.Context, string, time.Duration, int) (bool, int, time.Time, error) {
	return false, 0, time.Time{}, errors.New("redis down")
}

func TestMiddlewareFailsOpen(t *testing.T) {
	var got error
	h := Handler{
		Limiter: failing{},
		Config:  Config{Key: ClientIPKey(""), Window: time.Minute, Max: 1},
		OnError: func(err error) { got = err },
	}
	rr := httptest.NewRecorder()
	h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Error(t, got)
}
