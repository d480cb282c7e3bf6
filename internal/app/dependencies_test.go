package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-proposal/internal/ratelimit"
)

func TestOpenRedisOptional(t *testing.T) {
	client, err := OpenRedis(context.Background(), "  ", nil)
	require.NoError(t, err)
	require.Nil(t, client)

	_, err = OpenRedis(context.Background(), "not a url", nil)
	require.Error(t, err)
}

func TestOpenRedisAndChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0", nil)
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	c := Checker{Redis: client}
	require.NoError(t, c.PingRedis(context.Background(), time.Second))
	require.Error(t, c.PingDB(context.Background(), time.Second))

	mr.Close()
	require.Error(t, c.PingRedis(context.Background(), 200*time.Millisecond))
}

func TestCheckerWithoutRedis(t *testing.T) {
	require.NoError(t, Checker{}.PingRedis(context.Background(), time.Second))
	require.Error(t, Checker{RequireRedis: true}.PingRedis(context.Background(), time.Second))
}

func TestLoginLimiterSelection(t *testing.T) {
	require.IsType(t, ratelimit.FixedWindow{}, LoginLimiter(nil))

	mr := miniredis.RunT(t)
	client, err := OpenRedis(context.Background(), "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	lim := LoginLimiter(client)
	require.IsType(t, ratelimit.SlidingWindow{}, lim)
	allowed, _, _, err := lim.Allow(context.Background(), "10.0.0.1", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, _, _, err = lim.Allow(context.Background(), "10.0.0.1", time.Minute, 1)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestTaskRedisOpt(t *testing.T) {
	_, err := TaskRedisOpt("")
	require.Error(t, err)

	opt, err := TaskRedisOpt("redis://localhost:6379/2")
	require.NoError(t, err)
	clientOpt, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok)
	require.Equal(t, "localhost:6379", clientOpt.Addr)
	require.Equal(t, 2, clientOpt.DB)
}
