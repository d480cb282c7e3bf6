package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow adapts a ulule/limiter store to Allower. It counts per fixed period rather
// than per sliding window.
type FixedWindow struct {
	Store limiter.Store
}

// NewMemoryFixedWindow keeps counters in process memory. Used when Redis is not configured.
func NewMemoryFixedWindow(prefix string) FixedWindow {
	return FixedWindow{Store: memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix})}
}

// NewRedisFixedWindow keeps counters in Redis through the ulule redis driver.
func NewRedisFixedWindow(client *redis.Client, prefix string) (FixedWindow, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return FixedWindow{}, err
	}
	return FixedWindow{Store: store}, nil
}

// Allow implements Allower.
func (f FixedWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if f.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lim := limiter.New(f.Store, limiter.Rate{Period: window, Limit: int64(max)})
	res, err := lim.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}
