// Package app holds the connection wiring shared by the API, the worker and the tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/backend-proposal/internal/customer"
	"github.com/noah-isme/backend-proposal/internal/obs"
	"github.com/noah-isme/backend-proposal/internal/ratelimit"
)

// PostgresOptions tunes the pgx pool.
type PostgresOptions struct {
	ApplicationName string
	MaxConns        int32
	MinConns        int32
}

// OpenPostgres connects a traced pgx pool and pings it.
func OpenPostgres(ctx context.Context, url string, opts PostgresOptions) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	if opts.ApplicationName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = opts.ApplicationName
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// OpenRedis returns nil, nil when url is empty: Redis is optional for the synchronous API.
// Client metrics are recorded through meters when it is non-nil.
func OpenRedis(ctx context.Context, url string, meters metric.MeterProvider) (*redis.Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	var instrumentErr error
	if err := redisotel.InstrumentTracing(client); err != nil {
		instrumentErr = fmt.Errorf("instrument redis tracing: %w", err)
	}
	if meters != nil {
		if err := redisotel.InstrumentMetrics(client, redisotel.WithMeterProvider(meters)); err != nil {
			instrumentErr = errors.Join(instrumentErr, fmt.Errorf("instrument redis metrics: %w", err))
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, instrumentErr
}

// TaskRedisOpt converts a redis URL into asynq connection options.
func TaskRedisOpt(url string) (asynq.RedisConnOpt, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("REDIS_URL is required for the task queue")
	}
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("parse task queue redis url: %w", err)
	}
	return opt, nil
}

// Checker probes Postgres and Redis for readiness. A nil Redis is healthy unless
// RequireRedis is set.
type Checker struct {
	DB           *pgxpool.Pool
	Redis        *redis.Client
	RequireRedis bool
}

// PingDB implements health.Checker.
func (c Checker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.DB == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.DB.Ping(ctx)
}

// PingRedis implements health.Checker.
func (c Checker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.Redis == nil {
		if c.RequireRedis {
			return errors.New("redis not configured")
		}
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Redis.Ping(ctx).Err()
}

// LoginLimiter picks the Redis sliding window when Redis is available and an
// in-process fixed window otherwise.
func LoginLimiter(rdb *redis.Client) ratelimit.Allower {
	if rdb != nil {
		return ratelimit.SlidingWindow{Client: rdb, Prefix: "rl:login:"}
	}
	return ratelimit.NewMemoryFixedWindow("rl:login")
}

// RunMigrations applies the customer schema.
func RunMigrations(dbURL string) error {
	return customer.MigrateUp(dbURL)
}
