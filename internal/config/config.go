package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	AccessTokenTTL     time.Duration
	CORSAllowedOrigins []string

	CatalogPath           string
	CatalogReloadInterval time.Duration
	AgentRosterPath       string

	ProposalCacheTTL  time.Duration
	ProposalRecording string
	IdempotencyTTL    time.Duration

	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration
	BodyLimitBytes       int64
	SecurityHeaders      bool

	WorkerConcurrency int
}

// Recording modes for saved proposals.
const (
	RecordingSync  = "sync"
	RecordingAsync = "async"
)

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:                valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                  valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:           k.String("DATABASE_URL"),
		RedisURL:              strings.TrimSpace(k.String("REDIS_URL")),
		JWTSecret:             k.String("JWT_SECRET"),
		JWTIssuer:             valueOrDefault(k.String("JWT_ISSUER"), "backend-proposal"),
		JWTAudience:           valueOrDefault(k.String("JWT_AUDIENCE"), "proposal-agents"),
		AccessTokenTTL:        parseDuration(k.String("ACCESS_TOKEN_TTL"), "8h"),
		CORSAllowedOrigins:    splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CatalogPath:           strings.TrimSpace(k.String("CATALOG_PATH")),
		CatalogReloadInterval: parseDuration(k.String("CATALOG_RELOAD_INTERVAL"), "0s"),
		AgentRosterPath:       valueOrDefault(k.String("AGENT_ROSTER_PATH"), "authorized_agents.xlsx"),
		ProposalCacheTTL:      parseDuration(k.String("PROPOSAL_CACHE_TTL"), "10m"),
		ProposalRecording:     strings.ToLower(valueOrDefault(k.String("PROPOSAL_RECORDING"), RecordingSync)),
		IdempotencyTTL:        parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		LoginRateLimitMax:     parseInt(k.String("LOGIN_RATE_LIMIT_MAX"), 10),
		LoginRateLimitWindow:  parseDuration(k.String("LOGIN_RATE_LIMIT_WINDOW"), "1m"),
		BodyLimitBytes:        int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeaders:       parseBoolDefault(k.String("SECURITY_HEADERS"), true),
		WorkerConcurrency:     parseInt(k.String("WORKER_CONCURRENCY"), 5),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	switch cfg.ProposalRecording {
	case RecordingSync:
	case RecordingAsync:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required when PROPOSAL_RECORDING=async")
		}
	default:
		return nil, fmt.Errorf("PROPOSAL_RECORDING must be %q or %q", RecordingSync, RecordingAsync)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
