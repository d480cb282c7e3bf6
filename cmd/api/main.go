package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/backend-proposal/internal/agent"
	"github.com/noah-isme/backend-proposal/internal/app"
	"github.com/noah-isme/backend-proposal/internal/auth"
	"github.com/noah-isme/backend-proposal/internal/catalog"
	"github.com/noah-isme/backend-proposal/internal/common"
	"github.com/noah-isme/backend-proposal/internal/config"
	"github.com/noah-isme/backend-proposal/internal/customer"
	"github.com/noah-isme/backend-proposal/internal/health"
	"github.com/noah-isme/backend-proposal/internal/jobs"
	"github.com/noah-isme/backend-proposal/internal/obs"
	"github.com/noah-isme/backend-proposal/internal/proposal"
	"github.com/noah-isme/backend-proposal/internal/ratelimit"
	"github.com/noah-isme/backend-proposal/internal/security"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// amounts are exact; emit them as JSON numbers rather than strings
	decimal.MarshalJSONWithoutQuotes = true

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(obs.LogConfig{Format: logFormat, Level: logLevel, Service: "backend-proposal"}).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "proposal")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLER_RATIO", 0.1)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:    "backend-proposal",
			ServiceVersion: version,
			Endpoint:       envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:       envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio:  sampling,
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if envBool("DB_AUTO_MIGRATE", true) {
		if err := app.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	pool, err := app.OpenPostgres(startCtx, cfg.DatabaseURL, app.PostgresOptions{
		ApplicationName: "backend-proposal",
		MaxConns:        int32(envInt("DB_MAX_CONNS", 0)),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()

	var redisMeters metric.MeterProvider
	if metricsEnabled {
		redisMeters = otel.GetMeterProvider()
	}
	redisClient, err := app.OpenRedis(startCtx, cfg.RedisURL, redisMeters)
	if err != nil && redisClient == nil {
		logger.Fatal().Err(err).Msg("open redis")
	} else if err != nil {
		logger.Error().Err(err).Msg("instrument redis")
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	} else {
		logger.Warn().Msg("REDIS_URL not set; quote cache, idempotency keys and shared rate limits disabled")
	}

	initial, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("load price catalog")
	}
	for _, w := range initial.Warnings() {
		logger.Warn().Err(w).Str("version", initial.Version()).Msg("catalog integrity gap")
	}
	catalogs := catalog.NewStore(initial)
	reloader := catalog.NewReloader(catalog.ReloaderConfig{
		Store:    catalogs,
		Path:     cfg.CatalogPath,
		Interval: cfg.CatalogReloadInterval,
		Logger:   logger.With().Str("component", "catalog").Logger(),
	})
	go reloader.Run(ctx)
	go reloadOnHangup(ctx, reloader, logger)

	roster, created, err := agent.LoadOrCreate(cfg.AgentRosterPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.AgentRosterPath).Msg("load agent roster")
	}
	if created {
		logger.Warn().Str("path", cfg.AgentRosterPath).Msg("agent roster missing; wrote sample roster")
	}
	logger.Info().Int("agents", roster.Len()).Msg("agent roster loaded")

	authService, err := auth.NewService(auth.Config{
		Directory:      roster,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
		Issuer:         cfg.JWTIssuer,
		Audience:       cfg.JWTAudience,
		ClockSkew:      envDurationMillis("JWT_CLOCK_SKEW_MS", 30000),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{Service: authService}
	authMiddleware := auth.Middleware{Service: authService}

	customerService := customer.NewService(customer.NewPGStore(pool), logger.With().Str("component", "customer").Logger())
	customerHandler := &customer.Handler{Service: customerService}

	var recorder proposal.Recorder = proposal.CustomerRecorder{Customers: customerService}
	if cfg.ProposalRecording == config.RecordingAsync {
		redisOpt, err := app.TaskRedisOpt(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("configure task queue")
		}
		taskClient := asynq.NewClient(redisOpt)
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close task client")
			}
		}()
		recorder = jobs.Enqueuer{
			Client:    taskClient,
			Customers: customerService,
			Queue:     envOrDefault("WORKER_QUEUE", jobs.DefaultQueue),
			MaxRetry:  envInt("WORKER_MAX_RETRY", 5),
			Retention: cfg.IdempotencyTTL,
		}
	}
	proposalService, err := proposal.NewService(proposal.Config{
		Catalogs:      catalogs,
		Cache:         proposal.NewQuoteCache(redisClient, cfg.ProposalCacheTTL),
		Recorder:      recorder,
		RecordingMode: cfg.ProposalRecording,
		Logger:        logger.With().Str("component", "proposal").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise proposal service")
	}
	proposalHandler := &proposal.Handler{
		Service:  proposalService,
		Validate: customer.NewValidator(),
		Logger:   logger,
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	loginLimit := ratelimit.Handler{
		Limiter: app.LoginLimiter(redisClient),
		Config: ratelimit.Config{
			Key:    ratelimit.ClientIPKey("login:"),
			Window: cfg.LoginRateLimitWindow,
			Max:    cfg.LoginRateLimitMax,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("login rate limiter unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.Headers{
		Enable:     cfg.SecurityHeaders,
		EnableHSTS: envBool("SECURITY_HSTS", cfg.AppEnv == "production"),
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:       app.Checker{DB: pool, Redis: redisClient, RequireRedis: cfg.ProposalRecording == config.RecordingAsync},
		DBTimeout:     envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout:  envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		CatalogLoaded: catalogs.Loaded,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/auth", func(a chi.Router) {
			a.With(loginLimit.Middleware).Post("/login", authHandler.Login)
			a.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Group(func(p chi.Router) {
			p.Use(authMiddleware.RequireAuth)
			p.Get("/catalog", proposalHandler.Catalog)
			p.Post("/proposals/quote", proposalHandler.Quote)
			p.Post("/proposals/export", proposalHandler.Export)

			p.Route("/customers", func(c chi.Router) {
				c.Get("/", customerHandler.List)
				c.With(idem.Middleware).Post("/", customerHandler.Create)
				c.Route("/{id}", func(one chi.Router) {
					one.Get("/", customerHandler.Get)
					one.Patch("/", customerHandler.Update)
					one.Delete("/", customerHandler.Delete)
					one.Get("/proposals", customerHandler.Proposals)
					one.With(idem.Middleware).Post("/proposals", proposalHandler.Save)
				})
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		grace := envDurationMillis("SHUTDOWN_GRACE_MS", 2000)
		logger.Info().Dur("grace", grace).Msg("draining before shutdown")
		time.Sleep(grace)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown")
		}
	}()

	logger.Info().
		Str("addr", srv.Addr).
		Str("catalog_version", initial.Version()).
		Str("recording", cfg.ProposalRecording).
		Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

// reloadOnHangup re-reads the catalog file on SIGHUP.
func reloadOnHangup(ctx context.Context, reloader *catalog.Reloader, logger zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if changed, err := reloader.ReloadOnce(); err == nil {
				logger.Info().Bool("changed", changed).Msg("catalog reload requested")
			}
		}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
