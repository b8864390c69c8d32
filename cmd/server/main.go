package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/HanTheDev/phish-guard/internal/admin"
	"github.com/HanTheDev/phish-guard/internal/analyzer"
	"github.com/HanTheDev/phish-guard/internal/api"
	"github.com/HanTheDev/phish-guard/internal/cache"
	"github.com/HanTheDev/phish-guard/internal/config"
	"github.com/HanTheDev/phish-guard/internal/db"
	"github.com/HanTheDev/phish-guard/internal/llm"
	"github.com/HanTheDev/phish-guard/internal/ratelimit"
	"github.com/HanTheDev/phish-guard/internal/rules"
	"github.com/HanTheDev/phish-guard/internal/store"
	"github.com/HanTheDev/phish-guard/internal/telemetry"
)

const service = "phish-guard"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.InitLogger(service, cfg.LogLevel, cfg.LogJSON)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, service, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
	}
	defer shutdownTelemetry(context.Background())

	deps := map[string]api.Pinger{}

	var redisStore *store.Redis
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedis(cfg.RedisURL, "phishguard:")
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		defer redisStore.Close()
		deps["redis"] = redisStore
	}

	var database *db.DB
	if cfg.DatabaseURL != "" && (cfg.CacheBackend == config.CacheAuto || cfg.CacheBackend == config.CachePostgres) {
		database, err = openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			if cfg.CacheBackend == config.CachePostgres {
				return err
			}
			logger.Warn("postgres unavailable, falling back", "error", err)
		} else {
			defer database.Close()
			deps["postgres"] = database
		}
	}

	resultCache := openCache(cfg, database, redisStore, logger.With("component", "cache"))
	limiter := openLimiter(cfg, redisStore)

	if cfg.OpenAIKey == "" && cfg.OpenAIBaseURL == "" {
		logger.Warn("OPENAI_API_KEY is not set, analysis requests will fail")
	}
	classifier := llm.NewOpenAIClassifier(cfg.LLM())

	metrics := telemetry.NewMetrics()
	a := analyzer.New(limiter, resultCache, rules.New(), classifier, metrics, logger.With("component", "analyzer"))
	handler := api.NewHandler(a, metrics, logger.With("component", "api"))

	var extra []func(*mux.Router)
	if cfg.AdminEnabled() {
		adminHandler := admin.NewAdminHandler(resultCache, cfg.AdminAPIKey, cfg.JWTSecret, logger.With("component", "admin"))
		extra = append(extra, adminHandler.RegisterRoutes)
	}
	router := api.NewRouter(handler, deps, logger, extra...)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	policy := limiter.Policy()
	logger.Info("server starting",
		"port", cfg.ServerPort,
		"env", cfg.AppEnv,
		"cache", resultCache.Enabled(),
		"rate_limit", policy.Limit,
		"dev_mode", policy.DevMode,
		"admin", cfg.AdminEnabled(),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

func openDatabase(ctx context.Context, url string) (*db.DB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	database, err := db.NewDB(connectCtx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func openCache(cfg *config.Config, database *db.DB, redisStore *store.Redis, logger *slog.Logger) *cache.ResultCache {
	switch cfg.CacheBackend {
	case config.CacheNone:
		return cache.Disabled()
	case config.CachePostgres:
		return cache.New(cache.NewPostgresBackend(database), logger)
	case config.CacheRedis:
		return cache.New(cache.NewKVBackend(redisStore), logger)
	case config.CacheMemory:
		return cache.New(cache.NewKVBackend(store.NewMemory()), logger)
	}

	switch {
	case database != nil:
		return cache.New(cache.NewPostgresBackend(database), logger)
	case redisStore != nil:
		return cache.New(cache.NewKVBackend(redisStore), logger)
	default:
		return cache.New(cache.NewKVBackend(store.NewMemory()), logger)
	}
}

// openLimiter shares redisStore's client, so closing redisStore is enough.
func openLimiter(cfg *config.Config, redisStore *store.Redis) *ratelimit.RateLimiter {
	policy := cfg.RateLimitPolicy()
	if cfg.RateLimitBackend == config.LimiterRedis {
		return ratelimit.NewRateLimiter(ratelimit.NewRedisBackendFromClient(redisStore.Client()), policy)
	}
	return ratelimit.NewRateLimiter(ratelimit.NewKVBackend(store.NewMemory()), policy)
}
