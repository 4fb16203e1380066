package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazixroland-ai/tiktoklive/internal/adapter/httpserver"
	"github.com/hazixroland-ai/tiktoklive/internal/adapter/metrics"
	"github.com/hazixroland-ai/tiktoklive/internal/adapter/postgres"
	"github.com/hazixroland-ai/tiktoklive/internal/adapter/redis"
	"github.com/hazixroland-ai/tiktoklive/internal/adapter/webcast"
	"github.com/hazixroland-ai/tiktoklive/internal/app"
	"github.com/hazixroland-ai/tiktoklive/internal/broadcast"
	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/hazixroland-ai/tiktoklive/internal/live"
	"github.com/hazixroland-ai/tiktoklive/internal/platform/config"
	"github.com/hazixroland-ai/tiktoklive/internal/platform/crypto"
	"github.com/hazixroland-ai/tiktoklive/internal/platform/logging"
	"github.com/hazixroland-ai/tiktoklive/internal/platform/version"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

const (
	startupTimeout   = 30 * time.Second
	shutdownTimeout  = 10 * time.Second
	evictionInterval = time.Minute
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(ctx context.Context, cfg *config.Config, m *metrics.DBMetrics) *pgxpool.Pool {
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, m)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupCrypto(cfg *config.Config) crypto.Service {
	svc, err := crypto.FromKey(cfg.CredentialEncryptionKey)
	if err != nil {
		slog.Error("Failed to create crypto service", "error", err)
		os.Exit(1)
	}
	if cfg.CredentialEncryptionKey == "" {
		slog.Warn("CREDENTIAL_ENCRYPTION_KEY not set, source credentials are stored in plaintext")
	}
	return svc
}

// setupProfileCache returns nil without REDIS_URL; profiles are then read
// straight from Postgres.
func setupProfileCache(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, repo domain.StreamerRepository, clock clockwork.Clock) (*goredis.Client, *redis.ProfileCache) {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, profile cache disabled")
		return nil, nil
	}

	client, err := redis.NewClient(ctx, cfg.RedisURL, metrics.NewRedisMetrics(reg))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client, redis.NewProfileCache(client, repo, cfg.ProfileCacheTTL, clock, metrics.NewCacheMetrics(reg))
}

func retryPolicy(cfg *config.Config) live.RetryPolicy {
	if cfg.RetryStrategy == config.RetryExponential {
		return live.ExponentialDelay{
			Initial:     cfg.RetryDisconnectDelay,
			Max:         cfg.RetryMaxDelay,
			MaxAttempts: cfg.RetryMaxAttempts,
		}
	}
	return live.FixedDelay{
		OpenFailure: cfg.RetryOpenFailureDelay,
		Disconnect:  cfg.RetryDisconnectDelay,
		MaxAttempts: cfg.RetryMaxAttempts,
	}
}

func healthChecks(pool *pgxpool.Pool, redisClient *goredis.Client) []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
	}
	if redisClient != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return checks
}

func runGracefulShutdown(srv *httpserver.Server, registry *app.Registry, hub *broadcast.Hub, stopBackground context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		registry.Close()
		hub.Stop()
		stopBackground()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version)

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStartup()

	pool := setupDB(startupCtx, cfg, metrics.NewDBMetrics(reg))
	defer pool.Close()

	streamerRepo := postgres.NewStreamerRepo(pool, setupCrypto(cfg))

	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	redisClient, profileCache := setupProfileCache(startupCtx, cfg, reg, streamerRepo, clock)
	var profiles domain.StreamerSource
	if profileCache != nil {
		defer func() { _ = redisClient.Close() }()
		defer profileCache.StartEvictionTimer(evictionInterval)()
		go redis.NewInvalidationSubscriber(redisClient, profileCache).Start(backgroundCtx)
		profiles = profileCache
	}

	source, err := webcast.NewSource(webcast.Config{RelayURL: cfg.WebcastRelayURL}, clock)
	if err != nil {
		slog.Error("Failed to create webcast source", "error", err)
		os.Exit(1)
	}

	hub := broadcast.NewHub(clock, metrics.NewHubMetrics(reg), cfg.MaxClientsPerStreamer)
	registry := app.NewRegistry(source, hub, clock, metrics.NewLiveMetrics(reg), app.RegistryConfig{
		DefaultCapacity: cfg.DefaultCapacity,
		RetryPolicy:     retryPolicy(cfg),
	})
	appSvc := app.NewService(streamerRepo, profiles, registry, app.ServiceConfig{
		DefaultCapacity: cfg.DefaultCapacity,
		MinCapacity:     cfg.MinCapacity,
	})

	srv := httpserver.NewServer(cfg, appSvc, clock, httpMetrics, metrics.Handler(reg), healthChecks(pool, redisClient))

	done := runGracefulShutdown(srv, registry, hub, stopBackground)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
