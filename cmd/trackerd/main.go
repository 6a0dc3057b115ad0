package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/api"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/cache"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/domain"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/httpserver"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/platform/config"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/platform/logging"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/realtime"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/store"
)

const (
	cacheEvictionInterval   = 1 * time.Minute
	shutdownTimeout         = 10 * time.Second
	realtimeShutdownTimeout = 5 * time.Second
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("No REDIS_URL configured, running with memory-only cache")
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rdb, err := cache.NewRedisClient(connectCtx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return rdb
}

func runGracefulShutdown(srv *httpserver.Server, rt *realtime.Client, cancel context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		rt.Close()
		cancel()

		select {
		case <-rt.Done():
		case <-time.After(realtimeShutdownTimeout):
			slog.Warn("Realtime client did not stop in time")
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Tracker companion starting", "env", cfg.AppEnv, "port", cfg.Port)

	rdb := setupRedis(context.Background(), cfg)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	// A nil *goredis.Client must not become a non-nil Cmdable.
	var l2 goredis.Cmdable
	if rdb != nil {
		l2 = rdb
	}

	queryCache := cache.New(clock, cfg.CacheTTL, l2)
	stopEviction := queryCache.StartEvictionTimer(cacheEvictionInterval)
	defer stopEviction()

	apiClient := api.NewClient(cfg.APIBaseURL, cfg.AccessToken, nil)
	sharedStore := store.New(clock)
	dispatcher := realtime.NewDispatcher(sharedStore, queryCache)

	rtClient, err := realtime.NewClient(realtime.Options{
		URL:             cfg.WebsocketURL(),
		Token:           cfg.AccessToken,
		ReconnectDelay:  cfg.ReconnectDelay,
		MaxDialAttempts: cfg.ReconnectMaxAttempts,
		Clock:           clock,
	}, dispatcher, sharedStore)
	if err != nil {
		slog.Error("Failed to create realtime client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rtClient.Run(ctx)

	healthChecks := []httpserver.HealthCheck{
		{
			Name: "realtime",
			Check: func(context.Context) error {
				if state := sharedStore.ConnectionState(); state != domain.StateConnected {
					return fmt.Errorf("realtime connection is %s", state)
				}
				return nil
			},
		},
	}
	if rdb != nil {
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	srv := httpserver.NewServer(cfg, sharedStore, queryCache, apiClient, rtClient, healthChecks)

	done := runGracefulShutdown(srv, rtClient, cancel)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
