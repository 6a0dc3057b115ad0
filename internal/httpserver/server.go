// Package httpserver exposes the daemon's local surface: health probes,
// Prometheus metrics, store snapshots, and the cached account/dashboard
// queries whose refetch realizes cache invalidation.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/cache"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/domain"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/platform/config"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/store"
)

// trackerAPI is what the handlers need from the API client.
type trackerAPI interface {
	Accounts(ctx context.Context) ([]domain.Account, error)
	RecentTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	DashboardSummary(ctx context.Context) (domain.DashboardSummary, error)
	SyncBalances(ctx context.Context) error
	Reconcile(ctx context.Context, accountID string) error
}

// RealtimeCloser ends the realtime session cleanly on logout.
type RealtimeCloser interface {
	Close()
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	store    *store.Store
	cache    *cache.Cache
	api      trackerAPI
	realtime RealtimeCloser

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, st *store.Store, qc *cache.Cache, api trackerAPI, rt RealtimeCloser, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		store:        st,
		cache:        qc,
		api:          api,
		realtime:     rt,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting local server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
