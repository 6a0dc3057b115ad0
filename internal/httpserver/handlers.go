package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/cache"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/domain"
	apperrors "github.com/ToastWithCheddar/finance-tracker-sub003/internal/errors"
)

const recentTransactionsLimit = 50

func (s *Server) handleStatus(c echo.Context) error {
	snap := s.store.Snapshot()

	response := map[string]any{
		"connection_state":     snap.ConnectionState.String(),
		"unread_notifications": snap.UnreadCount,
		"recent_transactions":  len(snap.RecentTransactions),
		"activity_entries":     len(snap.Activity),
		"cache_entries":        s.cache.Size(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write status response: %w", err)
	}
	return nil
}

func (s *Server) handleNotifications(c echo.Context) error {
	snap := s.store.Snapshot()
	if err := c.JSON(http.StatusOK, snap.Notifications); err != nil {
		return fmt.Errorf("failed to write notifications response: %w", err)
	}
	return nil
}

func (s *Server) handleMarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("notification id must be a UUID")
	}

	if !s.store.MarkRead(id) {
		return apperrors.NotFoundError("notification not found").WithContext("id", id.String())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(c echo.Context) error {
	marked := s.store.MarkAllRead()
	if err := c.JSON(http.StatusOK, map[string]int{"marked": marked}); err != nil {
		return fmt.Errorf("failed to write mark-all-read response: %w", err)
	}
	return nil
}

func (s *Server) handleActivity(c echo.Context) error {
	snap := s.store.Snapshot()
	if err := c.JSON(http.StatusOK, snap.Activity); err != nil {
		return fmt.Errorf("failed to write activity response: %w", err)
	}
	return nil
}

// handleRecentTransactions prefers the realtime-fed store; right after
// startup, before any TRANSACTION_CREATED event has arrived, it falls back
// to the backend through the query cache.
func (s *Server) handleRecentTransactions(c echo.Context) error {
	snap := s.store.Snapshot()
	if len(snap.RecentTransactions) > 0 {
		if err := c.JSON(http.StatusOK, snap.RecentTransactions); err != nil {
			return fmt.Errorf("failed to write transactions response: %w", err)
		}
		return nil
	}

	transactions, err := cache.Fetch(c.Request().Context(), s.cache,
		cache.Key(domain.GroupTransactions, "recent"),
		func(ctx context.Context) ([]domain.Transaction, error) {
			return s.api.RecentTransactions(ctx, recentTransactionsLimit)
		})
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, transactions); err != nil {
		return fmt.Errorf("failed to write transactions response: %w", err)
	}
	return nil
}

// handleAccounts serves the accounts list through the query cache. This is
// the pull-based refetch path: a stale entry (marked by the dispatcher)
// triggers a backend fetch here, not at invalidation time.
func (s *Server) handleAccounts(c echo.Context) error {
	accounts, err := cache.Fetch(c.Request().Context(), s.cache,
		cache.Key(domain.GroupAccounts, "list"), s.api.Accounts)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, accounts); err != nil {
		return fmt.Errorf("failed to write accounts response: %w", err)
	}
	return nil
}

func (s *Server) handleDashboard(c echo.Context) error {
	summary, err := cache.Fetch(c.Request().Context(), s.cache,
		cache.Key(domain.GroupDashboard, "summary"), s.api.DashboardSummary)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, summary); err != nil {
		return fmt.Errorf("failed to write dashboard response: %w", err)
	}
	return nil
}

func (s *Server) handleSyncBalances(c echo.Context) error {
	if err := s.api.SyncBalances(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleReconcile(c echo.Context) error {
	accountID := c.Param("id")
	if accountID == "" {
		return apperrors.ValidationError("account id is required")
	}

	if err := s.api.Reconcile(c.Request().Context(), accountID); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

// handleLogout ends the session: the socket closes with a normal-closure
// code, no reconnect is scheduled, and the store is cleared.
func (s *Server) handleLogout(c echo.Context) error {
	s.realtime.Close()
	s.store.Reset()
	return c.NoContent(http.StatusNoContent)
}
