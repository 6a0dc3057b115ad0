// Package api is the JSON REST client for the tracker backend. The cache
// layer calls it on misses; it never writes the cache itself. All requests
// pass through a circuit breaker so an invalidation storm against a failing
// backend fails fast instead of hammering it.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	apperrors "github.com/ToastWithCheddar/finance-tracker-sub003/internal/errors"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/domain"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/metrics"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxErrorBodyBytes     = 4 << 10
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	cb      circuitbreaker.CircuitBreaker[any]
}

// NewClient creates a tracker API client. httpClient may be nil, in which
// case a client with a sane timeout is used.
func NewClient(baseURL, accessToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}

	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "tracker_api",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			metrics.CircuitBreakerStateChanges.WithLabelValues("tracker_api", e.NewState.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues("tracker_api").Set(stateToFloat(e.NewState))
		}).
		Build()

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   accessToken,
		http:    httpClient,
		cb:      cb,
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// Accounts returns the linked accounts list.
func (c *Client) Accounts(ctx context.Context) ([]domain.Account, error) {
	var accounts []domain.Account
	if err := c.get(ctx, "accounts", "/api/accounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// RecentTransactions returns up to limit transactions, newest first.
func (c *Client) RecentTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	path := "/api/transactions?limit=" + strconv.Itoa(limit)
	var transactions []domain.Transaction
	if err := c.get(ctx, "transactions", path, &transactions); err != nil {
		return nil, err
	}
	return transactions, nil
}

// DashboardSummary returns the aggregate dashboard view.
func (c *Client) DashboardSummary(ctx context.Context) (domain.DashboardSummary, error) {
	var summary domain.DashboardSummary
	if err := c.get(ctx, "dashboard_summary", "/api/dashboard/summary", &summary); err != nil {
		return domain.DashboardSummary{}, err
	}
	return summary, nil
}

// Activity returns the server-side activity feed.
func (c *Client) Activity(ctx context.Context) ([]domain.ActivityEvent, error) {
	var activity []domain.ActivityEvent
	if err := c.get(ctx, "activity", "/api/activity", &activity); err != nil {
		return nil, err
	}
	return activity, nil
}

// SyncBalances asks the backend to refresh balances from the aggregation
// provider. The refreshed data arrives later as realtime events.
func (c *Client) SyncBalances(ctx context.Context) error {
	return c.post(ctx, "sync_balances", "/api/accounts/sync-balances")
}

// Reconcile triggers reconciliation for a single account.
func (c *Client) Reconcile(ctx context.Context, accountID string) error {
	path := "/api/accounts/" + url.PathEscape(accountID) + "/reconcile"
	return c.post(ctx, "reconcile", path)
}

func (c *Client) get(ctx context.Context, operation, path string, out any) error {
	resp, err := c.do(ctx, operation, http.MethodGet, path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.InternalError("failed to decode tracker API response", err).
			WithContext("operation", operation)
	}
	return nil
}

func (c *Client) post(ctx context.Context, operation, path string) error {
	resp, err := c.do(ctx, operation, http.MethodPost, path)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func (c *Client) do(ctx context.Context, operation, method, path string) (*http.Response, error) {
	if !c.cb.TryAcquirePermit() {
		metrics.APIRequestsTotal.WithLabelValues(operation, "circuit_open").Inc()
		return nil, apperrors.UnavailableError("tracker API circuit open", circuitbreaker.ErrOpen).
			WithContext("operation", operation)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		c.cb.RecordSuccess() // request never left the process
		return nil, apperrors.InternalError("failed to build tracker API request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.cb.RecordError(err)
		metrics.APIRequestsTotal.WithLabelValues(operation, "error").Inc()
		return nil, apperrors.ExternalError("tracker API request failed", err).
			WithContext("operation", operation)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.cb.RecordError(fmt.Errorf("tracker API returned %d", resp.StatusCode))
	} else {
		c.cb.RecordSuccess()
	}

	metrics.APIRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		return resp, nil
	case resp.StatusCode == http.StatusNotFound:
		drainAndClose(resp)
		return nil, apperrors.NotFoundError("tracker API resource not found").
			WithContext("operation", operation)
	case resp.StatusCode == http.StatusUnauthorized:
		drainAndClose(resp)
		return nil, apperrors.ValidationError("tracker API rejected access token").
			WithContext("operation", operation)
	default:
		body := readErrorBody(resp)
		drainAndClose(resp)
		return nil, apperrors.ExternalError("tracker API returned an error", fmt.Errorf("status %d: %s", resp.StatusCode, body)).
			WithContext("operation", operation).
			WithContext("status", resp.StatusCode)
	}
}

func readErrorBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
