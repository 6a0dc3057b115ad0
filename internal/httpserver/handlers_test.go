package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/cache"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/domain"
	apperrors "github.com/ToastWithCheddar/finance-tracker-sub003/internal/errors"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/platform/config"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/store"
)

type mockAPI struct {
	accounts         []domain.Account
	accountCalls     int
	transactions     []domain.Transaction
	transactionCalls int
	summary          domain.DashboardSummary
	syncErr          error
	reconcileErr     error
	reconciledIDs    []string
}

func (m *mockAPI) Accounts(context.Context) ([]domain.Account, error) {
	m.accountCalls++
	return m.accounts, nil
}

func (m *mockAPI) RecentTransactions(context.Context, int) ([]domain.Transaction, error) {
	m.transactionCalls++
	return m.transactions, nil
}

func (m *mockAPI) DashboardSummary(context.Context) (domain.DashboardSummary, error) {
	return m.summary, nil
}

func (m *mockAPI) SyncBalances(context.Context) error {
	return m.syncErr
}

func (m *mockAPI) Reconcile(_ context.Context, accountID string) error {
	m.reconciledIDs = append(m.reconciledIDs, accountID)
	return m.reconcileErr
}

type mockRealtime struct {
	closed int
}

func (m *mockRealtime) Close() { m.closed++ }

type serverFixture struct {
	srv   *Server
	store *store.Store
	cache *cache.Cache
	api   *mockAPI
	rt    *mockRealtime
}

func newFixture(checks ...HealthCheck) *serverFixture {
	st := store.New(clockwork.NewFakeClock())
	qc := cache.New(clockwork.NewFakeClock(), time.Minute, nil)
	api := &mockAPI{}
	rt := &mockRealtime{}
	cfg := &config.Config{Port: "8321"}

	return &serverFixture{
		srv:   NewServer(cfg, st, qc, api, rt, checks),
		store: st,
		cache: qc,
		api:   api,
		rt:    rt,
	}
}

func (f *serverFixture) request(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	return f.srv.echo.NewContext(req, rec), rec
}

func TestHandleStatus(t *testing.T) {
	f := newFixture()
	f.store.SetConnectionState(domain.StateConnected)
	f.store.AddNotification("info", "hello", "body")

	c, rec := f.request(http.MethodGet, "/api/status")
	require.NoError(t, f.srv.handleStatus(c))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "connected", body["connection_state"])
	assert.Equal(t, float64(1), body["unread_notifications"])
}

func TestHandleNotifications(t *testing.T) {
	f := newFixture()
	f.store.AddNotification("info", "first", "body")

	c, rec := f.request(http.MethodGet, "/api/notifications")
	require.NoError(t, f.srv.handleNotifications(c))

	var notifications []domain.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notifications))
	require.Len(t, notifications, 1)
	assert.Equal(t, "first", notifications[0].Title)
}

func TestHandleMarkRead(t *testing.T) {
	f := newFixture()
	n := f.store.AddNotification("info", "title", "body")

	c, rec := f.request(http.MethodPost, "/api/notifications/"+n.ID.String()+"/read")
	c.SetParamNames("id")
	c.SetParamValues(n.ID.String())

	require.NoError(t, f.srv.handleMarkRead(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, f.store.UnreadCount())
}

func TestHandleMarkRead_InvalidID(t *testing.T) {
	f := newFixture()

	c, _ := f.request(http.MethodPost, "/api/notifications/not-a-uuid/read")
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := f.srv.handleMarkRead(c)
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeValidation, apperrors.AsStructuredError(err).Type)
}

func TestHandleMarkRead_Unknown(t *testing.T) {
	f := newFixture()
	id := uuid.New().String()

	c, _ := f.request(http.MethodPost, "/api/notifications/"+id+"/read")
	c.SetParamNames("id")
	c.SetParamValues(id)

	err := f.srv.handleMarkRead(c)
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeNotFound, apperrors.AsStructuredError(err).Type)
}

func TestHandleAccounts_CachesAcrossRequests(t *testing.T) {
	f := newFixture()
	f.api.accounts = []domain.Account{
		{ID: "acc-1", Name: "Checking", Balance: decimal.RequireFromString("99.50")},
	}

	for range 2 {
		c, rec := f.request(http.MethodGet, "/api/accounts")
		require.NoError(t, f.srv.handleAccounts(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var accounts []domain.Account
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))
		require.Len(t, accounts, 1)
		assert.Equal(t, "Checking", accounts[0].Name)
	}

	assert.Equal(t, 1, f.api.accountCalls, "second request must be served from cache")
}

func TestHandleAccounts_InvalidationForcesRefetch(t *testing.T) {
	f := newFixture()
	f.api.accounts = []domain.Account{{ID: "acc-1", Name: "Checking"}}

	c, _ := f.request(http.MethodGet, "/api/accounts")
	require.NoError(t, f.srv.handleAccounts(c))
	require.Equal(t, 1, f.api.accountCalls)

	f.cache.Invalidate(context.Background(), domain.GroupAccounts)

	c, _ = f.request(http.MethodGet, "/api/accounts")
	require.NoError(t, f.srv.handleAccounts(c))
	assert.Equal(t, 2, f.api.accountCalls)
}

func TestHandleRecentTransactions_PrefersStore(t *testing.T) {
	f := newFixture()
	f.api.transactions = []domain.Transaction{{ID: "from-api"}}
	f.store.AddTransaction(domain.Transaction{ID: "from-store"})

	c, rec := f.request(http.MethodGet, "/api/transactions/recent")
	require.NoError(t, f.srv.handleRecentTransactions(c))

	var transactions []domain.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transactions))
	require.Len(t, transactions, 1)
	assert.Equal(t, "from-store", transactions[0].ID)
	assert.Equal(t, 0, f.api.transactionCalls)
}

func TestHandleRecentTransactions_FallsBackToBackend(t *testing.T) {
	f := newFixture()
	f.api.transactions = []domain.Transaction{{ID: "from-api"}}

	c, rec := f.request(http.MethodGet, "/api/transactions/recent")
	require.NoError(t, f.srv.handleRecentTransactions(c))

	var transactions []domain.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transactions))
	require.Len(t, transactions, 1)
	assert.Equal(t, "from-api", transactions[0].ID)
	assert.Equal(t, 1, f.api.transactionCalls)
}

func TestHandleDashboard(t *testing.T) {
	f := newFixture()
	f.api.summary = domain.DashboardSummary{NetWorth: decimal.RequireFromString("5000.00")}

	c, rec := f.request(http.MethodGet, "/api/dashboard")
	require.NoError(t, f.srv.handleDashboard(c))

	var summary domain.DashboardSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.True(t, summary.NetWorth.Equal(decimal.RequireFromString("5000.00")))
}

func TestHandleSyncBalances(t *testing.T) {
	f := newFixture()

	c, rec := f.request(http.MethodPost, "/api/accounts/sync")
	require.NoError(t, f.srv.handleSyncBalances(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleReconcile(t *testing.T) {
	f := newFixture()

	c, rec := f.request(http.MethodPost, "/api/accounts/acc-1/reconcile")
	c.SetParamNames("id")
	c.SetParamValues("acc-1")

	require.NoError(t, f.srv.handleReconcile(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"acc-1"}, f.api.reconciledIDs)
}

func TestHandleLogout_ClosesRealtimeAndResetsStore(t *testing.T) {
	f := newFixture()
	f.store.AddNotification("info", "title", "body")

	c, rec := f.request(http.MethodPost, "/api/session/logout")
	require.NoError(t, f.srv.handleLogout(c))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, f.rt.closed)
	assert.Empty(t, f.store.Snapshot().Notifications)
}

func TestHandleLiveness(t *testing.T) {
	f := newFixture()

	c, rec := f.request(http.MethodGet, "/health/live")
	require.NoError(t, f.srv.handleLiveness(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleReadiness_AllHealthy(t *testing.T) {
	f := newFixture(HealthCheck{Name: "realtime", Check: func(context.Context) error { return nil }})

	c, rec := f.request(http.MethodGet, "/health/ready")
	require.NoError(t, f.srv.handleReadiness(c))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReadiness_FailingCheckNamed(t *testing.T) {
	f := newFixture(
		HealthCheck{Name: "realtime", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }},
	)

	c, rec := f.request(http.MethodGet, "/health/ready")
	require.NoError(t, f.srv.handleReadiness(c))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed_check":"redis"`)
}
