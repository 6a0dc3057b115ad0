package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ToastWithCheddar/finance-tracker-sub003/internal/errors"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestAccounts_DecodesResponse(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/accounts", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"acc-1","name":"Checking","institution":"Acme Bank","type":"depository","balance":"1250.75"},
			{"id":"acc-2","name":"Visa","institution":"Acme Bank","type":"credit","balance":"-301.10"}
		]`))
	})

	client := NewClient(srv.URL, "test-token", nil)
	accounts, err := client.Accounts(context.Background())
	require.NoError(t, err)

	require.Len(t, accounts, 2)
	assert.Equal(t, "Checking", accounts[0].Name)
	assert.True(t, accounts[0].Balance.Equal(decimal.RequireFromString("1250.75")))
	assert.True(t, accounts[1].Balance.IsNegative())
}

func TestRecentTransactions_PassesLimit(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transactions", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"id":"t1","account_id":"acc-1","description":"Coffee","amount":"-4.50"}]`))
	})

	client := NewClient(srv.URL, "test-token", nil)
	transactions, err := client.RecentTransactions(context.Background(), 25)
	require.NoError(t, err)

	require.Len(t, transactions, 1)
	assert.Equal(t, "Coffee", transactions[0].Description)
}

func TestDashboardSummary(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dashboard/summary", r.URL.Path)
		_, _ = w.Write([]byte(`{"net_worth":"10000.00","total_assets":"12000.00","total_liabilities":"2000.00","month_spend":"432.10"}`))
	})

	client := NewClient(srv.URL, "test-token", nil)
	summary, err := client.DashboardSummary(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.NetWorth.Equal(decimal.RequireFromString("10000.00")))
}

func TestSyncBalances_PostsAndAcceptsAccepted(t *testing.T) {
	var gotMethod, gotPath string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	})

	client := NewClient(srv.URL, "test-token", nil)
	require.NoError(t, client.SyncBalances(context.Background()))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/accounts/sync-balances", gotPath)
}

func TestReconcile_EscapesAccountID(t *testing.T) {
	var gotPath string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusOK)
	})

	client := NewClient(srv.URL, "test-token", nil)
	require.NoError(t, client.Reconcile(context.Background(), "acc/1"))

	assert.Equal(t, "/api/accounts/acc%2F1/reconcile", gotPath)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantType   apperrors.ErrorType
		wantStatus int
	}{
		{"not found", http.StatusNotFound, apperrors.TypeNotFound, http.StatusNotFound},
		{"unauthorized", http.StatusUnauthorized, apperrors.TypeValidation, http.StatusBadRequest},
		{"server error", http.StatusInternalServerError, apperrors.TypeExternal, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			client := NewClient(srv.URL, "test-token", nil)
			_, err := client.Accounts(context.Background())
			require.Error(t, err)

			structured := apperrors.AsStructuredError(err)
			assert.Equal(t, tt.wantType, structured.Type)
			assert.Equal(t, tt.wantStatus, structured.HTTPStatus())
		})
	}
}

func TestConnectionErrorIsExternal(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	url := srv.URL
	srv.Close()

	client := NewClient(url, "test-token", nil)
	_, err := client.Accounts(context.Background())
	require.Error(t, err)

	structured := apperrors.AsStructuredError(err)
	assert.Equal(t, apperrors.TypeExternal, structured.Type)
}

func TestMalformedResponseBody(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	client := NewClient(srv.URL, "test-token", nil)
	_, err := client.Accounts(context.Background())
	require.Error(t, err)

	structured := apperrors.AsStructuredError(err)
	assert.Equal(t, apperrors.TypeInternal, structured.Type)
}

func TestBaseURLTrailingSlashTrimmed(t *testing.T) {
	var gotPath string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`[]`))
	})

	client := NewClient(srv.URL+"/", "test-token", nil)
	_, err := client.Accounts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/api/accounts", gotPath)
}
