package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a linked bank account as reported by the tracker API.
type Account struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Institution string          `json:"institution"`
	Type        string          `json:"type"`
	Balance     decimal.Decimal `json:"balance"`
	SyncedAt    time.Time       `json:"synced_at"`
}

// Transaction is a single posted transaction. Amounts are signed:
// negative for spending, positive for income.
type Transaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	PostedAt    time.Time       `json:"posted_at"`
}

// DashboardSummary is the aggregate view served on the dashboard.
type DashboardSummary struct {
	NetWorth         decimal.Decimal `json:"net_worth"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	MonthSpend       decimal.Decimal `json:"month_spend"`
	AsOf             time.Time       `json:"as_of"`
}

// Notification is a user-facing message held in the shared store.
// Read is mutated only by the store itself.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityEvent is an entry in the activity feed held in the shared store.
type ActivityEvent struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	AccountID  string    `json:"account_id,omitempty"`
	Message    string    `json:"message"`
	IsNew      bool      `json:"is_new"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Payloads carried by the realtime envelopes.

type BalanceUpdatedPayload struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

type AccountConnectedPayload struct {
	AccountID   string `json:"account_id"`
	Name        string `json:"name"`
	Institution string `json:"institution"`
}

type AccountReconciledPayload struct {
	AccountID string          `json:"account_id"`
	Name      string          `json:"name"`
	Delta     decimal.Decimal `json:"delta"`
}

type NotificationPayload struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`
	Body  string `json:"body"`
}
