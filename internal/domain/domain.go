package domain

import (
	"context"
	"encoding/json"
)

// ConnectionState describes the realtime transport's socket lifecycle.
// It is owned exclusively by the transport; consumers read it from the store.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Envelope is the inbound realtime message shape. Payload stays raw until
// the dispatcher knows the event type. Envelopes are consumed once and
// never persisted.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Realtime event types recognized by the dispatcher.
const (
	EventAccountBalanceUpdated = "ACCOUNT_BALANCE_UPDATED"
	EventAccountConnected      = "ACCOUNT_CONNECTED"
	EventAccountReconciled     = "ACCOUNT_RECONCILED"
	EventDashboardUpdate       = "DASHBOARD_UPDATE"
	EventTransactionCreated    = "TRANSACTION_CREATED"
	EventNotification          = "NOTIFICATION"
)

// Cache groups. A group is the key prefix shared by all query-cache entries
// that depend on the same backend data.
const (
	GroupAccounts     = "accounts"
	GroupTransactions = "transactions"
	GroupDashboard    = "dashboard"
	GroupActivity     = "activity"
)

// QueryCache is the invalidation surface the dispatcher needs from the
// cache layer. Invalidation marks entries stale; it never writes values.
type QueryCache interface {
	Invalidate(ctx context.Context, groups ...string)
}
