package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/domain"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/metrics"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/store"
)

// DefaultRoutes is the event-type → cache-group table. Keeping it as one
// literal (instead of conditionals scattered across handlers) makes the
// coupling between events and their dependent queries reviewable in one
// place. An event type missing here is dropped entirely; a type mapped to
// an empty list mutates the store without invalidating anything.
func DefaultRoutes() map[string][]string {
	return map[string][]string{
		domain.EventAccountBalanceUpdated: {domain.GroupAccounts, domain.GroupDashboard},
		domain.EventAccountConnected:      {domain.GroupAccounts, domain.GroupDashboard},
		domain.EventAccountReconciled:     {domain.GroupAccounts, domain.GroupTransactions, domain.GroupDashboard},
		domain.EventDashboardUpdate:       {domain.GroupDashboard},
		domain.EventTransactionCreated:    {domain.GroupTransactions, domain.GroupDashboard},
		domain.EventNotification:          {},
	}
}

// Dispatcher translates each envelope into store mutations and cache
// invalidations. Both side effects complete before Dispatch returns; the
// refetch that follows an invalidation is deferred to whichever consumer
// next requests the data.
type Dispatcher struct {
	store  *store.Store
	cache  domain.QueryCache
	routes map[string][]string
}

func NewDispatcher(st *store.Store, qc domain.QueryCache) *Dispatcher {
	return &Dispatcher{
		store:  st,
		cache:  qc,
		routes: DefaultRoutes(),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, env domain.Envelope) {
	groups, known := d.routes[env.Type]
	if !known {
		metrics.RealtimeUnknownEventsTotal.Inc()
		slog.DebugContext(ctx, "Ignoring unrouted realtime event", "type", env.Type)
		return
	}

	metrics.RealtimeMessagesTotal.WithLabelValues(env.Type).Inc()

	d.applyToStore(ctx, env)

	// Invalidation happens even when the payload failed to decode: marking
	// a dependent query stale is always safe, serving it stale is not.
	if len(groups) > 0 {
		d.cache.Invalidate(ctx, groups...)
	}
}

func (d *Dispatcher) applyToStore(ctx context.Context, env domain.Envelope) {
	switch env.Type {
	case domain.EventAccountConnected:
		var p domain.AccountConnectedPayload
		if !d.decode(ctx, env, &p) {
			return
		}
		d.store.AddNotification("account_connected", "Account connected",
			fmt.Sprintf("%s at %s is now linked", p.Name, p.Institution))

	case domain.EventAccountReconciled:
		var p domain.AccountReconciledPayload
		if !d.decode(ctx, env, &p) {
			return
		}
		d.store.AddActivity("account_reconciled", p.AccountID,
			fmt.Sprintf("%s reconciled, balance adjusted by %s", p.Name, p.Delta.StringFixed(2)))

	case domain.EventTransactionCreated:
		var t domain.Transaction
		if !d.decode(ctx, env, &t) {
			return
		}
		d.store.AddTransaction(t)

	case domain.EventNotification:
		var p domain.NotificationPayload
		if !d.decode(ctx, env, &p) {
			return
		}
		d.store.AddNotification(p.Kind, p.Title, p.Body)
	}
	// Balance and dashboard events carry no store mutation; their whole
	// effect is the invalidation in Dispatch.
}

func (d *Dispatcher) decode(ctx context.Context, env domain.Envelope, out any) bool {
	if err := json.Unmarshal(env.Payload, out); err != nil {
		metrics.RealtimeParseFailuresTotal.Inc()
		slog.WarnContext(ctx, "Dropping realtime payload that failed to decode", "type", env.Type, "error", err)
		return false
	}
	return true
}
