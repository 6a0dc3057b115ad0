// Package metrics declares the Prometheus collectors used across the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Realtime transport metrics
var (
	// RealtimeMessagesTotal tracks decoded envelopes by event type
	RealtimeMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_messages_total",
			Help: "Total decoded realtime envelopes by event type",
		},
		[]string{"type"},
	)

	// RealtimeParseFailuresTotal tracks inbound frames dropped as malformed JSON
	RealtimeParseFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_parse_failures_total",
			Help: "Total inbound frames dropped because they were not valid envelopes",
		},
	)

	// RealtimeUnknownEventsTotal tracks envelopes with an unrecognized type
	RealtimeUnknownEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_unknown_events_total",
			Help: "Total envelopes dropped because their event type is not routed",
		},
	)

	// RealtimeReconnectsTotal tracks reconnect cycles after unclean closes
	RealtimeReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_reconnects_total",
			Help: "Total reconnect cycles started after an unclean socket close",
		},
	)

	// RealtimeConnectionState reports the current socket state (0=disconnected, 1=connecting, 2=connected)
	RealtimeConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connection_state",
			Help: "Current realtime connection state (0=disconnected, 1=connecting, 2=connected)",
		},
	)
)

// Query cache metrics
var (
	// CacheRequestsTotal tracks cache lookups by serving layer and outcome
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_requests_total",
			Help: "Total query cache lookups by layer (memory/redis/fetch) and status",
		},
		[]string{"layer", "status"},
	)

	// CacheInvalidationsTotal tracks entries marked stale by cache group
	CacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_invalidations_total",
			Help: "Total query cache entries marked stale by group",
		},
		[]string{"group"},
	)
)

// Tracker API client metrics
var (
	// APIRequestsTotal tracks tracker API calls by operation and status
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_api_requests_total",
			Help: "Total tracker API requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	// CircuitBreakerStateChanges tracks breaker transitions by component and new state
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
