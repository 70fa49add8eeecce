package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the conference focus agent.
//
// Naming convention: namespace_subsystem_name
// - namespace: focus (application-level grouping)
// - subsystem: room, bridge, jingle, circuit_breaker, redis (feature-level grouping)
// - name: specific metric (rooms_active, requests_total, etc.)
//
// Metric Types:
// - Gauge: Current state (rooms, correlation table size, circuit breaker state)
// - Counter: Cumulative events (jingle events, COLIBRI requests, errors)
// - Histogram: Latency distributions (round trip time)

var (
	// ActiveRooms tracks the current number of rooms with a materialized state.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "focus",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms with materialized state",
	})

	// RoomParticipants tracks the number of participants per room, capable
	// or not.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "focus",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	// JingleEvents tracks Jingle stanzas processed by action and outcome.
	JingleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "jingle",
		Name:      "events_total",
		Help:      "Total Jingle stanzas processed",
	}, []string{"action", "status"})

	// JingleProcessingDuration tracks time spent handling one Jingle stanza.
	JingleProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "focus",
		Subsystem: "jingle",
		Name:      "processing_seconds",
		Help:      "Time spent processing a Jingle stanza",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"action"})

	// ColibriRequests tracks outgoing COLIBRI requests by kind and outcome.
	ColibriRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "bridge",
		Name:      "colibri_requests_total",
		Help:      "Total COLIBRI requests sent to a bridge",
	}, []string{"kind", "status"})

	// ColibriRoundTrip tracks the latency between a COLIBRI request and its
	// matching reply, as resolved through the Correlation Table.
	ColibriRoundTrip = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "focus",
		Subsystem: "bridge",
		Name:      "colibri_round_trip_seconds",
		Help:      "Latency between a COLIBRI request and its matching reply",
		Buckets:   prometheus.DefBuckets,
	}, []string{"bridge_id"})

	// CorrelationTableSize tracks the number of outstanding COLIBRI requests
	// awaiting a reply.
	CorrelationTableSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "focus",
		Subsystem: "bridge",
		Name:      "correlation_table_size",
		Help:      "Number of outstanding COLIBRI requests awaiting a reply",
	})

	// CorrelationStale tracks replies that matched no entry in the table.
	CorrelationStale = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "bridge",
		Name:      "correlation_stale_total",
		Help:      "Total COLIBRI replies dropped for matching no correlation entry",
	}, []string{"bridge_id"})

	// BridgeSelections tracks which bridge was selected for a room, and why.
	BridgeSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "bridge",
		Name:      "selections_total",
		Help:      "Total bridge selections made by the selector",
	}, []string{"bridge_id", "reason"})

	// StatsIngested tracks bridge stat updates consumed by the stats ingester.
	StatsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "stats",
		Name:      "ingested_total",
		Help:      "Total bridge stat messages ingested",
	}, []string{"bridge_id"})

	// CircuitBreakerState tracks the current state of each circuit breaker.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "focus",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of requests rejected by
	// an open circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RedisOperationsTotal tracks the total number of Redis operations.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks the duration of Redis operations.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "focus",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)
