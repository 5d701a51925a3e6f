package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the chess session core.
//
// Naming convention: namespace_subsystem_name
// - namespace: chess (application-level grouping)
// - subsystem: gateway, room, game, redis, circuit_breaker, rate_limit
// - name: specific metric (connections_active, moves_total, etc.)

var (
	// ActiveWebSocketConnections tracks the current number of active gateway connections.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chess",
		Subsystem: "gateway",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chess",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomPlayers tracks the number of seated players in each room.
	RoomPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chess",
		Subsystem: "room",
		Name:      "players_count",
		Help:      "Number of seated players in each room",
	}, []string{"room_id"})

	// GatewayEvents tracks the total number of inbound gateway events processed.
	GatewayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chess",
		Subsystem: "gateway",
		Name:      "events_total",
		Help:      "Total gateway events processed",
	}, []string{"event", "status"})

	// EventProcessingDuration tracks the time spent dispatching a gateway event end to end.
	EventProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chess",
		Subsystem: "gateway",
		Name:      "event_duration_seconds",
		Help:      "Time spent processing a gateway event",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event"})

	// MovesTotal tracks the total number of move attempts by result.
	MovesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chess",
		Subsystem: "room",
		Name:      "moves_total",
		Help:      "Total move attempts by result (legal, illegal)",
	}, []string{"result"})

	// GameCompletionsTotal tracks the total number of games that reached a terminal state, by reason.
	GameCompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chess",
		Subsystem: "game",
		Name:      "completions_total",
		Help:      "Total games completed by termination reason",
	}, []string{"reason"})

	// CircuitBreakerState tracks the current state of a circuit breaker.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chess",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of requests rejected by a circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chess",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks the total number of requests that exceeded the rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chess",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks the total number of requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chess",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// RedisOperationsTotal tracks the total number of Redis operations.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chess",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks the duration of Redis operations.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chess",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// InviteAttemptsTotal tracks friend-invite attempts by outcome.
	InviteAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chess",
		Subsystem: "invite",
		Name:      "attempts_total",
		Help:      "Total friend-invite attempts by outcome",
	}, []string{"outcome"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
