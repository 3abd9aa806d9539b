package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_panics_total",
			Help: "Total number of handler panics turned into 500 responses",
		},
		[]string{"endpoint"},
	)

	HTTPRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served, long polls included",
		},
		[]string{"handler"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method", "status_code"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status_code"},
	)
)

var (
	CheckoutTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_transitions_total",
			Help: "Total number of checkout state transitions",
		},
		[]string{"state"},
	)

	CheckoutFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_failures_total",
			Help: "Total number of failed checkout attempts",
		},
		[]string{"reason"},
	)

	CheckoutStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_step_duration_seconds",
			Help:    "Time spent in a checkout state before leaving it",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"state"},
	)

	OrdersFailedAfterPaymentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_orders_failed_after_payment_total",
			Help: "Total number of captured payments without an order",
		},
	)

	CartClearsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_cart_clears_total",
			Help: "Total number of cart clears after a successful order",
		},
		[]string{"outcome"},
	)

	ActiveCheckoutSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkout_sessions_active",
			Help: "Number of live checkout sessions",
		},
	)

	TransitionLogDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_transition_log_dropped_total",
			Help: "Transitions not written to the audit log because the buffer was full",
		},
	)
)

var (
	UpstreamCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_call_duration_seconds",
			Help:    "Duration of calls to upstream services in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"upstream", "endpoint", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_open",
			Help: "1 when the named circuit breaker is open, 0.5 when half-open, 0 when closed",
		},
		[]string{"name"},
	)

	NotificationsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_notifications_consumed_total",
			Help: "Total number of cart events consumed",
		},
		[]string{"outcome"},
	)
)

var (
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"query_type", "table"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	DBConnectionWaitsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connection_waits",
			Help: "Cumulative number of times a query waited for a free connection",
		},
	)

	DBQueryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Total number of failed database statements",
		},
		[]string{"query_type", "table"},
	)
)

var (
	RedisCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_command_duration_seconds",
			Help:    "Duration of Redis commands in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"command"},
	)

	RedisCommandErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_command_errors_total",
			Help: "Total number of failed Redis commands, cache misses excluded",
		},
		[]string{"command"},
	)
)

func TimeDBQuery(queryType, table string) func() {
	start := time.Now()
	return func() {
		duration := time.Since(start).Seconds()
		DBQueryDuration.WithLabelValues(queryType, table).Observe(duration)
	}
}

func ObserveUpstreamCall(upstream, endpoint, outcome string, d time.Duration) {
	UpstreamCallDuration.WithLabelValues(upstream, endpoint, outcome).Observe(d.Seconds())
}

// RecordBreakerState takes gobreaker's state names.
func RecordBreakerState(name, state string) {
	switch state {
	case "open":
		CircuitBreakerState.WithLabelValues(name).Set(1)
	case "half-open":
		CircuitBreakerState.WithLabelValues(name).Set(0.5)
	default:
		CircuitBreakerState.WithLabelValues(name).Set(0)
	}
}

func RecordCartClear(outcome string) {
	CartClearsTotal.WithLabelValues(outcome).Inc()
}

func SetActiveSessions(n int) {
	ActiveCheckoutSessions.Set(float64(n))
}

func RecordNotification(outcome string) {
	NotificationsConsumedTotal.WithLabelValues(outcome).Inc()
}

func RecordTransitionDropped() {
	TransitionLogDroppedTotal.Inc()
}
