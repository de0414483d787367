package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP error responses by domain code.",
		},
		[]string{"method", "path", "code"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "auth_breaker_state",
			Help: "Circuit breaker state per backend (0 closed, 1 half-open, 2 open).",
		},
		[]string{"backend"},
	)

	consumerMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_consumer_messages_total",
			Help: "Broker messages by topic and outcome (started, finished, rejected).",
		},
		[]string{"topic", "outcome"},
	)

	dispatcherAssignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_dispatcher_assignments_total",
			Help: "Dispatcher outcomes per queue (assigned, skipped_offline, no_agent).",
		},
		[]string{"outcome"},
	)

	groupSendRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_group_send_retries_total",
			Help: "Websocket deliveries that needed at least one retry.",
		},
	)

	groupSendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_group_send_failures_total",
			Help: "Websocket deliveries dropped after exhausting retries.",
		},
	)
)

// Init registers collectors on the default registry.
func Init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpErrorsTotal,
		breakerState,
		consumerMessages,
		dispatcherAssignments,
		groupSendRetries,
		groupSendFailures,
	)
}

// MetricsHandler exposes the prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest increments the request counter.
func RecordRequest(method, path, status string) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordError increments the domain-error counter.
func RecordError(method, path, code string) {
	httpErrorsTotal.WithLabelValues(method, path, code).Inc()
}

// SetBreakerState records a breaker state transition.
func SetBreakerState(backend string, state float64) {
	breakerState.WithLabelValues(backend).Set(state)
}

// ConsumerMessage records a consumer lifecycle signal.
func ConsumerMessage(topic, outcome string) {
	consumerMessages.WithLabelValues(topic, outcome).Inc()
}

// DispatcherOutcome records one dispatcher loop decision.
func DispatcherOutcome(outcome string) {
	dispatcherAssignments.WithLabelValues(outcome).Inc()
}

// GroupSendRetried counts a delivery that hit the retry path.
func GroupSendRetried() { groupSendRetries.Inc() }

// GroupSendFailed counts a delivery dropped after the retry budget.
func GroupSendFailed() { groupSendFailures.Inc() }
