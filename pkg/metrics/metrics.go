// Package metrics holds the prometheus collectors shared across flickrheat.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream REST metrics
var (
	// UpstreamRequestsTotal counts provider REST calls by method, signing and outcome
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flickrheat_upstream_requests_total",
			Help: "Total provider REST calls by method, signed flag and status",
		},
		[]string{"method", "signed", "status"},
	)

	// UpstreamRequestDuration tracks provider REST latency in seconds
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flickrheat_upstream_request_duration_seconds",
			Help:    "Provider REST call duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)
)

// Activity metrics
var (
	PagesFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flickrheat_pages_fetched_total",
			Help: "Total photo search pages fetched",
		},
	)

	// PartialResultsTotal counts photo listings truncated by the page cap
	PartialResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flickrheat_partial_results_total",
			Help: "Total photo listings truncated by the page cap",
		},
	)
)

// Snapshot and refresh metrics
var (
	SnapshotOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flickrheat_snapshot_operations_total",
			Help: "Total snapshot store operations by backend, operation and status",
		},
		[]string{"backend", "op", "status"},
	)

	// CircuitBreakerState tracks the snapshot service breaker (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flickrheat_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)

	RefreshJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flickrheat_refresh_jobs_total",
			Help: "Total scheduled refresh jobs by status",
		},
		[]string{"status"},
	)
)

// Web layer metrics
var (
	// HTTPErrorsTotal counts error responses by error kind
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flickrheat_http_errors_total",
			Help: "Total HTTP error responses by error kind",
		},
		[]string{"kind"},
	)

	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flickrheat_websocket_connections",
			Help: "Open heatmap progress websocket connections",
		},
	)
)

// Status returns the label value for an operation outcome
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
