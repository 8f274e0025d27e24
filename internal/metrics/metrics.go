package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StatementsTotal counts store operations by backend, statement and outcome.
	StatementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "record_query_statements_total",
			Help: "Total number of store statements",
		},
		[]string{"backend", "statement", "outcome"},
	)
	// StatementDuration is the latency of store operations.
	StatementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "record_query_statement_duration_seconds",
			Help:    "Store statement latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "statement"},
	)
	// RPCRequestsTotal counts connect calls by procedure and code.
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "record_query_rpc_requests_total",
			Help: "Total number of RPC requests",
		},
		[]string{"procedure", "code"},
	)
)

// Outcome labels a finished statement.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}
