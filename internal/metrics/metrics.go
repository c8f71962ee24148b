// Package metrics declares the Prometheus collectors of the client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API metrics
var (
	// APIRequestsTotal tracks remote API calls by operation and outcome class (2xx, 4xx, 5xx, error).
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medrec_api_requests_total",
			Help: "Remote API requests by operation and status class",
		},
		[]string{"operation", "status"},
	)

	// APIRequestDuration tracks remote API latency in seconds.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medrec_api_request_duration_seconds",
			Help:    "Remote API request duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)
)

// Computation cache metrics
var (
	// ComputeLookupsTotal tracks Resolve calls by cache and result (hit, miss, shared).
	ComputeLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medrec_compute_lookups_total",
			Help: "Computation cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	// ComputeFailuresTotal tracks failed remote computations.
	ComputeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medrec_compute_failures_total",
			Help: "Failed remote computations by cache",
		},
		[]string{"cache"},
	)
)

// Store metrics
var (
	// StoreItems tracks the current size of each entity store collection.
	StoreItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "medrec_store_items",
			Help: "Entities currently held by each store",
		},
		[]string{"store"},
	)

	// StoreDiscardedFetchesTotal tracks fetch results dropped because the scope changed.
	StoreDiscardedFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medrec_store_discarded_fetches_total",
			Help: "Fetch results discarded because the selection changed while in flight",
		},
		[]string{"store"},
	)
)

// Session metrics
var (
	// SessionTransitionsTotal tracks session transitions by kind (login, login_failed, logout, restore, restore_rejected).
	SessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medrec_session_transitions_total",
			Help: "Session state transitions by kind",
		},
		[]string{"kind"},
	)
)

// StatusClass buckets an HTTP status for the status label.
func StatusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	}
	return "error"
}
