package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	relationsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partprune_relations_pruned_total",
			Help: "Total number of partitioned relations planned, by command",
		},
		[]string{"command"},
	)
	partitionsSelected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partprune_partitions_selected",
			Help:    "Fraction of a relation's partitions kept after pruning",
			Buckets: []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1},
		},
		[]string{"strategy"},
	)
	invariantViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partprune_invariant_violations_total",
			Help: "Total number of inconsistent pruning results detected while building residuals",
		},
	)
)

// ObservePrune records one pruned relation.
func ObservePrune(command, strategy string, total, selected int) {
	if command == "" {
		command = "select"
	}
	relationsPruned.WithLabelValues(command).Inc()
	if total > 0 {
		partitionsSelected.WithLabelValues(strategy).Observe(float64(selected) / float64(total))
	}
}

// IncInvariantViolations counts one invariant violation.
func IncInvariantViolations() {
	invariantViolations.Inc()
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
