package paging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for window reconciliation.
var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagewindow_fetches_total",
		Help: "Page fetches by engine and outcome (success, error, superseded)",
	}, []string{"engine", "outcome"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagewindow_fetch_duration_seconds",
		Help:    "Duration of completed page fetches by engine",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"engine"})

	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagewindow_reconciliations_total",
		Help: "Window reconciliations by engine and result (fetch, noop)",
	}, []string{"engine", "result"})

	heldItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pagewindow_held_items",
		Help: "Number of items currently held by engine",
	}, []string{"engine"})
)

const (
	outcomeSuccess    = "success"
	outcomeError      = "error"
	outcomeSuperseded = "superseded"

	resultFetch = "fetch"
	resultNoop  = "noop"
)
