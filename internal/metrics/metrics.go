// Package metrics provides Prometheus metrics for catalog store operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for one store.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// ShiftedRows observes how many rows a single bound-shifting pass
	// touched. Wide shifts are the cost center of nested sets.
	ShiftedRows prometheus.Histogram

	// TreeNodes tracks the number of tree positions after each mutation.
	TreeNodes prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg yields
// collectors that are not registered anywhere.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_operations_total",
				Help: "Total number of catalog store operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_operation_duration_seconds",
				Help:    "Duration of catalog store operations in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		ShiftedRows: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_tree_shift_rows",
				Help:    "Rows touched by one nested-set bound shift",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		TreeNodes: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_tree_nodes",
				Help: "Number of tree positions in the catalog",
			},
		),
	}
}

// Observe records one operation. A nil receiver is a no-op.
func (m *Metrics) Observe(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveShift records the row count of one bound-shifting pass.
func (m *Metrics) ObserveShift(rows int64) {
	if m == nil {
		return
	}
	m.ShiftedRows.Observe(float64(rows))
}

// SetTreeNodes updates the tree position gauge.
func (m *Metrics) SetTreeNodes(n int64) {
	if m == nil {
		return
	}
	m.TreeNodes.Set(float64(n))
}
