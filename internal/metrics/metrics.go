// Package metrics holds the Prometheus instruments for one pipeline run.
//
// Metrics are registered on a caller-supplied registry rather than the global
// default so tests and repeated runs in one process do not collide. The CLI
// dumps them with prometheus.WriteToTextfile for node_exporter pickup.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ywh"

// Batch outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Metrics groups the counters and gauges updated during a run.
type Metrics struct {
	// BatchesTotal counts videos.list batches by outcome.
	BatchesTotal *prometheus.CounterVec

	// KeyExhaustionsTotal counts quota rejections that marked a key exhausted.
	KeyExhaustionsTotal prometheus.Counter

	// TransportErrorsTotal counts non-quota API failures.
	TransportErrorsTotal prometheus.Counter

	// CacheLookupsTotal counts cache lookups by result (hit, miss).
	CacheLookupsTotal *prometheus.CounterVec

	// RowsDroppedTotal counts rows removed by each cleaning stage.
	RowsDroppedTotal *prometheus.CounterVec

	// FinalRows is the size of the last cleaned table.
	FinalRows prometheus.Gauge
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "batches_total",
			Help:      "videos.list batches by outcome",
		}, []string{"outcome"}),
		KeyExhaustionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "key_exhaustions_total",
			Help:      "API keys marked exhausted after a quota response",
		}),
		TransportErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "transport_errors_total",
			Help:      "Non-quota API call failures",
		}),
		CacheLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Metadata cache lookups by result",
		}, []string{"result"}),
		RowsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clean",
			Name:      "rows_dropped_total",
			Help:      "Rows removed by each cleaning stage",
		}, []string{"stage"}),
		FinalRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "clean",
			Name:      "final_rows",
			Help:      "Rows in the final cleaned table",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.BatchesTotal,
			m.KeyExhaustionsTotal,
			m.TransportErrorsTotal,
			m.CacheLookupsTotal,
			m.RowsDroppedTotal,
			m.FinalRows,
		)
	}

	return m
}

// NewNop returns unregistered instruments.
func NewNop() *Metrics {
	return New(nil)
}
