// Package metric defines the prometheus metrics exposed by livemirror:
// mirror freshness, query traffic and mutation traffic. Metrics live in a
// dedicated registry so embedding applications can mount them wherever
// they serve their own.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all livemirror metrics
type Metrics struct {
	// Mirror metrics
	SnapshotsApplied *prometheus.CounterVec
	RecordsMirrored  *prometheus.GaugeVec
	SnapshotApply    prometheus.Histogram
	ResourcesActive  prometheus.Gauge

	// Provider metrics
	QueriesTotal   *prometheus.CounterVec
	MutationsTotal *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance backed by its own prometheus registry,
// with Go runtime and process collectors attached.
func New() *Metrics {
	m := &Metrics{
		SnapshotsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "livemirror",
				Subsystem: "mirror",
				Name:      "snapshots_applied_total",
				Help:      "Total number of full snapshots applied to a mirror",
			},
			[]string{"resource"},
		),

		RecordsMirrored: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "livemirror",
				Subsystem: "mirror",
				Name:      "records",
				Help:      "Number of records in the current mirror snapshot",
			},
			[]string{"resource"},
		),

		SnapshotApply: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "livemirror",
				Subsystem: "mirror",
				Name:      "snapshot_apply_seconds",
				Help:      "Time to parse and swap in a full snapshot",
				Buckets:   prometheus.DefBuckets,
			},
		),

		ResourcesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "livemirror",
				Subsystem: "registry",
				Name:      "resources_active",
				Help:      "Number of resources with a live subscription",
			},
		),

		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "livemirror",
				Subsystem: "provider",
				Name:      "queries_total",
				Help:      "Total number of read verbs served from the local mirror",
			},
			[]string{"verb", "resource"},
		),

		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "livemirror",
				Subsystem: "provider",
				Name:      "mutations_total",
				Help:      "Total number of write verbs issued to the remote store",
			},
			[]string{"verb", "resource"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "livemirror",
				Subsystem: "provider",
				Name:      "errors_total",
				Help:      "Total number of verb calls that returned an error",
			},
			[]string{"verb", "resource"},
		),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.SnapshotsApplied,
		m.RecordsMirrored,
		m.SnapshotApply,
		m.ResourcesActive,
		m.QueriesTotal,
		m.MutationsTotal,
		m.ErrorsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics in prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
