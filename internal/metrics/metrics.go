// Package metrics exposes routing and forwarding counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "modrouting"

// Metrics is a set of collectors registered on one registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Rebuilds        prometheus.Counter
	RebuildDuration prometheus.Histogram
	TableNodes      prometheus.Gauge
	ReachablePairs  prometheus.Gauge
	Lookups         *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	DeflectAttempts prometheus.Histogram
}

// New creates collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "rebuilds_total",
			Help:      "Routing table rebuilds completed.",
		}),
		RebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "rebuild_seconds",
			Help:      "Wall time spent building hop and predecessor matrices.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		TableNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "nodes",
			Help:      "Nodes in the current routing table snapshot.",
		}),
		ReachablePairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "reachable_pairs",
			Help:      "Ordered node pairs with a finite hop count, self pairs excluded.",
		}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "lookups_total",
			Help:      "First-hop lookups by result.",
		}, []string{"result"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forwarding",
			Name:      "decisions_total",
			Help:      "Per-hop forwarding outcomes.",
		}, []string{"action"}),
		DeflectAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "forwarding",
			Name:      "deflect_attempts",
			Help:      "Interfaces tried per deflection.",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		}),
	}
	reg.MustRegister(m.Rebuilds, m.RebuildDuration, m.TableNodes, m.ReachablePairs,
		m.Lookups, m.Decisions, m.DeflectAttempts)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveRebuild records a finished rebuild.
func (m *Metrics) ObserveRebuild(seconds float64, nodes, reachable int) {
	if m == nil {
		return
	}
	m.Rebuilds.Inc()
	m.RebuildDuration.Observe(seconds)
	m.TableNodes.Set(float64(nodes))
	m.ReachablePairs.Set(float64(reachable))
}

// ObserveLookup counts a lookup result ("ok", "self", "no_route", ...).
func (m *Metrics) ObserveLookup(result string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(result).Inc()
}

// ObserveDecision counts a forwarding outcome.
func (m *Metrics) ObserveDecision(action string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(action).Inc()
}

// ObserveDeflection records how many interfaces were tried.
func (m *Metrics) ObserveDeflection(attempts int) {
	if m == nil {
		return
	}
	m.DeflectAttempts.Observe(float64(attempts))
}
