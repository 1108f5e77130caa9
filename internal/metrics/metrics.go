// Package metrics exposes Prometheus instrumentation for the memory engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hybrid_memory"

// Manager owns a private registry. A disabled Manager accepts every call and records nothing.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	searches       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	searchResults  prometheus.Histogram

	distillations       *prometheus.CounterVec
	distillationSeconds prometheus.Histogram

	reclaimed     prometheus.Counter
	indexFailures *prometheus.CounterVec

	lexicalDocs  prometheus.Gauge
	vectorCount  prometheus.Gauge
	orphanRatio  prometheus.Gauge
	liveSessions prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewManager creates a manager; when enabled is false every method is a no-op.
func NewManager(enabled bool) *Manager {
	if !enabled {
		return &Manager{}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{registry: registry, enabled: true}
	m.initRetrievalMetrics()
	m.initLifecycleMetrics()
	m.initHTTPMetrics()
	return m
}

// Enabled reports whether metrics are collected.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Manager) initRetrievalMetrics() {
	m.searches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "searches_total",
		Help:      "Searches by retrieval mode",
	}, []string{"mode"})
	m.searchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_duration_seconds",
		Help:      "Search latency including hydration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"mode"})
	m.searchResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_results",
		Help:      "Memories returned per search",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	})
	m.registry.MustRegister(m.searches, m.searchDuration, m.searchResults)
}

func (m *Manager) initLifecycleMetrics() {
	m.distillations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "distillations_total",
		Help:      "Session distillations by result",
	}, []string{"result"})
	m.distillationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "distillation_duration_seconds",
		Help:      "Time to summarize and store a session buffer",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
	m.reclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reclaimed_total",
		Help:      "Long-term memories archived by reclamation",
	})
	m.indexFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "index_failures_total",
		Help:      "Index fan-out failures that left the engine dirty",
	}, []string{"op"})
	m.lexicalDocs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lexical_documents",
		Help:      "Documents in the lexical index",
	})
	m.vectorCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "vector_entries",
		Help:      "Live vectors in the vector index",
	})
	m.orphanRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "vector_orphan_ratio",
		Help:      "Fraction of vector slots no longer mapped to a memory",
	})
	m.liveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Sessions with a live buffer",
	})
	m.registry.MustRegister(m.distillations, m.distillationSeconds, m.reclaimed, m.indexFailures,
		m.lexicalDocs, m.vectorCount, m.orphanRatio, m.liveSessions)
}

// ObserveSearch records one search.
func (m *Manager) ObserveSearch(mode string, d time.Duration, results int) {
	if !m.enabled {
		return
	}
	m.searches.WithLabelValues(mode).Inc()
	m.searchDuration.WithLabelValues(mode).Observe(d.Seconds())
	m.searchResults.Observe(float64(results))
}

// ObserveDistillation records one distillation attempt.
func (m *Manager) ObserveDistillation(result string, d time.Duration) {
	if !m.enabled {
		return
	}
	m.distillations.WithLabelValues(result).Inc()
	m.distillationSeconds.Observe(d.Seconds())
}

// AddReclaimed counts archived memories.
func (m *Manager) AddReclaimed(n int) {
	if !m.enabled || n <= 0 {
		return
	}
	m.reclaimed.Add(float64(n))
}

// IncIndexFailure counts a failed index operation.
func (m *Manager) IncIndexFailure(op string) {
	if !m.enabled {
		return
	}
	m.indexFailures.WithLabelValues(op).Inc()
}

// SetIndexSizes updates the index gauges.
func (m *Manager) SetIndexSizes(lexical, vectors int, orphanRatio float64) {
	if !m.enabled {
		return
	}
	m.lexicalDocs.Set(float64(lexical))
	m.vectorCount.Set(float64(vectors))
	m.orphanRatio.Set(orphanRatio)
}

// SetSessions updates the live session gauge.
func (m *Manager) SetSessions(n int) {
	if !m.enabled {
		return
	}
	m.liveSessions.Set(float64(n))
}
