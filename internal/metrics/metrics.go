// Package metrics exposes Prometheus collectors for verification runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/factchecker/citecheck/internal/models"
)

// Metrics holds the collectors of one process. A nil *Metrics records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	results      *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	runDuration  prometheus.Histogram
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citecheck_results_total",
			Help: "Verification results by status and source.",
		}, []string{"status", "source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citecheck_cache_lookups_total",
			Help: "Result cache lookups by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "citecheck_run_duration_seconds",
			Help:    "Wall-clock duration of verification runs.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}
	m.registry.MustRegister(m.results, m.cacheLookups, m.runDuration)
	return m
}

// ObserveResult counts one emitted result.
func (m *Metrics) ObserveResult(r models.VerificationResult) {
	if m == nil {
		return
	}
	m.results.With(prometheus.Labels{"status": string(r.Status), "source": string(r.Source)}).Inc()
}

// ObserveCache counts cache hits and misses of a run.
func (m *Metrics) ObserveCache(hits, misses int64) {
	if m == nil {
		return
	}
	m.cacheLookups.With(prometheus.Labels{"outcome": "hit"}).Add(float64(hits))
	m.cacheLookups.With(prometheus.Labels{"outcome": "miss"}).Add(float64(misses))
}

// ObserveRun records the duration of a finished run.
func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
