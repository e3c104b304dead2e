// Package metrics exposes Prometheus collectors for analysis runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jward/treehug/internal/model"
)

// Outcome labels for FilesAnalyzed.
const (
	OutcomeOK     = "ok"
	OutcomeCached = "cached"
	OutcomeError  = "error"
)

// Metrics groups the analyzer's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	FilesAnalyzed   *prometheus.CounterVec
	Diagnostics     *prometheus.CounterVec
	AnalyzeDuration *prometheus.HistogramVec
	CacheHits       prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. A nil reg uses a
// fresh private registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	var gatherer prometheus.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		FilesAnalyzed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "treehug_files_analyzed_total",
			Help: "Files analyzed, by language and outcome.",
		}, []string{"language", "outcome"}),
		Diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "treehug_diagnostics_total",
			Help: "Diagnostics reported, by tier and rule.",
		}, []string{"tier", "rule"}),
		AnalyzeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "treehug_analyze_duration_seconds",
			Help:    "Time spent analyzing a single file.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"language"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "treehug_cache_hits_total",
			Help: "File summaries served from the cache.",
		}),
		gatherer: gatherer,
	}
	for _, c := range []prometheus.Collector{m.FilesAnalyzed, m.Diagnostics, m.AnalyzeDuration, m.CacheHits} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveFile records one analyzed file.
func (m *Metrics) ObserveFile(language, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FilesAnalyzed.WithLabelValues(language, outcome).Inc()
	if outcome != OutcomeCached {
		m.AnalyzeDuration.WithLabelValues(language).Observe(d.Seconds())
	}
}

// ObserveCacheHit records a cache hit.
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// ObserveSummary counts the lint and syntax diagnostics of a summary.
func (m *Metrics) ObserveSummary(sum *model.FileSummary) {
	if m == nil || sum == nil {
		return
	}
	for _, ds := range [][]model.Diagnostic{sum.Lint, sum.Syntax} {
		for _, d := range ds {
			m.Diagnostics.WithLabelValues(string(d.Tier), d.Rule).Inc()
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
