// SPDX-License-Identifier: MIT

package graph

import "github.com/prometheus/client_golang/prometheus"

// Metrics carries the link cache's hit/miss counters. A handle passed
// by reference through the cache constructors rather than process-wide
// globals, so tests and one-off runs can isolate or drop it.
type Metrics struct {
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
}

// NewMetrics registers the link cache's counters on reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry; cmd/linkgraph-server registers against
// prometheus.DefaultRegisterer so promhttp.Handler() can serve it.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkgraph_cache_hits_total",
			Help: "Number of link cache lookups served from the preloaded adjacency map.",
		}, []string{"direction"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkgraph_cache_misses_total",
			Help: "Number of link cache lookups that fell through to the store.",
		}, []string{"direction"}),
	}
	if reg != nil {
		reg.MustRegister(m.cacheHits, m.cacheMisses)
	}
	return m
}

// RecordCacheHit increments the hit counter for direction. A nil Metrics
// is a no-op so callers (tests, one-off BFS runs) can pass nil instead of
// wiring a registry.
func (m *Metrics) RecordCacheHit(d Direction) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(d.String()).Inc()
}

// RecordCacheMiss increments the miss counter for direction.
func (m *Metrics) RecordCacheMiss(d Direction) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(d.String()).Inc()
}
