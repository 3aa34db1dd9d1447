// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus counters and histograms for the HTTP
// surface, grounded on the teacher's client_golang usage in
// internal/metrics (request counters/histograms registered against a
// dedicated registry rather than the global one).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the HTTP surface updates per request.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
}

// New registers a fresh set of collectors against their own registry, so
// multiple Server instances in tests don't collide on the global one.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yaytapi",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests handled, by route and status code.",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yaytapi",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request handling latency, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yaytapi",
			Name:      "cache_hits_total",
			Help:      "Cache reads that found a fresh entry, by collection.",
		}, []string{"collection"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yaytapi",
			Name:      "cache_misses_total",
			Help:      "Cache reads that found no fresh entry, by collection.",
		}, []string{"collection"}),
	}

	reg.MustRegister(m.requestsTotal, m.requestDuration, m.cacheHits, m.cacheMisses)
	return m
}

// ObserveRequest records a completed request against route and status.
func (m *Metrics) ObserveRequest(route string, status int) {
	m.requestsTotal.WithLabelValues(route, http.StatusText(status)).Inc()
}

// ObserveDuration records how long route took to handle.
func (m *Metrics) ObserveDuration(route string, d time.Duration) {
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveCacheHit increments the cache-hit counter for collection.
func (m *Metrics) ObserveCacheHit(collection string) {
	m.cacheHits.WithLabelValues(collection).Inc()
}

// ObserveCacheMiss increments the cache-miss counter for collection.
func (m *Metrics) ObserveCacheMiss(collection string) {
	m.cacheMisses.WithLabelValues(collection).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
