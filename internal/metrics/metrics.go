// Package metrics provides Prometheus instrumentation for the configurator
// server.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so that only configurator metrics appear on the /metrics endpoint.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors used by the configurator server.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	ResolutionsTotal      *prometheus.CounterVec
	SKUParsesTotal        *prometheus.CounterVec
	RuleApplicationsTotal prometheus.Counter
	SnapshotCacheHits     prometheus.Counter
	SnapshotCacheMisses   prometheus.Counter
	SnapshotInvalidations prometheus.Counter
	AuthFailuresTotal     prometheus.Counter
}

// New creates and registers all configurator metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "configurator_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "configurator_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "configurator_resolutions_total",
			Help: "Total number of configuration resolutions.",
		}, []string{"outcome"}),

		SKUParsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "configurator_sku_parses_total",
			Help: "Total number of SKU parse requests.",
		}, []string{"status"}),

		RuleApplicationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "configurator_rule_applications_total",
			Help: "Total number of configuration rules applied across resolutions.",
		}),

		SnapshotCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "configurator_snapshot_cache_hits_total",
			Help: "Total number of catalog snapshot cache hits.",
		}),

		SnapshotCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "configurator_snapshot_cache_misses_total",
			Help: "Total number of catalog snapshot cache misses.",
		}),

		SnapshotInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "configurator_snapshot_invalidations_total",
			Help: "Total number of NOTIFY-triggered snapshot invalidations.",
		}),

		AuthFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "configurator_auth_failures_total",
			Help: "Total number of failed authentication attempts.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ResolutionsTotal,
		m.SKUParsesTotal,
		m.RuleApplicationsTotal,
		m.SnapshotCacheHits,
		m.SnapshotCacheMisses,
		m.SnapshotInvalidations,
		m.AuthFailuresTotal,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}

// SnapshotCacheHit increments the snapshot cache hit counter.
func (m *Metrics) SnapshotCacheHit() {
	m.SnapshotCacheHits.Inc()
}

// SnapshotCacheMiss increments the snapshot cache miss counter.
func (m *Metrics) SnapshotCacheMiss() {
	m.SnapshotCacheMisses.Inc()
}

// SnapshotInvalidated increments the snapshot invalidation counter.
func (m *Metrics) SnapshotInvalidated() {
	m.SnapshotInvalidations.Inc()
}

// ResolutionCompleted increments the resolution counter with the given outcome.
func (m *Metrics) ResolutionCompleted(outcome string) {
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
}

// RecordSKUParse increments the SKU parse counter with the given status.
func (m *Metrics) RecordSKUParse(status string) {
	m.SKUParsesTotal.WithLabelValues(status).Inc()
}

// RulesApplied adds the number of rules applied by one resolution.
func (m *Metrics) RulesApplied(count int) {
	m.RuleApplicationsTotal.Add(float64(count))
}

// IncAuthFailures increments the failed authentication counter.
func (m *Metrics) IncAuthFailures() {
	m.AuthFailuresTotal.Inc()
}
