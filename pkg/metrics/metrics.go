// Package metrics exposes Prometheus instrumentation for the scanner,
// monitor, health analyzer, and notification service. Construct one
// Metrics per process and hand it to the components; a nil *Metrics
// disables collection with zero overhead.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles all ShareGuard collectors on one registry.
type Metrics struct {
	registry *prometheus.Registry

	scansTotal    *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	scanErrors    *prometheus.CounterVec
	changesTotal  *prometheus.CounterVec
	issuesActive  *prometheus.GaugeVec
	healthScore   prometheus.Gauge
	watchedPaths  prometheus.Gauge
	queueDepth    prometheus.Gauge
	subscriptions prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New builds a Metrics with its own registry, including the standard Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: reg,

		scansTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shareguard_scans_total",
				Help: "Completed ACL scans by trigger",
			},
			[]string{"trigger"}, // "api", "monitor", "health", "cli"
		),
		scanDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shareguard_scan_duration_seconds",
				Help:    "Duration of single-path ACL scans",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 10},
			},
		),
		scanErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shareguard_scan_errors_total",
				Help: "Scan failures by error kind",
			},
			[]string{"kind"},
		),
		changesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shareguard_changes_detected_total",
				Help: "Significant permission changes by severity",
			},
			[]string{"severity"},
		),
		issuesActive: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shareguard_issues_active",
				Help: "Active health issues by severity",
			},
			[]string{"severity"},
		),
		healthScore: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "shareguard_health_score",
				Help: "Latest aggregate permission health score (0-100)",
			},
		),
		watchedPaths: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "shareguard_monitor_watched_paths",
				Help: "Paths currently in the monitor watch set",
			},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "shareguard_notify_queue_depth",
				Help: "Notifications awaiting delivery",
			},
		),
		subscriptions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "shareguard_notify_subscriptions",
				Help: "Live notification subscriptions",
			},
		),
		httpRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shareguard_http_requests_total",
				Help: "API requests by method, route, and status class",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shareguard_http_request_duration_seconds",
				Help:    "API request handling duration",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"method", "route"},
		),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveScan records one completed scan.
func (m *Metrics) ObserveScan(trigger string, d time.Duration) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(trigger).Inc()
	m.scanDuration.Observe(d.Seconds())
}

// ObserveScanError records one failed scan.
func (m *Metrics) ObserveScanError(kind string) {
	if m == nil {
		return
	}
	m.scanErrors.WithLabelValues(kind).Inc()
}

// ObserveChange records one significant change.
func (m *Metrics) ObserveChange(severity string) {
	if m == nil {
		return
	}
	m.changesTotal.WithLabelValues(severity).Inc()
}

// SetActiveIssues replaces the per-severity active issue gauges.
func (m *Metrics) SetActiveIssues(counts map[string]int) {
	if m == nil {
		return
	}
	for _, severity := range []string{"low", "medium", "high", "critical"} {
		m.issuesActive.WithLabelValues(severity).Set(float64(counts[severity]))
	}
}

// SetHealthScore publishes the latest aggregate score.
func (m *Metrics) SetHealthScore(score float64) {
	if m == nil {
		return
	}
	m.healthScore.Set(score)
}

// SetMonitorState publishes watch set size, queue depth, and connection
// count.
func (m *Metrics) SetMonitorState(watched, queued, connections int) {
	if m == nil {
		return
	}
	m.watchedPaths.Set(float64(watched))
	m.queueDepth.Set(float64(queued))
	m.subscriptions.Set(float64(connections))
}

// ObserveHTTP records one handled API request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
