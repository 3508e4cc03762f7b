package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for tplsync
type Metrics struct {
	// Sync counters
	SyncRunsTotal            *prometheus.CounterVec
	SyncDurationSeconds      *prometheus.HistogramVec
	TemplatesSyncedTotal     *prometheus.CounterVec
	ComparisonsComputedTotal prometheus.Counter
	DifferencesFoundTotal    *prometheus.CounterVec
	AppliesTotal             *prometheus.CounterVec

	// Store gauges
	Templates   *prometheus.GaugeVec
	Comparisons *prometheus.GaugeVec
	Backups     prometheus.Gauge
	BackupBytes prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds prometheus.Gauge
	Goroutines    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SyncRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tplsync_sync_runs_total",
				Help: "Total number of sync runs",
			},
			[]string{"job_type", "status"},
		),
		SyncDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tplsync_sync_duration_seconds",
				Help:    "Sync run duration in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"job_type"},
		),
		TemplatesSyncedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tplsync_templates_synced_total",
				Help: "Total number of template records created, updated or removed by sync",
			},
			[]string{"source", "action"},
		),
		ComparisonsComputedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tplsync_comparisons_computed_total",
				Help: "Total number of difference computations",
			},
		),
		DifferencesFoundTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tplsync_differences_found_total",
				Help: "Total number of differences found by kind",
			},
			[]string{"kind"},
		),
		AppliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tplsync_applies_total",
				Help: "Total number of apply attempts by result",
			},
			[]string{"result"},
		),

		Templates: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tplsync_templates",
				Help: "Number of stored template records",
			},
			[]string{"source", "status"},
		),
		Comparisons: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tplsync_comparisons",
				Help: "Number of comparisons by status",
			},
			[]string{"status"},
		),
		Backups: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tplsync_backups",
				Help: "Number of indexed template backups",
			},
		),
		BackupBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tplsync_backup_bytes",
				Help: "Total size of indexed template backups in bytes",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tplsync_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tplsync_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tplsync_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tplsync_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tplsync_goroutines",
				Help: "Number of active goroutines",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.SyncRunsTotal,
		m.SyncDurationSeconds,
		m.TemplatesSyncedTotal,
		m.ComparisonsComputedTotal,
		m.DifferencesFoundTotal,
		m.AppliesTotal,
		m.Templates,
		m.Comparisons,
		m.Backups,
		m.BackupBytes,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// ObserveSyncRun records a finished sync run
func ObserveSyncRun(jobType, status string, seconds float64) {
	m := Global()
	if m != nil {
		m.SyncRunsTotal.WithLabelValues(jobType, status).Inc()
		m.SyncDurationSeconds.WithLabelValues(jobType).Observe(seconds)
	}
}

// AddTemplatesSynced adds n to the synced template counter
func AddTemplatesSynced(source, action string, n int) {
	m := Global()
	if m != nil && n > 0 {
		m.TemplatesSyncedTotal.WithLabelValues(source, action).Add(float64(n))
	}
}

// ObserveComparison records one difference computation and its result counts
func ObserveComparison(counts map[string]int) {
	m := Global()
	if m == nil {
		return
	}
	m.ComparisonsComputedTotal.Inc()
	for kind, n := range counts {
		if n > 0 {
			m.DifferencesFoundTotal.WithLabelValues(kind).Add(float64(n))
		}
	}
}

// IncApplies increments the apply counter
func IncApplies(result string) {
	m := Global()
	if m != nil {
		m.AppliesTotal.WithLabelValues(result).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
