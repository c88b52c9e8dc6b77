// Package metrics provides Prometheus instrumentation for the pay comparison service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values.
const (
	SchemeDefault   = "default"
	SchemeAlternate = "alternate"

	OutcomeMatched  = "matched"
	OutcomeFallback = "fallback"

	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Manager owns every collector. A nil *Manager is valid and records nothing.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         *prometheus.Registry

	// Pricing
	recordsPriced  *prometheus.CounterVec
	duplicates     prometheus.Counter
	fileErrors     prometheus.Counter
	enrichDuration prometheus.Histogram
	batchSize      prometheus.Histogram

	// Rate tables
	rateReloads      *prometheus.CounterVec
	rateTableEntries *prometheus.GaugeVec
	rateGeneration   prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a manager on a fresh registry unless one is supplied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "paycompare",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.recordsPriced = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "records_priced_total",
			Help:      "Timesheet records priced, by rate scheme and name-match outcome",
		},
		[]string{"scheme", "outcome"},
	)

	m.duplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "duplicates_total",
		Help:      "Records skipped on persist because name and date range already exist",
	})

	m.fileErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "file_errors_total",
		Help:      "Uploaded files or archive members that could not be extracted",
	})

	m.enrichDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "enrich_duration_seconds",
		Help:      "Time to price one batch against both rate tables",
		Buckets:   m.histogramBuckets,
	})

	m.batchSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_records",
		Help:      "Records per enriched batch",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	m.rateReloads = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "rate_reloads_total",
			Help:      "Rate table reloads by result",
		},
		[]string{"result"},
	)

	m.rateTableEntries = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "rate_table_entries",
			Help:      "Entries in the current rate table snapshot",
		},
		[]string{"table"},
	)

	m.rateGeneration = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rate_snapshot_generation",
		Help:      "Generation of the current rate table snapshot",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route, method and status",
			Buckets:   m.histogramBuckets,
		},
		[]string{"route", "method", "status"},
	)
}

func (m *Manager) on() bool { return m != nil && m.enabled }

// Registry returns the registry backing this manager.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ============================================================================
// Recording
// ============================================================================

// RecordPriced counts one record priced under scheme.
func (m *Manager) RecordPriced(scheme string, matched bool) {
	if !m.on() {
		return
	}
	outcome := OutcomeFallback
	if matched {
		outcome = OutcomeMatched
	}
	m.recordsPriced.WithLabelValues(scheme, outcome).Inc()
}

// RecordBatch observes the size and duration of one enriched batch.
func (m *Manager) RecordBatch(records int, d time.Duration) {
	if !m.on() {
		return
	}
	m.batchSize.Observe(float64(records))
	m.enrichDuration.Observe(d.Seconds())
}

// RecordDuplicates adds n skipped duplicates.
func (m *Manager) RecordDuplicates(n int) {
	if !m.on() || n <= 0 {
		return
	}
	m.duplicates.Add(float64(n))
}

// RecordFileErrors adds n extraction failures.
func (m *Manager) RecordFileErrors(n int) {
	if !m.on() || n <= 0 {
		return
	}
	m.fileErrors.Add(float64(n))
}

// RecordRateReload counts a reload attempt; on success it also publishes
// the new table sizes and generation.
func (m *Manager) RecordRateReload(err error, defaultEntries, alternateEntries int, generation uint64) {
	if !m.on() {
		return
	}
	if err != nil {
		m.rateReloads.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.rateReloads.WithLabelValues(ResultSuccess).Inc()
	m.rateTableEntries.WithLabelValues(SchemeDefault).Set(float64(defaultEntries))
	m.rateTableEntries.WithLabelValues(SchemeAlternate).Set(float64(alternateEntries))
	m.rateGeneration.Set(float64(generation))
}

// RecordHTTPRequest counts one request and observes its duration.
func (m *Manager) RecordHTTPRequest(route, method string, status int, d time.Duration) {
	if !m.on() {
		return
	}
	code := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(route, method, code).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, code).Observe(d.Seconds())
}
