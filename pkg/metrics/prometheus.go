// Package metrics provides Prometheus metrics for the dose review service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Dataset Metrics
	datasetRecords       prometheus.Gauge
	datasetReloads       *prometheus.CounterVec
	datasetDegradedCells *prometheus.CounterVec
	datasetLoadDuration  prometheus.Histogram

	// Pipeline Metrics
	filterLatency     prometheus.Histogram
	annotateLatency   prometheus.Histogram
	filteredRecords   prometheus.Histogram
	flaggedRecords    *prometheus.CounterVec
	emptyResults      *prometheus.CounterVec
	chartRenderErrors *prometheus.CounterVec

	// Review Session Metrics
	sessionsActive  prometheus.Gauge
	sessionsCreated prometheus.Counter
	sessionsEvicted prometheus.Counter
	rowEdits        prometheus.Counter
	commits         prometheus.Counter
	commitErrors    prometheus.Counter
	commitLatency   prometheus.Histogram

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec
	errorLatency        *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "dosewatch",
		subsystem:        "review",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.NewRegistry(),
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval is how often polled gauges, such as the system ones,
// should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// RefreshInterval returns the refresh interval of the global manager.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)
	if !m.enabled {
		auto = promauto.With(nil)
	}
	labels := prometheus.Labels(m.customLabels)

	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		})
	}
	counterVec := func(name, help string, lbls ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		}, lbls)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		})
	}
	histogram := func(name, help string, buckets []float64) prometheus.Histogram {
		return auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels, Buckets: buckets,
		})
	}
	histogramVec := func(name, help string, lbls ...string) *prometheus.HistogramVec {
		return auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels, Buckets: m.histogramBuckets,
		}, lbls)
	}

	// Dataset Metrics
	m.datasetRecords = gauge("dataset_records", "Number of records in the loaded dataset")
	m.datasetReloads = counterVec("dataset_reloads_total", "Dataset load attempts by outcome", "outcome")
	m.datasetDegradedCells = counterVec("dataset_degraded_cells_total", "Cells that degraded to null while parsing", "column")
	m.datasetLoadDuration = histogram("dataset_load_duration_milliseconds", "Dataset load duration in milliseconds", m.histogramBuckets)

	// Pipeline Metrics
	m.filterLatency = histogram("filter_latency_milliseconds", "Filter pipeline latency in milliseconds", m.histogramBuckets)
	m.annotateLatency = histogram("annotate_latency_milliseconds", "Outlier annotation latency in milliseconds", m.histogramBuckets)
	m.filteredRecords = histogram("filtered_records", "Records remaining after filtering",
		prometheus.ExponentialBuckets(1, 4, 10))
	m.flaggedRecords = counterVec("flagged_records_total", "Records flagged for review by reason", "reason")
	m.emptyResults = counterVec("empty_results_total", "Requests that produced no data", "view")
	m.chartRenderErrors = counterVec("chart_render_errors_total", "Chart render failures", "chart")

	// Review Session Metrics
	m.sessionsActive = gauge("sessions_active", "Open review sessions")
	m.sessionsCreated = counter("sessions_created_total", "Review sessions created")
	m.sessionsEvicted = counter("sessions_evicted_total", "Review sessions evicted to respect the session limit")
	m.rowEdits = counter("row_edits_total", "Flagged rows edited")
	m.commits = counter("commits_total", "Successful commits of edited rows")
	m.commitErrors = counter("commit_errors_total", "Failed commits of edited rows")
	m.commitLatency = histogram("commit_latency_milliseconds", "Commit latency in milliseconds", m.histogramBuckets)

	// HTTP Performance Metrics
	m.httpRequests = counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	// Error Metrics
	m.errorRateByType = counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = counterVec("errors_by_endpoint_total", "Total number of errors by endpoint",
		"endpoint", "method", "error_type")
	m.errorLatency = histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors",
		"component", "error_type")

	// System Performance Metrics
	m.systemMemoryUsage = gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Dataset Metrics Functions.

// UpdateDatasetRecords sets the number of loaded records.
func UpdateDatasetRecords(count int) {
	globalManager.datasetRecords.Set(float64(count))
}

// RecordDatasetReload counts a load attempt; outcome is "ok" or "error".
func RecordDatasetReload(outcome string) {
	globalManager.datasetReloads.WithLabelValues(outcome).Inc()
}

// RecordDegradedCells adds parse degradations for a column.
func RecordDegradedCells(column string, count int) {
	if count > 0 {
		globalManager.datasetDegradedCells.WithLabelValues(column).Add(float64(count))
	}
}

// RecordDatasetLoadDuration records a dataset load duration.
func RecordDatasetLoadDuration(d time.Duration) {
	globalManager.datasetLoadDuration.Observe(ms(d))
}

// Pipeline Metrics Functions.

// RecordFilter records a filter pass and the size of its result.
func RecordFilter(d time.Duration, remaining int) {
	globalManager.filterLatency.Observe(ms(d))
	globalManager.filteredRecords.Observe(float64(remaining))
}

// RecordAnnotate records an outlier annotation pass.
func RecordAnnotate(d time.Duration) {
	globalManager.annotateLatency.Observe(ms(d))
}

// RecordFlagged adds flagged records for a reason: "null", "zero" or "band".
func RecordFlagged(reason string, count int) {
	if count > 0 {
		globalManager.flaggedRecords.WithLabelValues(reason).Add(float64(count))
	}
}

// RecordEmptyResult counts a view that produced no data.
func RecordEmptyResult(view string) {
	globalManager.emptyResults.WithLabelValues(view).Inc()
}

// RecordChartRenderError counts a chart render failure.
func RecordChartRenderError(chart string) {
	globalManager.chartRenderErrors.WithLabelValues(chart).Inc()
}

// Review Session Metrics Functions.

// UpdateSessionsActive sets the number of open sessions.
func UpdateSessionsActive(count int) {
	globalManager.sessionsActive.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter.
func RecordSessionCreated() {
	globalManager.sessionsCreated.Inc()
}

// RecordSessionEvicted increments the sessions evicted counter.
func RecordSessionEvicted() {
	globalManager.sessionsEvicted.Inc()
}

// RecordRowEdit increments the row edits counter.
func RecordRowEdit() {
	globalManager.rowEdits.Inc()
}

// RecordCommit records a commit outcome and latency.
func RecordCommit(d time.Duration, err error) {
	if err != nil {
		globalManager.commitErrors.Inc()
		return
	}
	globalManager.commits.Inc()
	globalManager.commitLatency.Observe(ms(d))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
