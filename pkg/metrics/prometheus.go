// Package metrics provides Prometheus metrics for the survcast prediction service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Prediction pipeline
	predictionsTotal  prometheus.Counter
	predictionLatency prometheus.Histogram
	adapterLatency    *prometheus.HistogramVec
	adapterErrors     *prometheus.CounterVec
	ensembleWinners   *prometheus.CounterVec
	riskTiers         *prometheus.CounterVec
	explainFallbacks  prometheus.Counter

	// Batch scoring
	batchFiles       prometheus.Counter
	batchRows        prometheus.Counter
	batchRowFailures prometheus.Counter
	batchLatency     prometheus.Histogram

	// Cohorts
	cohortLoadLatency prometheus.Histogram
	cohortSize        *prometheus.GaugeVec

	// Worklist
	worklistSize            prometheus.Gauge
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Job queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram
	jobsDuplicate          prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "survcast",
		subsystem:        "engine",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		// Collectors still work but nothing scrapes them.
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts(m.counterOpts(name, help))
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
		Buckets:     m.histogramBuckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.predictionsTotal = auto.NewCounter(m.counterOpts("predictions_total", "Total number of single-patient predictions"))
	m.predictionLatency = auto.NewHistogram(m.histogramOpts("prediction_latency_milliseconds", "End-to-end prediction latency in milliseconds"))
	m.adapterLatency = auto.NewHistogramVec(m.histogramOpts("adapter_latency_milliseconds", "Model adapter prediction latency in milliseconds"), []string{"adapter"})
	m.adapterErrors = auto.NewCounterVec(m.counterOpts("adapter_errors_total", "Model adapter prediction failures"), []string{"adapter"})
	m.ensembleWinners = auto.NewCounterVec(m.counterOpts("ensemble_winner_total", "Number of times each adapter was selected"), []string{"adapter"})
	m.riskTiers = auto.NewCounterVec(m.counterOpts("risk_tier_total", "Patients scored per risk tier"), []string{"tier"})
	m.explainFallbacks = auto.NewCounter(m.counterOpts("explain_fallback_total", "Explanations served from the static ranking"))

	m.batchFiles = auto.NewCounter(m.counterOpts("batch_files_total", "Batch files scored"))
	m.batchRows = auto.NewCounter(m.counterOpts("batch_rows_total", "Batch rows scored"))
	m.batchRowFailures = auto.NewCounter(m.counterOpts("batch_row_failures_total", "Batch rows that failed to score"))
	m.batchLatency = auto.NewHistogram(m.histogramOpts("batch_latency_milliseconds", "Batch file scoring latency in milliseconds"))

	m.cohortLoadLatency = auto.NewHistogram(m.histogramOpts("cohort_load_latency_milliseconds", "Cohort load and fit latency in milliseconds"))
	m.cohortSize = auto.NewGaugeVec(m.gaugeOpts("cohort_size", "Number of subjects in each stored risk cohort"), []string{"tier"})

	m.worklistSize = auto.NewGauge(m.gaugeOpts("worklist_size", "Patients tracked by the risk worklist"))
	m.repositoryUpdateLatency = auto.NewHistogram(m.histogramOpts("repository_update_latency_milliseconds", "Worklist update latency in milliseconds"))
	m.repositoryQueryLatency = auto.NewHistogram(m.histogramOpts("repository_query_latency_milliseconds", "Worklist query latency in milliseconds"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the job queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum job queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Job queue utilization ratio (size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of jobs enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of rejected enqueues"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds", "Time a job spent queued in milliseconds"))
	m.jobsDuplicate = auto.NewCounter(m.counterOpts("jobs_duplicate_total", "Uploads that matched an existing job"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured number of job workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Workers currently running a job"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Job processing latency in milliseconds"))
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Jobs that finished with an error"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"), []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component"), []string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total", "Errors by type and severity"), []string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "Errors by endpoint"), []string{"endpoint", "method", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogramOpts("error_latency_milliseconds", "Latency of operations that resulted in errors"), []string{"component", "error_type"})
}

// RecordPrediction counts a prediction and its latency.
func RecordPrediction(latencyMs float64) {
	globalManager.predictionsTotal.Inc()
	globalManager.predictionLatency.Observe(latencyMs)
}

// RecordAdapterLatency records the latency of one adapter call.
func RecordAdapterLatency(adapter string, latencyMs float64) {
	globalManager.adapterLatency.WithLabelValues(adapter).Observe(latencyMs)
}

// RecordAdapterError counts a failed adapter call.
func RecordAdapterError(adapter string) {
	globalManager.adapterErrors.WithLabelValues(adapter).Inc()
}

// RecordEnsembleWinner counts the adapter chosen by the selector.
func RecordEnsembleWinner(adapter string) {
	globalManager.ensembleWinners.WithLabelValues(adapter).Inc()
}

// RecordRiskTier counts a patient assigned to tier.
func RecordRiskTier(tier string) {
	globalManager.riskTiers.WithLabelValues(tier).Inc()
}

// RecordExplainFallback counts an explanation served from the static ranking.
func RecordExplainFallback() {
	globalManager.explainFallbacks.Inc()
}

// RecordBatch records a scored batch file.
func RecordBatch(rows, failures int, latencyMs float64) {
	globalManager.batchFiles.Inc()
	globalManager.batchRows.Add(float64(rows))
	globalManager.batchRowFailures.Add(float64(failures))
	globalManager.batchLatency.Observe(latencyMs)
}

// RecordCohortLoad records how long it took to load and fit a cohort.
func RecordCohortLoad(tier string, size int, latencyMs float64) {
	globalManager.cohortSize.WithLabelValues(tier).Set(float64(size))
	globalManager.cohortLoadLatency.Observe(latencyMs)
}

// UpdateWorklistSize sets the number of tracked patients.
func UpdateWorklistSize(count int) {
	globalManager.worklistSize.Set(float64(count))
}

// RecordRepositoryUpdateLatency records a worklist update latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records a worklist query latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records how long a job waited in the queue.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// RecordJobDuplicate counts an upload deduplicated to an existing job.
func RecordJobDuplicate() {
	globalManager.jobsDuplicate.Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerActive adjusts the number of busy workers by delta.
func AddWorkerActive(delta int) {
	globalManager.workerActiveCount.Add(float64(delta))
}

// RecordWorkerProcessingLatency records job processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
