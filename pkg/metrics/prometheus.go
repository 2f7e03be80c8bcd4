// Package metrics provides Prometheus metrics for the jury judging engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultRefreshInterval = 10 * time.Second

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Engine metrics
	assignments     *prometheus.CounterVec
	assignmentFails *prometheus.CounterVec
	votes           prometheus.Counter
	flags           *prometheus.CounterVec
	skips           prometheus.Counter
	busy            prometheus.Counter
	conflictRetries *prometheus.CounterVec
	voteDuplicates  prometheus.Counter
	muShift         prometheus.Histogram
	clockRunning    prometheus.Gauge

	// Population gauges
	activeProjects prometheus.Gauge
	totalProjects  prometheus.Gauge
	totalJudges    prometheus.Gauge

	// Store
	storeReadLatency  prometheus.Histogram
	storeWriteLatency prometheus.Histogram
	storeRecords      *prometheus.GaugeVec

	// Rankings projection
	leaderboardUpdates prometheus.Counter
	leaderboardSize    prometheus.Gauge

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueDequeued           prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRateLimited     *prometheus.CounterVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "jury",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		// Collectors still accept updates but are never exported.
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

// RefreshInterval is how often periodically sampled gauges should be updated.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels, Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.assignments = m.counterVec("assignments_total", "Projects handed to judges, by how the assignment ended", "outcome")
	m.assignmentFails = m.counterVec("assignment_failures_total", "GetNext calls that produced no assignment", "reason")
	m.votes = m.counter("votes_total", "Pairwise comparisons applied")
	m.flags = m.counterVec("flags_total", "Flags recorded by reason", "reason")
	m.skips = m.counter("skips_total", "Assignments skipped by judges")
	m.busy = m.counter("busy_total", "Assignments rolled back because the project was busy")
	m.conflictRetries = m.counterVec("conflict_retries_total", "Optimistic write conflicts retried", "operation")
	m.voteDuplicates = m.counter("vote_duplicates_total", "Replayed vote submissions dropped by request id")
	m.muShift = m.histogram("mu_shift", "Absolute mu change of the winner per vote",
		[]float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10})
	m.clockRunning = m.gauge("clock_running", "1 while the judging window is open")

	m.activeProjects = m.gauge("active_projects", "Projects still eligible for assignment")
	m.totalProjects = m.gauge("projects", "Projects known to the store")
	m.totalJudges = m.gauge("judges", "Judges known to the store")

	m.storeReadLatency = m.histogram("store_read_latency_milliseconds", "Rating store read latency", m.histogramBuckets)
	m.storeWriteLatency = m.histogram("store_write_latency_milliseconds", "Rating store write latency", m.histogramBuckets)
	m.storeRecords = m.gaugeVec("store_records", "Records held by the rating store", "kind")

	m.leaderboardUpdates = m.counter("leaderboard_updates_total", "Rankings projection updates applied")
	m.leaderboardSize = m.gauge("leaderboard_size", "Projects present in the rankings projection")

	m.queueSize = m.gauge("queue_size", "Projection events waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Projection queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Projection events enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Projection events dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Projection events dropped on enqueue")
	m.workerCount = m.gauge("worker_count", "Projection workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Projection event processing latency", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Projection events that failed to apply")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_requests_total"),
		Help: "HTTP requests by endpoint, method and status", ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_request_duration_milliseconds"),
		Help: "HTTP request duration in milliseconds", ConstLabels: m.customLabels, Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRateLimited = m.counterVec("http_rate_limited_total", "Requests rejected by the per-judge limiter", "endpoint")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and kind", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

// RecordAssignment counts a finished assignment by outcome (voted, flagged, skipped, busy, advanced).
func RecordAssignment(outcome string) {
	globalManager.assignments.WithLabelValues(outcome).Inc()
}

// RecordAssignmentFailure counts a GetNext call that failed.
func RecordAssignmentFailure(reason string) {
	globalManager.assignmentFails.WithLabelValues(reason).Inc()
}

// RecordVote counts an applied comparison and observes the winner's mu shift.
func RecordVote(muShift float64) {
	globalManager.votes.Inc()
	globalManager.muShift.Observe(muShift)
}

// RecordFlag counts a flag by reason.
func RecordFlag(reason string) {
	globalManager.flags.WithLabelValues(reason).Inc()
}

// RecordSkip counts a skipped assignment.
func RecordSkip() {
	globalManager.skips.Inc()
}

// RecordBusy counts a busy rollback.
func RecordBusy() {
	globalManager.busy.Inc()
}

// RecordConflictRetry counts an optimistic conflict retried by operation.
func RecordConflictRetry(operation string) {
	globalManager.conflictRetries.WithLabelValues(operation).Inc()
}

// RecordVoteDuplicate counts a replayed vote dropped by request id.
func RecordVoteDuplicate() {
	globalManager.voteDuplicates.Inc()
}

// UpdateClockRunning sets the clock gauge.
func UpdateClockRunning(running bool) {
	v := 0.0
	if running {
		v = 1
	}
	globalManager.clockRunning.Set(v)
}

// UpdatePopulation sets project and judge gauges.
func UpdatePopulation(projects, activeProjects, judges int) {
	globalManager.totalProjects.Set(float64(projects))
	globalManager.activeProjects.Set(float64(activeProjects))
	globalManager.totalJudges.Set(float64(judges))
}

// RecordStoreReadLatency records a store read in milliseconds.
func RecordStoreReadLatency(ms float64) {
	globalManager.storeReadLatency.Observe(ms)
}

// RecordStoreWriteLatency records a store write in milliseconds.
func RecordStoreWriteLatency(ms float64) {
	globalManager.storeWriteLatency.Observe(ms)
}

// UpdateStoreRecords sets the record count for a kind (project, judge, flag).
func UpdateStoreRecords(kind string, count int) {
	globalManager.storeRecords.WithLabelValues(kind).Set(float64(count))
}

// RecordLeaderboardUpdate counts an applied rankings update.
func RecordLeaderboardUpdate() {
	globalManager.leaderboardUpdates.Inc()
}

// UpdateLeaderboardSize sets the rankings projection size.
func UpdateLeaderboardSize(size int) {
	globalManager.leaderboardSize.Set(float64(size))
}

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an enqueued event.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeued event.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a dropped event.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records how long a worker spent on one event.
func RecordWorkerProcessingLatency(ms float64) {
	globalManager.workerProcessingLatency.Observe(ms)
}

// RecordWorkerError counts an event a worker failed to apply.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// RecordHTTPRateLimited counts a request rejected by the limiter.
func RecordHTTPRateLimited(endpoint string) {
	globalManager.httpRateLimited.WithLabelValues(endpoint).Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
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

// RefreshInterval is the global manager's gauge refresh interval.
func RefreshInterval() time.Duration {
	return globalManager.RefreshInterval()
}

// GetRegistry returns the registry that holds the service metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
