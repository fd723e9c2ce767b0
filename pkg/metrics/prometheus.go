// Package metrics provides Prometheus metrics for the call ledger service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	taskBuckets      []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Webhook Metrics - what happened to each delivery
	webhookEvents *prometheus.CounterVec

	// Ledger Metrics - optimistic read-modify-write
	ledgerAttempts  *prometheus.CounterVec
	ledgerConflicts *prometheus.CounterVec
	ledgerFailures  *prometheus.CounterVec
	ledgerRows      *prometheus.GaugeVec
	ledgerLatency   *prometheus.HistogramVec

	// Routing Metrics
	routingTableSize prometheus.Gauge

	// Side Effect Metrics - best-effort downstream tasks
	sideEffects       *prometheus.CounterVec
	sideEffectLatency *prometheus.HistogramVec
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueDropped      prometheus.Counter
	workerCount       prometheus.Gauge

	// Circuit Breaker Metrics
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "callledger",
		subsystem:        "webhook",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		taskBuckets:      []float64{25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)

	m.webhookEvents = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "events_total",
		Help:        "Webhook deliveries by dispatch outcome",
		ConstLabels: labels,
	}, []string{"outcome"})

	m.ledgerAttempts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "ledger",
		Name:        "append_attempts_total",
		Help:        "Read-merge-write attempts per ledger, including retries",
		ConstLabels: labels,
	}, []string{"ledger"})

	m.ledgerConflicts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "ledger",
		Name:        "conflicts_total",
		Help:        "Generation precondition failures per ledger",
		ConstLabels: labels,
	}, []string{"ledger"})

	m.ledgerFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "ledger",
		Name:        "failures_total",
		Help:        "Appends that failed after retries, by reason",
		ConstLabels: labels,
	}, []string{"ledger", "reason"})

	m.ledgerRows = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "ledger",
		Name:        "rows",
		Help:        "Rows in the ledger after the last successful append",
		ConstLabels: labels,
	}, []string{"ledger"})

	m.ledgerLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "ledger",
		Name:        "append_duration_milliseconds",
		Help:        "End-to-end append latency including retries",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"ledger"})

	m.routingTableSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "routing",
		Name:        "agents",
		Help:        "Number of routed producer identifiers",
		ConstLabels: labels,
	})

	m.sideEffects = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "side_effect",
		Name:        "tasks_total",
		Help:        "Side effect tasks by name and result",
		ConstLabels: labels,
	}, []string{"task", "result"})

	m.sideEffectLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "side_effect",
		Name:        "duration_milliseconds",
		Help:        "Side effect task duration",
		Buckets:     m.taskBuckets,
		ConstLabels: labels,
	}, []string{"task"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "side_effect",
		Name:        "queue_size",
		Help:        "Tasks waiting in the side effect queue",
		ConstLabels: labels,
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "side_effect",
		Name:        "queue_capacity",
		Help:        "Capacity of the side effect queue",
		ConstLabels: labels,
	})

	m.queueDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "side_effect",
		Name:        "dropped_total",
		Help:        "Tasks dropped because the queue was full or closed",
		ConstLabels: labels,
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "side_effect",
		Name:        "workers",
		Help:        "Running side effect workers",
		ConstLabels: labels,
	})

	m.breakerState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "breaker",
		Name:        "state",
		Help:        "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		ConstLabels: labels,
	}, []string{"name"})

	m.breakerTransitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "breaker",
		Name:        "transitions_total",
		Help:        "Circuit breaker state transitions",
		ConstLabels: labels,
	}, []string{"name", "from", "to"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        "requests_total",
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        "request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        "memory_usage_bytes",
		Help:        "System memory usage in bytes",
		ConstLabels: labels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        "goroutine_count",
		Help:        "Number of goroutines",
		ConstLabels: labels,
	})
}

// RecordWebhookEvent counts a delivery by its dispatch outcome.
func RecordWebhookEvent(outcome string) {
	globalManager.webhookEvents.WithLabelValues(outcome).Inc()
}

// Ledger Metrics Functions.

// RecordLedgerAttempt counts one read-merge-write attempt.
func RecordLedgerAttempt(ledger string) {
	globalManager.ledgerAttempts.WithLabelValues(ledger).Inc()
}

// RecordLedgerConflict counts one lost generation race.
func RecordLedgerConflict(ledger string) {
	globalManager.ledgerConflicts.WithLabelValues(ledger).Inc()
}

// RecordLedgerFailure counts an append that gave up.
func RecordLedgerFailure(ledger, reason string) {
	globalManager.ledgerFailures.WithLabelValues(ledger, reason).Inc()
}

// UpdateLedgerRows sets the row count observed after a successful append.
func UpdateLedgerRows(ledger string, rows int) {
	globalManager.ledgerRows.WithLabelValues(ledger).Set(float64(rows))
}

// RecordLedgerLatency records append latency in milliseconds.
func RecordLedgerLatency(ledger string, latencyMs float64) {
	globalManager.ledgerLatency.WithLabelValues(ledger).Observe(latencyMs)
}

// UpdateRoutingTableSize sets the number of routed agents.
func UpdateRoutingTableSize(n int) {
	globalManager.routingTableSize.Set(float64(n))
}

// Side Effect Metrics Functions.

// RecordSideEffect counts a finished side effect task.
func RecordSideEffect(task, result string) {
	globalManager.sideEffects.WithLabelValues(task, result).Inc()
}

// RecordSideEffectLatency records side effect latency in milliseconds.
func RecordSideEffectLatency(task string, latencyMs float64) {
	globalManager.sideEffectLatency.WithLabelValues(task).Observe(latencyMs)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueDropped counts a task that could not be enqueued.
func RecordQueueDropped() {
	globalManager.queueDropped.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// Circuit Breaker Metrics Functions.

// UpdateBreakerState sets the numeric breaker state.
func UpdateBreakerState(name string, state float64) {
	globalManager.breakerState.WithLabelValues(name).Set(state)
}

// RecordBreakerTransition counts a breaker state change.
func RecordBreakerTransition(name, from, to string) {
	globalManager.breakerTransitions.WithLabelValues(name, from, to).Inc()
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

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
