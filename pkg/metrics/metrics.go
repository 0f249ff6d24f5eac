package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Instance metrics
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aria_instances_total",
			Help: "Total number of instances by status",
		},
		[]string{"status"},
	)

	// Registry metrics
	RegistryEntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aria_registry_entries_total",
			Help: "Total number of registry entries by kind and tenant",
		},
		[]string{"kind", "tenant_id"},
	)

	RegistryUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aria_registry_upserts_total",
			Help: "Total number of registry upsert operations by kind",
		},
		[]string{"kind"},
	)

	RegistryLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aria_registry_load_seconds",
			Help:    "Duration of a registry's lazy load-on-first-use",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Lifecycle metrics
	LifecycleOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aria_lifecycle_ops_total",
			Help: "Total lifecycle operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	LifecycleOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aria_lifecycle_op_seconds",
			Help:    "Duration of lifecycle operations (start/stop/restart)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"op"},
	)

	// Supervisor / reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aria_reconciliation_duration_seconds",
			Help:    "Duration of one supervisor reconciliation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aria_reconciliation_cycles_total",
			Help: "Total number of supervisor reconciliation cycles run",
		},
	)

	DriftCorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aria_drift_corrections_total",
			Help: "Total number of drift corrections by kind (crash, drift)",
		},
		[]string{"kind"},
	)

	SandboxPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aria_sandbox_pruned_total",
			Help: "Total number of sandbox containers pruned for idle/age",
		},
	)

	// Concurrency primitive metrics
	WorkerPoolQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aria_worker_pool_queue_depth",
			Help: "Current depth of the worker pool's task queue",
		},
	)

	WorkerPoolTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aria_worker_pool_tasks_total",
			Help: "Total tasks processed by the worker pool by outcome",
		},
		[]string{"outcome"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aria_circuit_breaker_state",
			Help: "Current circuit breaker state (0=Closed, 1=Open, 2=HalfOpen)",
		},
		[]string{"name"},
	)

	BackpressureRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aria_backpressure_rejected_total",
			Help: "Total requests rejected by backpressure by limiter name",
		},
		[]string{"name"},
	)

	DeduplicatorHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aria_deduplicator_hits_total",
			Help: "Total deduplicator hits by variant (exact, sliding, bloom)",
		},
		[]string{"variant"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aria_api_requests_total",
			Help: "Total HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aria_api_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		InstancesTotal,
		RegistryEntriesTotal,
		RegistryUpsertsTotal,
		RegistryLoadDuration,
		LifecycleOpsTotal,
		LifecycleOpDuration,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		DriftCorrectionsTotal,
		SandboxPrunedTotal,
		WorkerPoolQueueDepth,
		WorkerPoolTasksTotal,
		CircuitBreakerState,
		BackpressureRejectedTotal,
		DeduplicatorHitsTotal,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
