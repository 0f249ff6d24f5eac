/*
Package metrics provides Prometheus metrics collection and exposition for the
control plane.

The metrics package defines and registers all control-plane metrics using the
Prometheus client library, providing observability into registry size,
reconciliation activity, lifecycle operation latency, and concurrency
primitive behavior. Metrics are exposed via an HTTP endpoint for scraping by
Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Instance: counts by status                 │          │
	│  │  Registry: entry counts, upserts, load time │          │
	│  │  Lifecycle: op duration, outcome counts     │          │
	│  │  Supervisor: cycle duration/count, drift    │          │
	│  │  Concurrency: queue depth, circuit state,   │          │
	│  │    backpressure rejections, dedup hits      │          │
	│  │  API: request count, duration by route      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────────┘

# Timer Helper

Timer wraps time.Now() and is the common pattern used across the codebase for
timing an operation and recording it to a histogram:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

Use ObserveDurationVec for histograms with labels.
*/
package metrics
