/*
Package concurrency provides the control plane's tenant-facing concurrency
primitives: a priority worker pool, backpressure admission control, a
circuit breaker, and request deduplication.

These are the building blocks a tenant daemon composes internally; the
control plane spawns and monitors tenant processes but does not share their
in-memory concurrency state across instances.

# Worker Pool

A fixed set of goroutines drains a priority-ordered queue (Critical before
Background, FIFO within a priority). Submit blocks for a result; TrySubmit
is non-blocking and returns Full/Closed on rejection. Every task runs with
an effective timeout (task-specific or the pool default) and yields one of
Success/Failure/Timeout/Cancelled/Rejected.

# Backpressure

A counting semaphore bounds concurrent in-flight work; AdaptiveLimiter layers
a token-bucket rate limiter plus an AIMD controller on top, halving its
concurrency ceiling when reported latency runs hot and growing it by one
step when latency runs cool.

# Circuit Breaker

Closed/Open/HalfOpen with config-driven trip conditions (consecutive
failures or failure rate over a minimum sample size) and half-open admission
limited to a configurable ratio of probe requests.

# Deduplicator

Exact (TTL + LRU-capped), sliding-window, and Bloom-filter variants,
composable as a HybridDeduplicator that checks shortest-lived layers first.
*/
package concurrency
