package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/aria/pkg/log"
	"golang.org/x/time/rate"
)

// Backpressure is a counting semaphore that bounds the number of concurrent
// in-flight operations and tracks admission statistics.
type Backpressure struct {
	sem           chan struct{}
	maxConcurrent int

	waitingCount  atomic.Int64
	rejectedCount atomic.Uint64
	totalCount    atomic.Uint64
}

// NewBackpressure creates a limiter admitting at most maxConcurrent
// concurrent permits.
func NewBackpressure(maxConcurrent int) *Backpressure {
	return &Backpressure{
		sem:           make(chan struct{}, maxConcurrent),
		maxConcurrent: maxConcurrent,
	}
}

// BackpressurePermit represents one held slot in a Backpressure's semaphore.
// Release must be called exactly once to return the slot.
type BackpressurePermit struct {
	acquiredAt time.Time
	release    func()
	released   atomic.Bool
}

// HeldDuration returns how long this permit has been held.
func (p *BackpressurePermit) HeldDuration() time.Duration {
	return time.Since(p.acquiredAt)
}

// Release returns the permit's slot. Safe to call more than once.
func (p *BackpressurePermit) Release() {
	if p.released.CompareAndSwap(false, true) {
		p.release()
	}
}

// Acquire blocks until a permit is available or ctx is cancelled.
func (b *Backpressure) Acquire(ctx context.Context) (*BackpressurePermit, error) {
	b.totalCount.Add(1)
	b.waitingCount.Add(1)
	defer b.waitingCount.Add(-1)

	select {
	case b.sem <- struct{}{}:
		return b.newPermit(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire attempts to acquire a permit without blocking, incrementing the
// rejected counter on a miss.
func (b *Backpressure) TryAcquire() (*BackpressurePermit, bool) {
	b.totalCount.Add(1)

	select {
	case b.sem <- struct{}{}:
		return b.newPermit(), true
	default:
		b.rejectedCount.Add(1)
		return nil, false
	}
}

func (b *Backpressure) newPermit() *BackpressurePermit {
	p := &BackpressurePermit{acquiredAt: time.Now()}
	p.release = func() {
		<-b.sem
	}
	return p
}

// CanAcquire reports whether a permit is available right now.
func (b *Backpressure) CanAcquire() bool {
	return len(b.sem) < cap(b.sem)
}

// AvailablePermits returns the number of free slots.
func (b *Backpressure) AvailablePermits() int {
	return cap(b.sem) - len(b.sem)
}

// WaitingCount returns the number of callers currently blocked in Acquire.
func (b *Backpressure) WaitingCount() int {
	return int(b.waitingCount.Load())
}

// RejectedCount returns the cumulative count of TryAcquire misses.
func (b *Backpressure) RejectedCount() uint64 {
	return b.rejectedCount.Load()
}

// TotalCount returns the cumulative count of acquire attempts (blocking and
// non-blocking).
func (b *Backpressure) TotalCount() uint64 {
	return b.totalCount.Load()
}

// ActiveCount returns the number of permits currently held.
func (b *Backpressure) ActiveCount() int {
	return len(b.sem)
}

// LoadPercentage returns active/maxConcurrent as an integer percentage.
func (b *Backpressure) LoadPercentage() int {
	if b.maxConcurrent == 0 {
		return 0
	}
	return int((float64(b.ActiveCount()) / float64(b.maxConcurrent)) * 100)
}

// BackpressureStats is a snapshot of a Backpressure's admission counters.
type BackpressureStats struct {
	AvailablePermits int
	WaitingCount     int
	ActiveCount      int
	RejectedCount    uint64
	TotalCount       uint64
	LoadPercentage   int
}

// Stats returns a snapshot of the limiter's current counters.
func (b *Backpressure) Stats() BackpressureStats {
	return BackpressureStats{
		AvailablePermits: b.AvailablePermits(),
		WaitingCount:     b.WaitingCount(),
		ActiveCount:      b.ActiveCount(),
		RejectedCount:    b.RejectedCount(),
		TotalCount:       b.TotalCount(),
		LoadPercentage:   b.LoadPercentage(),
	}
}

// AdaptiveLimiter wraps a Backpressure semaphore and a token-bucket rate
// limiter with an AIMD-style controller: it halves current_max_concurrent
// when observed latency runs hot and grows it by one step when latency runs
// cool, within [min_concurrent, max_concurrent].
//
// currentMaxConcurrent is the operative admission ceiling, not merely a
// reported statistic: every adjustment rebuilds the underlying Backpressure
// semaphore at the new capacity, under mu, so the next Acquire/TryAcquire
// actually admits against the adjusted limit rather than the capacity fixed
// at construction.
type AdaptiveLimiter struct {
	rateLimiter     *rate.Limiter
	targetLatencyMs int64

	mu                   sync.Mutex
	backpressure         *Backpressure
	currentMaxConcurrent int
	minConcurrent        int
	maxConcurrent        int
	latencySamples       []int64
	sampleWindowSize     int
}

// NewAdaptiveLimiter creates an adaptive limiter. initialConcurrent is
// clamped into [minConcurrent, maxConcurrent].
func NewAdaptiveLimiter(initialConcurrent, minConcurrent, maxConcurrent int, ratePerSec int, targetLatencyMs int64) *AdaptiveLimiter {
	actual := initialConcurrent
	if actual < minConcurrent {
		actual = minConcurrent
	}
	if actual > maxConcurrent {
		actual = maxConcurrent
	}

	return &AdaptiveLimiter{
		backpressure:         NewBackpressure(actual),
		rateLimiter:          rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		targetLatencyMs:      targetLatencyMs,
		currentMaxConcurrent: actual,
		minConcurrent:        minConcurrent,
		maxConcurrent:        maxConcurrent,
		sampleWindowSize:     100,
	}
}

// AdaptivePermit is a held slot from an AdaptiveLimiter.
type AdaptivePermit struct {
	inner   *BackpressurePermit
	limiter *AdaptiveLimiter
}

// HeldDuration returns how long this permit has been held.
func (p *AdaptivePermit) HeldDuration() time.Duration {
	return p.inner.HeldDuration()
}

// ReleaseWithLatency releases the permit and reports the observed latency
// for the adaptive controller to factor into its next adjustment.
func (p *AdaptivePermit) ReleaseWithLatency(latencyMs int64) {
	p.inner.Release()
	p.limiter.reportLatency(latencyMs)
}

// currentBackpressure returns the semaphore currently gating admission.
// maybeAdjust swaps this pointer under mu whenever the ceiling changes, so
// callers always acquire against the latest adjusted capacity.
func (l *AdaptiveLimiter) currentBackpressure() *Backpressure {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backpressure
}

// Acquire waits for both the rate limiter and the concurrency semaphore.
func (l *AdaptiveLimiter) Acquire(ctx context.Context) (*AdaptivePermit, error) {
	if err := l.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	permit, err := l.currentBackpressure().Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &AdaptivePermit{inner: permit, limiter: l}, nil
}

// TryAcquire is the non-blocking counterpart to Acquire.
func (l *AdaptiveLimiter) TryAcquire() (*AdaptivePermit, bool) {
	if !l.rateLimiter.Allow() {
		return nil, false
	}
	permit, ok := l.currentBackpressure().TryAcquire()
	if !ok {
		return nil, false
	}
	return &AdaptivePermit{inner: permit, limiter: l}, true
}

func (l *AdaptiveLimiter) reportLatency(latencyMs int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.latencySamples) >= l.sampleWindowSize {
		l.latencySamples = l.latencySamples[1:]
	}
	l.latencySamples = append(l.latencySamples, latencyMs)

	l.maybeAdjust()
}

// maybeAdjust halves the concurrency ceiling when mean latency exceeds 2x
// target, or grows it by one when mean latency drops below half of target.
// Caller must hold l.mu.
func (l *AdaptiveLimiter) maybeAdjust() {
	if len(l.latencySamples) < 10 {
		return
	}

	var sum int64
	for _, s := range l.latencySamples {
		sum += s
	}
	avg := sum / int64(len(l.latencySamples))
	current := l.currentMaxConcurrent

	if avg > l.targetLatencyMs*2 {
		newConcurrent := current / 2
		if newConcurrent < l.minConcurrent {
			newConcurrent = l.minConcurrent
		}
		if newConcurrent < current {
			l.resize(newConcurrent)
			log.Logger.Warn().
				Int("from", current).
				Int("to", newConcurrent).
				Int64("avg_latency_ms", avg).
				Msg("adaptive limiter reducing concurrency")
		}
	} else if avg < l.targetLatencyMs/2 && current < l.maxConcurrent {
		newConcurrent := current + 1
		if newConcurrent > l.maxConcurrent {
			newConcurrent = l.maxConcurrent
		}
		l.resize(newConcurrent)
		log.Logger.Debug().
			Int("to", newConcurrent).
			Int64("avg_latency_ms", avg).
			Msg("adaptive limiter increasing concurrency")
	}
}

// resize rebuilds the admission semaphore at newConcurrent capacity. Permits
// already outstanding against the old semaphore keep releasing into it
// harmlessly; every Acquire/TryAcquire from this point admits against the
// new capacity. Caller must hold l.mu.
func (l *AdaptiveLimiter) resize(newConcurrent int) {
	l.currentMaxConcurrent = newConcurrent
	l.backpressure = NewBackpressure(newConcurrent)
}

// CurrentMaxConcurrent returns the adaptive controller's present ceiling.
func (l *AdaptiveLimiter) CurrentMaxConcurrent() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentMaxConcurrent
}
