package concurrency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackpressure_TryAcquireRespectsCapacity(t *testing.T) {
	bp := NewBackpressure(2)

	p1, ok := bp.TryAcquire()
	require.True(t, ok)
	p2, ok := bp.TryAcquire()
	require.True(t, ok)

	_, ok = bp.TryAcquire()
	require.False(t, ok, "a third permit must be rejected at capacity 2")
	require.Equal(t, uint64(1), bp.RejectedCount())

	p1.Release()
	p3, ok := bp.TryAcquire()
	require.True(t, ok, "a released permit must become available again")

	p2.Release()
	p3.Release()
}

func TestBackpressure_ReleaseIsIdempotent(t *testing.T) {
	bp := NewBackpressure(1)
	p, ok := bp.TryAcquire()
	require.True(t, ok)

	p.Release()
	p.Release() // must not panic or double-return the slot

	require.Equal(t, 1, bp.AvailablePermits())
}

func TestBackpressure_AcquireBlocksUntilReleaseOrContextDone(t *testing.T) {
	bp := NewBackpressure(1)
	held, ok := bp.TryAcquire()
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := bp.Acquire(ctx)
	require.Error(t, err, "acquire must respect context cancellation when no permit frees up")

	held.Release()
}

func TestBackpressure_StatsReportLoadPercentage(t *testing.T) {
	bp := NewBackpressure(4)
	p1, _ := bp.TryAcquire()
	p2, _ := bp.TryAcquire()

	stats := bp.Stats()
	require.Equal(t, 2, stats.ActiveCount)
	require.Equal(t, 2, stats.AvailablePermits)
	require.Equal(t, 50, stats.LoadPercentage)

	p1.Release()
	p2.Release()
}

func TestAdaptiveLimiter_HalvesConcurrencyOnHotLatency(t *testing.T) {
	limiter := NewAdaptiveLimiter(8, 1, 8, 1000, 10)

	for i := 0; i < 10; i++ {
		permit, ok := limiter.TryAcquire()
		require.True(t, ok)
		permit.ReleaseWithLatency(100) // 10x the 10ms target
	}

	require.Equal(t, 4, limiter.CurrentMaxConcurrent(), "mean latency over 2x target must halve the ceiling")
}

func TestAdaptiveLimiter_AdjustedCeilingActuallyGatesAdmission(t *testing.T) {
	limiter := NewAdaptiveLimiter(8, 1, 8, 1000, 10)

	for i := 0; i < 10; i++ {
		permit, ok := limiter.TryAcquire()
		require.True(t, ok)
		permit.ReleaseWithLatency(100) // drives the ceiling from 8 down to 4
	}
	require.Equal(t, 4, limiter.CurrentMaxConcurrent())

	held := make([]*AdaptivePermit, 0, 4)
	for i := 0; i < 4; i++ {
		p, ok := limiter.TryAcquire()
		require.True(t, ok, "must admit up to the adjusted ceiling")
		held = append(held, p)
	}

	_, ok := limiter.TryAcquire()
	require.False(t, ok, "a permit beyond the adjusted ceiling of 4 must be rejected, not silently admitted against the original capacity of 8")

	for _, p := range held {
		p.inner.Release()
	}
}

func TestAdaptiveLimiter_GrowsConcurrencyOnCoolLatency(t *testing.T) {
	limiter := NewAdaptiveLimiter(2, 1, 8, 1000, 100)

	for i := 0; i < 10; i++ {
		permit, ok := limiter.TryAcquire()
		require.True(t, ok)
		permit.ReleaseWithLatency(1) // well under half the 100ms target
	}

	require.Equal(t, 3, limiter.CurrentMaxConcurrent(), "mean latency under half target must grow the ceiling by one step")
}

func TestAdaptiveLimiter_GrownCeilingActuallyAdmitsMorePermits(t *testing.T) {
	limiter := NewAdaptiveLimiter(2, 1, 8, 1000, 100)

	for i := 0; i < 10; i++ {
		permit, ok := limiter.TryAcquire()
		require.True(t, ok)
		permit.ReleaseWithLatency(1) // drives the ceiling from 2 up to 3
	}
	require.Equal(t, 3, limiter.CurrentMaxConcurrent())

	held := make([]*AdaptivePermit, 0, 3)
	for i := 0; i < 3; i++ {
		p, ok := limiter.TryAcquire()
		require.True(t, ok, "the grown ceiling of 3 must actually admit a third concurrent permit, not stay capped at the original capacity of 2")
		held = append(held, p)
	}

	for _, p := range held {
		p.inner.Release()
	}
}

func TestAdaptiveLimiter_NeverExceedsConfiguredBounds(t *testing.T) {
	limiter := NewAdaptiveLimiter(100, 1, 8, 1000, 10)
	require.Equal(t, 8, limiter.CurrentMaxConcurrent(), "initial concurrent must clamp into [min,max]")
}
