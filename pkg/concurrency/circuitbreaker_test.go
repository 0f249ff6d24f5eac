package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsOpenAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{
		FailureThreshold:     2,
		SuccessThreshold:     2,
		TimeoutDuration:      time.Minute,
		HalfOpenMaxRatio:     1.0,
		StatsWindowSize:      10,
		EnableHalfOpen:       true,
		MinCallsBeforeStat:   100,
		FailureRateThreshold: 1.0,
	})

	require.True(t, cb.AllowRequest())
	cb.RecordFailure()
	require.Equal(t, Closed, cb.State())

	cb.RecordFailure()
	require.Equal(t, Open, cb.State(), "next observation after reaching failure_threshold must be Open")
	require.False(t, cb.AllowRequest())
}

func TestCircuitBreaker_TripsOpenOnFailureRate(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{
		FailureThreshold:     1000, // never trip on consecutive alone
		SuccessThreshold:     2,
		TimeoutDuration:      time.Minute,
		HalfOpenMaxRatio:     1.0,
		StatsWindowSize:      10,
		EnableHalfOpen:       true,
		MinCallsBeforeStat:   4,
		FailureRateThreshold: 0.5,
	})

	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordSuccess()
	require.Equal(t, Closed, cb.State())

	cb.RecordFailure() // 4 calls total, 2 failures => rate 0.5 meets threshold
	require.Equal(t, Open, cb.State())
}

func TestCircuitBreaker_FullRecoveryCycle(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{
		FailureThreshold:     2,
		SuccessThreshold:     2,
		TimeoutDuration:      1 * time.Millisecond,
		HalfOpenMaxRatio:     1.0,
		StatsWindowSize:      10,
		EnableHalfOpen:       true,
		MinCallsBeforeStat:   100,
		FailureRateThreshold: 1.0,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, Open, cb.State())

	time.Sleep(10 * time.Millisecond)

	require.True(t, cb.AllowRequest(), "elapsed timeout must lazily admit a half-open probe")
	require.Equal(t, HalfOpen, cb.State())

	cb.RecordSuccess()
	require.Equal(t, HalfOpen, cb.State())
	cb.RecordSuccess()
	require.Equal(t, Closed, cb.State(), "success_threshold consecutive successes in half-open must close the breaker")
}

func TestCircuitBreaker_AnyFailureInHalfOpenReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{
		FailureThreshold:     1,
		SuccessThreshold:     2,
		TimeoutDuration:      1 * time.Millisecond,
		HalfOpenMaxRatio:     1.0,
		StatsWindowSize:      10,
		EnableHalfOpen:       true,
		MinCallsBeforeStat:   100,
		FailureRateThreshold: 1.0,
	})

	cb.RecordFailure()
	require.Equal(t, Open, cb.State())

	time.Sleep(5 * time.Millisecond)
	require.True(t, cb.AllowRequest())
	require.Equal(t, HalfOpen, cb.State())

	cb.RecordFailure()
	require.Equal(t, Open, cb.State(), "any failure while half-open must re-trip the breaker")
}

func TestCircuitBreaker_HalfOpenAdmitsOnlyConfiguredRatio(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{
		FailureThreshold:     1,
		SuccessThreshold:     5,
		TimeoutDuration:      1 * time.Millisecond,
		HalfOpenMaxRatio:     0.5,
		StatsWindowSize:      10,
		EnableHalfOpen:       true,
		MinCallsBeforeStat:   100,
		FailureRateThreshold: 1.0,
	})

	cb.RecordFailure()
	require.Equal(t, Open, cb.State())
	time.Sleep(5 * time.Millisecond)

	require.True(t, cb.AllowRequest(), "the call that lazily transitions Open->HalfOpen is itself admitted")
	require.True(t, cb.AllowRequest(), "ceil(1*0.5)=1 half-open probe is admitted once in state")
	require.False(t, cb.AllowRequest(), "a third half-open probe beyond the allowed ratio must be rejected")
}

func TestCircuitBreaker_ResetReturnsToClosedAndClearsStats(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitConfig())
	cb.ForceOpen()
	require.Equal(t, Open, cb.State())

	cb.Reset()
	require.Equal(t, Closed, cb.State())
	stats := cb.Stats()
	require.Equal(t, uint32(0), stats.ConsecutiveFailures)
	require.Equal(t, uint64(0), stats.TotalCalls)
}
