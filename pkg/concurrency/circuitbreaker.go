package concurrency

import (
	"math"
	"sync"
	"time"

	"github.com/cuemby/aria/pkg/log"
)

// CircuitState is the current state of a CircuitBreaker.
type CircuitState int

const (
	Closed CircuitState = iota
	Open
	HalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// CircuitConfig controls a CircuitBreaker's trip and recovery behavior.
type CircuitConfig struct {
	FailureThreshold     uint32
	SuccessThreshold     uint32
	TimeoutDuration      time.Duration
	HalfOpenMaxRatio     float64
	StatsWindowSize      int
	EnableHalfOpen       bool
	MinCallsBeforeStat   uint32
	FailureRateThreshold float64
}

// DefaultCircuitConfig mirrors the breaker's conservative default policy.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		FailureThreshold:     5,
		SuccessThreshold:     3,
		TimeoutDuration:      60 * time.Second,
		HalfOpenMaxRatio:     0.1,
		StatsWindowSize:      100,
		EnableHalfOpen:       true,
		MinCallsBeforeStat:   10,
		FailureRateThreshold: 0.5,
	}
}

// FastFailCircuitConfig trips on the first failure.
func FastFailCircuitConfig() CircuitConfig {
	cfg := DefaultCircuitConfig()
	cfg.FailureThreshold = 1
	cfg.TimeoutDuration = 30 * time.Second
	return cfg
}

// LenientCircuitConfig tolerates more failures before tripping.
func LenientCircuitConfig() CircuitConfig {
	cfg := DefaultCircuitConfig()
	cfg.FailureThreshold = 10
	cfg.FailureRateThreshold = 0.8
	cfg.TimeoutDuration = 120 * time.Second
	return cfg
}

// StrictCircuitConfig trips fast and recovers slowly.
func StrictCircuitConfig() CircuitConfig {
	cfg := DefaultCircuitConfig()
	cfg.FailureThreshold = 3
	cfg.FailureRateThreshold = 0.3
	cfg.TimeoutDuration = 30 * time.Second
	cfg.SuccessThreshold = 5
	return cfg
}

// CallResult is the outcome of one call recorded against a breaker.
type CallResult int

const (
	CallSuccess CallResult = iota
	CallFailure
	CallTimeout
	CallRejected
)

type statRecord struct {
	result    CallResult
	timestamp time.Time
}

// circuitStats is the bounded window of recent call outcomes plus the
// consecutive-failure/-success counters used by trip and recovery checks.
type circuitStats struct {
	records              []statRecord
	windowSize           int
	consecutiveFailures  uint32
	consecutiveSuccesses uint32
	totalCalls           uint64
}

func newCircuitStats(windowSize int) *circuitStats {
	return &circuitStats{records: make([]statRecord, 0, windowSize), windowSize: windowSize}
}

func (s *circuitStats) record(result CallResult) {
	if len(s.records) >= s.windowSize {
		s.records = s.records[1:]
	}
	s.records = append(s.records, statRecord{result: result, timestamp: time.Now()})
	s.totalCalls++

	switch result {
	case CallSuccess:
		s.consecutiveSuccesses++
		s.consecutiveFailures = 0
	case CallFailure, CallTimeout:
		s.consecutiveFailures++
		s.consecutiveSuccesses = 0
	}
}

func (s *circuitStats) failureRate() float64 {
	total := len(s.records)
	if total == 0 {
		return 0
	}
	failures := 0
	for _, r := range s.records {
		if r.result == CallFailure || r.result == CallTimeout {
			failures++
		}
	}
	return float64(failures) / float64(total)
}

func (s *circuitStats) reset() {
	s.records = s.records[:0]
	s.consecutiveFailures = 0
	s.consecutiveSuccesses = 0
}

// CircuitBreakerStats is a point-in-time snapshot of a breaker's health.
type CircuitBreakerStats struct {
	State                 CircuitState
	FailureRate           float64
	ConsecutiveFailures   uint32
	ConsecutiveSuccesses  uint32
	TotalCalls            uint64
	TimeInCurrentState    time.Duration
}

// CircuitBreaker implements the Closed/Open/HalfOpen trip-and-recover state
// machine described in the concurrency primitives spec.
type CircuitBreaker struct {
	name   string
	config CircuitConfig

	mu               sync.RWMutex
	state            CircuitState
	stats            *circuitStats
	lastStateChange  time.Time
	halfOpenCount    int
	halfOpenTotal    int
}

// NewCircuitBreaker creates a breaker named "default".
func NewCircuitBreaker(config CircuitConfig) *CircuitBreaker {
	return NewNamedCircuitBreaker("default", config)
}

// NewNamedCircuitBreaker creates a breaker with an explicit name for logging.
func NewNamedCircuitBreaker(name string, config CircuitConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:            name,
		config:          config,
		state:           Closed,
		stats:           newCircuitStats(config.StatsWindowSize),
		lastStateChange: time.Now(),
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// AllowRequest reports whether a call may proceed, lazily transitioning
// Open → HalfOpen once the timeout has elapsed and admitting at most a
// half_open_max_ratio fraction of half-open probes.
func (b *CircuitBreaker) AllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.lastStateChange) >= b.config.TimeoutDuration {
			if b.config.EnableHalfOpen {
				b.transitionTo(HalfOpen)
				return true
			}
		}
		return false
	case HalfOpen:
		b.halfOpenTotal++
		allowed := int(math.Ceil(float64(b.halfOpenTotal) * b.config.HalfOpenMaxRatio))
		if b.halfOpenCount < allowed {
			b.halfOpenCount++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful call, closing the breaker from
// HalfOpen once success_threshold consecutive successes are observed.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.record(CallSuccess)

	if b.state == HalfOpen && b.stats.consecutiveSuccesses >= b.config.SuccessThreshold {
		log.Info("circuit breaker recovered after consecutive successes")
		b.transitionTo(Closed)
	}
}

// RecordFailure records a failed call, tripping the breaker per the
// consecutive-failure or failure-rate rule in Closed, or immediately
// re-opening in HalfOpen.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.record(CallFailure)

	switch b.state {
	case Closed:
		b.checkAndTrip()
	case HalfOpen:
		log.Warn("circuit breaker re-tripped after failure in half-open state")
		b.transitionTo(Open)
	}
}

// RecordTimeout treats a timeout identically to a failure.
func (b *CircuitBreaker) RecordTimeout() {
	b.RecordFailure()
}

// RecordRejected accounts for a call that never ran because the breaker was
// already open; it does not affect the trip/recover state machine.
func (b *CircuitBreaker) RecordRejected() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.record(CallRejected)
}

// ForceOpen manually trips the breaker.
func (b *CircuitBreaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(Open)
}

// ForceClose manually resets the breaker to Closed.
func (b *CircuitBreaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(Closed)
}

// Stats returns a snapshot of the breaker's current health.
func (b *CircuitBreaker) Stats() CircuitBreakerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return CircuitBreakerStats{
		State:                b.state,
		FailureRate:          b.stats.failureRate(),
		ConsecutiveFailures:  b.stats.consecutiveFailures,
		ConsecutiveSuccesses: b.stats.consecutiveSuccesses,
		TotalCalls:           b.stats.totalCalls,
		TimeInCurrentState:   time.Since(b.lastStateChange),
	}
}

// Reset clears all stats and returns the breaker to Closed.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.reset()
	b.stats.totalCalls = 0
	b.halfOpenCount = 0
	b.halfOpenTotal = 0
	b.transitionTo(Closed)
}

// checkAndTrip trips Closed → Open when either the consecutive-failure
// threshold or (once enough calls have been observed) the failure-rate
// threshold is crossed. Caller must hold b.mu.
func (b *CircuitBreaker) checkAndTrip() {
	consecutiveFailures := b.stats.consecutiveFailures
	failureRate := b.stats.failureRate()
	totalCalls := b.stats.totalCalls

	shouldTrip := consecutiveFailures >= b.config.FailureThreshold ||
		(totalCalls >= uint64(b.config.MinCallsBeforeStat) && failureRate >= b.config.FailureRateThreshold)

	if shouldTrip {
		b.transitionTo(Open)
	}
}

// transitionTo changes state, resetting half-open counters and (on entry to
// Closed) the stats window. Caller must hold b.mu.
func (b *CircuitBreaker) transitionTo(newState CircuitState) {
	old := b.state
	if old == newState {
		return
	}
	b.state = newState
	b.lastStateChange = time.Now()

	if newState != HalfOpen {
		b.halfOpenCount = 0
		b.halfOpenTotal = 0
	}
	if newState == Closed {
		b.stats.reset()
	}

	log.Logger.Info().
		Str("breaker", b.name).
		Str("from", old.String()).
		Str("to", newState.String()).
		Msg("circuit breaker state changed")
}
