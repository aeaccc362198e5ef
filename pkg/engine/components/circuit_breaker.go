package components

import (
	"sync"
	"time"

	"github.com/ignitionstack/ember/pkg/engine/errors"
)

// BreakerState is the position of a plugin's circuit breaker.
type BreakerState int32

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calls into a plugin that keeps failing. After
// resetTimeout one trial call is let through; its outcome closes or
// reopens the circuit.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            BreakerState
	failures         int
	openedAt         time.Time
	trialInFlight    bool
	failureThreshold int
	resetTimeout     time.Duration
	now              func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed. It returns ErrCircuitOpen while
// the circuit is open or a half-open trial is already running.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return errors.ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.trialInFlight = true
		return nil
	case StateHalfOpen:
		if cb.trialInFlight {
			return errors.ErrCircuitOpen
		}
		cb.trialInFlight = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = StateClosed
	cb.trialInFlight = false
}

// RecordFailure counts a failure and reports whether the circuit is now open.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.trialInFlight = false

	if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
	return cb.state == StateOpen
}

// Abandon gives back a call admitted by Allow that ended without telling
// anything about the plugin's health.
func (cb *CircuitBreaker) Abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialInFlight = false
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.RecordSuccess()
}

// State returns the current state without transitioning it.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// BreakerSet holds one circuit breaker per plugin id.
type BreakerSet struct {
	breakers         sync.Map
	failureThreshold int
	resetTimeout     time.Duration
}

// NewBreakerSet creates an empty set whose breakers use the given settings.
func NewBreakerSet(failureThreshold int, resetTimeout time.Duration) *BreakerSet {
	return &BreakerSet{failureThreshold: failureThreshold, resetTimeout: resetTimeout}
}

// Get returns the breaker for a plugin, creating it on first use.
func (s *BreakerSet) Get(pluginID string) *CircuitBreaker {
	if cb, ok := s.breakers.Load(pluginID); ok {
		return cb.(*CircuitBreaker)
	}
	cb, _ := s.breakers.LoadOrStore(pluginID, NewCircuitBreaker(s.failureThreshold, s.resetTimeout))
	return cb.(*CircuitBreaker)
}

// Forget drops the breaker of a plugin, e.g. after a reload replaced it.
func (s *BreakerSet) Forget(pluginID string) {
	s.breakers.Delete(pluginID)
}

// States returns a snapshot of every known breaker state.
func (s *BreakerSet) States() map[string]BreakerState {
	out := make(map[string]BreakerState)
	s.breakers.Range(func(key, value interface{}) bool {
		out[key.(string)] = value.(*CircuitBreaker).State()
		return true
	})
	return out
}
