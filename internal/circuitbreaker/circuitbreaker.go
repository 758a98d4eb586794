package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/onnwee/ethosprompt/backend/internal/metrics"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements a circuit breaker pattern
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	name            string

	// Configuration
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	isFailure        func(error) bool
	clock            clock.Clock
}

// Config holds circuit breaker configuration
type Config struct {
	Name             string
	FailureThreshold int           // Number of failures before opening
	SuccessThreshold int           // Number of successes needed to close from half-open
	Timeout          time.Duration // Time to wait before trying half-open
	// IsFailure decides whether an error counts against the breaker.
	// Defaults to every non-nil error.
	IsFailure func(error) bool
	Clock     clock.Clock
}

// New creates a new circuit breaker
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	cb := &CircuitBreaker{
		state:            StateClosed,
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		isFailure:        cfg.IsFailure,
		clock:            cfg.Clock,
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	return cb
}

// Call executes fn if the circuit breaker allows it. Errors rejected by
// Config.IsFailure are returned to the caller but count as successes.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.canAttempt() {
		return ErrCircuitOpen
	}

	err := fn()
	if cb.isFailure(err) {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return err
}

// canAttempt checks if we can attempt the operation, moving an expired open
// circuit to half-open.
func (cb *CircuitBreaker) canAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.clock.Since(cb.lastFailureTime) > cb.timeout {
			cb.setStateLocked(StateHalfOpen)
			cb.successCount = 0
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.clock.Now()
	cb.successCount = 0

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.tripLocked()
		}
	case StateHalfOpen:
		cb.failureCount = 0
		cb.tripLocked()
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.failureCount = 0
			cb.successCount = 0
			cb.setStateLocked(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) tripLocked() {
	cb.setStateLocked(StateOpen)
	metrics.CircuitBreakerTrips.WithLabelValues(cb.name).Inc()
}

func (cb *CircuitBreaker) setStateLocked(s State) {
	cb.state = s
	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(s))
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
