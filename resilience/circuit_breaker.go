package resilience

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ultrai/orchestrator/core"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int32

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows limited requests for testing
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
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

// ErrorClassifier determines which errors count toward breaker thresholds
type ErrorClassifier func(error) bool

// DefaultErrorClassifier counts infrastructure failures only. User and
// configuration errors say nothing about provider health, and a caller
// hanging up is not the provider's fault. Cancellations caused by a
// stage deadline do count.
func DefaultErrorClassifier(err error) bool {
	return core.CountsAsCircuitFailure(err)
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker, usually the provider tag
	Name string

	// FailureThreshold is the failure count that opens the circuit
	FailureThreshold int

	// VolumeThreshold is the minimum number of calls in the window
	// before the circuit may open
	VolumeThreshold int

	// RecoveryTimeout is how long to stay open before probing
	RecoveryTimeout time.Duration

	// SuccessThreshold is the consecutive successes in half-open
	// needed to close
	SuccessThreshold int

	// WindowSize bounds how long counted calls stay relevant
	WindowSize time.Duration

	// ErrorClassifier determines which errors count as failures
	ErrorClassifier ErrorClassifier

	// Logger for state transition events
	Logger core.Logger
}

// DefaultCircuitBreakerConfig returns production defaults
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		VolumeThreshold:  5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
		WindowSize:       60 * time.Second,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
	}
}

// CircuitBreaker guards one provider. Hot-path checks are atomic; only
// state transitions take the mutex.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	state       atomic.Int32
	openedAt    atomic.Int64 // unix nanos of last transition to open
	windowStart atomic.Int64 // unix nanos the counting window began

	total    atomic.Int64
	failures atomic.Int64

	halfOpenSuccesses atomic.Int64

	rejections atomic.Int64
	opens      atomic.Int64

	mu sync.Mutex
}

// NewCircuitBreaker creates a circuit breaker for one provider
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig("default")
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.VolumeThreshold <= 0 {
		config.VolumeThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.WindowSize <= 0 {
		config.WindowSize = 60 * time.Second
	}

	cb := &CircuitBreaker{config: config}
	cb.windowStart.Store(time.Now().UnixNano())
	return cb
}

// State returns the current state, promoting open to half-open when the
// recovery timeout has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	state := CircuitState(cb.state.Load())
	if state != StateOpen {
		return state
	}

	openedAt := time.Unix(0, cb.openedAt.Load())
	if time.Since(openedAt) < cb.config.RecoveryTimeout {
		return StateOpen
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	// Re-check under the lock; another goroutine may have promoted.
	if CircuitState(cb.state.Load()) == StateOpen &&
		time.Since(time.Unix(0, cb.openedAt.Load())) >= cb.config.RecoveryTimeout {
		cb.transition(StateOpen, StateHalfOpen)
	}
	return CircuitState(cb.state.Load())
}

// CanExecute reports whether a call may proceed right now
func (cb *CircuitBreaker) CanExecute() bool {
	if cb.State() == StateOpen {
		cb.rejections.Add(1)
		return false
	}
	return true
}

// RecordSuccess records a successful call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.maybeResetWindow()
	cb.total.Add(1)

	switch CircuitState(cb.state.Load()) {
	case StateHalfOpen:
		if cb.halfOpenSuccesses.Add(1) >= int64(cb.config.SuccessThreshold) {
			cb.mu.Lock()
			if CircuitState(cb.state.Load()) == StateHalfOpen {
				cb.transition(StateHalfOpen, StateClosed)
				cb.resetCounts()
			}
			cb.mu.Unlock()
		}
	case StateClosed:
		// Successes do not clear accumulated failures; only the
		// window reset does.
	}
}

// RecordFailure records a failed call. The caller applies the error
// classifier first; unclassified errors should not reach here.
func (cb *CircuitBreaker) RecordFailure() {
	cb.maybeResetWindow()
	total := cb.total.Add(1)
	failures := cb.failures.Add(1)

	switch CircuitState(cb.state.Load()) {
	case StateHalfOpen:
		cb.mu.Lock()
		if CircuitState(cb.state.Load()) == StateHalfOpen {
			cb.transition(StateHalfOpen, StateOpen)
		}
		cb.mu.Unlock()
	case StateClosed:
		if failures >= int64(cb.config.FailureThreshold) && total >= int64(cb.config.VolumeThreshold) {
			cb.mu.Lock()
			if CircuitState(cb.state.Load()) == StateClosed {
				cb.transition(StateClosed, StateOpen)
			}
			cb.mu.Unlock()
		}
	}
}

// Execute runs fn under the breaker. Open circuit short-circuits with
// core.ErrCircuitBreakerOpen before fn is invoked.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.CanExecute() {
		return core.ErrCircuitBreakerOpen
	}

	err := fn()
	if err != nil {
		if cb.config.ErrorClassifier(err) {
			cb.RecordFailure()
		}
		return err
	}

	cb.RecordSuccess()
	return nil
}

// Counts returns window totals for observability
func (cb *CircuitBreaker) Counts() (total, failures, rejections, opens int64) {
	return cb.total.Load(), cb.failures.Load(), cb.rejections.Load(), cb.opens.Load()
}

// Reset forces the breaker back to closed with cleared counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	from := CircuitState(cb.state.Load())
	if from != StateClosed {
		cb.transition(from, StateClosed)
	}
	cb.resetCounts()
}

// maybeResetWindow drops stale counts once the window has aged out
func (cb *CircuitBreaker) maybeResetWindow() {
	start := cb.windowStart.Load()
	if time.Since(time.Unix(0, start)) < cb.config.WindowSize {
		return
	}
	if cb.windowStart.CompareAndSwap(start, time.Now().UnixNano()) {
		cb.total.Store(0)
		cb.failures.Store(0)
	}
}

// transition moves the state machine. Caller holds cb.mu.
func (cb *CircuitBreaker) transition(from, to CircuitState) {
	cb.state.Store(int32(to))

	switch to {
	case StateOpen:
		cb.openedAt.Store(time.Now().UnixNano())
		cb.opens.Add(1)
	case StateHalfOpen:
		cb.halfOpenSuccesses.Store(0)
	}

	cb.config.Logger.Info("Circuit breaker state change", map[string]interface{}{
		"operation": "circuit_state_change",
		"name":      cb.config.Name,
		"from":      from.String(),
		"to":        to.String(),
		"failures":  cb.failures.Load(),
		"total":     cb.total.Load(),
	})
}

// resetCounts clears window and half-open counters. Caller holds cb.mu.
func (cb *CircuitBreaker) resetCounts() {
	cb.total.Store(0)
	cb.failures.Store(0)
	cb.halfOpenSuccesses.Store(0)
	cb.windowStart.Store(time.Now().UnixNano())
}
