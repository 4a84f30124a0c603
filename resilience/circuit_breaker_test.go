package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ultrai/orchestrator/core"
)

func testBreaker(t *testing.T, mutate func(*CircuitBreakerConfig)) *CircuitBreaker {
	t.Helper()
	cfg := DefaultCircuitBreakerConfig("test")
	cfg.FailureThreshold = 3
	cfg.VolumeThreshold = 3
	cfg.RecoveryTimeout = 50 * time.Millisecond
	cfg.SuccessThreshold = 2
	if mutate != nil {
		mutate(cfg)
	}
	return NewCircuitBreaker(cfg)
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb := testBreaker(t, nil)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Fatal("breaker opened below threshold")
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatal("breaker should open at failure threshold")
	}
	if cb.CanExecute() {
		t.Error("open breaker must reject calls")
	}
}

func TestBreakerRespectsVolumeThreshold(t *testing.T) {
	cb := testBreaker(t, func(cfg *CircuitBreakerConfig) {
		cfg.FailureThreshold = 2
		cfg.VolumeThreshold = 10
	})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Error("breaker opened before volume threshold was met")
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	cb := testBreaker(t, nil)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	if cb.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	time.Sleep(60 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatal("breaker should probe after recovery timeout")
	}

	cb.RecordSuccess()
	if cb.State() != StateHalfOpen {
		t.Fatal("one success should not close the breaker")
	}
	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Fatal("breaker should close after consecutive successes")
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := testBreaker(t, nil)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(60 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatal("breaker should be half-open")
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatal("any half-open failure must reopen the breaker")
	}
}

func TestBreakerExecuteShortCircuits(t *testing.T) {
	cb := testBreaker(t, nil)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, core.ErrCircuitBreakerOpen) {
		t.Errorf("expected ErrCircuitBreakerOpen, got %v", err)
	}
	if called {
		t.Error("open breaker must not invoke the function")
	}
}

func TestBreakerClassifierSkipsClientErrors(t *testing.T) {
	cb := testBreaker(t, nil)

	authErr := core.NewProviderError("openai", "gpt-4o", core.KindAuth, nil)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return authErr })
	}
	if cb.State() != StateClosed {
		t.Error("auth errors must not trip the breaker")
	}

	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return context.Canceled })
	}
	if cb.State() != StateClosed {
		t.Error("caller cancellation must not trip the breaker")
	}
}

func TestBreakerGroupTimeoutCountsAsFailure(t *testing.T) {
	cb := testBreaker(t, nil)

	// A stage deadline propagates as cancellation with a deadline cause.
	groupErr := core.NewProviderError("openai", "gpt-4o", core.KindCancelled, context.DeadlineExceeded)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return groupErr })
	}
	if cb.State() != StateOpen {
		t.Error("group-timeout cancellations must count as failures")
	}
}

func TestBreakerReset(t *testing.T) {
	cb := testBreaker(t, nil)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	if cb.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Error("reset should close the breaker")
	}
	total, failures, _, _ := cb.Counts()
	if total != 0 || failures != 0 {
		t.Error("reset should clear counts")
	}
}
