package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ultrai/orchestrator/core"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	transient := core.NewProviderError("openai", "gpt-4o", core.KindTransport, errors.New("conn reset"))

	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	authErr := core.NewProviderError("openai", "gpt-4o", core.KindAuth, nil)

	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return authErr
	})
	if !errors.Is(err, authErr) {
		t.Errorf("expected the original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("non-retryable error retried %d times", calls)
	}
}

func TestRetryExhaustionWrapsSentinel(t *testing.T) {
	transient := core.NewProviderError("openai", "gpt-4o", core.KindTimeout, context.DeadlineExceeded)

	err := Retry(context.Background(), fastRetryConfig(2), func() error {
		return transient
	})
	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	transient := core.NewProviderError("openai", "gpt-4o", core.KindTransport, errors.New("down"))

	calls := 0
	cfg := fastRetryConfig(10)
	cfg.InitialDelay = 50 * time.Millisecond

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error {
		calls++
		return transient
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := &RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  time.Second,
		MaxDelay:      4 * time.Second,
		BackoffFactor: 2.0,
	}

	if d := cfg.Backoff(0); d != time.Second {
		t.Errorf("Backoff(0) = %v, want 1s", d)
	}
	if d := cfg.Backoff(1); d != 2*time.Second {
		t.Errorf("Backoff(1) = %v, want 2s", d)
	}
	if d := cfg.Backoff(5); d != 4*time.Second {
		t.Errorf("Backoff(5) = %v, want capped at 4s", d)
	}
}

func TestBackoffJitterStaysInBand(t *testing.T) {
	cfg := &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}

	for i := 0; i < 50; i++ {
		d := cfg.Backoff(0)
		if d < 750*time.Millisecond || d > 1250*time.Millisecond {
			t.Fatalf("jittered delay %v outside 0.75s..1.25s", d)
		}
	}
}
