package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/ultrai/orchestrator/core"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool

	// RetryIf decides whether an error is worth retrying. Defaults to
	// core.IsRetryable, which passes timeout, transport, loading and
	// rate-limited errors and rejects client errors.
	RetryIf func(error) bool
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
		RetryIf:       core.IsRetryable,
	}
}

// RetryConfigFromCore maps the application retry settings onto this
// package's config.
func RetryConfigFromCore(rc core.RetryConfig) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   rc.MaxAttempts,
		InitialDelay:  rc.InitialDelay,
		MaxDelay:      rc.MaxDelay,
		BackoffFactor: rc.ExponentialBase,
		JitterEnabled: rc.JitterEnabled,
		RetryIf:       core.IsRetryable,
	}
}

// Backoff returns the delay before the given retry attempt (0-based).
// min(initial × base^attempt, max), with ±25% jitter when enabled.
func (c *RetryConfig) Backoff(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt))
	if max := float64(c.MaxDelay); delay > max {
		delay = max
	}
	if c.JitterEnabled {
		delay *= 0.75 + rand.Float64()*0.5
	}
	return time.Duration(delay)
}

// Retry executes a function with retry logic. Non-retryable errors
// return immediately; exhausting attempts wraps the last error with
// core.ErrMaxRetriesExceeded.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	retryIf := config.RetryIf
	if retryIf == nil {
		retryIf = core.IsRetryable
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryIf(err) {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(config.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", core.ErrMaxRetriesExceeded, config.MaxAttempts, lastErr)
}

// RetryWithCircuitBreaker combines retry logic with a circuit breaker.
// An open circuit fails the whole call rather than burning attempts.
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, config, func() error {
		return cb.Execute(fn)
	})
}
