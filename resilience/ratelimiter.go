package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/ultrai/orchestrator/core"
)

// endpointWindow tracks one endpoint's calendar-minute usage and its
// adaptive backoff multiplier.
type endpointWindow struct {
	rpm     int
	burst   int
	backoff int // multiplier, floor 1

	windowStart time.Time
	count       int
}

// RateLimiter enforces per-endpoint requests-per-minute quotas over
// calendar-minute windows. Unknown endpoints self-register with the
// configured defaults on first Acquire.
type RateLimiter struct {
	mu        sync.Mutex
	endpoints map[string]*endpointWindow

	defaultRPM   int
	defaultBurst int
	logger       core.Logger

	// sleep is swappable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a rate limiter with the given defaults
func NewRateLimiter(cfg core.RateLimitConfig, logger core.Logger) *RateLimiter {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	rpm := cfg.DefaultRPM
	if rpm <= 0 {
		rpm = 60
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		endpoints:    make(map[string]*endpointWindow),
		defaultRPM:   rpm,
		defaultBurst: burst,
		logger:       logger,
		sleep:        sleepCtx,
	}
}

// RegisterEndpoint sets explicit limits for an endpoint
func (rl *RateLimiter) RegisterEndpoint(endpoint string, rpm, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rpm <= 0 {
		rpm = rl.defaultRPM
	}
	if burst <= 0 {
		burst = rl.defaultBurst
	}
	rl.endpoints[endpoint] = &endpointWindow{
		rpm:         rpm,
		burst:       burst,
		backoff:     1,
		windowStart: time.Now().Truncate(time.Minute),
	}
}

// Acquire blocks until the endpoint has budget or the context ends.
// The first burst calls of a minute are granted immediately; calls
// beyond the burst are paced by 60s / rpm so the quota spreads across
// the window instead of draining in the first seconds. When the minute
// is exhausted it sleeps backoff × 60s / rpm and re-checks, so callers
// back off cooperatively instead of spinning.
func (rl *RateLimiter) Acquire(ctx context.Context, endpoint string) error {
	for {
		rl.mu.Lock()
		w := rl.endpoints[endpoint]
		if w == nil {
			w = &endpointWindow{
				rpm:         rl.defaultRPM,
				burst:       rl.defaultBurst,
				backoff:     1,
				windowStart: time.Now().Truncate(time.Minute),
			}
			rl.endpoints[endpoint] = w
			rl.logger.Debug("Rate limit endpoint registered", map[string]interface{}{
				"operation": "ratelimit_register",
				"endpoint":  endpoint,
				"rpm":       w.rpm,
				"burst":     w.burst,
			})
		}

		// Calendar-minute windows: the count resets when the wall
		// clock enters a new minute, not a rolling 60s later.
		nowMinute := time.Now().Truncate(time.Minute)
		if nowMinute.After(w.windowStart) {
			w.windowStart = nowMinute
			w.count = 0
		}

		if w.count < w.rpm {
			w.count++
			paced := w.count > w.burst
			pace := time.Minute / time.Duration(w.rpm)
			rl.mu.Unlock()

			if paced {
				return rl.sleep(ctx, pace)
			}
			return nil
		}

		wait := time.Duration(w.backoff) * time.Minute / time.Duration(w.rpm)
		rl.mu.Unlock()

		rl.logger.Warn("Rate limit window full, backing off", map[string]interface{}{
			"operation": "ratelimit_backoff",
			"endpoint":  endpoint,
			"wait_ms":   wait.Milliseconds(),
		})

		if err := rl.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Release reports the outcome of a call, adapting the endpoint's
// backoff multiplier: success halves it (floor 1), failure doubles it.
func (rl *RateLimiter) Release(endpoint string, success bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.endpoints[endpoint]
	if w == nil {
		return
	}

	if success {
		w.backoff /= 2
		if w.backoff < 1 {
			w.backoff = 1
		}
	} else {
		w.backoff *= 2
	}
}

// Backoff returns the current backoff multiplier for an endpoint
func (rl *RateLimiter) Backoff(endpoint string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if w := rl.endpoints[endpoint]; w != nil {
		return w.backoff
	}
	return 1
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
