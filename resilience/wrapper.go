package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ultrai/orchestrator/core"
)

// providerTimeoutFloors are the minimum per-call budgets by provider.
// Slow providers get longer floors; huggingface needs headroom for
// model warm-up.
var providerTimeoutFloors = map[string]time.Duration{
	"openai":      30 * time.Second,
	"anthropic":   45 * time.Second,
	"google":      25 * time.Second,
	"huggingface": 60 * time.Second,
}

// TimeoutFloor returns the minimum call budget for a provider
func TimeoutFloor(provider string) time.Duration {
	if d, ok := providerTimeoutFloors[provider]; ok {
		return d
	}
	return 30 * time.Second
}

// CallCounters tracks per-provider call outcomes
type CallCounters struct {
	Total        atomic.Int64
	Success      atomic.Int64
	Fail         atomic.Int64
	Retries      atomic.Int64
	CircuitOpens atomic.Int64
}

// CounterSnapshot is a point-in-time read of CallCounters
type CounterSnapshot struct {
	Total        int64 `json:"total"`
	Success      int64 `json:"success"`
	Fail         int64 `json:"fail"`
	Retries      int64 `json:"retries"`
	CircuitOpens int64 `json:"circuit_opens"`
}

// Snapshot reads the counters atomically enough for reporting
func (c *CallCounters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Total:        c.Total.Load(),
		Success:      c.Success.Load(),
		Fail:         c.Fail.Load(),
		Retries:      c.Retries.Load(),
		CircuitOpens: c.CircuitOpens.Load(),
	}
}

// BreakerRegistry shares one circuit breaker and one counter set per
// provider across every wrapped client.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	counters map[string]*CallCounters
	logger   core.Logger
}

// NewBreakerRegistry creates an empty registry
func NewBreakerRegistry(logger core.Logger) *BreakerRegistry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		counters: make(map[string]*CallCounters),
		logger:   logger,
	}
}

// Breaker returns the shared breaker for a provider, creating it on
// first use.
func (r *BreakerRegistry) Breaker(provider string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[provider]; ok {
		return cb
	}
	cfg := DefaultCircuitBreakerConfig(provider)
	cfg.Logger = r.logger
	cb := NewCircuitBreaker(cfg)
	r.breakers[provider] = cb
	return cb
}

// Counters returns the shared counters for a provider
func (r *BreakerRegistry) Counters(provider string) *CallCounters {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[provider]; ok {
		return c
	}
	c := &CallCounters{}
	r.counters[provider] = c
	return c
}

// Snapshots returns counter snapshots for every provider seen so far
func (r *BreakerRegistry) Snapshots() map[string]CounterSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]CounterSnapshot, len(r.counters))
	for provider, c := range r.counters {
		out[provider] = c.Snapshot()
	}
	return out
}

// ResilientClient wraps an adapter with timeout enforcement, retry and
// a shared per-provider circuit breaker. The adapter itself never
// retries, so attempt accounting lives entirely here.
type ResilientClient struct {
	inner    core.AIClient
	provider string
	breaker  *CircuitBreaker
	counters *CallCounters
	retry    *RetryConfig
	logger   core.Logger
}

// NewResilientClient wraps an adapter for one provider
func NewResilientClient(inner core.AIClient, provider string, registry *BreakerRegistry, retry *RetryConfig, logger core.Logger) *ResilientClient {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	if registry == nil {
		registry = NewBreakerRegistry(logger)
	}
	return &ResilientClient{
		inner:    inner,
		provider: provider,
		breaker:  registry.Breaker(provider),
		counters: registry.Counters(provider),
		retry:    retry,
		logger:   logger,
	}
}

// GenerateResponse executes the wrapped adapter with the full
// resilience stack. An open circuit returns core.ErrCircuitBreakerOpen
// without touching the adapter.
func (c *ResilientClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	c.counters.Total.Add(1)

	// Enforce the provider floor only when the caller set no deadline.
	// A stage deadline, even a shorter one, wins.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, TimeoutFloor(c.provider))
		defer cancel()
	}

	if !c.breaker.CanExecute() {
		c.counters.CircuitOpens.Add(1)
		c.counters.Fail.Add(1)
		c.logger.Warn("Circuit open, call rejected", core.FieldsWithCorrelation(ctx, map[string]interface{}{
			"operation": "circuit_rejection",
			"provider":  c.provider,
			"model":     modelOf(options),
		}))
		return nil, core.ErrCircuitBreakerOpen
	}

	var resp *core.AIResponse
	attempt := 0
	err := Retry(ctx, c.retry, func() error {
		if attempt > 0 {
			c.counters.Retries.Add(1)
			c.logger.Info("Retrying provider call", core.FieldsWithCorrelation(ctx, map[string]interface{}{
				"operation": "provider_retry",
				"provider":  c.provider,
				"model":     modelOf(options),
				"attempt":   attempt + 1,
			}))
		}
		attempt++

		if !c.breaker.CanExecute() {
			return core.ErrCircuitBreakerOpen
		}

		r, callErr := c.inner.GenerateResponse(ctx, prompt, options)
		if callErr != nil {
			if c.breaker.config.ErrorClassifier(callErr) {
				c.breaker.RecordFailure()
			}
			return callErr
		}

		c.breaker.RecordSuccess()
		resp = r
		return nil
	})

	if err != nil {
		c.counters.Fail.Add(1)
		if errors.Is(err, core.ErrCircuitBreakerOpen) {
			c.counters.CircuitOpens.Add(1)
		}
		return nil, err
	}

	c.counters.Success.Add(1)
	return resp, nil
}

// Provider returns the provider tag this client wraps
func (c *ResilientClient) Provider() string {
	return c.provider
}

func modelOf(options *core.AIOptions) string {
	if options == nil {
		return ""
	}
	return options.Model
}
