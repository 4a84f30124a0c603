// Package health tracks model availability: a TTL probe cache and a
// provider fallback manager for riding out rate-limit windows.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ultrai/orchestrator/core"
)

// ClientResolver returns a client able to serve the given model
type ClientResolver func(model string) (core.AIClient, error)

// verdict is one cached health check result
type verdict struct {
	healthy   bool
	checkedAt time.Time
}

// Cache caches per-model health verdicts. Constructed explicitly and
// injected; there is no package-level instance.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]verdict

	ttl     time.Duration
	resolve ClientResolver
	logger  core.Logger

	// now is swappable in tests
	now func() time.Time
}

// NewCache creates a health cache. TTL defaults to five minutes.
func NewCache(resolve ClientResolver, ttl time.Duration, logger core.Logger) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Cache{
		entries: make(map[string]verdict),
		ttl:     ttl,
		resolve: resolve,
		logger:  logger,
		now:     time.Now,
	}
}

// Probe returns the model's health, using the cached verdict when it is
// still fresh. A cache miss issues a minimal one-token generate. A model
// that is loading counts as healthy: it will serve once warm.
func (c *Cache) Probe(ctx context.Context, model string) (bool, error) {
	c.mu.RLock()
	v, ok := c.entries[model]
	c.mu.RUnlock()

	if ok && c.now().Sub(v.checkedAt) < c.ttl {
		return v.healthy, nil
	}

	healthy, err := c.check(ctx, model)
	if err != nil {
		// Probe infrastructure failures leave the cache untouched so
		// the next call tries again.
		return false, err
	}

	c.mu.Lock()
	c.entries[model] = verdict{healthy: healthy, checkedAt: c.now()}
	c.mu.Unlock()

	c.logger.Debug("Model health probed", map[string]interface{}{
		"operation": "health_probe",
		"model":     model,
		"healthy":   healthy,
	})

	return healthy, nil
}

func (c *Cache) check(ctx context.Context, model string) (bool, error) {
	client, err := c.resolve(model)
	if err != nil {
		return false, err
	}

	_, err = client.GenerateResponse(ctx, "ping", &core.AIOptions{
		Model:     model,
		MaxTokens: 1,
	})
	if err == nil {
		return true, nil
	}
	if core.KindOf(err) == core.KindLoading {
		return true, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, err
	}
	return false, nil
}

// Invalidate drops one model's cached verdict
func (c *Cache) Invalidate(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, model)
}

// InvalidateAll drops every cached verdict
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]verdict)
}

// Len returns the number of cached verdicts
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
