package health

import (
	"sync"
	"time"

	"github.com/ultrai/orchestrator/ai"
	"github.com/ultrai/orchestrator/core"
)

// FallbackManager remembers which providers are rate limited and
// suggests substitutes from other providers' default model lists.
type FallbackManager struct {
	mu          sync.RWMutex
	rateLimited map[string]time.Time // provider -> expiry
	logger      core.Logger

	now func() time.Time
}

// NewFallbackManager creates an empty fallback manager
func NewFallbackManager(logger core.Logger) *FallbackManager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &FallbackManager{
		rateLimited: make(map[string]time.Time),
		logger:      logger,
		now:         time.Now,
	}
}

// MarkRateLimited records that a provider throttled us for duration d
func (f *FallbackManager) MarkRateLimited(provider string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	expiry := f.now().Add(d)
	f.rateLimited[provider] = expiry

	f.logger.Warn("Provider marked rate limited", map[string]interface{}{
		"operation":  "provider_rate_limited",
		"provider":   provider,
		"until":      expiry.Format(time.RFC3339),
		"backoff_ms": d.Milliseconds(),
	})
}

// IsRateLimited reports whether a provider's limit window is active.
// Expired entries are pruned lazily.
func (f *FallbackManager) IsRateLimited(provider string) bool {
	f.mu.RLock()
	expiry, ok := f.rateLimited[provider]
	f.mu.RUnlock()

	if !ok {
		return false
	}
	if f.now().After(expiry) {
		f.mu.Lock()
		if exp, ok := f.rateLimited[provider]; ok && f.now().After(exp) {
			delete(f.rateLimited, provider)
		}
		f.mu.Unlock()
		return false
	}
	return true
}

// FallbackModels returns up to n models from other, non-rate-limited
// providers, one per provider first for diversity.
func (f *FallbackManager) FallbackModels(provider string, n int) []string {
	var out []string

	candidates := f.eligibleProviders(provider)

	// One model per provider first.
	for _, name := range candidates {
		if len(out) >= n {
			return out
		}
		factory, ok := ai.GetProvider(name)
		if !ok {
			continue
		}
		if models := factory.DefaultModels(); len(models) > 0 {
			out = append(out, models[0])
		}
	}

	// Then each provider's alternates.
	for _, name := range candidates {
		if len(out) >= n {
			return out
		}
		factory, ok := ai.GetProvider(name)
		if !ok {
			continue
		}
		models := factory.DefaultModels()
		if len(models) < 2 {
			continue
		}
		for _, m := range models[1:] {
			if len(out) >= n {
				break
			}
			out = append(out, m)
		}
	}

	return out
}

// SuggestAlternative returns the best single substitute model for a
// struggling provider, or empty when nothing else is available.
func (f *FallbackManager) SuggestAlternative(provider string) string {
	models := f.FallbackModels(provider, 1)
	if len(models) == 0 {
		return ""
	}
	return models[0]
}

// eligibleProviders lists available providers other than the given one
// that are not themselves rate limited, in detection priority order.
func (f *FallbackManager) eligibleProviders(exclude string) []string {
	var out []string
	for _, info := range ai.AvailableProviders(f.logger) {
		if info.Name == exclude || info.Name == "mock" {
			continue
		}
		if f.IsRateLimited(info.Name) {
			continue
		}
		out = append(out, info.Name)
	}
	return out
}
