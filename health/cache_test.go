package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ultrai/orchestrator/core"
)

// probeClient counts probes and returns a scripted error
type probeClient struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (p *probeClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &core.AIResponse{Content: "pong"}, nil
}

func (p *probeClient) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestCache(client core.AIClient, ttl time.Duration) *Cache {
	return NewCache(func(model string) (core.AIClient, error) {
		return client, nil
	}, ttl, nil)
}

func TestProbeCachesVerdict(t *testing.T) {
	client := &probeClient{}
	cache := newTestCache(client, time.Minute)

	healthy, err := cache.Probe(context.Background(), "gpt-4o")
	if err != nil || !healthy {
		t.Fatalf("Probe = %v, %v", healthy, err)
	}
	if client.callCount() != 1 {
		t.Fatalf("calls = %d", client.callCount())
	}

	// Second probe inside the TTL must not hit the provider.
	_, _ = cache.Probe(context.Background(), "gpt-4o")
	if client.callCount() != 1 {
		t.Errorf("cached probe still called the provider: %d calls", client.callCount())
	}
}

func TestProbeExpiresAfterTTL(t *testing.T) {
	client := &probeClient{}
	cache := newTestCache(client, time.Minute)

	base := time.Now()
	cache.now = func() time.Time { return base }

	_, _ = cache.Probe(context.Background(), "gpt-4o")

	cache.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, _ = cache.Probe(context.Background(), "gpt-4o")

	if client.callCount() != 2 {
		t.Errorf("expired entry not re-probed: %d calls", client.callCount())
	}
}

func TestProbeLoadingCountsHealthy(t *testing.T) {
	client := &probeClient{
		err: core.NewProviderError("huggingface", "org/model", core.KindLoading, core.ErrModelLoading),
	}
	cache := newTestCache(client, time.Minute)

	healthy, err := cache.Probe(context.Background(), "org/model")
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if !healthy {
		t.Error("loading models must count as healthy")
	}
}

func TestProbeAuthFailureUnhealthy(t *testing.T) {
	client := &probeClient{
		err: core.NewProviderError("openai", "gpt-4o", core.KindAuth, nil),
	}
	cache := newTestCache(client, time.Minute)

	healthy, err := cache.Probe(context.Background(), "gpt-4o")
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if healthy {
		t.Error("auth failures must count as unhealthy")
	}
}

func TestProbeCancellationNotCached(t *testing.T) {
	client := &probeClient{err: context.Canceled}
	cache := newTestCache(client, time.Minute)

	_, err := cache.Probe(context.Background(), "gpt-4o")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if cache.Len() != 0 {
		t.Error("cancelled probe must not populate the cache")
	}
}

func TestInvalidate(t *testing.T) {
	client := &probeClient{}
	cache := newTestCache(client, time.Minute)

	_, _ = cache.Probe(context.Background(), "gpt-4o")
	_, _ = cache.Probe(context.Background(), "claude-3-opus-20240229")
	if cache.Len() != 2 {
		t.Fatalf("Len = %d", cache.Len())
	}

	cache.Invalidate("gpt-4o")
	if cache.Len() != 1 {
		t.Errorf("Len after Invalidate = %d", cache.Len())
	}

	cache.InvalidateAll()
	if cache.Len() != 0 {
		t.Errorf("Len after InvalidateAll = %d", cache.Len())
	}
}
