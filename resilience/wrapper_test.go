package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ultrai/orchestrator/core"
)

// flakyClient fails a set number of times before succeeding
type flakyClient struct {
	failures int
	err      error
	calls    int
	lastCtx  context.Context
}

func (f *flakyClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	f.calls++
	f.lastCtx = ctx
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &core.AIResponse{Content: "ok", Provider: "openai", Model: "gpt-4o"}, nil
}

func TestResilientClientRetriesTransient(t *testing.T) {
	inner := &flakyClient{
		failures: 2,
		err:      core.NewProviderError("openai", "gpt-4o", core.KindTransport, errors.New("reset")),
	}
	registry := NewBreakerRegistry(nil)
	client := NewResilientClient(inner, "openai", registry, fastRetryConfig(3), nil)

	resp, err := client.GenerateResponse(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q", resp.Content)
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}

	snap := registry.Counters("openai").Snapshot()
	if snap.Total != 1 || snap.Success != 1 || snap.Retries != 2 {
		t.Errorf("counters = %+v", snap)
	}
}

func TestResilientClientDoesNotRetryClientErrors(t *testing.T) {
	inner := &flakyClient{
		failures: 10,
		err:      core.NewProviderError("openai", "gpt-4o", core.KindAuth, nil),
	}
	client := NewResilientClient(inner, "openai", NewBreakerRegistry(nil), fastRetryConfig(3), nil)

	_, err := client.GenerateResponse(context.Background(), "hi", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("auth error retried: %d calls", inner.calls)
	}
}

func TestResilientClientOpenCircuitSkipsAdapter(t *testing.T) {
	inner := &flakyClient{
		failures: 100,
		err:      core.NewProviderError("openai", "gpt-4o", core.KindTransport, errors.New("down")),
	}
	registry := NewBreakerRegistry(nil)
	client := NewResilientClient(inner, "openai", registry, fastRetryConfig(2), nil)

	// Drive the shared breaker open.
	cb := registry.Breaker("openai")
	for i := 0; i < 10; i++ {
		cb.RecordFailure()
	}
	if cb.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	callsBefore := inner.calls
	_, err := client.GenerateResponse(context.Background(), "hi", nil)
	if !errors.Is(err, core.ErrCircuitBreakerOpen) {
		t.Errorf("expected ErrCircuitBreakerOpen, got %v", err)
	}
	if inner.calls != callsBefore {
		t.Error("open circuit must not invoke the adapter")
	}

	snap := registry.Counters("openai").Snapshot()
	if snap.CircuitOpens == 0 {
		t.Error("circuit_opens counter not incremented")
	}
}

func TestResilientClientAppliesTimeoutFloor(t *testing.T) {
	inner := &flakyClient{}
	client := NewResilientClient(inner, "anthropic", NewBreakerRegistry(nil), fastRetryConfig(1), nil)

	_, err := client.GenerateResponse(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}

	deadline, ok := inner.lastCtx.Deadline()
	if !ok {
		t.Fatal("no deadline applied")
	}
	remaining := time.Until(deadline)
	if remaining > 45*time.Second || remaining < 40*time.Second {
		t.Errorf("deadline %v not near the anthropic 45s floor", remaining)
	}
}

func TestResilientClientKeepsCallerDeadline(t *testing.T) {
	inner := &flakyClient{}
	client := NewResilientClient(inner, "openai", NewBreakerRegistry(nil), fastRetryConfig(1), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.GenerateResponse(ctx, "hi", nil)
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}

	deadline, _ := inner.lastCtx.Deadline()
	if time.Until(deadline) > 6*time.Second {
		t.Error("caller deadline was widened to the provider floor")
	}
}

func TestTimeoutFloors(t *testing.T) {
	tests := map[string]time.Duration{
		"openai":      30 * time.Second,
		"anthropic":   45 * time.Second,
		"google":      25 * time.Second,
		"huggingface": 60 * time.Second,
		"unknown":     30 * time.Second,
	}
	for provider, want := range tests {
		if got := TimeoutFloor(provider); got != want {
			t.Errorf("TimeoutFloor(%q) = %v, want %v", provider, got, want)
		}
	}
}

func TestBreakerRegistrySharesPerProvider(t *testing.T) {
	registry := NewBreakerRegistry(nil)

	if registry.Breaker("openai") != registry.Breaker("openai") {
		t.Error("same provider must share one breaker")
	}
	if registry.Breaker("openai") == registry.Breaker("anthropic") {
		t.Error("different providers must not share a breaker")
	}
}
