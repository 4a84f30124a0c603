package telemetry

import (
	"math"
	"testing"

	"github.com/ultrai/orchestrator/core"
)

func TestPricingForPrefixMatch(t *testing.T) {
	// Dated snapshot inherits the family price.
	p := PricingFor("claude-3-5-sonnet-20241022")
	if p != modelPricing["claude-3-5-sonnet"] {
		t.Errorf("snapshot pricing = %+v", p)
	}

	// Longest prefix wins: gpt-4o-mini is not priced as gpt-4o.
	if PricingFor("gpt-4o-mini") == modelPricing["gpt-4o"] {
		t.Error("gpt-4o-mini matched the gpt-4o row")
	}

	// Unknown models fall back to the default row.
	if PricingFor("some/random-model") != defaultPricing {
		t.Error("unknown model did not get default pricing")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("12345678"); got != 2 {
		t.Errorf("EstimateTokens = %d, want 2", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(empty) = %d", got)
	}
}

func TestEnsureUsagePrefersProviderNumbers(t *testing.T) {
	reported := core.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}
	got := EnsureUsage(reported, "short", "short")
	if got != reported {
		t.Errorf("provider usage overridden: %+v", got)
	}
}

func TestEnsureUsageEstimatesWhenMissing(t *testing.T) {
	prompt := "this prompt is forty characters long...."
	completion := "an eight"

	got := EnsureUsage(core.TokenUsage{}, prompt, completion)
	if got.PromptTokens != len(prompt)/4 {
		t.Errorf("prompt tokens = %d, want %d", got.PromptTokens, len(prompt)/4)
	}
	if got.CompletionTokens != len(completion)/4 {
		t.Errorf("completion tokens = %d, want %d", got.CompletionTokens, len(completion)/4)
	}
	if got.TotalTokens != got.PromptTokens+got.CompletionTokens {
		t.Errorf("total tokens = %d", got.TotalTokens)
	}
}

func TestCost(t *testing.T) {
	usage := core.TokenUsage{PromptTokens: 1000, CompletionTokens: 1000}
	got := Cost("gpt-4", usage)
	want := 0.03 + 0.06
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Cost = %f, want %f", got, want)
	}
}
