package telemetry

import (
	"strings"

	"github.com/ultrai/orchestrator/core"
)

// Pricing is dollars per 1000 tokens for one model
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// modelPricing is the static price table. Matching is by longest id
// prefix so dated snapshots inherit their family price.
var modelPricing = map[string]Pricing{
	"gpt-4o":                 {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini":            {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4":                  {InputPer1K: 0.03, OutputPer1K: 0.06},
	"gpt-3.5-turbo":          {InputPer1K: 0.0005, OutputPer1K: 0.0015},
	"o1":                     {InputPer1K: 0.015, OutputPer1K: 0.06},
	"claude-3-5-sonnet":      {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-3-5-haiku":       {InputPer1K: 0.0008, OutputPer1K: 0.004},
	"claude-3-opus":          {InputPer1K: 0.015, OutputPer1K: 0.075},
	"gemini-1.5-flash":       {InputPer1K: 0.000075, OutputPer1K: 0.0003},
	"gemini-1.5-pro":         {InputPer1K: 0.00125, OutputPer1K: 0.005},
	"gemini-2.0-flash":       {InputPer1K: 0.0001, OutputPer1K: 0.0004},
}

// defaultPricing applies to models absent from the table so cost
// reporting never silently drops a call.
var defaultPricing = Pricing{InputPer1K: 0.001, OutputPer1K: 0.002}

// PricingFor returns the price row for a model id
func PricingFor(model string) Pricing {
	best := ""
	for prefix := range modelPricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return defaultPricing
	}
	return modelPricing[best]
}

// EstimateTokens approximates token count from text length when the
// provider reports no usage numbers.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// EnsureUsage fills in estimated token counts for providers that do not
// report usage. Provider numbers win when present.
func EnsureUsage(usage core.TokenUsage, prompt, completion string) core.TokenUsage {
	if usage.PromptTokens == 0 {
		usage.PromptTokens = EstimateTokens(prompt)
	}
	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = EstimateTokens(completion)
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

// Cost computes the dollar cost of one call
func Cost(model string, usage core.TokenUsage) float64 {
	p := PricingFor(model)
	return float64(usage.PromptTokens)/1000*p.InputPer1K +
		float64(usage.CompletionTokens)/1000*p.OutputPer1K
}
