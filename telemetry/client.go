package telemetry

import (
	"context"
	"time"

	"github.com/ultrai/orchestrator/core"
)

// InstrumentedClient wraps an AIClient with span emission, cost
// attribution and call metrics. It sits outside the resilience wrapper
// so one span covers the whole call including retries.
type InstrumentedClient struct {
	inner     core.AIClient
	provider  string
	telemetry core.Telemetry
	logger    core.Logger
}

// NewInstrumentedClient wraps a client for one provider
func NewInstrumentedClient(inner core.AIClient, provider string, telemetry core.Telemetry, logger core.Logger) *InstrumentedClient {
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &InstrumentedClient{
		inner:     inner,
		provider:  provider,
		telemetry: telemetry,
		logger:    logger,
	}
}

// GenerateResponse delegates to the wrapped client, recording one span
// and the call metrics regardless of outcome.
func (c *InstrumentedClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	model := ""
	if options != nil {
		model = options.Model
	}

	ctx, span := c.telemetry.StartSpan(ctx, "llm.generate")
	defer span.End()

	span.SetAttribute("provider", c.provider)
	span.SetAttribute("model", model)

	start := time.Now()
	resp, err := c.inner.GenerateResponse(ctx, prompt, options)
	durationMS := time.Since(start).Milliseconds()

	span.SetAttribute("duration_ms", durationMS)
	Duration("llm.call.duration_ms", start, "provider", c.provider, "model", model)

	if err != nil {
		span.SetAttribute("success", false)
		span.RecordError(err)
		Counter("llm.calls.total", "provider", c.provider, "model", model, "status", "error",
			"kind", string(core.KindOf(err)))
		return nil, err
	}

	usage := EnsureUsage(resp.Usage, prompt, resp.Content)
	resp.Usage = usage
	cost := Cost(model, usage)

	span.SetAttribute("success", true)
	span.SetAttribute("input_tokens", usage.PromptTokens)
	span.SetAttribute("output_tokens", usage.CompletionTokens)
	span.SetAttribute("cost_usd", cost)

	Counter("llm.calls.total", "provider", c.provider, "model", model, "status", "success")
	CounterAdd("llm.tokens.total", float64(usage.TotalTokens), "provider", c.provider, "model", model)
	CounterAdd("llm.cost.usd", cost, "provider", c.provider, "model", model)

	c.logger.Debug("Model call cost recorded", core.FieldsWithCorrelation(ctx, map[string]interface{}{
		"operation":     "cost_attribution",
		"provider":      c.provider,
		"model":         model,
		"input_tokens":  usage.PromptTokens,
		"output_tokens": usage.CompletionTokens,
		"cost_usd":      cost,
		"duration_ms":   durationMS,
	}))

	return resp, nil
}
