// Package providers holds the shared plumbing for provider adapters.
// Adapters translate one vendor API to the uniform generate contract and
// never retry: a single HTTP round-trip per call, with every failure
// classified into a core.ErrorKind. Resilience lives a layer up.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ultrai/orchestrator/core"
)

// BaseClient provides common functionality for all AI providers
type BaseClient struct {
	// HTTP client with timeout
	HTTPClient *http.Client

	// Logger for debugging
	Logger core.Logger

	// Telemetry for span emission, nil means no-op
	Telemetry core.Telemetry

	// Default configuration
	DefaultModel        string
	DefaultTemperature  float32
	DefaultMaxTokens    int
	DefaultSystemPrompt string
}

// NewBaseClient creates a new base client with defaults. The transport is
// instrumented so provider round-trips show up in traces.
func NewBaseClient(timeout time.Duration, logger core.Logger) *BaseClient {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	return &BaseClient{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Logger:             logger,
		DefaultTemperature: 0.7,
		DefaultMaxTokens:   1000,
	}
}

// SetTelemetry sets the telemetry provider for distributed tracing
func (b *BaseClient) SetTelemetry(telemetry core.Telemetry) {
	b.Telemetry = telemetry
}

// StartSpan begins a span when telemetry is configured, no-op otherwise.
func (b *BaseClient) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	if b.Telemetry != nil {
		return b.Telemetry.StartSpan(ctx, name)
	}
	return ctx, &core.NoOpSpan{}
}

// Do performs exactly one HTTP round-trip and classifies transport-level
// failures. Status-code classification is the caller's job via HandleStatus
// because some providers overload status codes (huggingface 503 warm-up).
func (b *BaseClient) Do(ctx context.Context, provider, model string, req *http.Request) (*http.Response, error) {
	resp, err := b.HTTPClient.Do(req.WithContext(ctx))
	if err == nil {
		return resp, nil
	}

	kind := core.KindTransport
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = core.KindTimeout
	case errors.Is(err, context.Canceled):
		kind = core.KindCancelled
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = core.KindTimeout
		}
	}

	b.Logger.Error("Provider request failed", core.FieldsWithCorrelation(ctx, map[string]interface{}{
		"operation": "provider_request_error",
		"provider":  provider,
		"model":     model,
		"kind":      string(kind),
		"error":     err.Error(),
	}))

	return nil, core.NewProviderError(provider, model, kind, err)
}

// HandleStatus maps a non-2xx response status onto the uniform error
// taxonomy. Bodies are included in the message but truncated; API keys
// never appear in URLs, so logging req/resp metadata is safe.
func (b *BaseClient) HandleStatus(provider, model string, statusCode int, body []byte) error {
	kind := core.KindOther
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		kind = core.KindAuth
	case statusCode == http.StatusNotFound:
		kind = core.KindNotFound
	case statusCode == http.StatusBadRequest:
		kind = core.KindBadRequest
	case statusCode == http.StatusTooManyRequests:
		kind = core.KindRateLimited
	case statusCode >= 500:
		kind = core.KindTransport
	}

	return &core.ProviderError{
		Provider:   provider,
		Model:      model,
		Kind:       kind,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("status %d: %s", statusCode, TruncateForLog(string(body), 200)),
	}
}

// ApplyDefaults applies default values to options if not set
func (b *BaseClient) ApplyDefaults(options *core.AIOptions) *core.AIOptions {
	if options == nil {
		options = &core.AIOptions{}
	}

	if options.Model == "" && b.DefaultModel != "" {
		options.Model = b.DefaultModel
	}

	if options.Temperature == 0 {
		options.Temperature = b.DefaultTemperature
	}

	if options.MaxTokens == 0 {
		options.MaxTokens = b.DefaultMaxTokens
	}

	if options.SystemPrompt == "" && b.DefaultSystemPrompt != "" {
		options.SystemPrompt = b.DefaultSystemPrompt
	}

	return options
}

// LogRequest logs outgoing API requests
func (b *BaseClient) LogRequest(ctx context.Context, provider, model, prompt string) {
	b.Logger.Info("AI request initiated", core.FieldsWithCorrelation(ctx, map[string]interface{}{
		"operation":     "ai_request",
		"provider":      provider,
		"model":         model,
		"prompt_length": len(prompt),
	}))
}

// LogResponse logs API responses
func (b *BaseClient) LogResponse(ctx context.Context, provider, model string, tokens core.TokenUsage, duration time.Duration) {
	b.Logger.Info("AI response received", core.FieldsWithCorrelation(ctx, map[string]interface{}{
		"operation":         "ai_response",
		"provider":          provider,
		"model":             model,
		"prompt_tokens":     tokens.PromptTokens,
		"completion_tokens": tokens.CompletionTokens,
		"total_tokens":      tokens.TotalTokens,
		"duration_ms":       duration.Milliseconds(),
		"status":            "success",
	}))
}

// TruncateForLog truncates a string for logging purposes
func TruncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
