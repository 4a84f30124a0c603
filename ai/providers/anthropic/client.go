package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ultrai/orchestrator/ai/providers"
	"github.com/ultrai/orchestrator/core"
)

const (
	// DefaultBaseURL is the default Anthropic API endpoint
	DefaultBaseURL = "https://api.anthropic.com/v1"
	// APIVersion is the required Anthropic API version header
	APIVersion = "2023-06-01"
)

// Client implements core.AIClient for Anthropic
type Client struct {
	*providers.BaseClient
	apiKey  string
	baseURL string
}

// NewClient creates a new Anthropic client with configuration
func NewClient(apiKey, baseURL string, logger core.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	base := providers.NewBaseClient(45*time.Second, logger)
	base.DefaultModel = defaultModels[0]
	base.DefaultMaxTokens = 1000

	return &Client{
		BaseClient: base,
		apiKey:     apiKey,
		baseURL:    baseURL,
	}
}

// GenerateResponse generates a response using Anthropic's native Messages API.
// The API key travels in the x-api-key header, never in the URL.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	ctx, span := c.StartSpan(ctx, "ai.generate_response")
	defer span.End()

	span.SetAttribute("ai.provider", "anthropic")
	span.SetAttribute("ai.prompt_length", len(prompt))

	options = c.ApplyDefaults(options)
	span.SetAttribute("ai.model", options.Model)

	if c.apiKey == "" {
		err := core.NewProviderError("anthropic", options.Model, core.KindMissingAPIKey, core.ErrMissingAPIKey)
		span.RecordError(err)
		return nil, err
	}

	c.LogRequest(ctx, "anthropic", options.Model, prompt)
	startTime := time.Now()

	reqBody := messagesRequest{
		Model: options.Model,
		Messages: []message{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   options.MaxTokens,
		Temperature: options.Temperature,
	}
	if options.SystemPrompt != "" {
		reqBody.System = options.SystemPrompt
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", APIVersion)

	resp, err := c.Do(ctx, "anthropic", options.Model, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, core.NewProviderError("anthropic", options.Model, core.KindTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := c.HandleStatus("anthropic", options.Model, resp.StatusCode, body)
		span.RecordError(apiErr)
		span.SetAttribute("http.status_code", resp.StatusCode)
		return nil, apiErr
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		span.RecordError(err)
		return nil, core.NewProviderError("anthropic", options.Model, core.KindMalformedResponse, err)
	}

	if len(parsed.Content) == 0 {
		err := core.NewProviderError("anthropic", options.Model, core.KindMalformedResponse, core.ErrEmptyResponse)
		span.RecordError(err)
		return nil, err
	}

	usage := core.TokenUsage{
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
		TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}

	duration := time.Since(startTime)
	c.LogResponse(ctx, "anthropic", options.Model, usage, duration)

	span.SetAttribute("ai.prompt_tokens", usage.PromptTokens)
	span.SetAttribute("ai.completion_tokens", usage.CompletionTokens)
	span.SetAttribute("ai.duration_ms", duration.Milliseconds())

	return &core.AIResponse{
		Content:  parsed.Content[0].Text,
		Model:    parsed.Model,
		Provider: "anthropic",
		Usage:    usage,
	}, nil
}
