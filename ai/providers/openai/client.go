package openai

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
	// DefaultBaseURL is the default OpenAI API endpoint
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Client implements core.AIClient for OpenAI
type Client struct {
	*providers.BaseClient
	apiKey  string
	baseURL string
}

// NewClient creates a new OpenAI client with configuration
func NewClient(apiKey, baseURL string, logger core.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	base := providers.NewBaseClient(30*time.Second, logger)
	base.DefaultModel = defaultModels[0]

	return &Client{
		BaseClient: base,
		apiKey:     apiKey,
		baseURL:    baseURL,
	}
}

// GenerateResponse generates a response using OpenAI's Chat Completions API.
// Exactly one round-trip; retries belong to the resilience layer.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	ctx, span := c.StartSpan(ctx, "ai.generate_response")
	defer span.End()

	span.SetAttribute("ai.provider", "openai")
	span.SetAttribute("ai.prompt_length", len(prompt))

	options = c.ApplyDefaults(options)
	span.SetAttribute("ai.model", options.Model)

	if c.apiKey == "" {
		err := core.NewProviderError("openai", options.Model, core.KindMissingAPIKey, core.ErrMissingAPIKey)
		span.RecordError(err)
		return nil, err
	}

	c.LogRequest(ctx, "openai", options.Model, prompt)
	startTime := time.Now()

	messages := []map[string]string{}
	if options.SystemPrompt != "" {
		messages = append(messages, map[string]string{
			"role":    "system",
			"content": options.SystemPrompt,
		})
	}
	messages = append(messages, map[string]string{
		"role":    "user",
		"content": prompt,
	})

	reqBody := chatRequest{
		Model:       options.Model,
		Messages:    messages,
		MaxTokens:   options.MaxTokens,
		Temperature: options.Temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.Do(ctx, "openai", options.Model, req)
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
		return nil, core.NewProviderError("openai", options.Model, core.KindTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := c.HandleStatus("openai", options.Model, resp.StatusCode, body)
		span.RecordError(apiErr)
		span.SetAttribute("http.status_code", resp.StatusCode)
		return nil, apiErr
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		span.RecordError(err)
		return nil, core.NewProviderError("openai", options.Model, core.KindMalformedResponse, err)
	}

	if len(parsed.Choices) == 0 {
		err := core.NewProviderError("openai", options.Model, core.KindMalformedResponse, core.ErrEmptyResponse)
		span.RecordError(err)
		return nil, err
	}

	usage := core.TokenUsage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}

	duration := time.Since(startTime)
	c.LogResponse(ctx, "openai", options.Model, usage, duration)

	span.SetAttribute("ai.prompt_tokens", usage.PromptTokens)
	span.SetAttribute("ai.completion_tokens", usage.CompletionTokens)
	span.SetAttribute("ai.duration_ms", duration.Milliseconds())

	return &core.AIResponse{
		Content:  parsed.Choices[0].Message.Content,
		Model:    parsed.Model,
		Provider: "openai",
		Usage:    usage,
	}, nil
}
