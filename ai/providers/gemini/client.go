package gemini

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
	// DefaultBaseURL is the default Gemini API endpoint
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Client implements core.AIClient for Google Gemini
type Client struct {
	*providers.BaseClient
	apiKey  string
	baseURL string
}

// NewClient creates a new Gemini client with configuration
func NewClient(apiKey, baseURL string, logger core.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	base := providers.NewBaseClient(25*time.Second, logger)
	base.DefaultModel = defaultModels[0]
	base.DefaultMaxTokens = 1000

	return &Client{
		BaseClient: base,
		apiKey:     apiKey,
		baseURL:    baseURL,
	}
}

// GenerateResponse generates a response using Gemini's GenerateContent API.
// The API key goes in the x-goog-api-key header so it never appears in
// URLs or request logs.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	ctx, span := c.StartSpan(ctx, "ai.generate_response")
	defer span.End()

	span.SetAttribute("ai.provider", "google")
	span.SetAttribute("ai.prompt_length", len(prompt))

	options = c.ApplyDefaults(options)
	span.SetAttribute("ai.model", options.Model)

	if c.apiKey == "" {
		err := core.NewProviderError("google", options.Model, core.KindMissingAPIKey, core.ErrMissingAPIKey)
		span.RecordError(err)
		return nil, err
	}

	c.LogRequest(ctx, "google", options.Model, prompt)
	startTime := time.Now()

	reqBody := generateRequest{
		Contents: []content{
			{
				Role:  "user",
				Parts: []part{{Text: prompt}},
			},
		},
		GenerationConfig: &generationConfig{
			Temperature:     options.Temperature,
			MaxOutputTokens: options.MaxTokens,
		},
	}
	if options.SystemPrompt != "" {
		reqBody.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: options.SystemPrompt}},
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, options.Model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.Do(ctx, "google", options.Model, req)
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
		return nil, core.NewProviderError("google", options.Model, core.KindTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := c.HandleStatus("google", options.Model, resp.StatusCode, body)
		span.RecordError(apiErr)
		span.SetAttribute("http.status_code", resp.StatusCode)
		return nil, apiErr
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		span.RecordError(err)
		return nil, core.NewProviderError("google", options.Model, core.KindMalformedResponse, err)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		err := core.NewProviderError("google", options.Model, core.KindMalformedResponse, core.ErrEmptyResponse)
		span.RecordError(err)
		return nil, err
	}

	usage := core.TokenUsage{
		PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
		CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
	}

	duration := time.Since(startTime)
	c.LogResponse(ctx, "google", options.Model, usage, duration)

	span.SetAttribute("ai.prompt_tokens", usage.PromptTokens)
	span.SetAttribute("ai.completion_tokens", usage.CompletionTokens)
	span.SetAttribute("ai.duration_ms", duration.Milliseconds())

	return &core.AIResponse{
		Content:  parsed.Candidates[0].Content.Parts[0].Text,
		Model:    options.Model,
		Provider: "google",
		Usage:    usage,
	}, nil
}
