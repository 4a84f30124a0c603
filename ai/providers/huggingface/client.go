package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ultrai/orchestrator/ai/providers"
	"github.com/ultrai/orchestrator/core"
)

const (
	// DefaultBaseURL is the default HuggingFace Inference API endpoint
	DefaultBaseURL = "https://api-inference.huggingface.co/models"
)

// Client implements core.AIClient for the HuggingFace Inference API
type Client struct {
	*providers.BaseClient
	apiKey  string
	baseURL string
}

// NewClient creates a new HuggingFace client with configuration.
// The timeout is longer than other providers because cold models can
// take most of a minute to load on the inference infrastructure.
func NewClient(apiKey, baseURL string, logger core.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	base := providers.NewBaseClient(60*time.Second, logger)
	base.DefaultModel = defaultModels[0]
	base.DefaultMaxTokens = 1000

	return &Client{
		BaseClient: base,
		apiKey:     apiKey,
		baseURL:    baseURL,
	}
}

// GenerateResponse generates a response using the text-generation task.
// Prompts are wrapped in an [INST] instruction turn so instruction-tuned
// models treat the input as a directive rather than text to continue.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	ctx, span := c.StartSpan(ctx, "ai.generate_response")
	defer span.End()

	span.SetAttribute("ai.provider", "huggingface")
	span.SetAttribute("ai.prompt_length", len(prompt))

	options = c.ApplyDefaults(options)
	span.SetAttribute("ai.model", options.Model)

	if c.apiKey == "" {
		err := core.NewProviderError("huggingface", options.Model, core.KindMissingAPIKey, core.ErrMissingAPIKey)
		span.RecordError(err)
		return nil, err
	}

	c.LogRequest(ctx, "huggingface", options.Model, prompt)
	startTime := time.Now()

	fullPrompt := prompt
	if options.SystemPrompt != "" {
		fullPrompt = options.SystemPrompt + "\n\n" + prompt
	}

	reqBody := inferenceRequest{
		Inputs: fmt.Sprintf("[INST] %s [/INST]", fullPrompt),
		Parameters: inferenceParameters{
			MaxNewTokens:   options.MaxTokens,
			Temperature:    options.Temperature,
			ReturnFullText: false,
		},
		Options: inferenceOptions{
			WaitForModel: true,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, options.Model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.Do(ctx, "huggingface", options.Model, req)
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
		return nil, core.NewProviderError("huggingface", options.Model, core.KindTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		if isModelLoading(resp.StatusCode, body) {
			loadErr := core.NewProviderError("huggingface", options.Model, core.KindLoading, core.ErrModelLoading)
			span.RecordError(loadErr)
			return nil, loadErr
		}
		apiErr := c.HandleStatus("huggingface", options.Model, resp.StatusCode, body)
		span.RecordError(apiErr)
		span.SetAttribute("http.status_code", resp.StatusCode)
		return nil, apiErr
	}

	var parsed []generatedText
	if err := json.Unmarshal(body, &parsed); err != nil {
		span.RecordError(err)
		return nil, core.NewProviderError("huggingface", options.Model, core.KindMalformedResponse, err)
	}

	if len(parsed) == 0 || parsed[0].GeneratedText == "" {
		err := core.NewProviderError("huggingface", options.Model, core.KindMalformedResponse, core.ErrEmptyResponse)
		span.RecordError(err)
		return nil, err
	}

	text := strings.TrimSpace(parsed[0].GeneratedText)

	// The Inference API does not report token counts. Estimate from
	// character lengths so cost accounting still has a signal.
	usage := core.TokenUsage{
		PromptTokens:     len(fullPrompt) / 4,
		CompletionTokens: len(text) / 4,
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	duration := time.Since(startTime)
	c.LogResponse(ctx, "huggingface", options.Model, usage, duration)

	span.SetAttribute("ai.completion_length", len(text))
	span.SetAttribute("ai.duration_ms", duration.Milliseconds())

	return &core.AIResponse{
		Content:  text,
		Model:    options.Model,
		Provider: "huggingface",
		Usage:    usage,
	}, nil
}

// isModelLoading reports whether an error response means the model is
// still warming up. The Inference API answers 503 with an "is currently
// loading" body and an estimated_time field while weights are loading.
func isModelLoading(statusCode int, body []byte) bool {
	if statusCode != http.StatusServiceUnavailable {
		return false
	}
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "loading") || strings.Contains(lower, "estimated_time")
}
