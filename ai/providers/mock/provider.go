// Package mock provides a scriptable AI provider for testing
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ultrai/orchestrator/ai"
	"github.com/ultrai/orchestrator/core"
)

func init() {
	ai.MustRegister(&Factory{})
}

// Factory creates mock AI clients for testing
type Factory struct{}

// Name returns the provider name
func (f *Factory) Name() string {
	return "mock"
}

// Description returns provider description
func (f *Factory) Description() string {
	return "Mock provider for testing"
}

// Create creates a new mock client
func (f *Factory) Create(config *ai.AIConfig) core.AIClient {
	return NewClient(config)
}

// DetectEnvironment always reports unavailable so the mock is never
// auto-detected in production.
func (f *Factory) DetectEnvironment() (priority int, available bool) {
	return 0, false
}

// DefaultModels returns preferred model ids in order
func (f *Factory) DefaultModels() []string {
	return []string{"mock-model"}
}

// Client implements core.AIClient for testing. Safe for concurrent use
// so it can stand in for real adapters under the parallel executor.
type Client struct {
	mu            sync.Mutex
	Config        *ai.AIConfig
	Responses     []string
	ResponseIndex int
	Err           error
	Delay         time.Duration
	CallCount     int
	LastPrompt    string
	LastOptions   *core.AIOptions

	// RespondFunc, when set, takes precedence over Responses and Err.
	RespondFunc func(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error)
}

// NewClient creates a new mock client
func NewClient(config *ai.AIConfig) *Client {
	return &Client{
		Config:    config,
		Responses: []string{"Mock response"},
	}
}

// GenerateResponse returns the next scripted response
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	c.mu.Lock()
	c.CallCount++
	c.LastPrompt = prompt
	c.LastOptions = options
	respond := c.RespondFunc
	delay := c.Delay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if respond != nil {
		return respond(ctx, prompt, options)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}

	if c.ResponseIndex >= len(c.Responses) {
		return nil, errors.New("no more mock responses")
	}

	response := c.Responses[c.ResponseIndex]
	c.ResponseIndex++

	model := "mock-model"
	if options != nil && options.Model != "" {
		model = options.Model
	} else if c.Config != nil && c.Config.Model != "" {
		model = c.Config.Model
	}

	return &core.AIResponse{
		Content:  response,
		Model:    model,
		Provider: "mock",
		Usage: core.TokenUsage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: len(response) / 4,
			TotalTokens:      (len(prompt) + len(response)) / 4,
		},
	}, nil
}

// SetResponses sets the responses to return
func (c *Client) SetResponses(responses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Responses = responses
	c.ResponseIndex = 0
}

// SetError sets an error to return
func (c *Client) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Err = err
}

// Calls returns how many times GenerateResponse has been invoked
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCount
}

// Reset resets the mock client
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ResponseIndex = 0
	c.CallCount = 0
	c.LastPrompt = ""
	c.LastOptions = nil
	c.Err = nil
	c.RespondFunc = nil
}
