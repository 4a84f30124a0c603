package ai

import (
	"regexp"
	"strings"
	"time"

	"github.com/ultrai/orchestrator/core"
)

// Provider represents an AI provider type
type Provider string

// Standard provider constants
const (
	ProviderOpenAI      Provider = "openai"
	ProviderAnthropic   Provider = "anthropic"
	ProviderGoogle      Provider = "google"
	ProviderHuggingFace Provider = "huggingface"
	ProviderUnknown     Provider = "unknown"
)

// AllProviders lists the supported providers in gating order.
func AllProviders() []Provider {
	return []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderHuggingFace}
}

// maxModelIDLength bounds model ids at pipeline entry; anything longer is
// treated as hostile input and dropped.
const maxModelIDLength = 120

// modelIDPatterns is the allow-list a model id must match to enter the
// pipeline. One pattern per provider naming family.
var modelIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^gpt-[\w.-]+$`),
	regexp.MustCompile(`^o[134](-[\w.-]+)?$`),
	regexp.MustCompile(`^chatgpt-[\w.-]+$`),
	regexp.MustCompile(`^claude-[\w.-]+$`),
	regexp.MustCompile(`^gemini-[\w.-]+$`),
	regexp.MustCompile(`^[\w.-]+/[\w.-]+$`), // huggingface org/model
}

// ValidModelID reports whether id matches the allow-list.
func ValidModelID(id string) bool {
	if id == "" || len(id) > maxModelIDLength {
		return false
	}
	for _, p := range modelIDPatterns {
		if p.MatchString(id) {
			return true
		}
	}
	return false
}

// SanitizeModels validates, deduplicates and order-preserves model ids at
// the pipeline entry. Invalid ids are returned separately so the caller
// can log what was dropped.
func SanitizeModels(models []string) (valid []string, dropped []string) {
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		m = strings.TrimSpace(m)
		if !ValidModelID(m) {
			dropped = append(dropped, m)
			continue
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		valid = append(valid, m)
	}
	return valid, dropped
}

// ProviderFromModel derives the provider tag from a model id by naming
// rule. Pure function; the result is never stored persistently.
func ProviderFromModel(model string) Provider {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "chatgpt-"),
		strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return ProviderOpenAI
	case strings.HasPrefix(m, "claude-"):
		return ProviderAnthropic
	case strings.HasPrefix(m, "gemini-"):
		return ProviderGoogle
	case strings.Contains(m, "/"):
		return ProviderHuggingFace
	default:
		return ProviderUnknown
	}
}

// ProvidersOf returns the distinct provider set of the given models.
func ProvidersOf(models []string) map[Provider]bool {
	out := make(map[Provider]bool, len(models))
	for _, m := range models {
		if p := ProviderFromModel(m); p != ProviderUnknown {
			out[p] = true
		}
	}
	return out
}

// AIConfig holds configuration for AI client creation
type AIConfig struct {
	// Provider to use
	Provider string

	// API credentials
	APIKey  string
	BaseURL string

	// Connection settings
	Timeout time.Duration

	// Model configuration
	Model       string
	Temperature float32
	MaxTokens   int

	Logger    core.Logger
	Telemetry core.Telemetry

	// Advanced options
	Headers map[string]string
}

// AIOption configures an AI client
type AIOption func(*AIConfig)

// WithProvider sets the AI provider
func WithProvider(provider string) AIOption {
	return func(c *AIConfig) {
		c.Provider = provider
	}
}

// WithAPIKey sets the API key
func WithAPIKey(key string) AIOption {
	return func(c *AIConfig) {
		c.APIKey = key
	}
}

// WithBaseURL sets the base URL for the API
func WithBaseURL(url string) AIOption {
	return func(c *AIConfig) {
		c.BaseURL = url
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) AIOption {
	return func(c *AIConfig) {
		c.Timeout = timeout
	}
}

// WithModel sets the model to use
func WithModel(model string) AIOption {
	return func(c *AIConfig) {
		c.Model = model
	}
}

// WithTemperature sets the temperature for generation
func WithTemperature(temp float32) AIOption {
	return func(c *AIConfig) {
		c.Temperature = temp
	}
}

// WithMaxTokens sets the maximum tokens for generation
func WithMaxTokens(tokens int) AIOption {
	return func(c *AIConfig) {
		c.MaxTokens = tokens
	}
}

// WithHeaders sets custom headers
func WithHeaders(headers map[string]string) AIOption {
	return func(c *AIConfig) {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		for k, v := range headers {
			c.Headers[k] = v
		}
	}
}

// WithLogger sets the logger for AI operations
func WithLogger(logger core.Logger) AIOption {
	return func(c *AIConfig) {
		c.Logger = logger
	}
}

// WithTelemetry sets the telemetry provider for distributed tracing
func WithTelemetry(telemetry core.Telemetry) AIOption {
	return func(c *AIConfig) {
		c.Telemetry = telemetry
	}
}
