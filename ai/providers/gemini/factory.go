package gemini

import (
	"os"

	"github.com/ultrai/orchestrator/ai"
	"github.com/ultrai/orchestrator/core"
)

// Factory implements ai.ProviderFactory for Google Gemini
type Factory struct{}

// Create creates a new Gemini client instance
func (f *Factory) Create(config *ai.AIConfig) core.AIClient {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("GEMINI_BASE_URL")
	}

	client := NewClient(apiKey, baseURL, config.Logger)

	if config.Timeout > 0 {
		client.BaseClient.HTTPClient.Timeout = config.Timeout
	}
	if config.Model != "" {
		client.BaseClient.DefaultModel = config.Model
	}
	if config.Temperature > 0 {
		client.BaseClient.DefaultTemperature = config.Temperature
	}
	if config.MaxTokens > 0 {
		client.BaseClient.DefaultMaxTokens = config.MaxTokens
	}
	if config.Telemetry != nil {
		client.BaseClient.SetTelemetry(config.Telemetry)
	}

	return client
}

// DetectEnvironment checks if Gemini can be used
func (f *Factory) DetectEnvironment() (priority int, available bool) {
	if os.Getenv("GOOGLE_API_KEY") != "" || os.Getenv("GEMINI_API_KEY") != "" {
		return 90, true
	}
	return 0, false
}

// Name returns the provider name
func (f *Factory) Name() string {
	return "google"
}

// DefaultModels returns preferred model ids in order
func (f *Factory) DefaultModels() []string {
	return defaultModels
}

// Description returns a human-readable description
func (f *Factory) Description() string {
	return "Google Gemini GenerateContent API"
}

// init registers this provider with the global registry
func init() {
	ai.MustRegister(&Factory{})
}
