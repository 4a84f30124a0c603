package huggingface

import (
	"os"

	"github.com/ultrai/orchestrator/ai"
	"github.com/ultrai/orchestrator/core"
)

// Factory implements ai.ProviderFactory for HuggingFace
type Factory struct{}

// Create creates a new HuggingFace client instance
func (f *Factory) Create(config *ai.AIConfig) core.AIClient {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("HUGGINGFACE_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("HF_TOKEN")
		}
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("HUGGINGFACE_BASE_URL")
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

// DetectEnvironment checks if HuggingFace can be used
func (f *Factory) DetectEnvironment() (priority int, available bool) {
	if os.Getenv("HUGGINGFACE_API_KEY") != "" || os.Getenv("HF_TOKEN") != "" {
		return 60, true
	}
	return 0, false
}

// Name returns the provider name
func (f *Factory) Name() string {
	return "huggingface"
}

// DefaultModels returns preferred model ids in order
func (f *Factory) DefaultModels() []string {
	return defaultModels
}

// Description returns a human-readable description
func (f *Factory) Description() string {
	return "HuggingFace Inference API (text generation)"
}

// init registers this provider with the global registry
func init() {
	ai.MustRegister(&Factory{})
}
