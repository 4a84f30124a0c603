package ai

import (
	"fmt"

	"github.com/ultrai/orchestrator/core"
)

// NewClient creates an AI client using registered providers
func NewClient(opts ...AIOption) (core.AIClient, error) {
	config := &AIConfig{
		Temperature: 0.7,
		MaxTokens:   1000,
	}

	for _, opt := range opts {
		opt(config)
	}

	if config.Logger != nil {
		if cal, ok := config.Logger.(core.ComponentAwareLogger); ok {
			config.Logger = cal.WithComponent("ai")
		}
	}

	// Auto-detect when no provider was named.
	if config.Provider == "" {
		available := AvailableProviders(config.Logger)
		if len(available) == 0 {
			if config.Logger != nil {
				config.Logger.Error("AI provider auto-detection failed", map[string]interface{}{
					"operation":           "ai_provider_detection",
					"available_providers": ListProviders(),
					"suggestion":          "Set explicit provider or configure API keys",
				})
			}
			return nil, fmt.Errorf("no AI provider available: %w", core.ErrMissingConfiguration)
		}
		config.Provider = available[0].Name

		if config.Logger != nil {
			config.Logger.Info("AI provider auto-detected", map[string]interface{}{
				"operation":         "ai_provider_detection",
				"selected_provider": config.Provider,
				"detection_method":  "environment_scan",
			})
		}
	}

	factory, exists := GetProvider(config.Provider)
	if !exists {
		return nil, fmt.Errorf("provider '%s' not registered. Import _ \"github.com/ultrai/orchestrator/ai/providers/%s\"",
			config.Provider, config.Provider)
	}

	client := factory.Create(config)
	if config.Logger != nil {
		config.Logger.Info("AI client created", map[string]interface{}{
			"operation": "ai_client_creation",
			"provider":  config.Provider,
		})
	}

	return client, nil
}

// MustNewClient creates a new AI client and panics on error
func MustNewClient(opts ...AIOption) core.AIClient {
	client, err := NewClient(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create AI client: %v", err))
	}
	return client
}

// ClientForModel creates a client for whichever provider the model id
// names. The model is pinned as the client's default so callers can pass
// nil options per call.
func ClientForModel(model string, opts ...AIOption) (core.AIClient, error) {
	provider := ProviderFromModel(model)
	if provider == ProviderUnknown {
		return nil, fmt.Errorf("%w: cannot derive provider from model %q", core.ErrInvalidModel, model)
	}

	// gemini registers under the provider tag "google"
	name := string(provider)

	combined := append([]AIOption{WithProvider(name), WithModel(model)}, opts...)
	return NewClient(combined...)
}
