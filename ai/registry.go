package ai

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ultrai/orchestrator/core"
)

// ProviderFactory defines the interface for AI provider factories
type ProviderFactory interface {
	// Create creates a new AI client instance with the given configuration
	Create(config *AIConfig) core.AIClient

	// DetectEnvironment checks if this provider can be used with current environment
	// Returns priority (higher = preferred) and availability
	DetectEnvironment() (priority int, available bool)

	// Name returns the provider's name
	Name() string

	// DefaultModels returns the provider's preferred model ids in order,
	// used for default selection and fallback suggestions.
	DefaultModels() []string

	// Description returns a human-readable description
	Description() string
}

// ProviderRegistry manages registered AI providers
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// Global registry instance
var registry = &ProviderRegistry{
	providers: make(map[string]ProviderFactory),
}

// Register registers a new AI provider factory
// This is typically called from init() functions in provider packages
func Register(factory ProviderFactory) error {
	if factory == nil {
		return fmt.Errorf("factory cannot be nil")
	}

	name := factory.Name()
	if name == "" {
		return fmt.Errorf("factory.Name() cannot be empty")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.providers[name]; exists {
		return fmt.Errorf("provider '%s' already registered", name)
	}

	registry.providers[name] = factory
	return nil
}

// MustRegister registers a provider and panics on error
// Use this in init() functions where errors cannot be handled
func MustRegister(factory ProviderFactory) {
	if err := Register(factory); err != nil {
		panic(fmt.Sprintf("failed to register provider: %v", err))
	}
}

// GetProvider retrieves a registered provider by name
func GetProvider(name string) (ProviderFactory, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	factory, exists := registry.providers[name]
	return factory, exists
}

// ListProviders returns all registered provider names
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderInfo contains information about a registered provider
type ProviderInfo struct {
	Name        string
	Description string
	Available   bool
	Priority    int
}

// AvailableProviders returns providers usable in the current environment,
// ordered by detection priority (highest first).
func AvailableProviders(logger core.Logger) []ProviderInfo {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	info := make([]ProviderInfo, 0, len(registry.providers))
	for name, factory := range registry.providers {
		priority, available := factory.DetectEnvironment()

		if logger != nil {
			logger.Debug("Provider environment check", map[string]interface{}{
				"operation": "provider_check",
				"provider":  name,
				"priority":  priority,
				"available": available,
			})
		}

		if available {
			info = append(info, ProviderInfo{
				Name:        name,
				Description: factory.Description(),
				Available:   true,
				Priority:    priority,
			})
		}
	}

	sort.Slice(info, func(i, j int) bool {
		if info[i].Priority != info[j].Priority {
			return info[i].Priority > info[j].Priority
		}
		return info[i].Name < info[j].Name
	})

	return info
}

// DefaultModelSet builds a provider-diversified default model list: the
// first model of each available provider, in priority order, up to n.
// Used by the pipeline driver when the caller selects no models.
func DefaultModelSet(n int, logger core.Logger) []string {
	available := AvailableProviders(logger)

	var models []string
	// First pass: one model per provider for diversity.
	for _, p := range available {
		if len(models) >= n {
			break
		}
		factory, _ := GetProvider(p.Name)
		if defaults := factory.DefaultModels(); len(defaults) > 0 {
			models = append(models, defaults[0])
		}
	}
	// Second pass: fill remaining slots with each provider's alternates.
	for _, p := range available {
		if len(models) >= n {
			break
		}
		factory, _ := GetProvider(p.Name)
		defaults := factory.DefaultModels()
		if len(defaults) < 2 {
			continue
		}
		for _, m := range defaults[1:] {
			if len(models) >= n {
				break
			}
			if !contains(models, m) {
				models = append(models, m)
			}
		}
	}

	if logger != nil {
		logger.Info("Default model set selected", map[string]interface{}{
			"operation":           "default_model_selection",
			"requested":           n,
			"selected":            models,
			"available_providers": len(available),
		})
	}
	return models
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
