package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3, cfg.Pipeline.MinimumModelsRequired)
	assert.Equal(t, []string{"openai", "anthropic", "google"}, cfg.Pipeline.RequiredProviders)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrentModels)
	assert.True(t, cfg.Pipeline.PeerReviewSameModel)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Retry.ExponentialBase)
	assert.False(t, cfg.Cache.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("MINIMUM_MODELS_REQUIRED", "1")
	t.Setenv("REQUIRED_PROVIDERS", "openai, anthropic")
	t.Setenv("ENABLE_SINGLE_MODEL_FALLBACK", "true")
	t.Setenv("INITIAL_RESPONSE_TIMEOUT", "45s")
	t.Setenv("CONCURRENT_EXECUTION_TIMEOUT", "70")
	t.Setenv("MAX_RETRY_ATTEMPTS", "5")
	t.Setenv("ENABLE_CACHE", "true")
	t.Setenv("CACHE_TTL", "10m")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Pipeline.MinimumModelsRequired)
	assert.Equal(t, []string{"openai", "anthropic"}, cfg.Pipeline.RequiredProviders)
	assert.True(t, cfg.Pipeline.EnableSingleModelFallback)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.InitialResponseTimeout)
	// Bare numbers parse as seconds.
	assert.Equal(t, 70*time.Second, cfg.Pipeline.ConcurrentExecutionTimeout)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
}

func TestConfigOptionsPrecedence(t *testing.T) {
	t.Setenv("MINIMUM_MODELS_REQUIRED", "2")

	cfg, err := NewConfig(WithMinimumModels(5))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Pipeline.MinimumModelsRequired, "explicit option must beat env")
}

func TestConfigValidation(t *testing.T) {
	_, err := NewConfig(WithMinimumModels(0))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	cfg := DefaultConfig()
	cfg.Retry.ExponentialBase = 0.5
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfiguration)

	cfg = DefaultConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.TTL = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfiguration)
}

func TestConfigFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	content := []byte(`
pipeline:
  minimum_models_required: 2
  required_providers: [openai, google]
cache:
  enabled: true
  ttl: 2m
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := NewConfig(WithConfigFile(path))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Pipeline.MinimumModelsRequired)
	assert.Equal(t, []string{"openai", "google"}, cfg.Pipeline.RequiredProviders)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
}

func TestConfigFileMissing(t *testing.T) {
	_, err := NewConfig(WithConfigFile("/nonexistent/orchestrator.yaml"))
	assert.Error(t, err)
}
