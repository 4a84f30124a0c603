package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the orchestrator configuration. Defaults are production-ready;
// every field can be overridden by environment variables, an optional YAML
// file, or functional options. Precedence: explicit option > env > file >
// default.
type Config struct {
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline"`
	Retry     RetryConfig     `json:"retry" yaml:"retry"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Selector  SelectorConfig  `json:"selector" yaml:"selector"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// PipelineConfig gates and times the three-stage synthesis pipeline.
type PipelineConfig struct {
	// MinimumModelsRequired is the minimum number of healthy models needed
	// to run the pipeline. Env: MINIMUM_MODELS_REQUIRED.
	MinimumModelsRequired int `json:"minimum_models_required" yaml:"minimum_models_required"`

	// RequiredProviders must all be represented among the selected models.
	// Env: REQUIRED_PROVIDERS (comma-separated).
	RequiredProviders []string `json:"required_providers" yaml:"required_providers"`

	// EnableSingleModelFallback allows a degraded run (peer review skipped)
	// when fewer than MinimumModelsRequired succeed but at least one does.
	// Env: ENABLE_SINGLE_MODEL_FALLBACK.
	EnableSingleModelFallback bool `json:"enable_single_model_fallback" yaml:"enable_single_model_fallback"`

	// Per-stage model attempt timeouts, retries included.
	InitialResponseTimeout time.Duration `json:"initial_response_timeout" yaml:"initial_response_timeout"`
	PeerReviewTimeout      time.Duration `json:"peer_review_timeout" yaml:"peer_review_timeout"`
	UltraSynthesisTimeout  time.Duration `json:"ultra_synthesis_timeout" yaml:"ultra_synthesis_timeout"`

	// ConcurrentExecutionTimeout bounds a whole fan-out group; on expiry
	// pending model calls are cancelled and awaited.
	ConcurrentExecutionTimeout time.Duration `json:"concurrent_execution_timeout" yaml:"concurrent_execution_timeout"`

	// MaxConcurrentModels caps in-flight calls within one stage.
	MaxConcurrentModels int `json:"max_concurrent_models" yaml:"max_concurrent_models"`

	// DefaultModels used when the caller selects none. Env: DEFAULT_MODELS.
	DefaultModels []string `json:"default_models" yaml:"default_models"`

	// PeerReviewSameModel revises with the same model that produced the
	// initial answer; on failure the original answer is carried forward.
	PeerReviewSameModel bool `json:"peer_review_same_model" yaml:"peer_review_same_model"`

	// EnhancedSynthesisEnabled turns on query-type-aware prompts, the
	// scoring selector and annotated output.
	EnhancedSynthesisEnabled bool `json:"enhanced_synthesis_enabled" yaml:"enhanced_synthesis_enabled"`

	// TestingMode substitutes stub responses for real provider calls.
	TestingMode bool `json:"testing_mode" yaml:"testing_mode"`

	// SaveOutputsDir, when set, receives JSON/TXT dumps of pipeline results.
	SaveOutputsDir string `json:"save_outputs_dir" yaml:"save_outputs_dir"`
}

// RetryConfig defines the resilient wrapper's retry policy.
// Delay formula: min(InitialDelay × ExponentialBase^attempt, MaxDelay) ± jitter.
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay    time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay        time.Duration `json:"max_delay" yaml:"max_delay"`
	ExponentialBase float64       `json:"exponential_base" yaml:"exponential_base"`
	JitterEnabled   bool          `json:"jitter_enabled" yaml:"jitter_enabled"`
}

// RateLimitConfig controls both the token-bucket gate and the
// response-body rate-limit pattern scanning.
type RateLimitConfig struct {
	DetectionEnabled bool `json:"detection_enabled" yaml:"detection_enabled"`
	RetryEnabled     bool `json:"retry_enabled" yaml:"retry_enabled"`

	// DefaultRPM and DefaultBurst seed auto-registered endpoints.
	DefaultRPM   int `json:"default_rpm" yaml:"default_rpm"`
	DefaultBurst int `json:"default_burst" yaml:"default_burst"`

	// Patterns maps provider → regexes matched against response bodies.
	// The exact phrasing drifts with provider releases, so it is
	// configuration, not code; compiled-in defaults apply when empty.
	Patterns map[string][]string `json:"patterns" yaml:"patterns"`
}

// CacheConfig controls the pipeline result cache.
type CacheConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
	RedisURL string        `json:"redis_url" yaml:"redis_url"`
}

// SelectorConfig controls the synthesis model selector.
type SelectorConfig struct {
	// MetricsPath is the JSON file holding per-model performance metrics
	// across runs. Writes are best-effort.
	MetricsPath string `json:"metrics_path" yaml:"metrics_path"`
}

// LoggingConfig contains logging configuration.
// JSON format is the production default for log aggregation.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	Output     string `json:"output" yaml:"output"`
	TimeFormat string `json:"time_format" yaml:"time_format"`
}

// Option is a functional option for configuration.
// Options are applied in order and can return an error when invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MinimumModelsRequired:      3,
			RequiredProviders:          []string{"openai", "anthropic", "google"},
			EnableSingleModelFallback:  false,
			InitialResponseTimeout:     60 * time.Second,
			PeerReviewTimeout:          90 * time.Second,
			UltraSynthesisTimeout:      120 * time.Second,
			ConcurrentExecutionTimeout: 180 * time.Second,
			MaxConcurrentModels:        4,
			PeerReviewSameModel:        true,
			EnhancedSynthesisEnabled:   true,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialDelay:    time.Second,
			MaxDelay:        30 * time.Second,
			ExponentialBase: 2.0,
			JitterEnabled:   true,
		},
		RateLimit: RateLimitConfig{
			DetectionEnabled: true,
			RetryEnabled:     true,
			DefaultRPM:       60,
			DefaultBurst:     10,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     5 * time.Minute,
		},
		Selector: SelectorConfig{
			MetricsPath: "model_metrics.json",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: time.RFC3339,
		},
	}
}

// NewConfig builds a configuration from defaults, environment and options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	cfg.applyEnvironment()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays settings from a YAML file onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks internal consistency.
func (c *Config) Validate() error {
	if c.Pipeline.MinimumModelsRequired < 1 {
		return fmt.Errorf("%w: minimum_models_required must be >= 1, got %d",
			ErrInvalidConfiguration, c.Pipeline.MinimumModelsRequired)
	}
	if c.Pipeline.MaxConcurrentModels < 1 {
		return fmt.Errorf("%w: max_concurrent_models must be >= 1, got %d",
			ErrInvalidConfiguration, c.Pipeline.MaxConcurrentModels)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry max_attempts must be >= 1, got %d",
			ErrInvalidConfiguration, c.Retry.MaxAttempts)
	}
	if c.Retry.ExponentialBase < 1 {
		return fmt.Errorf("%w: retry exponential_base must be >= 1, got %f",
			ErrInvalidConfiguration, c.Retry.ExponentialBase)
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("%w: cache ttl must be positive when cache is enabled",
			ErrInvalidConfiguration)
	}
	return nil
}

// applyEnvironment overlays recognized environment variables.
func (c *Config) applyEnvironment() {
	envInt("MINIMUM_MODELS_REQUIRED", &c.Pipeline.MinimumModelsRequired)
	envList("REQUIRED_PROVIDERS", &c.Pipeline.RequiredProviders)
	envBool("ENABLE_SINGLE_MODEL_FALLBACK", &c.Pipeline.EnableSingleModelFallback)
	envDuration("INITIAL_RESPONSE_TIMEOUT", &c.Pipeline.InitialResponseTimeout)
	envDuration("PEER_REVIEW_TIMEOUT", &c.Pipeline.PeerReviewTimeout)
	envDuration("ULTRA_SYNTHESIS_TIMEOUT", &c.Pipeline.UltraSynthesisTimeout)
	envDuration("CONCURRENT_EXECUTION_TIMEOUT", &c.Pipeline.ConcurrentExecutionTimeout)
	envInt("MAX_CONCURRENT_MODELS", &c.Pipeline.MaxConcurrentModels)
	envList("DEFAULT_MODELS", &c.Pipeline.DefaultModels)
	envBool("PEER_REVIEW_SAME_MODEL", &c.Pipeline.PeerReviewSameModel)
	envBool("ENHANCED_SYNTHESIS_ENABLED", &c.Pipeline.EnhancedSynthesisEnabled)
	envBool("TESTING_MODE", &c.Pipeline.TestingMode)
	envString("SAVE_OUTPUTS_DIR", &c.Pipeline.SaveOutputsDir)

	envInt("MAX_RETRY_ATTEMPTS", &c.Retry.MaxAttempts)
	envDuration("RETRY_INITIAL_DELAY", &c.Retry.InitialDelay)
	envDuration("RETRY_MAX_DELAY", &c.Retry.MaxDelay)
	envFloat("RETRY_EXPONENTIAL_BASE", &c.Retry.ExponentialBase)

	envBool("RATE_LIMIT_DETECTION_ENABLED", &c.RateLimit.DetectionEnabled)
	envBool("RATE_LIMIT_RETRY_ENABLED", &c.RateLimit.RetryEnabled)
	envInt("RATE_LIMIT_DEFAULT_RPM", &c.RateLimit.DefaultRPM)

	envBool("ENABLE_CACHE", &c.Cache.Enabled)
	envDuration("CACHE_TTL", &c.Cache.TTL)
	envString("CACHE_REDIS_URL", &c.Cache.RedisURL)

	envString("SELECTOR_METRICS_PATH", &c.Selector.MetricsPath)

	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FORMAT", &c.Logging.Format)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
			return
		}
		// Bare numbers are seconds, matching the original deployment knobs.
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

func envList(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}

// Functional options

// WithMinimumModels sets the healthy-model floor for running the pipeline.
func WithMinimumModels(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("%w: minimum models must be >= 1", ErrInvalidConfiguration)
		}
		c.Pipeline.MinimumModelsRequired = n
		return nil
	}
}

// WithRequiredProviders sets the providers that must all be present.
func WithRequiredProviders(providers ...string) Option {
	return func(c *Config) error {
		c.Pipeline.RequiredProviders = providers
		return nil
	}
}

// WithSingleModelFallback toggles the degraded single-model path.
func WithSingleModelFallback(enabled bool) Option {
	return func(c *Config) error {
		c.Pipeline.EnableSingleModelFallback = enabled
		return nil
	}
}

// WithCache enables the result cache with the given TTL.
func WithCache(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: cache ttl must be positive", ErrInvalidConfiguration)
		}
		c.Cache.Enabled = true
		c.Cache.TTL = ttl
		return nil
	}
}

// WithConfigFile overlays a YAML configuration file.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFile(path)
	}
}

// WithTestingMode substitutes stub responses for real provider calls.
func WithTestingMode(enabled bool) Option {
	return func(c *Config) error {
		c.Pipeline.TestingMode = enabled
		return nil
	}
}
