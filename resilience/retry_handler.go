package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/ultrai/orchestrator/core"
)

// providerDelayWeights scale retry delays by provider. Providers with
// stricter quotas wait longer between attempts.
var providerDelayWeights = map[string]float64{
	"openai":      1.5,
	"anthropic":   1.2,
	"google":      1.0,
	"huggingface": 2.0,
}

// defaultRateLimitPatterns are compiled-in body patterns that mean the
// provider throttled us even though the transport call "succeeded".
var defaultRateLimitPatterns = map[string][]string{
	"openai": {
		`(?i)rate limit`,
		`(?i)requests per min`,
		`(?i)quota exceeded`,
	},
	"anthropic": {
		`(?i)rate_limit_error`,
		`(?i)overloaded_error`,
		`(?i)too many requests`,
	},
	"google": {
		`(?i)resource_exhausted`,
		`(?i)quota exceeded`,
		`(?i)rate limit`,
	},
	"huggingface": {
		`(?i)rate limit`,
		`(?i)too many requests`,
	},
}

// RetryHandler drives retries for pipeline model calls, including the
// rate-limit pattern scan over response bodies. Some providers report
// throttling inside an HTTP 200 payload, so status codes alone are not
// enough. Both the scan and the retry-on-throttle behavior are
// configuration toggles.
type RetryHandler struct {
	retry       *RetryConfig
	patterns    map[string][]*regexp.Regexp
	detect      bool
	retryLimits bool
	logger      core.Logger
}

// NewRetryHandler compiles the configured patterns on top of the
// built-in defaults. Patterns that fail to compile are logged and
// skipped rather than failing startup.
func NewRetryHandler(rateCfg core.RateLimitConfig, retry *RetryConfig, logger core.Logger) *RetryHandler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if retry == nil {
		retry = DefaultRetryConfig()
	}

	patterns := make(map[string][]*regexp.Regexp)
	for provider, exprs := range defaultRateLimitPatterns {
		patterns[provider] = compilePatterns(provider, exprs, logger)
	}
	for provider, exprs := range rateCfg.Patterns {
		patterns[provider] = append(patterns[provider], compilePatterns(provider, exprs, logger)...)
	}

	return &RetryHandler{
		retry:       retry,
		patterns:    patterns,
		detect:      rateCfg.DetectionEnabled,
		retryLimits: rateCfg.RetryEnabled,
		logger:      logger,
	}
}

func compilePatterns(provider string, exprs []string, logger core.Logger) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			logger.Warn("Invalid rate limit pattern skipped", map[string]interface{}{
				"operation": "ratelimit_pattern_compile",
				"provider":  provider,
				"pattern":   expr,
				"error":     err.Error(),
			})
			continue
		}
		out = append(out, re)
	}
	return out
}

// DetectRateLimit reports whether a response body matches the
// provider's throttle patterns.
func (h *RetryHandler) DetectRateLimit(provider, body string) bool {
	for _, re := range h.patterns[provider] {
		if re.MatchString(body) {
			return true
		}
	}
	return false
}

// ExecuteWithRetry runs fn with retries. Successful responses whose
// body matches a throttle pattern are treated as rate-limit failures
// and retried. Delays are provider-weighted with jitter.
func (h *RetryHandler) ExecuteWithRetry(ctx context.Context, fn func(context.Context) (*core.AIResponse, error), provider, model string) (*core.AIResponse, error) {
	weight := providerDelayWeights[provider]
	if weight == 0 {
		weight = 1.0
	}

	var lastErr error

	for attempt := 0; attempt < h.retry.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		r, err := fn(ctx)
		if err == nil && r != nil && h.detect && h.DetectRateLimit(provider, r.Content) {
			err = core.NewProviderError(provider, model, core.KindRateLimited, core.ErrRateLimited)
			h.logger.Warn("Rate limit detected in response body", core.FieldsWithCorrelation(ctx, map[string]interface{}{
				"operation": "ratelimit_body_match",
				"provider":  provider,
				"model":     model,
				"attempt":   attempt + 1,
			}))
		}

		if err == nil {
			return r, nil
		}
		lastErr = err

		if !core.IsRetryable(err) {
			return nil, err
		}
		if core.IsRateLimited(err) && !h.retryLimits {
			// Throttles surface immediately so the caller can switch
			// providers instead of waiting out the window here.
			return nil, err
		}
		if attempt == h.retry.MaxAttempts-1 {
			break
		}

		delay := time.Duration(float64(h.retry.Backoff(attempt)) * weight)
		if core.IsRateLimited(err) {
			// Throttles get extra jitter so parallel callers spread out.
			delay += time.Duration(rand.Float64() * float64(time.Second))
		}

		h.logger.Info("Retrying after failure", core.FieldsWithCorrelation(ctx, map[string]interface{}{
			"operation": "orchestration_retry",
			"provider":  provider,
			"model":     model,
			"attempt":   attempt + 1,
			"delay_ms":  delay.Milliseconds(),
			"error":     err.Error(),
		}))

		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", core.ErrMaxRetriesExceeded, h.retry.MaxAttempts, lastErr)
}

// ExecuteWithTimeout runs fn under an overall deadline
func (h *RetryHandler) ExecuteWithTimeout(ctx context.Context, fn func(context.Context) (*core.AIResponse, error), overall time.Duration) (*core.AIResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()
	return fn(ctx)
}
