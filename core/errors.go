package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a provider call failure. Kinds, not concrete types,
// drive the retry policy, circuit breaker accounting and fallback decisions.
type ErrorKind string

const (
	KindMissingAPIKey     ErrorKind = "missing_api_key"
	KindAuth              ErrorKind = "auth"
	KindNotFound          ErrorKind = "not_found"
	KindBadRequest        ErrorKind = "bad_request"
	KindRateLimited       ErrorKind = "rate_limited"
	KindTimeout           ErrorKind = "timeout"
	KindLoading           ErrorKind = "loading"
	KindTransport         ErrorKind = "transport"
	KindCircuitOpen       ErrorKind = "circuit_open"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindCancelled         ErrorKind = "cancelled"
	KindOther             ErrorKind = "other"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Provider call errors
	ErrMissingAPIKey     = errors.New("api key not configured")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrModelLoading      = errors.New("model is loading")
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrEmptyResponse     = errors.New("empty provider response")

	// Resilience errors
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrTimeout            = errors.New("operation timeout")
	ErrContextCanceled    = errors.New("context canceled")

	// Gating errors
	ErrInvalidModel       = errors.New("invalid model id")
	ErrInsufficientModels = errors.New("insufficient models available")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")
)

// ProviderError provides structured error information for a failed model call.
// It implements the error interface and supports error wrapping.
type ProviderError struct {
	Provider   string    // Provider tag (e.g. "openai")
	Model      string    // Model id involved
	Kind       ErrorKind // Classified failure kind
	StatusCode int       // HTTP status, when the failure came from a response
	Message    string    // Human-readable message
	Err        error     // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s [%s/%s]: %s", e.Kind, e.Provider, e.Model, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s [%s/%s]: %v", e.Kind, e.Provider, e.Model, e.Err)
	}
	return fmt.Sprintf("%s [%s/%s]", e.Kind, e.Provider, e.Model)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a classified provider error
func NewProviderError(provider, model string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Model:    model,
		Kind:     kind,
		Err:      err,
	}
}

// KindOf extracts the error kind from any error in the chain.
// Plain context errors classify as timeout/cancelled; everything
// unclassified is KindOther.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, ErrContextCanceled):
		return KindCancelled
	case errors.Is(err, ErrCircuitBreakerOpen):
		return KindCircuitOpen
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrModelLoading):
		return KindLoading
	case errors.Is(err, ErrMissingAPIKey):
		return KindMissingAPIKey
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformedResponse
	default:
		return KindOther
	}
}

// IsRetryable reports whether the retry policy may re-attempt after err.
// Timeouts, 5xx transport failures, warm-up 503s and rate limits retry;
// client errors and programmer errors never do.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindTransport, KindLoading, KindRateLimited:
		return true
	default:
		return false
	}
}

// IsClientError reports whether err is a non-retryable 4xx-class failure
// (or a preflight failure such as a missing key).
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindAuth, KindNotFound, KindBadRequest, KindMissingAPIKey, KindMalformedResponse:
		return true
	default:
		return false
	}
}

// IsRateLimited checks if an error represents a rate-limit condition
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// CountsAsCircuitFailure decides whether an error feeds the circuit breaker.
// Missing keys and client errors say nothing about provider health; caller
// cancellation is the client giving up. Timeouts - including concurrent-group
// timeouts surfaced as KindCancelled with a deadline cause - do count.
func CountsAsCircuitFailure(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindMissingAPIKey, KindAuth, KindNotFound, KindBadRequest, KindMalformedResponse, KindCircuitOpen:
		return false
	case KindCancelled:
		// Group-timeout cancellations carry a deadline in the chain and count.
		return errors.Is(err, context.DeadlineExceeded)
	default:
		return true
	}
}
