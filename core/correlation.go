package core

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// correlationKey is the context key for the per-run correlation id.
// Unexported type prevents collisions with other packages' keys.
type correlationKey struct{}

// NewCorrelationID returns a short opaque id for one pipeline run.
// Derived from a UUID but truncated: the id appears in every log line,
// span and SSE event, so brevity matters more than global uniqueness.
func NewCorrelationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// WithCorrelationID returns a context carrying the given correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext extracts the correlation id, or "" if absent.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// EnsureCorrelationID resolves the id for a run: explicit value wins,
// then an inherited one from the context, then a freshly generated id.
func EnsureCorrelationID(ctx context.Context, explicit string) (context.Context, string) {
	if explicit != "" {
		return WithCorrelationID(ctx, explicit), explicit
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewCorrelationID()
	return WithCorrelationID(ctx, id), id
}

// FieldsWithCorrelation copies fields and injects the context's correlation
// id so every log record of a run can be joined with its spans and events.
func FieldsWithCorrelation(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		out["correlation_id"] = id
	}
	return out
}
