package core

import (
	"context"
	"testing"
)

func TestNewCorrelationIDShape(t *testing.T) {
	id := NewCorrelationID()
	if len(id) != 12 {
		t.Errorf("Expected 12-char correlation id, got %q (%d chars)", id, len(id))
	}
	if id == NewCorrelationID() {
		t.Error("Expected distinct ids from successive calls")
	}
}

func TestEnsureCorrelationIDExplicitWins(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "inherited")
	ctx, id := EnsureCorrelationID(ctx, "explicit")
	if id != "explicit" {
		t.Errorf("Expected explicit id to win, got %q", id)
	}
	if got := CorrelationIDFromContext(ctx); got != "explicit" {
		t.Errorf("Expected context to carry explicit id, got %q", got)
	}
}

func TestEnsureCorrelationIDInherits(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "parent-run")
	_, id := EnsureCorrelationID(ctx, "")
	if id != "parent-run" {
		t.Errorf("Expected inherited id, got %q", id)
	}
}

func TestEnsureCorrelationIDGenerates(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background(), "")
	if id == "" {
		t.Fatal("Expected generated id")
	}
	if got := CorrelationIDFromContext(ctx); got != id {
		t.Errorf("Expected context to carry generated id %q, got %q", id, got)
	}
}

func TestFieldsWithCorrelation(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc123")
	fields := FieldsWithCorrelation(ctx, map[string]interface{}{"operation": "test"})
	if fields["correlation_id"] != "abc123" {
		t.Errorf("Expected correlation_id injected, got %v", fields["correlation_id"])
	}
	if fields["operation"] != "test" {
		t.Error("Expected original fields preserved")
	}

	// No id in context: field absent, original map untouched.
	fields = FieldsWithCorrelation(context.Background(), map[string]interface{}{})
	if _, ok := fields["correlation_id"]; ok {
		t.Error("Expected no correlation_id without one in context")
	}
}
