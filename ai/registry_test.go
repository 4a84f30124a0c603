package ai

import (
	"context"
	"testing"

	"github.com/ultrai/orchestrator/core"
)

// stubFactory is a configurable factory for registry tests
type stubFactory struct {
	name      string
	models    []string
	priority  int
	available bool
}

func (s *stubFactory) Create(config *AIConfig) core.AIClient { return &stubClient{} }
func (s *stubFactory) DetectEnvironment() (int, bool)        { return s.priority, s.available }
func (s *stubFactory) Name() string                          { return s.name }
func (s *stubFactory) DefaultModels() []string               { return s.models }
func (s *stubFactory) Description() string                   { return "stub" }

type stubClient struct{}

func (s *stubClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	return &core.AIResponse{Content: "stub"}, nil
}

func TestRegisterDuplicate(t *testing.T) {
	f := &stubFactory{name: "dup-test-provider"}
	if err := Register(f); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := Register(f); err == nil {
		t.Error("expected error registering duplicate provider")
	}
}

func TestRegisterValidation(t *testing.T) {
	if err := Register(nil); err == nil {
		t.Error("expected error registering nil factory")
	}
	if err := Register(&stubFactory{name: ""}); err == nil {
		t.Error("expected error registering unnamed factory")
	}
}

func TestGetProvider(t *testing.T) {
	MustRegister(&stubFactory{name: "lookup-test-provider"})

	if _, ok := GetProvider("lookup-test-provider"); !ok {
		t.Error("registered provider not found")
	}
	if _, ok := GetProvider("never-registered"); ok {
		t.Error("unexpected provider found")
	}
}

func TestDefaultModelSetDiversity(t *testing.T) {
	MustRegister(&stubFactory{
		name:      "diverse-a",
		models:    []string{"a-model-1", "a-model-2"},
		priority:  200,
		available: true,
	})
	MustRegister(&stubFactory{
		name:      "diverse-b",
		models:    []string{"b-model-1", "b-model-2"},
		priority:  199,
		available: true,
	})

	models := DefaultModelSet(3, &core.NoOpLogger{})
	if len(models) < 3 {
		t.Fatalf("expected at least 3 models, got %v", models)
	}

	// One model per provider before alternates fill the rest.
	if models[0] != "a-model-1" {
		t.Errorf("models[0] = %q, want a-model-1", models[0])
	}
	if models[1] != "b-model-1" {
		t.Errorf("models[1] = %q, want b-model-1", models[1])
	}

	seen := make(map[string]bool)
	for _, m := range models {
		if seen[m] {
			t.Errorf("duplicate model in default set: %s", m)
		}
		seen[m] = true
	}
}

func TestDefaultModelSetToleratesEmptyDefaults(t *testing.T) {
	MustRegister(&stubFactory{
		name:      "empty-defaults",
		models:    nil,
		priority:  300,
		available: true,
	})
	MustRegister(&stubFactory{
		name:      "single-default",
		models:    []string{"single-model-1"},
		priority:  299,
		available: true,
	})

	// Asking for more models than exist walks the alternates pass over
	// factories with zero and one default.
	models := DefaultModelSet(50, &core.NoOpLogger{})

	for _, m := range models {
		if m == "" {
			t.Error("empty model id in default set")
		}
	}
	if !contains(models, "single-model-1") {
		t.Errorf("single-default provider missing from %v", models)
	}
}
