package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ultrai/orchestrator/core"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, NewClient("test-key", server.URL, &core.NoOpLogger{})
}

func TestGenerateResponse(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "chatcmpl-1",
			"model": "gpt-4o",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "hello there"}},
			},
			"usage": map[string]int{
				"prompt_tokens":     12,
				"completion_tokens": 3,
				"total_tokens":      15,
			},
		})
	})

	resp, err := client.GenerateResponse(context.Background(), "say hello", &core.AIOptions{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want Bearer test-key", gotAuth)
	}
	if gotReq.Model != "gpt-4o" {
		t.Errorf("request model = %q", gotReq.Model)
	}
	if resp.Content != "hello there" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Provider != "openai" {
		t.Errorf("provider = %q", resp.Provider)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}
}

func TestGenerateResponseStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   core.ErrorKind
	}{
		{http.StatusUnauthorized, core.KindAuth},
		{http.StatusNotFound, core.KindNotFound},
		{http.StatusBadRequest, core.KindBadRequest},
		{http.StatusTooManyRequests, core.KindRateLimited},
		{http.StatusInternalServerError, core.KindTransport},
	}

	for _, tt := range tests {
		_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
		})

		_, err := client.GenerateResponse(context.Background(), "hi", nil)
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if got := core.KindOf(err); got != tt.kind {
			t.Errorf("status %d: kind = %v, want %v", tt.status, got, tt.kind)
		}
	}
}

func TestGenerateResponseMissingKey(t *testing.T) {
	client := NewClient("", "", &core.NoOpLogger{})

	_, err := client.GenerateResponse(context.Background(), "hi", nil)
	if !errors.Is(err, core.ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGenerateResponseEmptyChoices(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	})

	_, err := client.GenerateResponse(context.Background(), "hi", nil)
	if core.KindOf(err) != core.KindMalformedResponse {
		t.Errorf("kind = %v, want malformed_response", core.KindOf(err))
	}
}

func TestGenerateResponseSingleAttempt(t *testing.T) {
	calls := 0
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GenerateResponse(context.Background(), "hi", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("adapter made %d attempts, want exactly 1", calls)
	}
}

func TestFactoryName(t *testing.T) {
	f := &Factory{}
	if f.Name() != "openai" {
		t.Errorf("Name() = %q", f.Name())
	}
	if len(f.DefaultModels()) == 0 {
		t.Error("DefaultModels() is empty")
	}
}
