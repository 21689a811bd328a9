package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/llm"
	"github.com/eval-hub/sim-hub/internal/logging"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/serviceerrors"
	"github.com/eval-hub/sim-hub/pkg/api"
)

func newFakeCompletions(t *testing.T, reply string, requests *[]map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		request := map[string]any{}
		if err := json.Unmarshal(body, &request); err != nil {
			t.Errorf("Invalid request body: %v", err)
		}
		*requests = append(*requests, request)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   request["model"],
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIClient(t *testing.T) {
	requests := []map[string]any{}
	server := newFakeCompletions(t, "Hi there", &requests)

	client := llm.NewOpenAIClient(api.LLMProvider{
		ProviderID:        "test",
		BaseURL:           server.URL,
		APIKey:            "sk-test",
		Model:             "test-model",
		RequestsPerSecond: 50,
	}, logging.FallbackLogger())

	t.Run("Complete returns the first choice", func(t *testing.T) {
		reply, err := client.Complete(context.Background(), []api.Message{
			{Role: api.RoleSystem, Content: "You are a user"},
			{Role: api.RoleUser, Content: "Hello"},
			{Role: api.RoleAssistant, Content: "How can I help?"},
		}, abstractions.CompletionOptions{})
		if err != nil {
			t.Fatalf("Failed to complete: %v", err)
		}
		if reply != "Hi there" {
			t.Fatalf("Expected 'Hi there', got %q", reply)
		}
		if len(requests) != 1 {
			t.Fatalf("Expected 1 request, got %d", len(requests))
		}
		if requests[0]["model"] != "test-model" {
			t.Fatalf("Expected the provider model, got %v", requests[0]["model"])
		}
		sent, _ := requests[0]["messages"].([]any)
		if len(sent) != 3 {
			t.Fatalf("Expected 3 messages to be sent, got %d", len(sent))
		}
	})

	t.Run("the options model wins over the provider model", func(t *testing.T) {
		_, err := client.Complete(context.Background(), []api.Message{{Role: api.RoleUser, Content: "Hello"}},
			abstractions.CompletionOptions{Model: "judge-model"})
		if err != nil {
			t.Fatalf("Failed to complete: %v", err)
		}
		if requests[len(requests)-1]["model"] != "judge-model" {
			t.Fatalf("Expected judge-model, got %v", requests[len(requests)-1]["model"])
		}
	})
}

func TestResolver(t *testing.T) {
	requests := []map[string]any{}
	server := newFakeCompletions(t, "ok", &requests)

	t.Run("missing provider is a configuration error", func(t *testing.T) {
		resolver := llm.NewResolver(nil, nil, logging.FallbackLogger())
		_, err := resolver.Resolve("acme")
		if !serviceerrors.Is(err, messages.LLMProviderMissing) {
			t.Fatalf("Expected LLMProviderMissing, got %v", err)
		}
	})

	t.Run("project override and caching", func(t *testing.T) {
		resolver := llm.NewResolver(
			&api.LLMProvider{BaseURL: server.URL, Model: "default-model"},
			map[string]api.LLMProvider{"acme": {BaseURL: server.URL, Model: "acme-model"}},
			logging.FallbackLogger(),
		)
		first, err := resolver.Resolve("acme")
		if err != nil {
			t.Fatalf("Failed to resolve: %v", err)
		}
		second, err := resolver.Resolve("acme")
		if err != nil {
			t.Fatalf("Failed to resolve: %v", err)
		}
		if first != second {
			t.Fatalf("Expected the client to be cached per project")
		}
		if _, err := first.Complete(context.Background(), []api.Message{{Role: api.RoleUser, Content: "Hello"}}, abstractions.CompletionOptions{}); err != nil {
			t.Fatalf("Failed to complete: %v", err)
		}
		if requests[len(requests)-1]["model"] != "acme-model" {
			t.Fatalf("Expected acme-model, got %v", requests[len(requests)-1]["model"])
		}
		other, err := resolver.Resolve("beta")
		if err != nil {
			t.Fatalf("Failed to resolve: %v", err)
		}
		if _, err := other.Complete(context.Background(), []api.Message{{Role: api.RoleUser, Content: "Hello"}}, abstractions.CompletionOptions{}); err != nil {
			t.Fatalf("Failed to complete: %v", err)
		}
		if requests[len(requests)-1]["model"] != "default-model" {
			t.Fatalf("Expected default-model, got %v", requests[len(requests)-1]["model"])
		}
	})

	t.Run("each project judges with the model of its own provider", func(t *testing.T) {
		resolver := llm.NewResolver(
			&api.LLMProvider{BaseURL: server.URL, Model: "default-model", JudgeModel: "default-judge"},
			map[string]api.LLMProvider{
				"acme": {BaseURL: server.URL, Model: "llama3"},
				"beta": {BaseURL: server.URL, Model: "beta-model", JudgeModel: "beta-judge"},
			},
			logging.FallbackLogger(),
		)
		for _, c := range []struct {
			project  string
			judging  bool
			expected string
		}{
			{"acme", true, "llama3"},
			{"beta", true, "beta-judge"},
			{"beta", false, "beta-model"},
			{"other", true, "default-judge"},
			{"other", false, "default-model"},
		} {
			client, err := resolver.Resolve(c.project)
			if err != nil {
				t.Fatalf("Failed to resolve %s: %v", c.project, err)
			}
			if _, err := client.Complete(context.Background(), []api.Message{{Role: api.RoleUser, Content: "Hello"}},
				abstractions.CompletionOptions{Judging: c.judging}); err != nil {
				t.Fatalf("Failed to complete: %v", err)
			}
			if requests[len(requests)-1]["model"] != c.expected {
				t.Fatalf("Expected %s for project %s (judging %t), got %v", c.expected, c.project, c.judging, requests[len(requests)-1]["model"])
			}
		}
	})
}
