package connectors_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eval-hub/sim-hub/internal/config"
	"github.com/eval-hub/sim-hub/internal/connectors"
	"github.com/eval-hub/sim-hub/internal/logging"
	"github.com/eval-hub/sim-hub/pkg/api"
)

func newInvoker(t *testing.T) *connectors.Invoker {
	t.Helper()
	invoker, err := connectors.NewInvoker(connectors.NewRegistry(), &config.ConnectorsConfig{MaxErrorSnippet: 20}, logging.FallbackLogger())
	if err != nil {
		t.Fatalf("Failed to create invoker: %v", err)
	}
	return invoker
}

func TestHTTPStrategyParseInvokeResponse(t *testing.T) {
	strategy := &connectors.HTTPStrategy{}
	sent := connectors.InvokeContext{Messages: []api.Message{{ID: "m1", Role: api.RoleUser, Content: "Hi"}}}

	cases := []struct {
		name     string
		body     string
		expected []string
	}{
		{"message.content", `{"message":{"role":"assistant","content":"from message"}}`, []string{"from message"}},
		{"content", `{"content":"from content"}`, []string{"from content"}},
		{"response", `{"response":"Hello!"}`, []string{"Hello!"}},
		{"messages echoed with the transcript", `{"messages":[{"role":"user","content":"Hi"},{"role":"assistant","content":"a1"},{"role":"assistant","content":"a2"}]}`, []string{"a1", "a2"}},
		{"messages with only the new entries", `{"messages":[{"role":"assistant","content":"only"}]}`, []string{"only"}},
		{"plain text body", "just text", []string{"just text"}},
		{"JSON string body", `"quoted"`, []string{"quoted"}},
		{"unknown JSON shape", `{"foo":"bar"}`, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			response, err := strategy.ParseInvokeResponse([]byte(c.body), sent)
			if err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if len(response.Messages) != len(c.expected) {
				t.Fatalf("Expected %d messages, got %v", len(c.expected), response.Messages)
			}
			for i, content := range c.expected {
				if response.Messages[i].Content != content || response.Messages[i].Role != api.RoleAssistant {
					t.Fatalf("Expected assistant message %q, got %v", content, response.Messages[i])
				}
			}
		})
	}

	t.Run("new entries after a tool call are all kept", func(t *testing.T) {
		body := `{"messages":[
			{"role":"assistant","content":"","tool_calls":[{"id":"c1","name":"lookup_order","args":{"order":"42"}}]},
			{"role":"tool","content":"shipped","tool_call_id":"c1"},
			{"role":"assistant","content":"Your order shipped"}
		]}`
		response, err := strategy.ParseInvokeResponse([]byte(body), sent)
		if err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if len(response.Messages) != 3 {
			t.Fatalf("Expected 3 messages, got %v", response.Messages)
		}
		if len(response.Messages[0].ToolCalls) != 1 || response.Messages[0].ToolCalls[0].Name != "lookup_order" {
			t.Fatalf("Expected the tool call to be kept, got %v", response.Messages[0])
		}
		if response.Messages[1].Role != api.RoleTool || response.Messages[1].ToolCallID != "c1" {
			t.Fatalf("Expected the tool result, got %v", response.Messages[1])
		}
		if response.Messages[2].Content != "Your order shipped" {
			t.Fatalf("Expected the final answer, got %v", response.Messages[2])
		}
	})

	t.Run("echoed messages are matched on id", func(t *testing.T) {
		body := `{"messages":[{"id":"m1","role":"user","content":"Hi (edited)"},{"role":"assistant","content":"a1"}]}`
		response, err := strategy.ParseInvokeResponse([]byte(body), sent)
		if err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if len(response.Messages) != 1 || response.Messages[0].Content != "a1" {
			t.Fatalf("Expected only a1, got %v", response.Messages)
		}
	})

	t.Run("token usage is reported", func(t *testing.T) {
		response, err := strategy.ParseInvokeResponse([]byte(`{"response":"ok","usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`), sent)
		if err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if response.TokenUsage == nil || response.TokenUsage.TotalTokens != 7 {
			t.Fatalf("Expected 7 total tokens, got %v", response.TokenUsage)
		}
	})
}

func TestLangGraphStrategy(t *testing.T) {
	strategy := &connectors.LangGraphStrategy{}
	connector := &api.Connector{Type: connectors.TYPE_LANGGRAPH, BaseURL: "http://agent:2024/", Config: map[string]any{"assistant_id": "support"}}

	t.Run("only unseen messages are sent", func(t *testing.T) {
		invokeContext := connectors.InvokeContext{
			Messages: []api.Message{
				{ID: "m1", Role: api.RoleUser, Content: "Hi"},
				{ID: "m2", Role: api.RoleAssistant, Content: "Hello"},
				{ID: "m3", Role: api.RoleUser, Content: "Help me"},
			},
			ThreadID:       "t1",
			SeenMessageIDs: map[string]bool{"m1": true, "m2": true},
		}
		spec, err := strategy.BuildInvokeRequest(connector, invokeContext)
		if err != nil {
			t.Fatalf("Failed to build request: %v", err)
		}
		if spec.URL != "http://agent:2024/threads/t1/runs/wait" {
			t.Fatalf("Unexpected URL %s", spec.URL)
		}
		body, _ := json.Marshal(spec.Body)
		request := map[string]any{}
		_ = json.Unmarshal(body, &request)
		if request["assistant_id"] != "support" || request["if_not_exists"] != "create" {
			t.Fatalf("Unexpected request %s", body)
		}
		sent := request["input"].(map[string]any)["messages"].([]any)
		if len(sent) != 1 {
			t.Fatalf("Expected only the unseen message, got %s", body)
		}
		if sent[0].(map[string]any)["type"] != "human" {
			t.Fatalf("Expected a human message, got %v", sent[0])
		}
	})

	t.Run("a thread id is required", func(t *testing.T) {
		if _, err := strategy.BuildInvokeRequest(connector, connectors.InvokeContext{}); err == nil {
			t.Fatalf("Expected an error without a thread id")
		}
	})

	t.Run("response messages are classified", func(t *testing.T) {
		body := `{"messages":[
			{"id":"m1","type":"human","content":"Hi"},
			{"id":"a1","type":"ai","content":"","tool_calls":[{"id":"c1","name":"lookup","args":{"q":"x"}}]},
			{"id":"t1","type":"tool","content":"result","tool_call_id":"c1"},
			{"id":"a2","type":"ai","content":[{"type":"text","text":"Done"}],"usage_metadata":{"input_tokens":5,"output_tokens":2,"total_tokens":7}}
		]}`
		response, err := strategy.ParseInvokeResponse([]byte(body), connectors.InvokeContext{
			Messages: []api.Message{{ID: "m1", Role: api.RoleUser, Content: "Hi"}},
			ThreadID: "t1",
		})
		if err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if len(response.Messages) != 3 {
			t.Fatalf("Expected 3 new messages, got %v", response.Messages)
		}
		if len(response.Messages[0].ToolCalls) != 1 || response.Messages[0].ToolCalls[0].Name != "lookup" {
			t.Fatalf("Expected the tool call, got %v", response.Messages[0])
		}
		if response.Messages[1].Role != api.RoleTool || response.Messages[1].ToolCallID != "c1" {
			t.Fatalf("Expected the tool result, got %v", response.Messages[1])
		}
		if response.Messages[2].Role != api.RoleAssistant || response.Messages[2].Content != "Done" {
			t.Fatalf("Expected the final answer, got %v", response.Messages[2])
		}
		if response.TokenUsage == nil || response.TokenUsage.TotalTokens != 7 {
			t.Fatalf("Expected the usage metadata to be totalled, got %v", response.TokenUsage)
		}
	})

	t.Run("test request uses the info endpoint", func(t *testing.T) {
		spec, err := strategy.BuildTestRequest(connector)
		if err != nil {
			t.Fatalf("Failed to build request: %v", err)
		}
		if spec.Method != http.MethodGet || spec.URL != "http://agent:2024/info" {
			t.Fatalf("Unexpected test request %s %s", spec.Method, spec.URL)
		}
		if got := strategy.ParseTestResponse([]byte(`{"version":"0.2.1"}`)); got != "LangGraph server 0.2.1" {
			t.Fatalf("Unexpected test response %q", got)
		}
	})
}

func TestInvoker(t *testing.T) {
	invoker := newInvoker(t)

	t.Run("persona headers override connector headers", func(t *testing.T) {
		var headers http.Header
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers = r.Header.Clone()
			_, _ = io.WriteString(w, `{"response":"Hello!"}`)
		}))
		defer server.Close()

		connector := &api.Connector{Type: connectors.TYPE_HTTP, BaseURL: server.URL, Headers: map[string]string{"X-Tenant": "connector", "X-Key": "k"}}
		persona := &api.Persona{Name: "p", Headers: map[string]string{"X-Tenant": "persona"}}
		result := invoker.Invoke(context.Background(), connector, persona, connectors.InvokeContext{
			Messages: []api.Message{{ID: "m1", Role: api.RoleUser, Content: "Hi"}},
		})
		if !result.Success {
			t.Fatalf("Expected success, got %s", result.Error)
		}
		if headers.Get("X-Tenant") != "persona" || headers.Get("X-Key") != "k" {
			t.Fatalf("Unexpected headers %v", headers)
		}
		if result.Messages[0].ID == "" {
			t.Fatalf("Expected the new message to get an id")
		}
	})

	t.Run("non 2xx responses fail with a snippet", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, strings.Repeat("x", 100))
		}))
		defer server.Close()

		result := invoker.Invoke(context.Background(), &api.Connector{Type: connectors.TYPE_HTTP, BaseURL: server.URL}, nil, connectors.InvokeContext{})
		if result.Success {
			t.Fatalf("Expected a failure")
		}
		if !strings.HasPrefix(result.Error, "HTTP 500: ") {
			t.Fatalf("Expected the status code in the error, got %q", result.Error)
		}
		if len(result.Error) > len("HTTP 500: ")+20+3 {
			t.Fatalf("Expected the body to be truncated, got %q", result.Error)
		}
	})

	t.Run("an empty answer is a failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"foo":"bar"}`)
		}))
		defer server.Close()

		result := invoker.Invoke(context.Background(), &api.Connector{Type: connectors.TYPE_HTTP, BaseURL: server.URL}, nil, connectors.InvokeContext{})
		if result.Success || result.Error != "No response messages from connector" {
			t.Fatalf("Expected no response messages, got %v %q", result.Success, result.Error)
		}
	})

	t.Run("network errors are returned as failures", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		result := invoker.Invoke(context.Background(), &api.Connector{Type: connectors.TYPE_HTTP, BaseURL: url}, nil, connectors.InvokeContext{})
		if result.Success || result.Error == "" {
			t.Fatalf("Expected a network failure, got %v", result)
		}
	})

	t.Run("unknown connector type", func(t *testing.T) {
		result := invoker.Invoke(context.Background(), &api.Connector{Type: "grpc", BaseURL: "http://localhost"}, nil, connectors.InvokeContext{})
		if result.Success || !strings.Contains(result.Error, "grpc") {
			t.Fatalf("Expected an unknown type failure, got %q", result.Error)
		}
	})

	t.Run("Test sends the canned greeting", func(t *testing.T) {
		var request map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&request)
			_, _ = io.WriteString(w, `{"message":{"content":"Hi, how can I help?"}}`)
		}))
		defer server.Close()

		result := invoker.Test(context.Background(), &api.Connector{Type: connectors.TYPE_HTTP, BaseURL: server.URL})
		if !result.Success || result.Response != "Hi, how can I help?" {
			t.Fatalf("Unexpected test result %v", result)
		}
		if request["message"] != "Hello" {
			t.Fatalf("Expected the canned greeting, got %v", request)
		}
	})
}
