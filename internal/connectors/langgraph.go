package connectors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Jeffail/gabs/v2"

	"github.com/eval-hub/sim-hub/pkg/api"
)

const defaultAssistantID = "agent"

// LangGraphStrategy talks to a LangGraph server. The conversation state lives in a server side
// thread, so only the messages the thread has not seen yet are sent.
type LangGraphStrategy struct{}

type langGraphMessage struct {
	ID         string         `json:"id,omitempty"`
	Type       string         `json:"type"`
	Content    any            `json:"content"`
	ToolCalls  []api.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`

	ResponseMetadata map[string]any `json:"response_metadata,omitempty"`
	UsageMetadata    map[string]any `json:"usage_metadata,omitempty"`
}

type langGraphRunRequest struct {
	AssistantID string `json:"assistant_id"`
	IfNotExists string `json:"if_not_exists"`
	Input       struct {
		Messages []langGraphMessage `json:"messages"`
	} `json:"input"`
}

func (s *LangGraphStrategy) BuildTestRequest(connector *api.Connector) (*RequestSpec, error) {
	return &RequestSpec{
		Method: http.MethodGet,
		URL:    joinURL(connector.BaseURL, "info"),
	}, nil
}

func (s *LangGraphStrategy) BuildInvokeRequest(connector *api.Connector, invokeContext InvokeContext) (*RequestSpec, error) {
	if invokeContext.ThreadID == "" {
		return nil, fmt.Errorf("the langgraph connector %s requires a thread id", connector.ID)
	}
	request := langGraphRunRequest{
		AssistantID: configString(connector, "assistant_id", defaultAssistantID),
		IfNotExists: "create",
	}
	request.Input.Messages = []langGraphMessage{}
	for _, m := range invokeContext.Messages {
		if m.ID != "" && invokeContext.SeenMessageIDs[m.ID] {
			continue
		}
		request.Input.Messages = append(request.Input.Messages, langGraphMessage{
			ID:         m.ID,
			Type:       toLangGraphType(m.Role),
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}
	return &RequestSpec{
		Method: http.MethodPost,
		URL:    joinURL(connector.BaseURL, "threads/"+url.PathEscape(invokeContext.ThreadID)+"/runs/wait"),
		Body:   request,
	}, nil
}

func (s *LangGraphStrategy) ParseTestResponse(body []byte) string {
	container, err := gabs.ParseJSON(body)
	if err != nil {
		return strings.TrimSpace(string(body))
	}
	if version, ok := container.Path("version").Data().(string); ok {
		return "LangGraph server " + version
	}
	return container.String()
}

// ParseInvokeResponse reads the thread state returned by runs/wait. The state holds the whole
// thread, the new messages are the ones that the loop has not seen and did not just send.
func (s *LangGraphStrategy) ParseInvokeResponse(body []byte, invokeContext InvokeContext) (*InvokeResponse, error) {
	container, err := gabs.ParseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("invalid LangGraph response: %w", err)
	}
	var children []*gabs.Container
	switch {
	case container.Exists("messages"):
		children = container.S("messages").Children()
	case container.Exists("values", "messages"):
		children = container.S("values", "messages").Children()
	default:
		return nil, fmt.Errorf("the LangGraph response has no messages")
	}

	known := map[string]bool{}
	for id := range invokeContext.SeenMessageIDs {
		known[id] = true
	}
	for _, m := range invokeContext.Messages {
		if m.ID != "" {
			known[m.ID] = true
		}
	}

	response := &InvokeResponse{ThreadID: invokeContext.ThreadID}
	usage := &api.TokenUsage{}
	hasUsage := false
	for _, child := range children {
		var m langGraphMessage
		if err := json.Unmarshal(child.Bytes(), &m); err != nil {
			return nil, fmt.Errorf("invalid LangGraph message: %w", err)
		}
		if m.ID != "" && known[m.ID] {
			continue
		}
		message := api.Message{
			ID:         m.ID,
			Role:       fromLangGraphType(m.Type),
			Content:    contentText(m.Content),
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		}
		if len(m.ResponseMetadata) > 0 || len(m.UsageMetadata) > 0 {
			message.Metadata = map[string]any{}
			if len(m.ResponseMetadata) > 0 {
				message.Metadata["response_metadata"] = m.ResponseMetadata
			}
			if len(m.UsageMetadata) > 0 {
				message.Metadata["usage_metadata"] = m.UsageMetadata
				usage.Add(&api.TokenUsage{
					PromptTokens:     toInt64(m.UsageMetadata["input_tokens"]),
					CompletionTokens: toInt64(m.UsageMetadata["output_tokens"]),
					TotalTokens:      toInt64(m.UsageMetadata["total_tokens"]),
				})
				hasUsage = true
			}
		}
		response.Messages = append(response.Messages, message)
	}
	if hasUsage {
		response.TokenUsage = usage
	}
	return response, nil
}

func toLangGraphType(role api.Role) string {
	switch role {
	case api.RoleUser:
		return "human"
	case api.RoleAssistant:
		return "ai"
	default:
		return string(role)
	}
}

func fromLangGraphType(messageType string) api.Role {
	switch messageType {
	case "human":
		return api.RoleUser
	case "tool":
		return api.RoleTool
	case "system":
		return api.RoleSystem
	default:
		return api.RoleAssistant
	}
}

// contentText flattens the content blocks of a message into its text
func contentText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		parts := []string{}
		for _, block := range c {
			switch b := block.(type) {
			case string:
				parts = append(parts, b)
			case map[string]any:
				if text, ok := b["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "")
	default:
		return ""
	}
}
