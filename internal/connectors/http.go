package connectors

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Jeffail/gabs/v2"

	"github.com/eval-hub/sim-hub/pkg/api"
)

const testGreeting = "Hello"

// HTTPStrategy talks to a generic JSON chat endpoint. The whole transcript is sent on every turn
// and the answer is read from the usual response shapes.
type HTTPStrategy struct{}

type httpMessage struct {
	ID         string         `json:"id,omitempty"`
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []api.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type httpRequest struct {
	Message  string        `json:"message,omitempty"`
	Messages []httpMessage `json:"messages"`
	ThreadID string        `json:"thread_id,omitempty"`
}

func (s *HTTPStrategy) BuildTestRequest(connector *api.Connector) (*RequestSpec, error) {
	return &RequestSpec{
		Method: http.MethodPost,
		URL:    connector.BaseURL,
		Body: httpRequest{
			Message:  testGreeting,
			Messages: []httpMessage{{Role: string(api.RoleUser), Content: testGreeting}},
		},
	}, nil
}

func (s *HTTPStrategy) BuildInvokeRequest(connector *api.Connector, invokeContext InvokeContext) (*RequestSpec, error) {
	request := httpRequest{
		Messages: make([]httpMessage, 0, len(invokeContext.Messages)),
		ThreadID: invokeContext.ThreadID,
	}
	for _, m := range invokeContext.Messages {
		request.Messages = append(request.Messages, httpMessage{
			ID:         m.ID,
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}
	return &RequestSpec{
		Method: http.MethodPost,
		URL:    joinURL(connector.BaseURL, configString(connector, "path", "")),
		Body:   request,
	}, nil
}

func (s *HTTPStrategy) ParseTestResponse(body []byte) string {
	if content, ok := firstContent(body); ok {
		return content
	}
	return strings.TrimSpace(string(body))
}

func (s *HTTPStrategy) ParseInvokeResponse(body []byte, invokeContext InvokeContext) (*InvokeResponse, error) {
	container, err := gabs.ParseJSON(body)
	if err != nil {
		// not JSON, the whole body is the answer
		text := strings.TrimSpace(string(body))
		if text == "" {
			return &InvokeResponse{}, nil
		}
		return &InvokeResponse{Messages: []api.Message{{Role: api.RoleAssistant, Content: text}}}, nil
	}

	response := &InvokeResponse{
		TokenUsage: parseUsage(container),
	}
	if threadID, ok := container.Path("thread_id").Data().(string); ok {
		response.ThreadID = threadID
	}

	if text, ok := container.Data().(string); ok {
		response.Messages = []api.Message{{Role: api.RoleAssistant, Content: text}}
		return response, nil
	}
	if container.Exists("messages") {
		response.Messages = newMessages(container.S("messages").Children(), invokeContext.Messages)
		return response, nil
	}
	if content, ok := contentOf(container); ok {
		response.Messages = []api.Message{{Role: api.RoleAssistant, Content: content}}
	}
	return response, nil
}

// newMessages converts the returned messages array. Agents that echo the transcript
// start with the sent messages, only the entries after them are new. Agents that answer
// with the new entries only keep all of them.
func newMessages(children []*gabs.Container, sent []api.Message) []api.Message {
	if echoesTranscript(children, sent) {
		children = children[len(sent):]
	}
	out := []api.Message{}
	for _, child := range children {
		var m httpMessage
		if err := json.Unmarshal(child.Bytes(), &m); err != nil {
			continue
		}
		role := api.Role(m.Role)
		switch role {
		case api.RoleUser, api.RoleSystem, api.RoleTool:
		default:
			role = api.RoleAssistant
		}
		if role == api.RoleUser || role == api.RoleSystem {
			// echoed input
			continue
		}
		out = append(out, api.Message{
			ID:         m.ID,
			Role:       role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}

// echoesTranscript reports whether the returned messages start with the sent ones,
// matched on id when both sides have one and on role and content otherwise
func echoesTranscript(children []*gabs.Container, sent []api.Message) bool {
	if len(sent) == 0 || len(children) < len(sent) {
		return false
	}
	for i, m := range sent {
		var echoed httpMessage
		if err := json.Unmarshal(children[i].Bytes(), &echoed); err != nil {
			return false
		}
		if echoed.ID != "" && m.ID != "" {
			if echoed.ID != m.ID {
				return false
			}
			continue
		}
		if echoed.Role != string(m.Role) || echoed.Content != m.Content {
			return false
		}
	}
	return true
}

func firstContent(body []byte) (string, bool) {
	container, err := gabs.ParseJSON(body)
	if err != nil {
		return "", false
	}
	if text, ok := container.Data().(string); ok {
		return text, true
	}
	if content, ok := contentOf(container); ok {
		return content, true
	}
	if !container.Exists("messages") {
		return "", false
	}
	children := container.S("messages").Children()
	for i := len(children) - 1; i >= 0; i-- {
		if content, ok := children[i].Path("content").Data().(string); ok {
			return content, true
		}
	}
	return "", false
}

// contentOf looks for the answer in message.content, content and response, in that order
func contentOf(container *gabs.Container) (string, bool) {
	for _, path := range []string{"message.content", "content", "response"} {
		if content, ok := container.Path(path).Data().(string); ok {
			return content, true
		}
	}
	return "", false
}

func parseUsage(container *gabs.Container) *api.TokenUsage {
	if !container.Exists("usage") {
		return nil
	}
	return &api.TokenUsage{
		PromptTokens:     toInt64(container.Path("usage.prompt_tokens").Data()),
		CompletionTokens: toInt64(container.Path("usage.completion_tokens").Data()),
		TotalTokens:      toInt64(container.Path("usage.total_tokens").Data()),
	}
}

func toInt64(value any) int64 {
	switch v := value.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func joinURL(base string, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
