package api

// Role of a conversation message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the agent under test.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is one entry of a run transcript. The ID is stable across turns so that
// stateful connectors can tell which messages the remote thread has already seen.
type Message struct {
	ID         string         `json:"id,omitempty"`
	Role       Role           `json:"role" validate:"required,oneof=system user assistant tool"`
	Content    string         `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TokenUsage as reported by the agent under test
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	if other.TotalTokens > 0 {
		u.TotalTokens += other.TotalTokens
	} else {
		u.TotalTokens += other.PromptTokens + other.CompletionTokens
	}
}

// ConversationLength counts the user and assistant messages, this is what the
// scenario message budget is measured against.
func ConversationLength(messages []Message) int {
	count := 0
	for _, m := range messages {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			count++
		}
	}
	return count
}

// NonSystem returns the messages without the system prompt(s).
func NonSystem(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}
