package connectors

import (
	"sort"

	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/serviceerrors"
	"github.com/eval-hub/sim-hub/pkg/api"
)

const (
	TYPE_HTTP      = "http"
	TYPE_LANGGRAPH = "langgraph"
)

// RequestSpec describes the HTTP request a strategy wants to send, the invoker executes it
type RequestSpec struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// InvokeContext is what the evaluation loop knows about the conversation when it calls the agent
type InvokeContext struct {
	// Messages is the non-system transcript, the strategy decides what is sent
	Messages []api.Message
	ThreadID string
	// SeenMessageIDs holds the ids of the messages already exchanged with the agent
	SeenMessageIDs map[string]bool
}

// InvokeResponse is the parsed answer of the agent
type InvokeResponse struct {
	Messages   []api.Message
	ThreadID   string
	TokenUsage *api.TokenUsage
	Metadata   map[string]any
}

// Strategy implements the wire protocol of one connector type
type Strategy interface {
	BuildTestRequest(connector *api.Connector) (*RequestSpec, error)
	BuildInvokeRequest(connector *api.Connector, invokeContext InvokeContext) (*RequestSpec, error)
	ParseTestResponse(body []byte) string
	ParseInvokeResponse(body []byte, invokeContext InvokeContext) (*InvokeResponse, error)
}

// Registry maps a connector type to its strategy
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry returns a registry with the http and langgraph strategies registered
func NewRegistry() *Registry {
	return &Registry{
		strategies: map[string]Strategy{
			TYPE_HTTP:      &HTTPStrategy{},
			TYPE_LANGGRAPH: &LangGraphStrategy{},
		},
	}
}

func (r *Registry) Register(connectorType string, strategy Strategy) {
	r.strategies[connectorType] = strategy
}

func (r *Registry) Get(connectorType string) (Strategy, error) {
	strategy, ok := r.strategies[connectorType]
	if !ok {
		return nil, serviceerrors.NewServiceError(messages.ConnectorTypeUnknown, "Type", connectorType)
	}
	return strategy, nil
}

func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.strategies))
	for t := range r.strategies {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func configString(connector *api.Connector, key string, defaultValue string) string {
	if connector.Config == nil {
		return defaultValue
	}
	if value, ok := connector.Config[key].(string); ok && value != "" {
		return value
	}
	return defaultValue
}
