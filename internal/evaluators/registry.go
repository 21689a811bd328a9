package evaluators

import (
	"context"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/serviceerrors"
	"github.com/eval-hub/sim-hub/pkg/api"
)

type Kind string

const (
	KindAssertion Kind = "assertion"
	KindMetric    Kind = "metric"
)

// Context is what an evaluator sees of the turn that just completed
type Context struct {
	// Messages is the whole transcript
	Messages []api.Message
	// Turn holds the messages returned by the agent in this turn
	Turn       []api.Message
	LatencyMs  int64
	TokenUsage *api.TokenUsage
	Config     map[string]any
}

// LastAssistant returns the content of the last assistant message of the turn
func (c *Context) LastAssistant() string {
	for i := len(c.Turn) - 1; i >= 0; i-- {
		if c.Turn[i].Role == api.RoleAssistant {
			return c.Turn[i].Content
		}
	}
	return ""
}

type Result struct {
	Success  bool
	Value    *float64
	Reason   string
	Metadata map[string]any
}

// Evaluator inspects a turn
type Evaluator interface {
	Evaluate(ctx context.Context, evalContext *Context) (Result, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface
type EvaluatorFunc func(ctx context.Context, evalContext *Context) (Result, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, evalContext *Context) (Result, error) {
	return f(ctx, evalContext)
}

// Definition is a registered evaluator type
type Definition struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
	// Auto evaluators run on every turn even when the scenario does not reference them
	Auto         bool   `json:"auto"`
	ConfigSchema string `json:"config_schema,omitempty"`

	Evaluator Evaluator `json:"-"`
}

// Resolved is a definition with the configuration of the scenario
type Resolved struct {
	Definition *Definition
	Config     map[string]any
}

type Registry struct {
	definitions map[string]*Definition
}

// NewRegistry returns a registry holding the built-in evaluators
func NewRegistry() *Registry {
	r := &Registry{definitions: map[string]*Definition{}}
	for _, d := range builtins() {
		r.Register(d)
	}
	return r
}

func (r *Registry) Register(definition *Definition) {
	r.definitions[definition.Type] = definition
}

func (r *Registry) Get(evaluatorType string) (*Definition, error) {
	d, ok := r.definitions[evaluatorType]
	if !ok {
		return nil, serviceerrors.NewServiceError(messages.EvaluatorTypeUnknown, "Type", evaluatorType)
	}
	return d, nil
}

// Definitions returns the registered definitions ordered by type
func (r *Registry) Definitions() []*Definition {
	out := make([]*Definition, 0, len(r.definitions))
	for _, d := range r.definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// ValidateConfig checks the configuration against the schema of the definition
func (r *Registry) ValidateConfig(definition *Definition, config map[string]any) error {
	if definition.ConfigSchema == "" {
		return nil
	}
	if config == nil {
		config = map[string]any{}
	}
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(definition.ConfigSchema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return serviceerrors.NewServiceError(messages.EvaluatorConfigInvalid, "Type", definition.Type, "Error", err.Error())
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return serviceerrors.NewServiceError(messages.EvaluatorConfigInvalid, "Type", definition.Type, "Error", strings.Join(reasons, "; "))
	}
	return nil
}

// Resolve returns the evaluators of a scenario in scenario order, followed by the auto
// evaluators that the scenario did not reference.
func (r *Registry) Resolve(refs []api.EvaluatorRef) ([]Resolved, error) {
	resolved := make([]Resolved, 0, len(refs))
	referenced := map[string]bool{}
	for _, ref := range refs {
		d, err := r.Get(ref.Type)
		if err != nil {
			return nil, err
		}
		if err := r.ValidateConfig(d, ref.Config); err != nil {
			return nil, err
		}
		referenced[ref.Type] = true
		resolved = append(resolved, Resolved{Definition: d, Config: ref.Config})
	}
	for _, d := range r.Definitions() {
		if d.Auto && !referenced[d.Type] {
			resolved = append(resolved, Resolved{Definition: d})
		}
	}
	return resolved, nil
}
