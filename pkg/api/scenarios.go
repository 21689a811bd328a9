package api

// FailureCriteriaMode controls when the failure criteria are allowed to end a run
type FailureCriteriaMode string

const (
	FailureCriteriaEveryTurn     FailureCriteriaMode = "every_turn"
	FailureCriteriaOnMaxMessages FailureCriteriaMode = "on_max_messages"
)

const DefaultMaxMessages = 10

// EvaluatorRef references a registered evaluator type with its configuration
type EvaluatorRef struct {
	Type   string         `json:"type" validate:"required"`
	Config map[string]any `json:"config,omitempty"`
}

// Scenario is the template of a simulated conversation
type Scenario struct {
	Resource
	Name                string              `json:"name" validate:"required"`
	Instructions        string              `json:"instructions"`
	Messages            []Message           `json:"messages,omitempty" validate:"omitempty,dive"`
	MaxMessages         int                 `json:"max_messages,omitempty" validate:"omitempty,min=1"`
	SuccessCriteria     string              `json:"success_criteria,omitempty"`
	FailureCriteria     string              `json:"failure_criteria,omitempty"`
	FailureCriteriaMode FailureCriteriaMode `json:"failure_criteria_mode,omitempty" validate:"omitempty,oneof=every_turn on_max_messages"`
	PersonaIDs          []string            `json:"persona_ids,omitempty"`
	Evaluators          []EvaluatorRef      `json:"evaluators,omitempty" validate:"omitempty,dive"`
}

// GetMaxMessages returns the message budget, defaulting to DefaultMaxMessages.
func (s *Scenario) GetMaxMessages() int {
	if s.MaxMessages <= 0 {
		return DefaultMaxMessages
	}
	return s.MaxMessages
}

func (s *Scenario) GetFailureCriteriaMode() FailureCriteriaMode {
	if s.FailureCriteriaMode == "" {
		return FailureCriteriaOnMaxMessages
	}
	return s.FailureCriteriaMode
}

func (s *Scenario) HasCriteria() bool {
	return s.SuccessCriteria != "" || s.FailureCriteria != ""
}

// Persona is the simulated end user
type Persona struct {
	Resource
	Name         string            `json:"name" validate:"required"`
	Description  string            `json:"description,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// Connector is the configured endpoint of the agent under test
type Connector struct {
	Resource
	Name    string            `json:"name" validate:"required"`
	Type    string            `json:"type" validate:"required"`
	BaseURL string            `json:"base_url" validate:"required,url"`
	Headers map[string]string `json:"headers,omitempty"`
	Config  map[string]any    `json:"config,omitempty"`
}

// Eval binds a connector to one or more scenarios
type Eval struct {
	Resource
	Name          string    `json:"name" validate:"required"`
	ConnectorID   string    `json:"connector_id" validate:"required"`
	ScenarioIDs   []string  `json:"scenario_ids" validate:"required,min=1"`
	InputMessages []Message `json:"input_messages,omitempty" validate:"omitempty,dive"`
}

// Execution groups the runs created together from one eval. The ID is a
// monotonic integer stored in its decimal form.
type Execution struct {
	Resource
	EvalID string   `json:"eval_id"`
	RunIDs []string `json:"run_ids"`
}
