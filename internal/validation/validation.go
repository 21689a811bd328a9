package validation

import (
	"github.com/eval-hub/sim-hub/pkg/api"
	"github.com/go-playground/validator/v10"
)

// NewValidator returns the validator used for all the request bodies
func NewValidator() (*validator.Validate, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(validateScenario, api.Scenario{})
	return validate, nil
}

// a seed message must not be a tool result without the tool call it answers
func validateScenario(sl validator.StructLevel) {
	scenario := sl.Current().Interface().(api.Scenario)
	calls := map[string]bool{}
	for _, m := range scenario.Messages {
		for _, tc := range m.ToolCalls {
			calls[tc.ID] = true
		}
		if m.Role == api.RoleTool && m.ToolCallID != "" && !calls[m.ToolCallID] {
			sl.ReportError(scenario.Messages, "Messages", "messages", "tool_call_id", m.ToolCallID)
		}
	}
}
