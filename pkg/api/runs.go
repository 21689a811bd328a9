package api

import (
	"fmt"
	"time"
)

// RunStatus represents the run state enum
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

func (s RunStatus) String() string {
	return string(s)
}

func GetRunStatus(s string) (RunStatus, error) {
	switch s {
	case string(RunStatusQueued):
		return RunStatusQueued, nil
	case string(RunStatusPending):
		return RunStatusPending, nil
	case string(RunStatusRunning):
		return RunStatusRunning, nil
	case string(RunStatusCompleted):
		return RunStatusCompleted, nil
	case string(RunStatusError):
		return RunStatusError, nil
	default:
		return RunStatus(s), fmt.Errorf("invalid run status: %s", s)
	}
}

// CanTransition reports whether a run may move from one status to another.
// completed is terminal, error can only go back to queued (retry) and
// running can only be reset to queued by crash recovery.
func CanTransition(from RunStatus, to RunStatus) bool {
	switch from {
	case RunStatusQueued:
		return to == RunStatusRunning
	case RunStatusRunning:
		return to == RunStatusCompleted || to == RunStatusError || to == RunStatusQueued
	case RunStatusError:
		return to == RunStatusQueued
	default:
		return false
	}
}

// RunResult carries pass/fail, the status of a completed run does not.
type RunResult struct {
	Success bool    `json:"success"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason"`
}

// CriteriaVerdict is the outcome of the LLM criteria judge
type CriteriaVerdict struct {
	SuccessMet bool    `json:"success_met"`
	FailureMet bool    `json:"failure_met"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// EvaluatorOutcome is the result of one evaluator for the latest turn
type EvaluatorOutcome struct {
	Type     string         `json:"type"`
	Kind     string         `json:"kind"`
	Success  bool           `json:"success"`
	Value    *float64       `json:"value,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RunOutput holds the aggregated evaluation data of a run
type RunOutput struct {
	Criteria   *CriteriaVerdict   `json:"criteria,omitempty"`
	Evaluators []EvaluatorOutcome `json:"evaluators,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	LatencyMs  int64              `json:"latency_ms"`
	TokenUsage *TokenUsage        `json:"token_usage,omitempty"`
	Turns      int                `json:"turns"`
}

// Run is one simulated conversation against a connector
type Run struct {
	Resource
	EvalID      string     `json:"eval_id,omitempty"`
	ExecutionID string     `json:"execution_id,omitempty"`
	ConnectorID string     `json:"connector_id,omitempty"`
	ScenarioID  string     `json:"scenario_id" validate:"required"`
	PersonaID   string     `json:"persona_id,omitempty"`
	Status      RunStatus  `json:"status"`
	Messages    []Message  `json:"messages"`
	Result      *RunResult `json:"result,omitempty"`
	Output      *RunOutput `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	ThreadID    string     `json:"thread_id,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r Run) RecordStatus() string {
	return string(r.Status)
}

// StandaloneRunConfig is the request to create an ad-hoc (playground) run
type StandaloneRunConfig struct {
	ConnectorID string `json:"connector_id" validate:"required"`
	ScenarioID  string `json:"scenario_id" validate:"required"`
	PersonaID   string `json:"persona_id,omitempty"`
}

// RunResourceList represents list of runs with pagination
type RunResourceList struct {
	Page
	Items []Run `json:"items"`
}

// ExecutionResource is returned when an eval is expanded into runs
type ExecutionResource struct {
	Execution Execution `json:"execution"`
	Runs      []Run     `json:"runs"`
}
