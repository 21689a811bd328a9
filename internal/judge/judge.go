package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/metrics"
	"github.com/eval-hub/sim-hub/pkg/api"
)

const systemPrompt = `You are an impartial judge of conversations between a user and an AI agent.
You are given the transcript and the success and failure criteria of the conversation.
Decide whether the success criteria have been met and whether the failure criteria have been met.
Answer with a single JSON object and nothing else, using exactly this shape:
{"successMet": <true|false>, "failureMet": <true|false>, "confidence": <number between 0 and 1>, "reasoning": "<short explanation>"}`

// verdictSchema is the exact shape the judge must answer with
const verdictSchema = `{
	"type": "object",
	"required": ["successMet", "failureMet", "confidence", "reasoning"],
	"properties": {
		"successMet": {"type": "boolean"},
		"failureMet": {"type": "boolean"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reasoning": {"type": "string"}
	}
}`

var verdictSchemaLoader = gojsonschema.NewStringLoader(verdictSchema)

// ParseError is returned when the judge answer does not have the verdict shape
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid judge response (%s): %s", e.Reason, e.Raw)
}

type verdict struct {
	SuccessMet bool    `json:"successMet"`
	FailureMet bool    `json:"failureMet"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Judge evaluates a transcript against the natural language criteria of a scenario
type Judge struct {
	model  string
	logger *slog.Logger
}

// New creates a judge, an empty model uses the judge model of the project provider
func New(model string, logger *slog.Logger) *Judge {
	return &Judge{model: model, logger: logger}
}

// Inconclusive is the verdict used when there is nothing to judge or the judge could not answer
func Inconclusive(reasoning string) api.CriteriaVerdict {
	return api.CriteriaVerdict{Confidence: 1, Reasoning: reasoning}
}

// Evaluate never fails, LLM and parse errors are turned into an inconclusive verdict
func (j *Judge) Evaluate(ctx context.Context, llm abstractions.LLM, scenario *api.Scenario, messages []api.Message) api.CriteriaVerdict {
	if !scenario.HasCriteria() {
		return Inconclusive("No criteria to evaluate")
	}

	prompt := fmt.Sprintf("Success criteria: %s\nFailure criteria: %s\n\nTranscript:\n%s",
		orNone(scenario.SuccessCriteria), orNone(scenario.FailureCriteria), Transcript(messages))
	raw, err := llm.Complete(ctx, []api.Message{
		{Role: api.RoleSystem, Content: systemPrompt},
		{Role: api.RoleUser, Content: prompt},
	}, abstractions.CompletionOptions{Model: j.model, Judging: true})
	if err != nil {
		j.logger.Warn("Judge call failed", "error", err.Error())
		metrics.JudgeFallbacks.Inc()
		return Inconclusive("Judge call failed: " + err.Error())
	}

	parsed, parseErr := ParseVerdict(raw)
	if parseErr != nil {
		j.logger.Warn("Judge response could not be parsed", "reason", parseErr.Reason)
		metrics.JudgeFallbacks.Inc()
		return Inconclusive(parseErr.Error())
	}
	return parsed
}

// ParseVerdict extracts the verdict JSON object from the judge answer. Answers wrapped in
// prose or code fences are accepted as long as the object itself has the exact shape.
func ParseVerdict(raw string) (api.CriteriaVerdict, *ParseError) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return api.CriteriaVerdict{}, &ParseError{Raw: raw, Reason: "no JSON object found"}
	}
	candidate := raw[start : end+1]

	result, err := gojsonschema.Validate(verdictSchemaLoader, gojsonschema.NewStringLoader(candidate))
	if err != nil {
		return api.CriteriaVerdict{}, &ParseError{Raw: raw, Reason: err.Error()}
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return api.CriteriaVerdict{}, &ParseError{Raw: raw, Reason: strings.Join(reasons, "; ")}
	}

	var v verdict
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return api.CriteriaVerdict{}, &ParseError{Raw: raw, Reason: err.Error()}
	}
	return api.CriteriaVerdict{
		SuccessMet: v.SuccessMet,
		FailureMet: v.FailureMet,
		Confidence: v.Confidence,
		Reasoning:  v.Reasoning,
	}, nil
}

// Transcript renders the non-system messages as User:/Agent: lines
func Transcript(messages []api.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		switch m.Role {
		case api.RoleUser:
			sb.WriteString("User: ")
		case api.RoleAssistant:
			sb.WriteString("Agent: ")
		case api.RoleTool:
			sb.WriteString("Tool: ")
		default:
			continue
		}
		sb.WriteString(m.Content)
		for _, call := range m.ToolCalls {
			args, _ := json.Marshal(call.Args)
			fmt.Fprintf(&sb, " [calls %s(%s)]", call.Name, args)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
