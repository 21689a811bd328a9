package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/connectors"
	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/eval-hub/sim-hub/internal/evaluators"
	"github.com/eval-hub/sim-hub/internal/ids"
	"github.com/eval-hub/sim-hub/internal/judge"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/metrics"
	"github.com/eval-hub/sim-hub/internal/persona"
	"github.com/eval-hub/sim-hub/internal/serviceerrors"
	"github.com/eval-hub/sim-hub/internal/tracing"
	"github.com/eval-hub/sim-hub/pkg/api"
)

// Callbacks are invoked synchronously from the loop at every transition of the run
type Callbacks struct {
	OnStatusChange func(run *api.Run, from api.RunStatus, to api.RunStatus)
	OnRunStart     func(run *api.Run)
	OnRunComplete  func(run *api.Run)
	OnRunError     func(run *api.Run, err error)
}

// Target is everything a run needs once its records have been resolved
type Target struct {
	Scenario      *api.Scenario
	Persona       *api.Persona
	Connector     *api.Connector
	InputMessages []api.Message
	LLM           abstractions.LLM
}

// Loop drives one run from its initial messages to a terminal status
type Loop struct {
	invoker    *connectors.Invoker
	judge      *judge.Judge
	evaluators *evaluators.Registry
	generator  *persona.Generator
	callbacks  Callbacks
	logger     *slog.Logger
}

func NewLoop(invoker *connectors.Invoker, judge *judge.Judge, registry *evaluators.Registry, generator *persona.Generator, callbacks Callbacks, logger *slog.Logger) *Loop {
	return &Loop{
		invoker:    invoker,
		judge:      judge,
		evaluators: registry,
		generator:  generator,
		callbacks:  callbacks,
		logger:     logger,
	}
}

// execution is the state of one run while the loop drives it
type execution struct {
	loop      *Loop
	runs      abstractions.Collection[api.Run]
	run       *api.Run
	target    Target
	resolved  []evaluators.Resolved
	seen      map[string]bool
	verdict   *api.CriteriaVerdict
	aggregate *evaluators.Aggregate
	logger    *slog.Logger
}

// Execute runs the conversation of a claimed run. A failed run is not an error, the returned
// error only reports that the run could not be persisted.
func (l *Loop) Execute(ctx context.Context, runs abstractions.Collection[api.Run], run *api.Run, target Target) error {
	ctx, span := tracing.Tracer().Start(ctx, "run",
		trace.WithAttributes(
			attribute.String(constants.LOG_PROJECT, run.Project),
			attribute.String(constants.LOG_RUN_ID, run.ID),
			attribute.String(constants.LOG_SCENARIO_ID, run.ScenarioID),
		))
	defer span.End()

	e := &execution{
		loop:   l,
		runs:   runs,
		run:    run,
		target: target,
		seen:   map[string]bool{},
		logger: l.logger.With(constants.LOG_PROJECT, run.Project, constants.LOG_RUN_ID, run.ID),
	}
	// the claim moved the run out of the queue in storage
	if run.Status == api.RunStatusRunning && l.callbacks.OnStatusChange != nil {
		l.callbacks.OnStatusChange(run, api.RunStatusQueued, api.RunStatusRunning)
	}
	if l.callbacks.OnRunStart != nil {
		l.callbacks.OnRunStart(run)
	}

	if err := e.configure(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return e.fail(err)
	}
	err := e.converse(ctx)
	if run.Status == api.RunStatusError {
		span.SetStatus(codes.Error, run.Error)
	}
	return err
}

// Fail moves a run to the error status, it is used for runs that can not be configured
func (l *Loop) Fail(runs abstractions.Collection[api.Run], run *api.Run, cause error) error {
	e := &execution{
		loop:   l,
		runs:   runs,
		run:    run,
		logger: l.logger.With(constants.LOG_PROJECT, run.Project, constants.LOG_RUN_ID, run.ID),
	}
	return e.fail(cause)
}

func (e *execution) configure() error {
	scenario := e.target.Scenario
	if scenario == nil {
		return serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", constants.COLLECTION_SCENARIOS, "ResourceId", e.run.ScenarioID)
	}
	if e.target.Connector == nil {
		return serviceerrors.NewServiceError(messages.RunConnectorMissing, "ResourceId", e.run.ID)
	}
	if e.target.LLM == nil {
		return serviceerrors.NewServiceError(messages.LLMProviderMissing, "Project", e.run.Project)
	}
	if !scenario.HasCriteria() && len(scenario.Evaluators) == 0 {
		return serviceerrors.NewServiceError(messages.ScenarioHasNoCriteria, "ResourceId", scenario.ID)
	}
	// auto evaluators are injected even when the scenario lists none
	resolved, err := e.loop.evaluators.Resolve(scenario.Evaluators)
	if err != nil {
		return err
	}
	e.resolved = resolved
	return nil
}

func (e *execution) converse(ctx context.Context) error {
	scenario := e.target.Scenario
	maxMessages := scenario.GetMaxMessages()

	if e.run.ThreadID == "" {
		e.run.ThreadID = ids.NewThreadID()
	}

	// the conversation always starts over from the scenario
	e.run.Messages = e.initialMessages()
	e.run.Output = &api.RunOutput{Metrics: map[string]float64{}}
	e.run.Result = nil
	e.run.Error = ""
	if err := e.persist(); err != nil {
		return err
	}

	if last := lastNonSystem(e.run.Messages); last == nil || last.Role == api.RoleAssistant {
		if err := e.generateUserTurn(ctx); err != nil {
			return e.fail(err)
		}
	}

	turn := 0
	for api.ConversationLength(e.run.Messages) < maxMessages {
		turn++
		finished, err := e.executeTurn(ctx, turn)
		if err != nil || finished {
			return err
		}
		if api.ConversationLength(e.run.Messages) >= maxMessages {
			break
		}
		if err := e.generateUserTurn(ctx); err != nil {
			return e.fail(err)
		}
	}

	return e.finishAtBudget(maxMessages)
}

// executeTurn invokes the agent and evaluates its answer, finished is true when the run reached a terminal status
func (e *execution) executeTurn(ctx context.Context, turn int) (bool, error) {
	ctx, span := tracing.Tracer().Start(ctx, "turn", trace.WithAttributes(attribute.Int(constants.LOG_TURN, turn)))
	defer span.End()
	logger := e.logger.With(constants.LOG_TURN, turn)

	sent := api.NonSystem(e.run.Messages)
	result := e.loop.invoker.WithLogger(logger).Invoke(ctx, e.target.Connector, e.target.Persona, connectors.InvokeContext{
		Messages:       sent,
		ThreadID:       e.run.ThreadID,
		SeenMessageIDs: e.seen,
	})
	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
		return true, e.fail(fmt.Errorf("connector error: %s", result.Error))
	}

	for _, m := range sent {
		if m.ID != "" {
			e.seen[m.ID] = true
		}
	}
	for _, m := range result.Messages {
		e.seen[m.ID] = true
	}
	e.run.Messages = append(e.run.Messages, result.Messages...)
	if result.ThreadID != "" {
		e.run.ThreadID = result.ThreadID
	}
	output := e.run.Output
	output.Turns++
	output.LatencyMs += result.LatencyMs
	if result.TokenUsage != nil {
		if output.TokenUsage == nil {
			output.TokenUsage = &api.TokenUsage{}
		}
		output.TokenUsage.Add(result.TokenUsage)
	}
	if err := e.persist(); err != nil {
		return true, err
	}
	logger.Info("Agent answered", "messages", len(result.Messages), "latency_ms", result.LatencyMs)

	scenario := e.target.Scenario
	if scenario.HasCriteria() {
		verdict := e.loop.judge.Evaluate(ctx, e.target.LLM, scenario, e.run.Messages)
		e.verdict = &verdict
		output.Criteria = &verdict
	}
	if len(e.resolved) > 0 {
		aggregate := evaluators.Run(ctx, e.resolved, evaluators.Context{
			Messages:   e.run.Messages,
			Turn:       result.Messages,
			LatencyMs:  result.LatencyMs,
			TokenUsage: result.TokenUsage,
		})
		e.aggregate = &aggregate
		output.Evaluators = aggregate.Outcomes
		for name, value := range aggregate.Metrics {
			output.Metrics[name] = value
		}
	}
	if err := e.persist(); err != nil {
		return true, err
	}

	switch {
	case e.verdict != nil && e.verdict.SuccessMet:
		return true, e.complete(true, "Success criteria met: "+e.verdict.Reasoning)
	case e.verdict != nil && e.verdict.FailureMet && scenario.GetFailureCriteriaMode() == api.FailureCriteriaEveryTurn:
		return true, e.complete(false, "Failure criteria met: "+e.verdict.Reasoning)
	case e.aggregate != nil && !e.aggregate.Success:
		return true, e.complete(false, "Evaluator failed: "+e.aggregate.Reason)
	}
	return false, nil
}

// finishAtBudget decides the outcome of a run that used its whole message budget. Without
// criteria the evaluators passed on every turn so the run succeeds, with criteria the success
// criteria were never met.
func (e *execution) finishAtBudget(maxMessages int) error {
	scenario := e.target.Scenario
	if !scenario.HasCriteria() {
		return e.complete(true, fmt.Sprintf("Completed %d messages, all evaluators passed", maxMessages))
	}
	switch {
	case e.verdict == nil:
		return e.complete(false, fmt.Sprintf("Max messages (%d) reached before the agent was judged", maxMessages))
	case e.verdict.FailureMet:
		return e.complete(false, "Failure criteria met: "+e.verdict.Reasoning)
	default:
		return e.complete(false, fmt.Sprintf("Max messages (%d) reached without meeting the success criteria: %s", maxMessages, e.verdict.Reasoning))
	}
}

func (e *execution) initialMessages() []api.Message {
	scenario := e.target.Scenario
	initial := []api.Message{{
		ID:      ids.NewMessageID(),
		Role:    api.RoleSystem,
		Content: persona.SystemPrompt(e.target.Persona, scenario),
	}}
	for _, source := range [][]api.Message{scenario.Messages, e.target.InputMessages} {
		for _, m := range source {
			if m.ID == "" {
				m.ID = ids.NewMessageID()
			}
			initial = append(initial, m)
		}
	}
	return initial
}

func (e *execution) generateUserTurn(ctx context.Context) error {
	content, err := e.loop.generator.NextMessage(ctx, e.target.LLM, e.target.Persona, e.target.Scenario, api.NonSystem(e.run.Messages))
	if err != nil {
		return err
	}
	e.run.Messages = append(e.run.Messages, api.Message{
		ID:      ids.NewMessageID(),
		Role:    api.RoleUser,
		Content: content,
	})
	return e.persist()
}

func (e *execution) complete(success bool, reason string) error {
	score := 0.0
	if success {
		score = 1.0
	}
	if e.aggregate != nil && e.aggregate.Score != nil {
		score = *e.aggregate.Score
	}
	e.run.Result = &api.RunResult{Success: success, Score: score, Reason: reason}
	now := time.Now().UTC()
	e.run.CompletedAt = &now
	if err := e.transition(api.RunStatusCompleted); err != nil {
		return err
	}
	e.logger.Info("Run completed", "success", success, "reason", reason)
	metrics.RunOutcomes.WithLabelValues(string(api.RunStatusCompleted), fmt.Sprintf("%t", success)).Inc()
	if e.loop.callbacks.OnRunComplete != nil {
		e.loop.callbacks.OnRunComplete(e.run)
	}
	return nil
}

func (e *execution) fail(cause error) error {
	e.run.Error = cause.Error()
	now := time.Now().UTC()
	e.run.CompletedAt = &now
	if err := e.transition(api.RunStatusError); err != nil {
		return err
	}
	e.logger.Warn("Run failed", "error", cause.Error())
	metrics.RunOutcomes.WithLabelValues(string(api.RunStatusError), "false").Inc()
	if e.loop.callbacks.OnRunError != nil {
		e.loop.callbacks.OnRunError(e.run, cause)
	}
	return nil
}

func (e *execution) transition(to api.RunStatus) error {
	from := e.run.Status
	if !api.CanTransition(from, to) {
		return serviceerrors.NewServiceError(messages.InvalidStatusTransition, "ResourceId", e.run.ID, "From", from, "To", to)
	}
	e.run.Status = to
	if err := e.persist(); err != nil {
		return err
	}
	if e.loop.callbacks.OnStatusChange != nil {
		e.loop.callbacks.OnStatusChange(e.run, from, to)
	}
	return nil
}

func (e *execution) persist() error {
	if err := e.runs.Save(e.run); err != nil {
		e.logger.Error("Failed to save the run", "error", err.Error())
		return err
	}
	return nil
}

func lastNonSystem(messages []api.Message) *api.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != api.RoleSystem {
			return &messages[i]
		}
	}
	return nil
}
