package local

import (
	"context"
	"log/slog"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/eval-hub/sim-hub/internal/logging"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/runner"
	"github.com/eval-hub/sim-hub/internal/serviceerrors"
	"github.com/eval-hub/sim-hub/pkg/api"
)

// LocalRuntime drives the conversation loop in the service process
type LocalRuntime struct {
	loop     *runner.Loop
	resolver abstractions.LLMResolver
	logger   *slog.Logger
}

func NewLocalRuntime(logger *slog.Logger, loop *runner.Loop, resolver abstractions.LLMResolver) (abstractions.Runtime, error) {
	return &LocalRuntime{loop: loop, resolver: resolver, logger: logger}, nil
}

// ExecuteRun resolves the records of the run and executes it. Records that can not be
// resolved are configuration errors and end the run in the error status.
func (r *LocalRuntime) ExecuteRun(ctx context.Context, run *api.Run, storage abstractions.Storage) error {
	logger := logging.LoggerWithRun(r.logger, run)
	storage = storage.WithLogger(logger).WithContext(ctx)
	runs := storage.Runs(run.Project)

	target, err := r.resolve(run, storage)
	if err != nil {
		logger.Warn("Run configuration failed", "error", err.Error())
		return r.loop.Fail(runs, run, err)
	}
	return r.loop.Execute(ctx, runs, run, *target)
}

func (r *LocalRuntime) resolve(run *api.Run, storage abstractions.Storage) (*runner.Target, error) {
	target := &runner.Target{}

	connectorID := run.ConnectorID
	if run.EvalID != "" {
		eval, err := storage.Evals(run.Project).FindByID(run.EvalID)
		if err != nil {
			return nil, err
		}
		connectorID = eval.ConnectorID
		target.InputMessages = eval.InputMessages
	}
	if connectorID == "" {
		return nil, serviceerrors.NewServiceError(messages.RunConnectorMissing, "ResourceId", run.ID)
	}
	connector, err := storage.Connectors(run.Project).FindByID(connectorID)
	if err != nil {
		return nil, err
	}
	target.Connector = connector

	if run.ScenarioID == "" {
		return nil, serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", constants.COLLECTION_SCENARIOS, "ResourceId", run.ScenarioID)
	}
	scenario, err := storage.Scenarios(run.Project).FindByID(run.ScenarioID)
	if err != nil {
		return nil, err
	}
	target.Scenario = scenario

	if run.PersonaID != "" {
		persona, err := storage.Personas(run.Project).FindByID(run.PersonaID)
		if err != nil {
			return nil, err
		}
		target.Persona = persona
	}

	llm, err := r.resolver.Resolve(run.Project)
	if err != nil {
		return nil, err
	}
	target.LLM = llm
	return target, nil
}

func (r *LocalRuntime) Name() string {
	return "local"
}
