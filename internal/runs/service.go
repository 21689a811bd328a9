package runs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	jsonpatch "gopkg.in/evanphx/json-patch.v4"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/eval-hub/sim-hub/internal/ids"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/serviceerrors"
	"github.com/eval-hub/sim-hub/pkg/api"
)

// ListFilter selects the runs returned by List, empty fields do not filter
type ListFilter struct {
	Status      api.RunStatus
	EvalID      string
	ExecutionID string
	ScenarioID  string
	Limit       int
	Offset      int
}

// Service implements the run operations used by the HTTP API and the CLI
type Service struct {
	storage  abstractions.Storage
	validate *validator.Validate
	logger   *slog.Logger
}

func NewService(storage abstractions.Storage, validate *validator.Validate, logger *slog.Logger) *Service {
	return &Service{storage: storage, validate: validate, logger: logger}
}

func (s *Service) store(ctx context.Context, logger *slog.Logger) abstractions.Storage {
	return s.storage.WithLogger(s.loggerOr(logger)).WithContext(ctx)
}

func (s *Service) loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return s.logger
	}
	return logger
}

// CreateFromEval expands an eval into one queued run per scenario and persona, grouped
// under a new execution.
func (s *Service) CreateFromEval(ctx context.Context, logger *slog.Logger, project string, evalID string) (*api.ExecutionResource, error) {
	store := s.store(ctx, logger)
	eval, err := store.Evals(project).FindByID(evalID)
	if err != nil {
		return nil, err
	}
	if len(eval.ScenarioIDs) == 0 {
		return nil, serviceerrors.NewServiceError(messages.EvalHasNoScenarios, "ResourceId", evalID)
	}
	if _, err := store.Connectors(project).FindByID(eval.ConnectorID); err != nil {
		return nil, err
	}

	maxID, err := store.Executions(project).MaxID()
	if err != nil {
		return nil, err
	}
	execution := api.Execution{
		Resource: api.Resource{ID: strconv.FormatInt(maxID+1, 10)},
		EvalID:   evalID,
	}

	runs := []api.Run{}
	for _, scenarioID := range eval.ScenarioIDs {
		scenario, err := store.Scenarios(project).FindByID(scenarioID)
		if err != nil {
			return nil, err
		}
		personaIDs := scenario.PersonaIDs
		if len(personaIDs) == 0 {
			personaIDs = []string{""}
		}
		for _, personaID := range personaIDs {
			runs = append(runs, api.Run{
				EvalID:      evalID,
				ExecutionID: execution.ID,
				ScenarioID:  scenarioID,
				PersonaID:   personaID,
				Status:      api.RunStatusQueued,
				Messages:    []api.Message{},
				ThreadID:    ids.NewThreadID(),
			})
		}
	}
	if err := store.Runs(project).SaveMany(runs); err != nil {
		return nil, err
	}
	for _, run := range runs {
		execution.RunIDs = append(execution.RunIDs, run.ID)
	}
	if err := store.Executions(project).Save(&execution); err != nil {
		return nil, err
	}
	s.loggerOr(logger).Info("Created runs from eval", constants.LOG_PROJECT, project, constants.LOG_EVAL_ID, evalID, "execution_id", execution.ID, "runs", len(runs))
	return &api.ExecutionResource{Execution: execution, Runs: runs}, nil
}

// CreateStandalone creates a single playground run
func (s *Service) CreateStandalone(ctx context.Context, logger *slog.Logger, project string, runConfig *api.StandaloneRunConfig) (*api.Run, error) {
	store := s.store(ctx, logger)
	if _, err := store.Connectors(project).FindByID(runConfig.ConnectorID); err != nil {
		return nil, err
	}
	if _, err := store.Scenarios(project).FindByID(runConfig.ScenarioID); err != nil {
		return nil, err
	}
	if runConfig.PersonaID != "" {
		if _, err := store.Personas(project).FindByID(runConfig.PersonaID); err != nil {
			return nil, err
		}
	}
	run := &api.Run{
		ConnectorID: runConfig.ConnectorID,
		ScenarioID:  runConfig.ScenarioID,
		PersonaID:   runConfig.PersonaID,
		Status:      api.RunStatusQueued,
		Messages:    []api.Message{},
		ThreadID:    ids.NewThreadID(),
	}
	if err := store.Runs(project).Save(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Service) Get(ctx context.Context, logger *slog.Logger, project string, id string) (*api.Run, error) {
	return s.store(ctx, logger).Runs(project).FindByID(id)
}

// List returns a page of the matching runs and the total number of matches
func (s *Service) List(ctx context.Context, logger *slog.Logger, project string, filter ListFilter) ([]api.Run, int, error) {
	query := abstractions.Filter{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.EvalID != "" {
		query["eval_id"] = filter.EvalID
	}
	if filter.ExecutionID != "" {
		query["execution_id"] = filter.ExecutionID
	}
	if filter.ScenarioID != "" {
		query["scenario_id"] = filter.ScenarioID
	}
	all, err := s.store(ctx, logger).Runs(project).FindBy(query)
	if err != nil {
		return nil, 0, err
	}
	total := len(all)
	start := min(max(filter.Offset, 0), total)
	limit := filter.Limit
	if limit <= 0 {
		limit = constants.DEFAULT_PAGE_LIMIT
	}
	end := min(start+limit, total)
	return all[start:end], total, nil
}

// Update applies a JSON merge patch to a run. The identity of the run can not be changed
// and a status change must be a valid transition.
func (s *Service) Update(ctx context.Context, logger *slog.Logger, project string, id string, patch []byte) (*api.Run, error) {
	store := s.store(ctx, logger)
	run, err := store.Runs(project).FindByID(id)
	if err != nil {
		return nil, err
	}
	original, err := json.Marshal(run)
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
	}
	patched, err := jsonpatch.MergePatch(original, patch)
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.InvalidRunPatch, "ResourceId", id, "Error", err.Error())
	}
	updated := &api.Run{}
	if err := json.Unmarshal(patched, updated); err != nil {
		return nil, serviceerrors.NewServiceError(messages.InvalidRunPatch, "ResourceId", id, "Error", err.Error())
	}
	updated.Resource = run.Resource
	if updated.Status != run.Status && !api.CanTransition(run.Status, updated.Status) {
		return nil, serviceerrors.NewServiceError(messages.InvalidStatusTransition, "ResourceId", id, "From", run.Status, "To", updated.Status)
	}
	if err := s.validate.StructCtx(ctx, updated); err != nil {
		return nil, serviceerrors.NewServiceError(messages.InvalidRunPatch, "ResourceId", id, "Error", err.Error())
	}
	if err := store.Runs(project).Save(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, logger *slog.Logger, project string, id string) error {
	return s.store(ctx, logger).Runs(project).DeleteByID(id)
}

// Retry puts a failed run back in the queue. The conversation is discarded and a new
// thread is used so that stateful connectors do not resume the failed one.
func (s *Service) Retry(ctx context.Context, logger *slog.Logger, project string, id string) (*api.Run, error) {
	store := s.store(ctx, logger)
	run, err := store.Runs(project).FindByID(id)
	if err != nil {
		return nil, err
	}
	if run.Status != api.RunStatusError {
		return nil, serviceerrors.NewServiceError(messages.RunNotRetryable, "ResourceId", id, "Status", run.Status)
	}
	run.Status = api.RunStatusQueued
	run.Messages = []api.Message{}
	run.Output = nil
	run.Result = nil
	run.Error = ""
	run.StartedAt = nil
	run.CompletedAt = nil
	run.ThreadID = ids.NewThreadID()
	if err := store.Runs(project).Save(run); err != nil {
		return nil, err
	}
	s.loggerOr(logger).Info("Run queued for retry", constants.LOG_PROJECT, project, constants.LOG_RUN_ID, id)
	return run, nil
}
