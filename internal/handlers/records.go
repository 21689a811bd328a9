package handlers

import (
	"net/http"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-playground/validator/v10"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/eval-hub/sim-hub/internal/executioncontext"
	"github.com/eval-hub/sim-hub/internal/http_wrappers"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/serialization"
	"github.com/eval-hub/sim-hub/internal/serviceerrors"
	"github.com/eval-hub/sim-hub/pkg/api"
)

// HandlePutRecord handles PUT /api/v1/projects/{project}/{collection}/{record_id}.
// Scenarios, personas, connectors and evals are upserted under the id of the path.
func (h *Handlers) HandlePutRecord(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	project, collection, id, ok := recordPath(ctx, r, w)
	if !ok {
		return
	}
	body, err := r.BodyAsBytes()
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	store := h.storage.WithLogger(ctx.Logger).WithContext(ctx.Ctx)

	var record any
	switch collection {
	case constants.COLLECTION_SCENARIOS:
		record, err = upsertRecord(ctx, h.validate, store.Scenarios(project), id, body, h.checkScenario)
	case constants.COLLECTION_PERSONAS:
		record, err = upsertRecord[api.Persona](ctx, h.validate, store.Personas(project), id, body, nil)
	case constants.COLLECTION_CONNECTORS:
		record, err = upsertRecord(ctx, h.validate, store.Connectors(project), id, body, h.checkConnector)
	case constants.COLLECTION_EVALS:
		record, err = upsertRecord[api.Eval](ctx, h.validate, store.Evals(project), id, body, nil)
	default:
		w.ErrorWithMessageCode(ctx.RequestID, messages.UnknownCollection, "Collection", collection)
		return
	}
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	w.WriteJSON(record, http.StatusOK)
}

// HandleGetRecord handles GET /api/v1/projects/{project}/{collection}/{record_id}
func (h *Handlers) HandleGetRecord(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	project, collection, id, ok := recordPath(ctx, r, w)
	if !ok {
		return
	}
	store := h.storage.WithLogger(ctx.Logger).WithContext(ctx.Ctx)

	var record any
	var err error
	switch collection {
	case constants.COLLECTION_SCENARIOS:
		record, err = store.Scenarios(project).FindByID(id)
	case constants.COLLECTION_PERSONAS:
		record, err = store.Personas(project).FindByID(id)
	case constants.COLLECTION_CONNECTORS:
		record, err = store.Connectors(project).FindByID(id)
	case constants.COLLECTION_EVALS:
		record, err = store.Evals(project).FindByID(id)
	case constants.COLLECTION_EXECUTIONS:
		record, err = store.Executions(project).FindByID(id)
	default:
		w.ErrorWithMessageCode(ctx.RequestID, messages.UnknownCollection, "Collection", collection)
		return
	}
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	w.WriteJSON(record, http.StatusOK)
}

func (h *Handlers) checkScenario(scenario *api.Scenario) error {
	if h.evaluators == nil {
		return nil
	}
	_, err := h.evaluators.Resolve(scenario.Evaluators)
	return err
}

func (h *Handlers) checkConnector(connector *api.Connector) error {
	if h.invoker == nil {
		return nil
	}
	_, err := h.invoker.Strategy(connector.Type)
	return err
}

// upsertRecord decodes the body with the id of the path, keeps the creation time of an
// existing record and saves the result.
func upsertRecord[T api.Record](ctx *executioncontext.ExecutionContext, validate *validator.Validate, collection abstractions.Collection[T], id string, body []byte, check func(*T) error) (*T, error) {
	container, err := gabs.ParseJSON(body)
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.InvalidJSONRequest, "Error", err.Error())
	}
	if _, err := container.Set(id, "id"); err != nil {
		return nil, serviceerrors.NewServiceError(messages.InvalidJSONRequest, "Error", err.Error())
	}
	existing, err := collection.FindByID(id)
	switch {
	case err == nil:
		if _, err := container.Set((*existing).RecordCreatedAt().Format(time.RFC3339Nano), "created_at"); err != nil {
			return nil, serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
		}
	case !serviceerrors.IsNotFound(err):
		return nil, err
	default:
		_ = container.Delete("created_at")
	}

	record := new(T)
	if err := serialization.Unmarshal(validate, ctx, container.Bytes(), record); err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(record); err != nil {
			return nil, err
		}
	}
	if err := collection.Save(record); err != nil {
		return nil, err
	}
	return record, nil
}

func recordPath(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) (string, string, string, bool) {
	project, ok := pathValue(ctx, r, w, constants.PATH_PARAMETER_PROJECT)
	if !ok {
		return "", "", "", false
	}
	collection, ok := pathValue(ctx, r, w, constants.PATH_PARAMETER_COLLECTION)
	if !ok {
		return "", "", "", false
	}
	id, ok := pathValue(ctx, r, w, constants.PATH_PARAMETER_RECORD_ID)
	if !ok {
		return "", "", "", false
	}
	return project, collection, id, true
}
