package handlers

import (
	"net/http"

	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/eval-hub/sim-hub/internal/executioncontext"
	"github.com/eval-hub/sim-hub/internal/http_wrappers"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/runs"
	"github.com/eval-hub/sim-hub/internal/serialization"
	"github.com/eval-hub/sim-hub/pkg/api"
)

// HandleCreateRunsFromEval handles POST /api/v1/projects/{project}/evals/{eval_id}/runs
func (h *Handlers) HandleCreateRunsFromEval(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	project, ok := pathValue(ctx, r, w, constants.PATH_PARAMETER_PROJECT)
	if !ok {
		return
	}
	evalID, ok := pathValue(ctx, r, w, constants.PATH_PARAMETER_EVAL_ID)
	if !ok {
		return
	}
	execution, err := h.runs.CreateFromEval(ctx.Ctx, ctx.Logger, project, evalID)
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	w.WriteJSON(execution, http.StatusAccepted)
}

// HandleCreateRun handles POST /api/v1/projects/{project}/runs
func (h *Handlers) HandleCreateRun(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	project, ok := pathValue(ctx, r, w, constants.PATH_PARAMETER_PROJECT)
	if !ok {
		return
	}
	bodyBytes, err := r.BodyAsBytes()
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	runConfig := &api.StandaloneRunConfig{}
	if err := serialization.Unmarshal(h.validate, ctx, bodyBytes, runConfig); err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	run, err := h.runs.CreateStandalone(ctx.Ctx, ctx.Logger, project, runConfig)
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	w.WriteJSON(run, http.StatusAccepted)
}

// HandleListRuns handles GET /api/v1/projects/{project}/runs
func (h *Handlers) HandleListRuns(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	project, ok := pathValue(ctx, r, w, constants.PATH_PARAMETER_PROJECT)
	if !ok {
		return
	}
	filter := runs.ListFilter{
		EvalID:      queryString(r, constants.QUERY_PARAMETER_EVAL_ID),
		ExecutionID: queryString(r, constants.QUERY_PARAMETER_EXECUTION_ID),
		ScenarioID:  queryString(r, constants.QUERY_PARAMETER_SCENARIO_ID),
	}
	if status := queryString(r, constants.QUERY_PARAMETER_STATUS); status != "" {
		runStatus, err := api.GetRunStatus(status)
		if err != nil {
			w.ErrorWithMessageCode(ctx.RequestID, messages.QueryParameterInvalid, "ParameterName", constants.QUERY_PARAMETER_STATUS, "Type", "run status", "Value", status)
			return
		}
		filter.Status = runStatus
	}
	limit, err := queryInt(r, constants.QUERY_PARAMETER_LIMIT, constants.DEFAULT_PAGE_LIMIT)
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	offset, err := queryInt(r, constants.QUERY_PARAMETER_OFFSET, 0)
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	if limit == 0 {
		limit = constants.DEFAULT_PAGE_LIMIT
	}
	filter.Limit = limit
	filter.Offset = offset

	items, total, err := h.runs.List(ctx.Ctx, ctx.Logger, project, filter)
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	page, err := CreatePage(total, offset, limit, ctx, r)
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	w.WriteJSON(api.RunResourceList{Page: *page, Items: items}, http.StatusOK)
}

// HandleGetRun handles GET /api/v1/projects/{project}/runs/{run_id}
func (h *Handlers) HandleGetRun(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	project, runID, ok := runPath(ctx, r, w)
	if !ok {
		return
	}
	run, err := h.runs.Get(ctx.Ctx, ctx.Logger, project, runID)
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	w.WriteJSON(run, http.StatusOK)
}

// HandlePatchRun handles PATCH /api/v1/projects/{project}/runs/{run_id} with a JSON merge patch
func (h *Handlers) HandlePatchRun(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	project, runID, ok := runPath(ctx, r, w)
	if !ok {
		return
	}
	patch, err := r.BodyAsBytes()
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	run, err := h.runs.Update(ctx.Ctx, ctx.Logger, project, runID, patch)
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	w.WriteJSON(run, http.StatusOK)
}

// HandleDeleteRun handles DELETE /api/v1/projects/{project}/runs/{run_id}
func (h *Handlers) HandleDeleteRun(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	project, runID, ok := runPath(ctx, r, w)
	if !ok {
		return
	}
	if err := h.runs.Delete(ctx.Ctx, ctx.Logger, project, runID); err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	w.SetStatusCode(http.StatusNoContent)
}

// HandleRetryRun handles POST /api/v1/projects/{project}/runs/{run_id}/retry
func (h *Handlers) HandleRetryRun(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	project, runID, ok := runPath(ctx, r, w)
	if !ok {
		return
	}
	run, err := h.runs.Retry(ctx.Ctx, ctx.Logger, project, runID)
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	w.WriteJSON(run, http.StatusAccepted)
}

func runPath(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) (string, string, bool) {
	project, ok := pathValue(ctx, r, w, constants.PATH_PARAMETER_PROJECT)
	if !ok {
		return "", "", false
	}
	runID, ok := pathValue(ctx, r, w, constants.PATH_PARAMETER_RUN_ID)
	if !ok {
		return "", "", false
	}
	return project, runID, true
}
