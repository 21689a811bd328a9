package handlers

import (
	"net/http"

	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/eval-hub/sim-hub/internal/executioncontext"
	"github.com/eval-hub/sim-hub/internal/http_wrappers"
)

// HandleTestConnector handles POST /api/v1/projects/{project}/connectors/{record_id}/test.
// A connector that can not be reached is not an error of the request, the outcome is in the body.
func (h *Handlers) HandleTestConnector(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	project, ok := pathValue(ctx, r, w, constants.PATH_PARAMETER_PROJECT)
	if !ok {
		return
	}
	id, ok := pathValue(ctx, r, w, constants.PATH_PARAMETER_RECORD_ID)
	if !ok {
		return
	}
	connector, err := h.storage.WithLogger(ctx.Logger).WithContext(ctx.Ctx).Connectors(project).FindByID(id)
	if err != nil {
		w.Error(err, ctx.RequestID)
		return
	}
	result := h.invoker.WithLogger(ctx.Logger).Test(ctx.Ctx, connector)
	w.WriteJSON(result, http.StatusOK)
}
