package handlers

import (
	"net/http"

	"github.com/eval-hub/sim-hub/internal/evaluators"
	"github.com/eval-hub/sim-hub/internal/executioncontext"
	"github.com/eval-hub/sim-hub/internal/http_wrappers"
)

type EvaluatorList struct {
	Items      []*evaluators.Definition `json:"items"`
	TotalCount int                      `json:"total_count"`
}

// HandleListEvaluators handles GET /api/v1/evaluators
func (h *Handlers) HandleListEvaluators(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	definitions := []*evaluators.Definition{}
	if h.evaluators != nil {
		definitions = h.evaluators.Definitions()
	}
	w.WriteJSON(EvaluatorList{Items: definitions, TotalCount: len(definitions)}, http.StatusOK)
}
