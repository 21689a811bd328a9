package handlers

import (
	"github.com/go-playground/validator/v10"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/config"
	"github.com/eval-hub/sim-hub/internal/connectors"
	"github.com/eval-hub/sim-hub/internal/evaluators"
	"github.com/eval-hub/sim-hub/internal/executioncontext"
	"github.com/eval-hub/sim-hub/internal/http_wrappers"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/runs"
)

// Scheduler is the part of the scheduler reported by the status endpoint
type Scheduler interface {
	Active() int
}

type Handlers struct {
	storage       abstractions.Storage
	validate      *validator.Validate
	runs          *runs.Service
	invoker       *connectors.Invoker
	evaluators    *evaluators.Registry
	scheduler     Scheduler
	serviceConfig *config.Config
}

func New(storage abstractions.Storage,
	validate *validator.Validate,
	runService *runs.Service,
	invoker *connectors.Invoker,
	registry *evaluators.Registry,
	scheduler Scheduler,
	serviceConfig *config.Config) *Handlers {
	return &Handlers{
		storage:       storage,
		validate:      validate,
		runs:          runService,
		invoker:       invoker,
		evaluators:    registry,
		scheduler:     scheduler,
		serviceConfig: serviceConfig,
	}
}

// pathValue returns the path parameter or writes the missing parameter error
func pathValue(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper, name string) (string, bool) {
	value := r.PathValue(name)
	if value == "" {
		w.ErrorWithMessageCode(ctx.RequestID, messages.MissingPathParameter, "ParameterName", name)
		return "", false
	}
	return value, true
}
