package runtimes

import (
	"log/slog"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/config"
	"github.com/eval-hub/sim-hub/internal/connectors"
	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/eval-hub/sim-hub/internal/evaluators"
	"github.com/eval-hub/sim-hub/internal/judge"
	"github.com/eval-hub/sim-hub/internal/logging"
	"github.com/eval-hub/sim-hub/internal/persona"
	"github.com/eval-hub/sim-hub/internal/runner"
	"github.com/eval-hub/sim-hub/internal/runtimes/local"
	"github.com/eval-hub/sim-hub/pkg/api"
)

// NewRuntime wires the conversation loop with the connectors, the judge and the evaluators.
// Runs always execute in process, each claimed run on its own goroutine.
func NewRuntime(logger *slog.Logger, serviceConfig *config.Config, resolver abstractions.LLMResolver) (abstractions.Runtime, error) {
	invoker, err := connectors.NewInvoker(connectors.NewRegistry(), serviceConfig.Connectors, logger)
	if err != nil {
		return nil, err
	}

	callbacks := runner.Callbacks{
		OnStatusChange: func(run *api.Run, from api.RunStatus, to api.RunStatus) {
			logging.LoggerWithRun(logger, run).Info("Run status changed", "from", from, "to", to)
		},
		OnRunStart: func(run *api.Run) {
			logging.LoggerWithRun(logger, run).Info("Run started", constants.LOG_THREAD_ID, run.ThreadID)
		},
	}

	loop := runner.NewLoop(
		invoker,
		judge.New("", logger),
		evaluators.NewRegistry(),
		persona.NewGenerator("", logger),
		callbacks,
		logger,
	)
	return local.NewLocalRuntime(logger, loop, resolver)
}
