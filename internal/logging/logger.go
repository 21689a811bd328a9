package logging

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/eval-hub/sim-hub/internal/executioncontext"
	"github.com/eval-hub/sim-hub/pkg/api"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

type ShutdownFunc func() error

// NewLogger creates and returns a new structured logger using zap as the underlying
// logging implementation, wrapped with slog's interface. The logger is configured
// with production settings and ISO8601 time encoding for consistent log formatting.
//
// Parameters:
//   - level: the minimum level to log ("debug", "info", "warn", "error"), empty means info
//
// Returns:
//   - *slog.Logger: A structured logger instance that can be used throughout the application
//   - ShutdownFunc: flushes the buffered log entries
//   - error: An error if the logger could not be initialized
func NewLogger(level string) (*slog.Logger, ShutdownFunc, error) {
	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level != "" {
		zapLevel, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, nil, err
		}
		logConfig.Level = zapLevel
	}
	zapLog, err := logConfig.Build()
	if err != nil {
		return nil, nil, err
	}
	f := newShutdownFunc(zapLog.Core())
	// we want the caller in our logs for debugging purposes, for now this is always set to true
	return slog.New(zapslog.NewHandler(zapLog.Core(), zapslog.WithCaller(true))), f, nil
}

func FallbackLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func newShutdownFunc(core zapcore.Core) ShutdownFunc {
	return func() error {
		return core.Sync()
	}
}

// LoggerWithRun returns a logger carrying the identifiers of the run so that
// every line logged while the run executes can be correlated.
func LoggerWithRun(logger *slog.Logger, run *api.Run) *slog.Logger {
	enhanced := logger.With(constants.LOG_PROJECT, run.Project, constants.LOG_RUN_ID, run.ID, constants.LOG_SCENARIO_ID, run.ScenarioID)
	if run.EvalID != "" {
		enhanced = enhanced.With(constants.LOG_EVAL_ID, run.EvalID)
	}
	if run.ConnectorID != "" {
		enhanced = enhanced.With(constants.LOG_CONNECTOR_ID, run.ConnectorID)
	}
	if run.PersonaID != "" {
		enhanced = enhanced.With(constants.LOG_PERSONA_ID, run.PersonaID)
	}
	return enhanced
}

// SkipCallersForInfo logs a message at the given level with the given args, skipping the given number of callers
// the caller is the function that called this function plus one, i.e the function that called one of the Log* functions
func SkipCallersForInfo(ctx context.Context, logger *slog.Logger, level slog.Level, skip int, msg string, args ...any) {
	if !logger.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = logger.Handler().Handle(ctx, r)
}

func LogRequestStarted(ctx *executioncontext.ExecutionContext) {
	SkipCallersForInfo(ctx.Ctx, ctx.Logger, slog.LevelInfo, 3, "Request started")
}

func LogRequestFailed(ctx *executioncontext.ExecutionContext, code int, errorMessage string) {
	// log the failed request, the request details and requestId have already been added to the logger
	SkipCallersForInfo(ctx.Ctx, ctx.Logger, slog.LevelInfo, 3, "Request failed", "error", errorMessage, "code", code)
}

func LogRequestSuccess(ctx *executioncontext.ExecutionContext, code int) {
	// the response can contain whole transcripts so only the code is logged
	SkipCallersForInfo(ctx.Ctx, ctx.Logger, slog.LevelInfo, 3, "Request successful", "code", code)
}
