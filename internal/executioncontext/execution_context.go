package executioncontext

import (
	"context"
	"log/slog"
	"time"
)

// ExecutionContext carries the request scoped state into the handlers.
// It is created by the server at the route level.
type ExecutionContext struct {
	Ctx       context.Context
	RequestID string
	Logger    *slog.Logger
	Timeout   time.Duration
	BaseURL   string
}

func NewExecutionContext(ctx context.Context, requestID string, logger *slog.Logger, timeout time.Duration, baseURL string) *ExecutionContext {
	return &ExecutionContext{
		Ctx:       ctx,
		RequestID: requestID,
		Logger:    logger,
		Timeout:   timeout,
		BaseURL:   baseURL,
	}
}
