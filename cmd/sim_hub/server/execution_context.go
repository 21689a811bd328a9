package server

import (
	"net/http"
	"time"

	"github.com/eval-hub/sim-hub/internal/executioncontext"
)

// requestTimeout bounds the handlers, the runs themselves execute in the scheduler
const requestTimeout = 60 * time.Second

// newExecutionContext creates the ExecutionContext of a request. It is called at the
// route level before invoking the handlers. The logger carries the request fields
// (see loggerWithRequest) so that every line logged by a handler can be correlated.
func (s *Server) newExecutionContext(r *http.Request) *executioncontext.ExecutionContext {
	requestID, enhancedLogger := s.loggerWithRequest(r)

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	baseURL := scheme + "://" + r.Host

	return executioncontext.NewExecutionContext(
		r.Context(),
		requestID,
		enhancedLogger,
		requestTimeout,
		baseURL,
	)
}
