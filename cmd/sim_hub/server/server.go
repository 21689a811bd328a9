package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/config"
	"github.com/eval-hub/sim-hub/internal/connectors"
	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/eval-hub/sim-hub/internal/evaluators"
	"github.com/eval-hub/sim-hub/internal/executioncontext"
	"github.com/eval-hub/sim-hub/internal/handlers"
	"github.com/eval-hub/sim-hub/internal/http_wrappers"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/runs"
)

type Server struct {
	httpServer    *http.Server
	port          int
	logger        *slog.Logger
	serviceConfig *config.Config
	storage       abstractions.Storage
	validate      *validator.Validate
	invoker       *connectors.Invoker
	scheduler     handlers.Scheduler
}

// ServerClosedError is returned by Start when the server was shut down
type ServerClosedError struct{}

func (e *ServerClosedError) Error() string {
	return "server closed"
}

func (e *ServerClosedError) Is(target error) bool {
	_, ok := target.(*ServerClosedError)
	return ok
}

// NewServer creates a new HTTP server instance with the provided logger and configuration.
// The server uses standard library net/http.ServeMux for routing without a web framework.
//
// The server implements the routing pattern where:
//   - every handler receives *ExecutionContext, RequestWrapper, ResponseWrapper
//   - ExecutionContext is created at the route level before calling handlers
//   - Routes manually switch on HTTP method in handler functions
//
// All routes are wrapped with Prometheus metrics middleware for request duration and
// status code tracking, and with the OpenTelemetry handler for tracing.
//
// The scheduler is optional, it is only used to report the number of active runs.
func NewServer(logger *slog.Logger,
	serviceConfig *config.Config,
	storage abstractions.Storage,
	validate *validator.Validate,
	invoker *connectors.Invoker,
	scheduler handlers.Scheduler) (*Server, error) {

	if logger == nil {
		return nil, fmt.Errorf("logger is required for the server")
	}
	if (serviceConfig == nil) || (serviceConfig.Service == nil) {
		return nil, fmt.Errorf("service config is required for the server")
	}
	if storage == nil {
		return nil, fmt.Errorf("storage is required for the server")
	}
	if validate == nil {
		return nil, fmt.Errorf("validator is required for the server")
	}
	if invoker == nil {
		return nil, fmt.Errorf("connector invoker is required for the server")
	}

	return &Server{
		port:          serviceConfig.Service.Port,
		logger:        logger,
		serviceConfig: serviceConfig,
		storage:       storage,
		validate:      validate,
		invoker:       invoker,
		scheduler:     scheduler,
	}, nil
}

func (s *Server) GetPort() int {
	return s.port
}

// loggerWithRequest enhances a logger with request-specific fields for distributed
// tracing and structured logging. This function is called when creating an ExecutionContext
// to automatically enrich all log entries for a given HTTP request with consistent metadata.
//
// The request_id is taken from the X-Global-Transaction-Id header, or generated when missing.
// method, uri, user_agent, remote_addr, remote_user and referer are added when available.
func (s *Server) loggerWithRequest(r *http.Request) (string, *slog.Logger) {
	requestID := r.Header.Get("X-Global-Transaction-Id")
	if requestID == "" {
		requestID = uuid.New().String() // generate a UUID if not present
	}

	enhancedLogger := s.logger.With(constants.LOG_REQUEST_ID, requestID)

	if r.Method != "" {
		enhancedLogger = enhancedLogger.With(constants.LOG_METHOD, r.Method)
	}

	uri := ""
	if r.URL != nil {
		uri = r.URL.Path
	}
	if uri == "" {
		uri = r.RequestURI
	}
	if uri != "" {
		enhancedLogger = enhancedLogger.With(constants.LOG_URI, uri)
	}

	if userAgent := r.Header.Get("User-Agent"); userAgent != "" {
		enhancedLogger = enhancedLogger.With(constants.LOG_USER_AGENT, userAgent)
	}

	if r.RemoteAddr != "" {
		enhancedLogger = enhancedLogger.With(constants.LOG_REMOTE_ADR, r.RemoteAddr)
	}

	// remote_user comes from the URL user info or the Remote-User header
	remoteUser := ""
	if r.URL != nil && r.URL.User != nil {
		remoteUser = r.URL.User.Username()
	}
	if remoteUser == "" {
		remoteUser = r.Header.Get("Remote-User")
	}
	if remoteUser != "" {
		enhancedLogger = enhancedLogger.With(constants.LOG_USER, remoteUser)
	}

	if referer := r.Header.Get("Referer"); referer != "" {
		enhancedLogger = enhancedLogger.With(constants.LOG_REFERER, referer)
	}

	return requestID, enhancedLogger
}

type handlerFunc func(ctx *executioncontext.ExecutionContext, req http_wrappers.RequestWrapper, resp http_wrappers.ResponseWrapper)

// route registers a pattern that dispatches on the HTTP method, other methods are rejected
func (s *Server) route(router *http.ServeMux, pattern string, methods map[string]handlerFunc) {
	router.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx := s.newExecutionContext(r)
		resp := NewRespWrapper(w, ctx)
		req := NewRequestWrapper(r)
		handler, ok := methods[req.Method()]
		if !ok {
			resp.ErrorWithMessageCode(ctx.RequestID, messages.MethodNotAllowed, "Method", req.Method(), "Api", req.URI())
			return
		}
		handler(ctx, req, resp)
	})
}

func (s *Server) setupRoutes() (http.Handler, error) {
	router := http.NewServeMux()
	h := handlers.New(
		s.storage,
		s.validate,
		runs.NewService(s.storage, s.validate, s.logger),
		s.invoker,
		evaluators.NewRegistry(),
		s.scheduler,
		s.serviceConfig,
	)

	// Health and status endpoints
	s.route(router, "/api/v1/health", map[string]handlerFunc{
		http.MethodGet: h.HandleHealth,
	})
	s.route(router, "/api/v1/status", map[string]handlerFunc{
		http.MethodGet: h.HandleStatus,
	})
	s.route(router, "/api/v1/evaluators", map[string]handlerFunc{
		http.MethodGet: h.HandleListEvaluators,
	})

	// Run endpoints
	s.route(router, fmt.Sprintf("/api/v1/projects/{%s}/evals/{%s}/runs", constants.PATH_PARAMETER_PROJECT, constants.PATH_PARAMETER_EVAL_ID), map[string]handlerFunc{
		http.MethodPost: h.HandleCreateRunsFromEval,
	})
	s.route(router, fmt.Sprintf("/api/v1/projects/{%s}/runs", constants.PATH_PARAMETER_PROJECT), map[string]handlerFunc{
		http.MethodPost: h.HandleCreateRun,
		http.MethodGet:  h.HandleListRuns,
	})
	s.route(router, fmt.Sprintf("/api/v1/projects/{%s}/runs/{%s}", constants.PATH_PARAMETER_PROJECT, constants.PATH_PARAMETER_RUN_ID), map[string]handlerFunc{
		http.MethodGet:    h.HandleGetRun,
		http.MethodPatch:  h.HandlePatchRun,
		http.MethodDelete: h.HandleDeleteRun,
	})
	s.route(router, fmt.Sprintf("/api/v1/projects/{%s}/runs/{%s}/retry", constants.PATH_PARAMETER_PROJECT, constants.PATH_PARAMETER_RUN_ID), map[string]handlerFunc{
		http.MethodPost: h.HandleRetryRun,
	})

	// Record endpoints
	s.route(router, fmt.Sprintf("/api/v1/projects/{%s}/connectors/{%s}/test", constants.PATH_PARAMETER_PROJECT, constants.PATH_PARAMETER_RECORD_ID), map[string]handlerFunc{
		http.MethodPost: h.HandleTestConnector,
	})
	s.route(router, fmt.Sprintf("/api/v1/projects/{%s}/{%s}/{%s}", constants.PATH_PARAMETER_PROJECT, constants.PATH_PARAMETER_COLLECTION, constants.PATH_PARAMETER_RECORD_ID), map[string]handlerFunc{
		http.MethodGet: h.HandleGetRecord,
		http.MethodPut: h.HandlePutRecord,
	})

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Enable CORS in local mode only (for development/testing)
	handler := http.Handler(router)
	if s.serviceConfig.Service.LocalMode {
		handler = CorsMiddleware(handler)
	}

	// Wrap with metrics middleware (outermost for complete observability)
	handler = Middleware(handler)
	handler = otelhttp.NewHandler(handler, constants.SERVICE_NAME)

	return handler, nil
}

// SetupRoutes exposes the route setup for testing
func (s *Server) SetupRoutes() (http.Handler, error) {
	return s.setupRoutes()
}

func (s *Server) Start() error {
	handler, err := s.setupRoutes()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Writing the server ready message", "file", s.serviceConfig.Service.ReadyFile)
	if err := SetReady(s.serviceConfig, s.logger); err != nil {
		return err
	}

	s.logger.Info("Server starting", "port", s.port)
	err = s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return &ServerClosedError{}
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down server gracefully...")
	return s.httpServer.Shutdown(ctx)
}
