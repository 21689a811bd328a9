package connectors

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/eval-hub/sim-hub/internal/config"
	"github.com/eval-hub/sim-hub/internal/ids"
	"github.com/eval-hub/sim-hub/internal/metrics"
	"github.com/eval-hub/sim-hub/pkg/api"
)

const noResponseMessages = "No response messages from connector"

// InvokeResult is always returned by Invoke, failures are reported in Error
type InvokeResult struct {
	Success    bool
	Messages   []api.Message
	ThreadID   string
	TokenUsage *api.TokenUsage
	Metadata   map[string]any
	LatencyMs  int64
	StatusCode int
	Error      string
}

// TestResult is the outcome of a connectivity test of a connector
type TestResult struct {
	Success   bool   `json:"success"`
	Response  string `json:"response,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Invoker executes the requests built by the strategies against the agents under test
type Invoker struct {
	registry        *Registry
	httpClient      *http.Client
	maxErrorSnippet int
	logger          *slog.Logger
}

// NewInvoker creates the invoker with a traced HTTP client configured from the connectors section
func NewInvoker(registry *Registry, connectorsConfig *config.ConnectorsConfig, logger *slog.Logger) (*Invoker, error) {
	if connectorsConfig == nil {
		connectorsConfig = &config.ConnectorsConfig{}
	}
	timeout := connectorsConfig.HTTPTimeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	maxErrorSnippet := connectorsConfig.MaxErrorSnippet
	if maxErrorSnippet <= 0 {
		maxErrorSnippet = config.DefaultMaxErrorSnippet
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if connectorsConfig.CACertPath != "" || connectorsConfig.InsecureSkipVerify {
		tlsConfig := &tls.Config{InsecureSkipVerify: connectorsConfig.InsecureSkipVerify} // #nosec G402 -- opt-in for test agents
		if connectorsConfig.CACertPath != "" {
			caCert, err := os.ReadFile(connectorsConfig.CACertPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read the connectors CA certificate: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("no certificates found in %s", connectorsConfig.CACertPath)
			}
			tlsConfig.RootCAs = pool
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Invoker{
		registry: registry,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		maxErrorSnippet: maxErrorSnippet,
		logger:          logger,
	}, nil
}

func (i *Invoker) WithLogger(logger *slog.Logger) *Invoker {
	return &Invoker{
		registry:        i.registry,
		httpClient:      i.httpClient,
		maxErrorSnippet: i.maxErrorSnippet,
		logger:          logger,
	}
}

// Strategy returns the strategy registered for the connector type
func (i *Invoker) Strategy(connectorType string) (Strategy, error) {
	return i.registry.Get(connectorType)
}

// Invoke sends the conversation to the agent and returns the new messages. Persona headers
// override the connector headers.
func (i *Invoker) Invoke(ctx context.Context, connector *api.Connector, persona *api.Persona, invokeContext InvokeContext) InvokeResult {
	start := time.Now()
	result := i.invoke(ctx, connector, persona, invokeContext)
	result.LatencyMs = time.Since(start).Milliseconds()

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.ConnectorLatency.WithLabelValues(connector.Type, outcome).Observe(time.Since(start).Seconds())
	return result
}

func (i *Invoker) invoke(ctx context.Context, connector *api.Connector, persona *api.Persona, invokeContext InvokeContext) InvokeResult {
	strategy, err := i.registry.Get(connector.Type)
	if err != nil {
		return InvokeResult{Error: err.Error()}
	}
	spec, err := strategy.BuildInvokeRequest(connector, invokeContext)
	if err != nil {
		return InvokeResult{Error: err.Error()}
	}

	statusCode, body, err := i.doRequest(ctx, spec, mergeHeaders(connector, persona))
	if err != nil {
		return InvokeResult{StatusCode: statusCode, Error: err.Error()}
	}

	response, err := strategy.ParseInvokeResponse(body, invokeContext)
	if err != nil {
		i.logger.Info("Connector response could not be parsed", "connector_type", connector.Type, "error", err.Error())
		return InvokeResult{StatusCode: statusCode, Error: err.Error()}
	}
	if len(response.Messages) == 0 {
		return InvokeResult{StatusCode: statusCode, Error: noResponseMessages}
	}
	for idx := range response.Messages {
		if response.Messages[idx].ID == "" {
			response.Messages[idx].ID = ids.NewMessageID()
		}
	}
	return InvokeResult{
		Success:    true,
		Messages:   response.Messages,
		ThreadID:   response.ThreadID,
		TokenUsage: response.TokenUsage,
		Metadata:   response.Metadata,
		StatusCode: statusCode,
	}
}

// Test checks that the agent is reachable and returns a displayable answer
func (i *Invoker) Test(ctx context.Context, connector *api.Connector) TestResult {
	start := time.Now()
	strategy, err := i.registry.Get(connector.Type)
	if err != nil {
		return TestResult{Error: err.Error()}
	}
	spec, err := strategy.BuildTestRequest(connector)
	if err != nil {
		return TestResult{Error: err.Error()}
	}
	_, body, err := i.doRequest(ctx, spec, mergeHeaders(connector, nil))
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return TestResult{LatencyMs: latency, Error: err.Error()}
	}
	return TestResult{
		Success:   true,
		Response:  strategy.ParseTestResponse(body),
		LatencyMs: latency,
	}
}

// doRequest executes the request, a non 2xx status is returned as an error with a snippet of the body
func (i *Invoker) doRequest(ctx context.Context, spec *RequestSpec, headers map[string]string) (int, []byte, error) {
	i.logger.Debug("Connector request started", "method", spec.Method, "url", spec.URL)

	var reqBody io.Reader
	if spec.Body != nil {
		jsonData, err := json.Marshal(spec.Body)
		if err != nil {
			i.logger.Info("Connector request errored", "method", spec.Method, "url", spec.URL, "stage", "failed to marshal request body", "error", err.Error())
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, reqBody)
	if err != nil {
		i.logger.Info("Connector request errored", "method", spec.Method, "url", spec.URL, "stage", "failed to create request", "error", err.Error())
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if spec.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	for name, value := range spec.Headers {
		req.Header.Set(name, value)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		i.logger.Info("Connector request errored", "method", spec.Method, "url", spec.URL, "stage", "failed to execute request", "error", err.Error())
		return 0, nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		i.logger.Info("Connector request errored", "method", spec.Method, "url", spec.URL, "stage", "failed to read response body", "error", err.Error())
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := truncate(string(respBody), i.maxErrorSnippet)
		i.logger.Info("Connector request failed", "method", spec.Method, "url", spec.URL, "status", resp.StatusCode, "response", snippet)
		return resp.StatusCode, respBody, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet)
	}

	i.logger.Debug("Connector request successful", "method", spec.Method, "url", spec.URL, "status", resp.StatusCode)
	return resp.StatusCode, respBody, nil
}

func mergeHeaders(connector *api.Connector, persona *api.Persona) map[string]string {
	headers := map[string]string{}
	for name, value := range connector.Headers {
		headers[name] = value
	}
	if persona != nil {
		for name, value := range persona.Headers {
			headers[name] = value
		}
	}
	return headers
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
