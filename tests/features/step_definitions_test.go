package features

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/cucumber/godog"
	"github.com/google/uuid"

	"github.com/eval-hub/sim-hub/cmd/sim_hub/server"
	"github.com/eval-hub/sim-hub/internal/config"
	"github.com/eval-hub/sim-hub/internal/connectors"
	"github.com/eval-hub/sim-hub/internal/llm"
	"github.com/eval-hub/sim-hub/internal/logging"
	"github.com/eval-hub/sim-hub/internal/runtimes"
	"github.com/eval-hub/sim-hub/internal/scheduler"
	"github.com/eval-hub/sim-hub/internal/storage"
	"github.com/eval-hub/sim-hub/internal/validation"
	simapi "github.com/eval-hub/sim-hub/pkg/api"
)

var (
	// api is shared by all the scenarios of the suite
	api *apiFeature
)

type apiFeature struct {
	baseURL *url.URL
	client  *http.Client

	// only set when the server runs in process
	httpServer *httptest.Server
	scheduler  *scheduler.Scheduler
	tempDir    string

	// the agent under test and the chat completion service
	agent *httptest.Server
	llm   *httptest.Server
}

// this is used for a scenario to ensure that scenarios do not overwrite
// data from other scenarios
type scenarioConfig struct {
	scenarioName string
	apiFeature   *apiFeature
	response     *http.Response
	body         []byte

	// every scenario works in its own project
	project string
	lastId  string
}

func logDebug(format string, a ...any) {
	fmt.Printf(format, a...)
}

// newAgent serves the agents under test, the first path segment selects the behaviour
func newAgent() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch strings.Trim(r.URL.Path, "/") {
		case "greeting":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"message":{"content":"Hello! How can I help you today?"},"usage":{"prompt_tokens":12,"completion_tokens":9}}`))
		case "echo":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"content":"pong"}`))
		case "broken":
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
}

// newLLM is an OpenAI compatible chat completion service. As a judge it considers the
// criteria met when the agent said hello, as a persona it always asks about an order.
func newLLM() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		request := struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}{}
		_ = json.Unmarshal(body, &request)
		prompt := ""
		for _, m := range request.Messages {
			prompt += m.Content + "\n"
		}
		reply := "Hi, I need help with my order."
		if strings.Contains(prompt, "impartial judge") {
			met := strings.Contains(prompt, "Hello!")
			reply = fmt.Sprintf(`{"successMet": %t, "failureMet": false, "confidence": 0.9, "reasoning": "checked the greeting"}`, met)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-fvt",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   request.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	}))
}

func createApiFeature() (*apiFeature, error) {
	a := &apiFeature{
		client: &http.Client{Timeout: 10 * time.Second},
		agent:  newAgent(),
		llm:    newLLM(),
	}

	if serverURL := os.Getenv("SERVER_URL"); serverURL != "" {
		uri, err := url.Parse(serverURL)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_URL: %w", err)
		}
		a.baseURL = uri
		return a, nil
	}

	if err := a.startLocalServer(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *apiFeature) startLocalServer() error {
	logger := logging.FallbackLogger()
	validate, err := validation.NewValidator()
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}
	serviceConfig, err := config.LoadConfig(logger, "0.0.1", "local", time.Now().Format(time.RFC3339), "..")
	if err != nil {
		return fmt.Errorf("failed to load service config: %w", err)
	}
	a.tempDir, err = os.MkdirTemp("", "sim-hub-fvt")
	if err != nil {
		return err
	}
	(*serviceConfig.Database)["url"] = "file:" + filepath.Join(a.tempDir, "fvt.db")
	serviceConfig.Service.ReadyFile = filepath.Join(a.tempDir, "ready")

	store, err := storage.NewStorage(serviceConfig.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	logger.Info("Storage created.")

	resolver := llm.NewResolver(&simapi.LLMProvider{ProviderID: "fvt", BaseURL: a.llm.URL, Model: "fvt-model"}, nil, logger)
	runtime, err := runtimes.NewRuntime(logger, serviceConfig, resolver)
	if err != nil {
		return fmt.Errorf("failed to create runtime: %w", err)
	}
	invoker, err := connectors.NewInvoker(connectors.NewRegistry(), serviceConfig.Connectors, logger)
	if err != nil {
		return fmt.Errorf("failed to create invoker: %w", err)
	}
	// the scenarios drive the scheduler themselves
	a.scheduler = scheduler.New(store, runtime, serviceConfig.Scheduler, logger)

	srv, err := server.NewServer(logger, serviceConfig, store, validate, invoker, a.scheduler)
	if err != nil {
		return err
	}
	handler, err := srv.SetupRoutes()
	if err != nil {
		return err
	}
	a.httpServer = httptest.NewServer(handler)
	a.baseURL, err = url.Parse(a.httpServer.URL)
	return err
}

func (a *apiFeature) cleanup() {
	if a.httpServer != nil {
		a.httpServer.Close()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	a.agent.Close()
	a.llm.Close()
	if a.tempDir != "" {
		_ = os.RemoveAll(a.tempDir)
	}
}

func (tc *scenarioConfig) theServiceIsRunning(ctx context.Context) error {
	return tc.checkHealthEndpoint()
}

func (tc *scenarioConfig) checkHealthEndpoint() error {
	if err := tc.iSendARequestTo("GET", "/api/v1/health"); err != nil {
		return fmt.Errorf("failed to send health check request: %w for URL %s", err, tc.apiFeature.baseURL.String())
	}
	if tc.response.StatusCode != 200 {
		return fmt.Errorf("expected status 200, got %d", tc.response.StatusCode)
	}
	match := "\"status\":\"healthy\""
	if !strings.Contains(string(tc.body), match) {
		return fmt.Errorf("expected body to contain %s, got %s", match, string(tc.body))
	}
	return nil
}

// expand replaces the placeholders of the feature files
func (tc *scenarioConfig) expand(s string) (string, error) {
	if strings.Contains(s, "{id}") {
		if tc.lastId == "" {
			return "", fmt.Errorf("last ID is not set")
		}
		s = strings.ReplaceAll(s, "{id}", tc.lastId)
	}
	s = strings.ReplaceAll(s, "{project}", tc.project)
	s = strings.ReplaceAll(s, "{agent_url}", tc.apiFeature.agent.URL)
	return s, nil
}

func (tc *scenarioConfig) iSendARequestTo(method, path string) error {
	return tc.send(method, path, "")
}

func (tc *scenarioConfig) iSendARequestToWithBody(method, path string, body *godog.DocString) error {
	return tc.send(method, path, body.Content)
}

func (tc *scenarioConfig) send(method, path, body string) error {
	path, err := tc.expand(path)
	if err != nil {
		return err
	}
	body, err = tc.expand(body)
	if err != nil {
		return err
	}

	var entity io.Reader
	if body != "" {
		entity = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, tc.apiFeature.baseURL.String()+path, entity)
	if err != nil {
		return err
	}
	req.Header.Set("X-Global-Transaction-Id", "fvt-"+tc.project)

	tc.response, err = tc.apiFeature.client.Do(req)
	if err != nil {
		return err
	}
	defer tc.response.Body.Close()
	tc.body, err = io.ReadAll(tc.response.Body)
	if err != nil {
		return err
	}

	// remember the run created by the request
	if method == http.MethodPost && tc.response.StatusCode == http.StatusAccepted {
		container, err := gabs.ParseJSON(tc.body)
		if err != nil {
			return err
		}
		if id, ok := container.Path("id").Data().(string); ok {
			tc.lastId = id
		} else if id, ok := container.Path("runs.0.id").Data().(string); ok {
			tc.lastId = id
		}
		logDebug("Created run %s\n", tc.lastId)
	}
	return nil
}

func (tc *scenarioConfig) theQueuedRunsAreProcessed(ctx context.Context) error {
	for range 20 {
		if tc.apiFeature.scheduler != nil {
			if _, err := tc.apiFeature.scheduler.ProcessOnce(ctx); err != nil {
				return err
			}
		} else {
			// a remote server executes the runs with its own scheduler
			time.Sleep(500 * time.Millisecond)
		}
		if err := tc.iSendARequestTo(http.MethodGet, "/api/v1/projects/{project}/runs/{id}"); err != nil {
			return err
		}
		run := simapi.Run{}
		if err := json.Unmarshal(tc.body, &run); err != nil {
			return fmt.Errorf("invalid run %s: %w", string(tc.body), err)
		}
		if run.Status == simapi.RunStatusCompleted || run.Status == simapi.RunStatusError {
			return nil
		}
	}
	return fmt.Errorf("run %s did not reach a terminal status", tc.lastId)
}

func (tc *scenarioConfig) theResponseStatusShouldBe(status int) error {
	if tc.response.StatusCode != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, tc.response.StatusCode, string(tc.body))
	}
	return nil
}

func (tc *scenarioConfig) theResponseShouldBeJSON() error {
	contentType := tc.response.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return fmt.Errorf("expected JSON content type, got %s", contentType)
	}
	var js any
	if err := json.Unmarshal(tc.body, &js); err != nil {
		return fmt.Errorf("response is not valid JSON: %v", err)
	}
	return nil
}

// the keys are dotted paths into the response, for example "result.success"
func (tc *scenarioConfig) theResponseShouldContainWithValue(key, value string) error {
	container, err := gabs.ParseJSON(tc.body)
	if err != nil {
		return err
	}
	if !container.ExistsP(key) {
		return fmt.Errorf("response does not contain key %s: %s", key, string(tc.body))
	}
	if actual := fmt.Sprintf("%v", container.Path(key).Data()); actual != value {
		return fmt.Errorf("expected %s to be %s, got %s", key, value, actual)
	}
	return nil
}

func (tc *scenarioConfig) theResponseShouldContain(key string) error {
	container, err := gabs.ParseJSON(tc.body)
	if err != nil {
		return err
	}
	if !container.ExistsP(key) {
		return fmt.Errorf("response does not contain key %s: %s", key, string(tc.body))
	}
	return nil
}

func (tc *scenarioConfig) theResponseFieldShouldContainText(key, text string) error {
	container, err := gabs.ParseJSON(tc.body)
	if err != nil {
		return err
	}
	actual, _ := container.Path(key).Data().(string)
	if !strings.Contains(actual, text) {
		return fmt.Errorf("expected %s to contain %q, got %q", key, text, actual)
	}
	return nil
}

func (tc *scenarioConfig) theResponseShouldContainPrometheusMetrics() error {
	bodyStr := string(tc.body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		return fmt.Errorf("response does not appear to be Prometheus metrics format")
	}
	return nil
}

func (tc *scenarioConfig) theMetricsShouldInclude(metricName string) error {
	if !strings.Contains(string(tc.body), metricName) {
		return fmt.Errorf("metrics do not include %s", metricName)
	}
	return nil
}

func (tc *scenarioConfig) saveScenarioName(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
	tc.scenarioName = sc.Name
	return ctx, nil
}

func createScenarioConfig(apiConfig *apiFeature) *scenarioConfig {
	return &scenarioConfig{
		apiFeature: apiConfig,
		project:    "fvt-" + uuid.New().String()[:8],
	}
}

func setUpTestConf() {
	apiFeature, err := createApiFeature()
	if err != nil {
		panic(fmt.Errorf("failed to create API feature: %v", err))
	}
	api = apiFeature
}

func waitForService() {
	tc := createScenarioConfig(api)
	for range 10 {
		if err := tc.checkHealthEndpoint(); err != nil {
			logDebug("Error checking health endpoint: %v\n", err.Error())
			time.Sleep(1 * time.Second)
		} else {
			return
		}
	}
	panic("Stopped API Tests. Service is not ready for testing.\n")
}

func tidyUpTests() {
	if api != nil {
		api.cleanup()
	}
}

func InitializeTestSuite(ctx *godog.TestSuiteContext) {
	http.DefaultTransport.(*http.Transport).TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
		//nolint:gosec
		InsecureSkipVerify: true,
	}

	ctx.BeforeSuite(setUpTestConf)
	ctx.BeforeSuite(waitForService)
	ctx.AfterSuite(tidyUpTests)
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := createScenarioConfig(api)

	ctx.Before(tc.saveScenarioName)

	ctx.Step(`^the service is running$`, tc.theServiceIsRunning)
	ctx.Step(`^I send a (GET|DELETE|POST) request to "([^"]*)"$`, tc.iSendARequestTo)
	ctx.Step(`^I send a (POST|PUT|PATCH) request to "([^"]*)" with body:$`, tc.iSendARequestToWithBody)
	ctx.Step(`^the queued runs are processed$`, tc.theQueuedRunsAreProcessed)
	ctx.Step(`^the response code should be (\d+)$`, tc.theResponseStatusShouldBe)
	ctx.Step(`^the response should be JSON$`, tc.theResponseShouldBeJSON)
	ctx.Step(`^the response should contain "([^"]*)" with value "([^"]*)"$`, tc.theResponseShouldContainWithValue)
	ctx.Step(`^the response should contain "([^"]*)"$`, tc.theResponseShouldContain)
	ctx.Step(`^the response field "([^"]*)" should contain "([^"]*)"$`, tc.theResponseFieldShouldContainText)
	ctx.Step(`^the response should contain Prometheus metrics$`, tc.theResponseShouldContainPrometheusMetrics)
	ctx.Step(`^the metrics should include "([^"]*)"$`, tc.theMetricsShouldInclude)
}
