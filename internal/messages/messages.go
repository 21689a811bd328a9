package messages

import (
	"fmt"
	"net/http"
	"strings"
)

// This package provides all the error messages that should be reported to the user.
// Note that we add a comment with the message parameters so that it is possible
// to see the parameters in the IDE when creating an error message.
var (
	// API errors that are not storage specific

	// MissingPathParameter The path parameter '{{.ParameterName}}' is required.
	MissingPathParameter = createMessage(
		http.StatusNotFound,
		"The path parameter '{{.ParameterName}}' is required.",
	)

	// ResourceNotFound The {{.Type}} resource {{.ResourceId}} was not found.
	ResourceNotFound = createMessage(
		http.StatusNotFound,
		"The {{.Type}} resource {{.ResourceId}} was not found.",
	)

	// QueryParameterInvalid The query parameter '{{.ParameterName}}' is not a valid {{.Type}}: '{{.Value}}'.
	QueryParameterInvalid = createMessage(
		http.StatusBadRequest,
		"The query parameter '{{.ParameterName}}' is not a valid {{.Type}}: '{{.Value}}'.",
	)

	// InvalidJSONRequest The request JSON is invalid: '{{.Error}}'. Please check the request and try again.
	InvalidJSONRequest = createMessage(
		http.StatusBadRequest,
		"The request JSON is invalid: '{{.Error}}'. Please check the request and try again.",
	)

	// RequestValidationFailed The request validation failed: '{{.Error}}'. Please check the request and try again.
	RequestValidationFailed = createMessage(
		http.StatusBadRequest,
		"The request validation failed: '{{.Error}}'. Please check the request and try again.",
	)

	// UnknownCollection The collection '{{.Collection}}' is not known.
	UnknownCollection = createMessage(
		http.StatusNotFound,
		"The collection '{{.Collection}}' is not known.",
	)

	// Run related errors

	// RunNotRetryable The run {{.ResourceId}} can not be retried from status '{{.Status}}'.
	RunNotRetryable = createMessage(
		http.StatusConflict,
		"The run {{.ResourceId}} can not be retried from status '{{.Status}}'.",
	)

	// InvalidRunPatch The update for the run {{.ResourceId}} is invalid: '{{.Error}}'.
	InvalidRunPatch = createMessage(
		http.StatusBadRequest,
		"The update for the run {{.ResourceId}} is invalid: '{{.Error}}'.",
	)

	// InvalidStatusTransition The run {{.ResourceId}} can not move from '{{.From}}' to '{{.To}}'.
	InvalidStatusTransition = createMessage(
		http.StatusConflict,
		"The run {{.ResourceId}} can not move from '{{.From}}' to '{{.To}}'.",
	)

	// EvalHasNoScenarios The eval {{.ResourceId}} does not reference any scenario.
	EvalHasNoScenarios = createMessage(
		http.StatusBadRequest,
		"The eval {{.ResourceId}} does not reference any scenario.",
	)

	// Run configuration errors, these end a run in the error status

	// ConnectorTypeUnknown The connector type '{{.Type}}' is not supported.
	ConnectorTypeUnknown = createMessage(
		http.StatusBadRequest,
		"The connector type '{{.Type}}' is not supported.",
	)

	// RunConnectorMissing The run {{.ResourceId}} does not resolve a connector.
	RunConnectorMissing = createMessage(
		http.StatusBadRequest,
		"The run {{.ResourceId}} does not resolve a connector.",
	)

	// ScenarioHasNoCriteria The scenario {{.ResourceId}} defines neither criteria nor evaluators.
	ScenarioHasNoCriteria = createMessage(
		http.StatusBadRequest,
		"The scenario {{.ResourceId}} defines neither criteria nor evaluators.",
	)

	// EvaluatorConfigInvalid The configuration of the evaluator '{{.Type}}' is invalid: '{{.Error}}'.
	EvaluatorConfigInvalid = createMessage(
		http.StatusBadRequest,
		"The configuration of the evaluator '{{.Type}}' is invalid: '{{.Error}}'.",
	)

	// EvaluatorTypeUnknown The evaluator type '{{.Type}}' is not registered.
	EvaluatorTypeUnknown = createMessage(
		http.StatusBadRequest,
		"The evaluator type '{{.Type}}' is not registered.",
	)

	// LLMProviderMissing No LLM provider is configured for the project '{{.Project}}'.
	LLMProviderMissing = createMessage(
		http.StatusInternalServerError,
		"No LLM provider is configured for the project '{{.Project}}'.",
	)

	// Configurastion related errors

	// ConfigurationFailed The service startup failed: '{{.Error}}'.
	ConfigurationFailed = createMessage(
		http.StatusInternalServerError,
		"The service startup failed: '{{.Error}}'.",
	)

	// JSON errors that are not coming from user input

	// JSONUnmarshalFailed The JSON unmarshalling failed for the {{.Type}}: '{{.Error}}'.
	JSONUnmarshalFailed = createMessage(
		http.StatusInternalServerError,
		"The JSON unmarshalling failed for the {{.Type}}: '{{.Error}}'.",
	)

	// Storage related errors

	// DatabaseOperationFailed The request for the {{.Type}} resource {{.ResourceId}} failed: '{{.Error}}'.
	DatabaseOperationFailed = createMessage(
		http.StatusInternalServerError,
		"The request for the {{.Type}} resource {{.ResourceId}} failed: '{{.Error}}'.",
	)
	// QueryFailed The request for the {{.Type}} failed: '{{.Error}}'.
	QueryFailed = createMessage(
		http.StatusInternalServerError,
		"The request for the {{.Type}} failed: '{{.Error}}'.",
	)
	// UnsupportedDriver The database driver '{{.Driver}}' is not supported.
	UnsupportedDriver = createMessage(
		http.StatusInternalServerError,
		"The database driver '{{.Driver}}' is not supported.",
	)

	// InternalServerError An internal server error occurred: '{{.Error}}'.
	InternalServerError = createMessage(
		http.StatusInternalServerError,
		"An internal server error occurred: '{{.Error}}'.",
	)

	// MethodNotAllowed The HTTP method {{.Method}} is not allowed for the API {{.Api}}.
	MethodNotAllowed = createMessage(
		http.StatusMethodNotAllowed,
		"The HTTP method {{.Method}} is not allowed for the API {{.Api}}.",
	)

	// UnknownError An unknown error occurred: '{{.Error}}'. This is a fallback error if the error is not a service error.
	UnknownError = createMessage(
		http.StatusInternalServerError,
		"An unknown error occurred: {{.Error}}.",
	)
)

type MessageCode struct {
	status int
	one    string
}

func (m *MessageCode) GetCode() int {
	return m.status
}

func (m *MessageCode) GetMessage() string {
	return m.one
}

func createMessage(status int, one string) *MessageCode {
	return &MessageCode{
		status,
		one,
	}
}

func GetErrorMessage(messageCode *MessageCode, messageParams ...any) string {
	msg := messageCode.GetMessage()
	for i := 0; i < len(messageParams); i += 2 {
		param := messageParams[i]
		var paramValue any
		if i+1 < len(messageParams) {
			paramValue = messageParams[i+1]
		} else {
			paramValue = "NOT_DEFINED" // this is a placeholder for a missing parameter value - if you see this value then the code needs to be fixed
		}
		msg = strings.ReplaceAll(msg, fmt.Sprintf("{{.%v}}", param), fmt.Sprintf("%v", paramValue))
	}
	return msg
}
