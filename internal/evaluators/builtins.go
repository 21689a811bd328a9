package evaluators

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/xeipuuv/gojsonschema"
)

const (
	TYPE_CONTAINS        = "contains"
	TYPE_NOT_CONTAINS    = "not_contains"
	TYPE_REGEX           = "regex"
	TYPE_JSON_SCHEMA     = "json_schema"
	TYPE_JSON_PATH       = "json_path"
	TYPE_TOOL_CALLED     = "tool_called"
	TYPE_MAX_LATENCY     = "max_latency"
	TYPE_LATENCY         = "latency"
	TYPE_RESPONSE_LENGTH = "response_length"
	TYPE_TOKEN_USAGE     = "token_usage"
)

const textConfigSchema = `{
	"type": "object",
	"required": ["value"],
	"properties": {
		"value": {"type": "string", "minLength": 1},
		"case_sensitive": {"type": "boolean"}
	}
}`

func builtins() []*Definition {
	return []*Definition{
		{
			Type:         TYPE_CONTAINS,
			Label:        "Response contains text",
			Kind:         KindAssertion,
			ConfigSchema: textConfigSchema,
			Evaluator:    EvaluatorFunc(containsEvaluator(true)),
		},
		{
			Type:         TYPE_NOT_CONTAINS,
			Label:        "Response does not contain text",
			Kind:         KindAssertion,
			ConfigSchema: textConfigSchema,
			Evaluator:    EvaluatorFunc(containsEvaluator(false)),
		},
		{
			Type:  TYPE_REGEX,
			Label: "Response matches a regular expression",
			Kind:  KindAssertion,
			ConfigSchema: `{
				"type": "object",
				"required": ["pattern"],
				"properties": {"pattern": {"type": "string", "minLength": 1}}
			}`,
			Evaluator: EvaluatorFunc(regexEvaluator),
		},
		{
			Type:  TYPE_JSON_SCHEMA,
			Label: "Response is JSON matching a schema",
			Kind:  KindAssertion,
			ConfigSchema: `{
				"type": "object",
				"required": ["schema"],
				"properties": {"schema": {"type": "object"}}
			}`,
			Evaluator: EvaluatorFunc(jsonSchemaEvaluator),
		},
		{
			Type:  TYPE_JSON_PATH,
			Label: "Response JSON has a value at a path",
			Kind:  KindAssertion,
			ConfigSchema: `{
				"type": "object",
				"required": ["path"],
				"properties": {"path": {"type": "string", "pattern": "^\\$"}, "expected": {}}
			}`,
			Evaluator: EvaluatorFunc(jsonPathEvaluator),
		},
		{
			Type:  TYPE_TOOL_CALLED,
			Label: "Agent called a tool",
			Kind:  KindAssertion,
			ConfigSchema: `{
				"type": "object",
				"required": ["name"],
				"properties": {"name": {"type": "string", "minLength": 1}}
			}`,
			Evaluator: EvaluatorFunc(toolCalledEvaluator),
		},
		{
			Type:  TYPE_MAX_LATENCY,
			Label: "Agent answered within a time limit",
			Kind:  KindAssertion,
			ConfigSchema: `{
				"type": "object",
				"required": ["max_ms"],
				"properties": {"max_ms": {"type": "number", "minimum": 1}}
			}`,
			Evaluator: EvaluatorFunc(maxLatencyEvaluator),
		},
		{
			Type:      TYPE_LATENCY,
			Label:     "Response latency (ms)",
			Kind:      KindMetric,
			Auto:      true,
			Evaluator: EvaluatorFunc(latencyMetric),
		},
		{
			Type:      TYPE_RESPONSE_LENGTH,
			Label:     "Response length (characters)",
			Kind:      KindMetric,
			Evaluator: EvaluatorFunc(responseLengthMetric),
		},
		{
			Type:      TYPE_TOKEN_USAGE,
			Label:     "Tokens used by the agent",
			Kind:      KindMetric,
			Evaluator: EvaluatorFunc(tokenUsageMetric),
		},
	}
}

func pass(reason string) Result {
	return Result{Success: true, Value: floatPtr(1), Reason: reason}
}

func fail(reason string) Result {
	return Result{Success: false, Value: floatPtr(0), Reason: reason}
}

func floatPtr(v float64) *float64 {
	return &v
}

func configString(config map[string]any, key string) string {
	s, _ := config[key].(string)
	return s
}

func containsEvaluator(expected bool) func(context.Context, *Context) (Result, error) {
	return func(ctx context.Context, c *Context) (Result, error) {
		value := configString(c.Config, "value")
		content := c.LastAssistant()
		caseSensitive, _ := c.Config["case_sensitive"].(bool)
		found := strings.Contains(content, value)
		if !caseSensitive {
			found = strings.Contains(strings.ToLower(content), strings.ToLower(value))
		}
		switch {
		case found && expected:
			return pass(fmt.Sprintf("Response contains %q", value)), nil
		case !found && !expected:
			return pass(fmt.Sprintf("Response does not contain %q", value)), nil
		case expected:
			return fail(fmt.Sprintf("Response does not contain %q", value)), nil
		default:
			return fail(fmt.Sprintf("Response contains %q", value)), nil
		}
	}
}

func regexEvaluator(ctx context.Context, c *Context) (Result, error) {
	pattern := configString(c.Config, "pattern")
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Result{}, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if re.MatchString(c.LastAssistant()) {
		return pass(fmt.Sprintf("Response matches %s", pattern)), nil
	}
	return fail(fmt.Sprintf("Response does not match %s", pattern)), nil
}

func parseResponse(c *Context) (any, error) {
	var document any
	if err := json.Unmarshal([]byte(c.LastAssistant()), &document); err != nil {
		return nil, err
	}
	return document, nil
}

func jsonSchemaEvaluator(ctx context.Context, c *Context) (Result, error) {
	document, err := parseResponse(c)
	if err != nil {
		return fail("Response is not JSON: " + err.Error()), nil
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(c.Config["schema"]), gojsonschema.NewGoLoader(document))
	if err != nil {
		return Result{}, fmt.Errorf("invalid schema: %w", err)
	}
	if result.Valid() {
		return pass("Response matches the schema"), nil
	}
	reasons := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		reasons = append(reasons, e.String())
	}
	failed := fail("Response does not match the schema: " + strings.Join(reasons, "; "))
	failed.Metadata = map[string]any{"errors": reasons}
	return failed, nil
}

func jsonPathEvaluator(ctx context.Context, c *Context) (Result, error) {
	document, err := parseResponse(c)
	if err != nil {
		return fail("Response is not JSON: " + err.Error()), nil
	}
	path := configString(c.Config, "path")
	value, err := jsonpath.Get(path, document)
	if err != nil {
		return fail(fmt.Sprintf("No value at %s", path)), nil
	}
	expected, hasExpected := c.Config["expected"]
	if !hasExpected {
		return pass(fmt.Sprintf("Value found at %s", path)), nil
	}
	if equalJSON(value, expected) {
		return pass(fmt.Sprintf("Value at %s is %v", path, expected)), nil
	}
	result := fail(fmt.Sprintf("Value at %s is %v, expected %v", path, value, expected))
	result.Metadata = map[string]any{"actual": value}
	return result, nil
}

// equalJSON compares two values the way they would compare once encoded as JSON
func equalJSON(a any, b any) bool {
	normalise := func(v any) any {
		bytes, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var out any
		if err := json.Unmarshal(bytes, &out); err != nil {
			return v
		}
		return out
	}
	return reflect.DeepEqual(normalise(a), normalise(b))
}

func toolCalledEvaluator(ctx context.Context, c *Context) (Result, error) {
	name := configString(c.Config, "name")
	for _, m := range c.Turn {
		for _, call := range m.ToolCalls {
			if call.Name == name {
				return pass(fmt.Sprintf("Tool %s was called", name)), nil
			}
		}
	}
	return fail(fmt.Sprintf("Tool %s was not called", name)), nil
}

func maxLatencyEvaluator(ctx context.Context, c *Context) (Result, error) {
	maxMs, _ := c.Config["max_ms"].(float64)
	if maxMs == 0 {
		if i, ok := c.Config["max_ms"].(int); ok {
			maxMs = float64(i)
		}
	}
	if float64(c.LatencyMs) <= maxMs {
		return pass(fmt.Sprintf("Latency %dms is within %.0fms", c.LatencyMs, maxMs)), nil
	}
	return fail(fmt.Sprintf("Latency %dms exceeds %.0fms", c.LatencyMs, maxMs)), nil
}

func latencyMetric(ctx context.Context, c *Context) (Result, error) {
	return Result{Value: floatPtr(float64(c.LatencyMs))}, nil
}

func responseLengthMetric(ctx context.Context, c *Context) (Result, error) {
	return Result{Value: floatPtr(float64(len([]rune(c.LastAssistant()))))}, nil
}

func tokenUsageMetric(ctx context.Context, c *Context) (Result, error) {
	if c.TokenUsage == nil {
		return Result{Reason: "The connector did not report token usage"}, nil
	}
	return Result{Value: floatPtr(float64(c.TokenUsage.TotalTokens))}, nil
}
