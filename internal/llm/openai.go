package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/pkg/api"
)

const defaultModel = "gpt-4o-mini"

// OpenAIClient implements abstractions.LLM with the OpenAI Chat Completions API.
// The base URL can point at any OpenAI compatible provider.
type OpenAIClient struct {
	client     openai.Client
	model      string
	judgeModel string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewOpenAIClient creates a client for the provider. Calls are rate limited when the
// provider sets requests_per_second.
func NewOpenAIClient(provider api.LLMProvider, logger *slog.Logger) *OpenAIClient {
	model := provider.Model
	if model == "" {
		model = defaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(provider.APIKey),
		option.WithHTTPClient(&http.Client{
			Timeout:   120 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
		option.WithMaxRetries(2),
	}
	if provider.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(provider.BaseURL))
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if provider.RequestsPerSecond > 0 {
		burst := provider.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(provider.RequestsPerSecond), burst)
	}

	return &OpenAIClient{
		client:     openai.NewClient(opts...),
		model:      model,
		judgeModel: provider.JudgeModel,
		limiter:    limiter,
		logger:     logger.With("llm_provider", provider.ProviderID),
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []api.Message, options abstractions.CompletionOptions) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for the LLM rate limiter: %w", err)
	}

	model := options.Model
	if model == "" && options.Judging {
		model = c.judgeModel
	}
	if model == "" {
		model = c.model
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: convertMessages(messages),
	}
	if options.Temperature != nil {
		params.Temperature = openai.Float(*options.Temperature)
	}
	if options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(options.MaxTokens)
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		c.logger.Info("LLM request failed", "model", model, "error", err.Error())
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	c.logger.Debug("LLM request successful", "model", model, "duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

// convertMessages maps the transcript roles onto the chat completion roles,
// tool messages are folded into user content as the judge and persona prompts have no tools.
func convertMessages(messages []api.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case api.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case api.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case api.RoleTool:
			out = append(out, openai.UserMessage("[tool result] "+m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
