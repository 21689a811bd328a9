package abstractions

import (
	"context"

	"github.com/eval-hub/sim-hub/pkg/api"
)

type CompletionOptions struct {
	Model string
	// Judging selects the judge model of the provider when Model is empty
	Judging     bool
	Temperature *float64
	MaxTokens   int64
}

// LLM is a chat completion service, used for judging and for generating persona messages.
type LLM interface {
	Complete(ctx context.Context, messages []api.Message, options CompletionOptions) (string, error)
}

// LLMResolver returns the chat completion service configured for a project.
type LLMResolver interface {
	Resolve(project string) (LLM, error)
}
