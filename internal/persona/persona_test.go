package persona_test

import (
	"context"
	"strings"
	"testing"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/logging"
	"github.com/eval-hub/sim-hub/internal/persona"
	"github.com/eval-hub/sim-hub/pkg/api"
)

type recordingLLM struct {
	reply    string
	received []api.Message
}

func (r *recordingLLM) Complete(ctx context.Context, messages []api.Message, options abstractions.CompletionOptions) (string, error) {
	r.received = messages
	return r.reply, nil
}

func TestGenerator(t *testing.T) {
	p := &api.Persona{Name: "Impatient customer", SystemPrompt: "You are in a hurry"}
	scenario := &api.Scenario{Name: "refund", Instructions: "Ask for a refund of order 42"}

	t.Run("system prompt includes persona and scenario", func(t *testing.T) {
		prompt := persona.SystemPrompt(p, scenario)
		for _, expected := range []string{"Impatient customer", "You are in a hurry", "Ask for a refund of order 42", "Guidelines:"} {
			if !strings.Contains(prompt, expected) {
				t.Fatalf("Expected %q in the system prompt %q", expected, prompt)
			}
		}
	})

	t.Run("roles are swapped", func(t *testing.T) {
		llm := &recordingLLM{reply: "  Where is my refund?  "}
		generator := persona.NewGenerator("", logging.FallbackLogger())
		content, err := generator.NextMessage(context.Background(), llm, p, scenario, []api.Message{
			{Role: api.RoleUser, Content: "I want a refund"},
			{Role: api.RoleAssistant, Content: "Which order?"},
		})
		if err != nil {
			t.Fatalf("Failed to generate message: %v", err)
		}
		if content != "Where is my refund?" {
			t.Fatalf("Unexpected content %q", content)
		}
		if len(llm.received) != 3 {
			t.Fatalf("Expected 3 messages, got %v", llm.received)
		}
		if llm.received[1].Role != api.RoleAssistant || llm.received[2].Role != api.RoleUser {
			t.Fatalf("Expected swapped roles, got %v", llm.received)
		}
	})

	t.Run("empty answers are an error", func(t *testing.T) {
		generator := persona.NewGenerator("", logging.FallbackLogger())
		if _, err := generator.NextMessage(context.Background(), &recordingLLM{reply: " "}, nil, scenario, nil); err == nil {
			t.Fatalf("Expected an error")
		}
	})
}
