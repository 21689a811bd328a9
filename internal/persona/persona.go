package persona

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/pkg/api"
)

const guidelines = `Guidelines:
- You are the user in this conversation, never the assistant. Do not offer help, ask for it.
- Write only the next message of the user, without any prefix, quotes or explanation.
- Stay in character and pursue the goal of the scenario one step at a time.
- Keep the message short and natural, like a real person typing in a chat.`

// SystemPrompt renders the instructions of the simulated user from the persona and the scenario
func SystemPrompt(persona *api.Persona, scenario *api.Scenario) string {
	var sb strings.Builder
	sb.WriteString("You are simulating a user talking to an AI agent in order to test it.\n\n")
	if persona != nil {
		fmt.Fprintf(&sb, "Persona: %s\n", persona.Name)
		if persona.Description != "" {
			fmt.Fprintf(&sb, "Description: %s\n", persona.Description)
		}
		if persona.SystemPrompt != "" {
			fmt.Fprintf(&sb, "Character instructions: %s\n", persona.SystemPrompt)
		}
		sb.WriteString("\n")
	}
	if scenario.Instructions != "" {
		fmt.Fprintf(&sb, "Scenario: %s\n\n", scenario.Instructions)
	}
	sb.WriteString(guidelines)
	return sb.String()
}

// Generator writes the next message of the simulated user
type Generator struct {
	model  string
	logger *slog.Logger
}

func NewGenerator(model string, logger *slog.Logger) *Generator {
	return &Generator{model: model, logger: logger}
}

// NextMessage asks the LLM for the next user message. The LLM plays the user, so the roles
// of the transcript are swapped: the agent messages become its input.
func (g *Generator) NextMessage(ctx context.Context, llm abstractions.LLM, persona *api.Persona, scenario *api.Scenario, transcript []api.Message) (string, error) {
	prompt := []api.Message{{Role: api.RoleSystem, Content: SystemPrompt(persona, scenario)}}
	for _, m := range transcript {
		switch m.Role {
		case api.RoleUser:
			prompt = append(prompt, api.Message{Role: api.RoleAssistant, Content: m.Content})
		case api.RoleAssistant:
			if m.Content != "" {
				prompt = append(prompt, api.Message{Role: api.RoleUser, Content: m.Content})
			}
		}
	}
	if len(prompt) == 1 || prompt[len(prompt)-1].Role == api.RoleAssistant {
		prompt = append(prompt, api.Message{Role: api.RoleUser, Content: "Write the next message of the user."})
	}

	content, err := llm.Complete(ctx, prompt, abstractions.CompletionOptions{Model: g.model})
	if err != nil {
		return "", fmt.Errorf("failed to generate the user message: %w", err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("the generated user message is empty")
	}
	g.logger.Debug("Generated user message", "length", len(content))
	return content, nil
}
