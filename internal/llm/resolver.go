package llm

import (
	"log/slog"
	"sync"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/serviceerrors"
	"github.com/eval-hub/sim-hub/pkg/api"
)

// Resolver returns the LLM of a project, the project override wins over the default provider.
// Clients are created once per project so that the rate limit is shared by all the runs of the project.
type Resolver struct {
	defaultProvider *api.LLMProvider
	projects        map[string]api.LLMProvider
	logger          *slog.Logger

	mu      sync.Mutex
	clients map[string]abstractions.LLM
}

func NewResolver(defaultProvider *api.LLMProvider, projects map[string]api.LLMProvider, logger *slog.Logger) *Resolver {
	return &Resolver{
		defaultProvider: defaultProvider,
		projects:        projects,
		logger:          logger,
		clients:         map[string]abstractions.LLM{},
	}
}

func (r *Resolver) Resolve(project string) (abstractions.LLM, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[project]; ok {
		return client, nil
	}

	var provider api.LLMProvider
	if p, ok := r.projects[project]; ok {
		provider = p
	} else if r.defaultProvider != nil && r.defaultProvider.BaseURL != "" {
		provider = *r.defaultProvider
	} else {
		return nil, serviceerrors.NewServiceError(messages.LLMProviderMissing, "Project", project)
	}

	client := NewOpenAIClient(provider, r.logger.With("project", project))
	r.clients[project] = client
	return client, nil
}

// StaticResolver resolves every project to the same LLM
type StaticResolver struct {
	LLM abstractions.LLM
}

func (r StaticResolver) Resolve(project string) (abstractions.LLM, error) {
	if r.LLM == nil {
		return nil, serviceerrors.NewServiceError(messages.LLMProviderMissing, "Project", project)
	}
	return r.LLM, nil
}
