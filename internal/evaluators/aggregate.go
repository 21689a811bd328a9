package evaluators

import (
	"context"
	"fmt"
	"sync"

	"github.com/eval-hub/sim-hub/pkg/api"
)

// Aggregate is the combined verdict of the evaluators of one turn
type Aggregate struct {
	Success bool
	// Score is the lowest assertion score, nil when no assertion reported one
	Score *float64
	// Reason is the reason of the first failing assertion in evaluator order
	Reason        string
	HasAssertions bool
	Outcomes      []api.EvaluatorOutcome
	Metrics       map[string]float64
}

// Run executes the evaluators concurrently. An evaluator that fails or panics is recorded
// as a failed assertion, metrics never affect the success of the turn.
func Run(ctx context.Context, resolved []Resolved, evalContext Context) Aggregate {
	outcomes := make([]api.EvaluatorOutcome, len(resolved))
	var wg sync.WaitGroup
	for i, r := range resolved {
		wg.Add(1)
		go func(i int, r Resolved) {
			defer wg.Done()
			outcomes[i] = evaluate(ctx, r, evalContext)
		}(i, r)
	}
	wg.Wait()

	aggregate := Aggregate{
		Success:  true,
		Outcomes: outcomes,
		Metrics:  map[string]float64{},
	}
	for _, outcome := range outcomes {
		if outcome.Kind == string(KindMetric) {
			if outcome.Value != nil {
				aggregate.Metrics[outcome.Type] = *outcome.Value
			}
			continue
		}
		aggregate.HasAssertions = true
		if outcome.Value != nil && (aggregate.Score == nil || *outcome.Value < *aggregate.Score) {
			score := *outcome.Value
			aggregate.Score = &score
		}
		if !outcome.Success && aggregate.Success {
			aggregate.Success = false
			aggregate.Reason = outcome.Reason
		}
	}
	return aggregate
}

func evaluate(ctx context.Context, r Resolved, evalContext Context) (outcome api.EvaluatorOutcome) {
	defer func() {
		if p := recover(); p != nil {
			outcome = failedOutcome(r.Definition.Type, fmt.Sprintf("Evaluator %s panicked: %v", r.Definition.Type, p))
		}
	}()
	evalContext.Config = r.Config
	result, err := r.Definition.Evaluator.Evaluate(ctx, &evalContext)
	if err != nil {
		return failedOutcome(r.Definition.Type, fmt.Sprintf("Evaluator %s failed: %s", r.Definition.Type, err.Error()))
	}
	if r.Definition.Kind == KindMetric {
		result.Success = true
	}
	return api.EvaluatorOutcome{
		Type:     r.Definition.Type,
		Kind:     string(r.Definition.Kind),
		Success:  result.Success,
		Value:    result.Value,
		Reason:   result.Reason,
		Metadata: result.Metadata,
	}
}

func failedOutcome(evaluatorType string, reason string) api.EvaluatorOutcome {
	return api.EvaluatorOutcome{
		Type:    evaluatorType,
		Kind:    string(KindAssertion),
		Success: false,
		Reason:  reason,
	}
}
