package abstractions

import (
	"context"

	"github.com/eval-hub/sim-hub/pkg/api"
)

// Runtime interface defines the methods for executing claimed runs. Concrete implementations
// hold the specific aspects of where and how the conversation loop is driven. No other places
// in the code should be pointing directly to runtime specific details.
type Runtime interface {
	Name() string
	// ExecuteRun drives a claimed run to a terminal status. The returned error is only
	// for failures to record the outcome, a failed run is not an error.
	ExecuteRun(ctx context.Context, run *api.Run, storage Storage) error
}
