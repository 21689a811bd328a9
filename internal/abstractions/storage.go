package abstractions

import (
	"context"
	"log/slog"
	"time"

	"github.com/eval-hub/sim-hub/pkg/api"
)

// Filter selects records by field value. The keys are the JSON field names of the
// record (dotted paths are allowed for nested fields), the values are compared for equality.
type Filter map[string]any

// Collection is the keyed record store of one entity type within one project.
// Records are returned ordered by creation time, oldest first.
type Collection[T api.Record] interface {
	FindAll() ([]T, error)
	// FindByID returns a ResourceNotFound service error if there is no record with this id
	FindByID(id string) (*T, error)
	FindBy(filter Filter) ([]T, error)
	// Save inserts or replaces the record. A missing id is generated, the
	// project and the timestamps are set on the passed record.
	Save(record *T) error
	// SaveMany saves all the records in one transaction
	SaveMany(records []T) error
	DeleteByID(id string) error
	// MaxID returns the largest numeric id of the collection, or 0 when it is empty
	MaxID() (int64, error)
}

type Storage interface {
	WithLogger(logger *slog.Logger) Storage
	WithContext(ctx context.Context) Storage

	// This is used to identify the storage implementation in the logs and error messages
	GetDatasourceName() string

	Ping(timeout time.Duration) error

	// ListProjects returns every project that holds at least one record, in stable order
	ListProjects() ([]string, error)

	Scenarios(project string) Collection[api.Scenario]
	Personas(project string) Collection[api.Persona]
	Connectors(project string) Collection[api.Connector]
	Evals(project string) Collection[api.Eval]
	Runs(project string) Collection[api.Run]
	Executions(project string) Collection[api.Execution]

	// ClaimRun atomically moves a queued run to running. It returns false without
	// an error when the run is not queued anymore (another scheduler got it first).
	ClaimRun(project string, id string) (*api.Run, bool, error)

	// Close the storage connection
	Close() error
}

// This interface must be decoupled from the service HTTP layer.
// Do not pass ExecutionContext, Request or Response wrappers either.
