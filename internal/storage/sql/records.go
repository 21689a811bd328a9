package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/google/uuid"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/serviceerrors"
	"github.com/eval-hub/sim-hub/pkg/api"
)

// execer is implemented by both the pool and a transaction
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// recordCollection stores the records of one collection of one project in the records table
type recordCollection[T api.Record] struct {
	storage    *SQLStorage
	project    string
	collection string
}

func newRecordCollection[T api.Record](storage *SQLStorage, project string, collection string) abstractions.Collection[T] {
	return &recordCollection[T]{
		storage:    storage,
		project:    project,
		collection: collection,
	}
}

func (c *recordCollection[T]) driver() string {
	return c.storage.sqlConfig.Driver
}

func (c *recordCollection[T]) FindAll() ([]T, error) {
	return c.list("", nil)
}

func (c *recordCollection[T]) FindByID(id string) (*T, error) {
	query, err := createGetRecordStatement(c.driver())
	if err != nil {
		return nil, err
	}
	var updatedAt int64
	var entityJSON string
	err = c.storage.pool.QueryRowContext(c.storage.ctx, query, c.project, c.collection, id).Scan(&updatedAt, &entityJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", c.collection, "ResourceId", id)
		}
		c.storage.logger.Error("Failed to get record", "error", err, "collection", c.collection, "id", id)
		return nil, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", c.collection, "ResourceId", id, "Error", err.Error())
	}
	record := new(T)
	if err := json.Unmarshal([]byte(entityJSON), record); err != nil {
		c.storage.logger.Error("Failed to unmarshal record entity", "error", err, "collection", c.collection, "id", id)
		return nil, serviceerrors.NewServiceError(messages.JSONUnmarshalFailed, "Type", c.collection, "Error", err.Error())
	}
	return record, nil
}

// FindBy pushes a status filter down to the database, all other fields are
// matched against the stored JSON entity.
func (c *recordCollection[T]) FindBy(filter abstractions.Filter) ([]T, error) {
	status := ""
	remaining := map[string]any{}
	for key, value := range filter {
		if s, ok := value.(string); ok && key == "status" {
			status = s
			continue
		}
		if s, ok := value.(api.RunStatus); ok && key == "status" {
			status = string(s)
			continue
		}
		// normalise the value so that it compares with what encoding/json decodes
		normalised, err := normalise(value)
		if err != nil {
			return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", c.collection, "Error", err.Error())
		}
		remaining[key] = normalised
	}
	return c.list(status, remaining)
}

func (c *recordCollection[T]) list(status string, filter map[string]any) ([]T, error) {
	query, args, err := createListRecordsStatement(c.driver(), status)
	if err != nil {
		return nil, err
	}
	args = append([]any{c.project, c.collection}, args...)
	rows, err := c.storage.pool.QueryContext(c.storage.ctx, query, args...)
	if err != nil {
		c.storage.logger.Error("Failed to list records", "error", err, "collection", c.collection)
		return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", c.collection, "Error", err.Error())
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		var entityJSON string
		if err := rows.Scan(&entityJSON); err != nil {
			c.storage.logger.Error("Failed to scan record row", "error", err, "collection", c.collection)
			return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", c.collection, "Error", err.Error())
		}
		if len(filter) > 0 {
			matched, err := matches(entityJSON, filter)
			if err != nil {
				return nil, serviceerrors.NewServiceError(messages.JSONUnmarshalFailed, "Type", c.collection, "Error", err.Error())
			}
			if !matched {
				continue
			}
		}
		var record T
		if err := json.Unmarshal([]byte(entityJSON), &record); err != nil {
			c.storage.logger.Error("Failed to unmarshal record entity", "error", err, "collection", c.collection)
			return nil, serviceerrors.NewServiceError(messages.JSONUnmarshalFailed, "Type", c.collection, "Error", err.Error())
		}
		items = append(items, record)
	}
	if err := rows.Err(); err != nil {
		c.storage.logger.Error("Error iterating record rows", "error", err, "collection", c.collection)
		return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", c.collection, "Error", err.Error())
	}
	return items, nil
}

func (c *recordCollection[T]) Save(record *T) error {
	return c.save(c.storage.pool, record)
}

func (c *recordCollection[T]) SaveMany(records []T) error {
	if len(records) == 0 {
		return nil
	}
	return c.storage.withTransaction("save "+c.collection, c.project, func(txn *sql.Tx) error {
		for i := range records {
			if err := c.save(txn, &records[i]); err != nil {
				return serviceerrors.WithRollback(err)
			}
		}
		return nil
	})
}

// save stamps the record with its key and timestamps and upserts it
func (c *recordCollection[T]) save(db execer, record *T) error {
	now := time.Now().UTC()
	entity, err := json.Marshal(record)
	if err != nil {
		return serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
	}
	container, err := gabs.ParseJSON(entity)
	if err != nil {
		return serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
	}
	id, _ := container.Path("id").Data().(string)
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := (*record).RecordCreatedAt()
	if createdAt.IsZero() {
		createdAt = now
	}
	for path, value := range map[string]any{
		"id":         id,
		"project":    c.project,
		"created_at": createdAt.Format(time.RFC3339Nano),
		"updated_at": now.Format(time.RFC3339Nano),
	} {
		if _, err := container.SetP(value, path); err != nil {
			return serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
		}
	}
	stamped := container.Bytes()
	if err := json.Unmarshal(stamped, record); err != nil {
		return serviceerrors.NewServiceError(messages.JSONUnmarshalFailed, "Type", c.collection, "Error", err.Error())
	}

	query, err := createUpsertRecordStatement(c.driver())
	if err != nil {
		return err
	}
	_, err = db.ExecContext(c.storage.ctx, query, c.project, c.collection, id, (*record).RecordStatus(), createdAt.UnixNano(), now.UnixNano(), string(stamped))
	if err != nil {
		c.storage.logger.Error("Failed to save record", "error", err, "collection", c.collection, "id", id)
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", c.collection, "ResourceId", id, "Error", err.Error())
	}
	return nil
}

func (c *recordCollection[T]) DeleteByID(id string) error {
	query, err := createDeleteRecordStatement(c.driver())
	if err != nil {
		return err
	}
	result, err := c.storage.pool.ExecContext(c.storage.ctx, query, c.project, c.collection, id)
	if err != nil {
		c.storage.logger.Error("Failed to delete record", "error", err, "collection", c.collection, "id", id)
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", c.collection, "ResourceId", id, "Error", err.Error())
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", c.collection, "ResourceId", id, "Error", err.Error())
	}
	if rowsAffected == 0 {
		return serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", c.collection, "ResourceId", id)
	}
	c.storage.logger.Info("Deleted record", "collection", c.collection, "id", id)
	return nil
}

func (c *recordCollection[T]) MaxID() (int64, error) {
	query, err := createMaxIDStatement(c.driver())
	if err != nil {
		return 0, err
	}
	var maxID int64
	if err := c.storage.pool.QueryRowContext(c.storage.ctx, query, c.project, c.collection).Scan(&maxID); err != nil {
		return 0, serviceerrors.NewServiceError(messages.QueryFailed, "Type", c.collection, "Error", err.Error())
	}
	return maxID, nil
}

func normalise(value any) (any, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(b, &out)
	return out, err
}

func matches(entityJSON string, filter map[string]any) (bool, error) {
	container, err := gabs.ParseJSON([]byte(entityJSON))
	if err != nil {
		return false, err
	}
	for path, expected := range filter {
		if !container.ExistsP(path) {
			if expected == nil {
				continue
			}
			return false, nil
		}
		if !reflect.DeepEqual(container.Path(path).Data(), expected) {
			return false, nil
		}
	}
	return true, nil
}
