package sql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/serviceerrors"
	"github.com/eval-hub/sim-hub/pkg/api"
)

// ClaimRun moves a queued run to running with a compare-and-swap on the status and the
// last update time of the row, so two schedulers reading the same queued run can not
// both start it.
func (s *SQLStorage) ClaimRun(project string, id string) (*api.Run, bool, error) {
	query, err := createGetRecordStatement(s.sqlConfig.Driver)
	if err != nil {
		return nil, false, err
	}
	var updatedAt int64
	var entityJSON string
	err = s.pool.QueryRowContext(s.ctx, query, project, constants.COLLECTION_RUNS, id).Scan(&updatedAt, &entityJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// deleted since it was listed
			return nil, false, nil
		}
		return nil, false, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", constants.COLLECTION_RUNS, "ResourceId", id, "Error", err.Error())
	}

	run := &api.Run{}
	if err := json.Unmarshal([]byte(entityJSON), run); err != nil {
		return nil, false, serviceerrors.NewServiceError(messages.JSONUnmarshalFailed, "Type", constants.COLLECTION_RUNS, "Error", err.Error())
	}
	if run.Status != api.RunStatusQueued {
		return nil, false, nil
	}

	now := time.Now().UTC()
	if now.UnixNano() == updatedAt {
		now = now.Add(time.Nanosecond)
	}
	run.Status = api.RunStatusRunning
	run.StartedAt = &now
	run.UpdatedAt = now
	entity, err := json.Marshal(run)
	if err != nil {
		return nil, false, serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
	}

	claim, err := createClaimRecordStatement(s.sqlConfig.Driver)
	if err != nil {
		return nil, false, err
	}
	result, err := s.pool.ExecContext(s.ctx, claim,
		string(api.RunStatusRunning), now.UnixNano(), string(entity),
		project, constants.COLLECTION_RUNS, id, string(api.RunStatusQueued), updatedAt)
	if err != nil {
		s.logger.Error("Failed to claim run", "error", err, "project", project, "id", id)
		return nil, false, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", constants.COLLECTION_RUNS, "ResourceId", id, "Error", err.Error())
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", constants.COLLECTION_RUNS, "ResourceId", id, "Error", err.Error())
	}
	if rowsAffected != 1 {
		s.logger.Info("Run already claimed", "project", project, "id", id)
		return nil, false, nil
	}
	return run, true, nil
}
