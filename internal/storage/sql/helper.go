package sql

import (
	"fmt"
	"strings"

	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/serviceerrors"
	"github.com/eval-hub/sim-hub/internal/storage/sql/schemas"
)

const recordColumns = "project_id, collection, id, status, created_at, updated_at, entity"

func getUnsupportedDriverError(driver string) error {
	return serviceerrors.NewServiceError(messages.UnsupportedDriver, "Driver", driver)
}

func schemasForDriver(driver string) (string, error) {
	switch driver {
	case SQLITE_DRIVER:
		return schemas.SQLITE_SCHEMA, nil
	case POSTGRES_DRIVER:
		return schemas.POSTGRES_SCHEMA, nil
	default:
		return "", getUnsupportedDriverError(driver)
	}
}

// placeholders rewrites the ? placeholders of a statement into the syntax of the driver.
// PostgreSQL uses $1, $2 ... while SQLite accepts ? as is.
func placeholders(driver string, statement string) (string, error) {
	switch driver {
	case SQLITE_DRIVER:
		return statement, nil
	case POSTGRES_DRIVER:
		var sb strings.Builder
		n := 0
		for _, r := range statement {
			if r == '?' {
				n++
				sb.WriteString(fmt.Sprintf("$%d", n))
				continue
			}
			sb.WriteRune(r)
		}
		return sb.String(), nil
	default:
		return "", getUnsupportedDriverError(driver)
	}
}

// createUpsertRecordStatement returns a driver-specific INSERT statement that replaces
// the status, timestamps and entity of an existing record with the same key
func createUpsertRecordStatement(driver string) (string, error) {
	return placeholders(driver, fmt.Sprintf(`INSERT INTO records (%s) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (project_id, collection, id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at, entity = excluded.entity;`, recordColumns))
}

// createGetRecordStatement returns a driver-specific SELECT statement
// to retrieve a record by ID
func createGetRecordStatement(driver string) (string, error) {
	return placeholders(driver, `SELECT updated_at, entity FROM records WHERE project_id = ? AND collection = ? AND id = ?;`)
}

// createListRecordsStatement returns a driver-specific SELECT statement
// to list the records of a collection, optionally filtered by status
func createListRecordsStatement(driver string, status string) (string, []any, error) {
	query := `SELECT entity FROM records WHERE project_id = ? AND collection = ?`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC, id ASC;`
	query, err := placeholders(driver, query)
	return query, args, err
}

// createDeleteRecordStatement returns a driver-specific DELETE statement
// to delete a record by ID
func createDeleteRecordStatement(driver string) (string, error) {
	return placeholders(driver, `DELETE FROM records WHERE project_id = ? AND collection = ? AND id = ?;`)
}

// createMaxIDStatement returns a driver-specific statement to find the largest numeric id of a collection
func createMaxIDStatement(driver string) (string, error) {
	switch driver {
	case SQLITE_DRIVER:
		// non numeric ids cast to 0 in SQLite
		return `SELECT COALESCE(MAX(CAST(id AS INTEGER)), 0) FROM records WHERE project_id = ? AND collection = ?;`, nil
	case POSTGRES_DRIVER:
		return `SELECT COALESCE(MAX(CAST(id AS BIGINT)), 0) FROM records WHERE project_id = $1 AND collection = $2 AND id ~ '^[0-9]+$';`, nil
	default:
		return "", getUnsupportedDriverError(driver)
	}
}

// createClaimRecordStatement returns a driver-specific compare-and-swap UPDATE statement,
// the record is only changed when both its status and its last update time are unchanged
func createClaimRecordStatement(driver string) (string, error) {
	return placeholders(driver, `UPDATE records SET status = ?, updated_at = ?, entity = ?
WHERE project_id = ? AND collection = ? AND id = ? AND status = ? AND updated_at = ?;`)
}

func createListProjectsStatement(driver string) (string, error) {
	return placeholders(driver, `SELECT DISTINCT project_id FROM records ORDER BY project_id;`)
}
