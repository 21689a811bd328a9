package sql

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/go-viper/mapstructure/v2"
	// import the postgres driver - "pgx"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"

	// import the sqlite driver - "sqlite"
	_ "modernc.org/sqlite"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/serviceerrors"
	"github.com/eval-hub/sim-hub/pkg/api"
)

const (
	// These are the only drivers currently supported
	SQLITE_DRIVER   = "sqlite"
	POSTGRES_DRIVER = "pgx"
)

type SQLStorage struct {
	sqlConfig *SQLDatabaseConfig
	pool      *sql.DB
	logger    *slog.Logger
	ctx       context.Context
}

func NewStorage(config map[string]any, logger *slog.Logger) (abstractions.Storage, error) {
	var sqlConfig SQLDatabaseConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &sqlConfig,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	// check that the driver is supported
	dbSystem := ""
	switch sqlConfig.Driver {
	case SQLITE_DRIVER:
		dbSystem = "sqlite"
	case POSTGRES_DRIVER:
		dbSystem = "postgresql"
	default:
		return nil, getUnsupportedDriverError(sqlConfig.Driver)
	}

	logger.Info("Creating SQL storage", "driver", sqlConfig.Driver, "url", sqlConfig.URL)

	pool, err := otelsql.Open(sqlConfig.Driver, sqlConfig.URL,
		otelsql.WithDBSystem(dbSystem),
		otelsql.WithDBName(sqlConfig.DatabaseName),
	)
	if err != nil {
		return nil, err
	}

	if sqlConfig.ConnMaxLifetime != nil {
		pool.SetConnMaxLifetime(*sqlConfig.ConnMaxLifetime)
	}
	if sqlConfig.MaxIdleConns != nil {
		pool.SetMaxIdleConns(*sqlConfig.MaxIdleConns)
	}
	if sqlConfig.MaxOpenConns != nil {
		pool.SetMaxOpenConns(*sqlConfig.MaxOpenConns)
	} else if sqlConfig.Driver == SQLITE_DRIVER {
		// SQLite has a single writer, concurrent runs would otherwise see "database is locked"
		pool.SetMaxOpenConns(1)
	}

	storage := &SQLStorage{
		sqlConfig: &sqlConfig,
		pool:      pool,
		logger:    logger,
		ctx:       context.Background(),
	}

	// ping the database to verify the DSN provided by the user is valid and the server is accessible
	logger.Info("Pinging SQL storage", "driver", sqlConfig.Driver, "url", sqlConfig.URL)
	err = storage.Ping(1 * time.Second)
	if err != nil {
		return nil, err
	}

	// ensure the schemas are created
	logger.Info("Ensuring schemas are created", "driver", sqlConfig.Driver, "url", sqlConfig.URL)
	if err := storage.ensureSchema(); err != nil {
		return nil, err
	}

	return storage, nil
}

// Ping the database to verify DSN provided by the user is valid and the
// server accessible.
func (s *SQLStorage) Ping(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	return s.pool.PingContext(ctx)
}

func (s *SQLStorage) GetDatasourceName() string {
	return s.sqlConfig.Driver
}

func (s *SQLStorage) WithLogger(logger *slog.Logger) abstractions.Storage {
	return &SQLStorage{
		sqlConfig: s.sqlConfig,
		pool:      s.pool,
		logger:    logger,
		ctx:       s.ctx,
	}
}

func (s *SQLStorage) WithContext(ctx context.Context) abstractions.Storage {
	return &SQLStorage{
		sqlConfig: s.sqlConfig,
		pool:      s.pool,
		logger:    s.logger,
		ctx:       ctx,
	}
}

func (s *SQLStorage) ensureSchema() error {
	schemas, err := schemasForDriver(s.sqlConfig.Driver)
	if err != nil {
		return err
	}
	if _, err := s.pool.ExecContext(s.ctx, schemas); err != nil {
		return err
	}

	return nil
}

func (s *SQLStorage) ListProjects() ([]string, error) {
	query, err := createListProjectsStatement(s.sqlConfig.Driver)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.QueryContext(s.ctx, query)
	if err != nil {
		s.logger.Error("Failed to list projects", "error", err)
		return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", "projects", "Error", err.Error())
	}
	defer rows.Close()

	projects := []string{}
	for rows.Next() {
		var project string
		if err := rows.Scan(&project); err != nil {
			return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", "projects", "Error", err.Error())
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", "projects", "Error", err.Error())
	}
	return projects, nil
}

func (s *SQLStorage) Scenarios(project string) abstractions.Collection[api.Scenario] {
	return newRecordCollection[api.Scenario](s, project, constants.COLLECTION_SCENARIOS)
}

func (s *SQLStorage) Personas(project string) abstractions.Collection[api.Persona] {
	return newRecordCollection[api.Persona](s, project, constants.COLLECTION_PERSONAS)
}

func (s *SQLStorage) Connectors(project string) abstractions.Collection[api.Connector] {
	return newRecordCollection[api.Connector](s, project, constants.COLLECTION_CONNECTORS)
}

func (s *SQLStorage) Evals(project string) abstractions.Collection[api.Eval] {
	return newRecordCollection[api.Eval](s, project, constants.COLLECTION_EVALS)
}

func (s *SQLStorage) Runs(project string) abstractions.Collection[api.Run] {
	return newRecordCollection[api.Run](s, project, constants.COLLECTION_RUNS)
}

func (s *SQLStorage) Executions(project string) abstractions.Collection[api.Execution] {
	return newRecordCollection[api.Execution](s, project, constants.COLLECTION_EXECUTIONS)
}

func (s *SQLStorage) Close() error {
	return s.pool.Close()
}
