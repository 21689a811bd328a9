package schemas

// every record collection of every project lives in one table, the record
// itself is stored as JSON in the entity column
const SQLITE_SCHEMA = `
CREATE TABLE IF NOT EXISTS records (
    project_id VARCHAR(255) NOT NULL,
    collection VARCHAR(64) NOT NULL,
    id VARCHAR(255) NOT NULL,
    status VARCHAR(32) NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    entity TEXT NOT NULL,
    PRIMARY KEY (project_id, collection, id)
);

CREATE INDEX IF NOT EXISTS idx_records_status
ON records (project_id, collection, status, created_at);
`

const POSTGRES_SCHEMA = `
CREATE TABLE IF NOT EXISTS records (
    project_id VARCHAR(255) NOT NULL,
    collection VARCHAR(64) NOT NULL,
    id VARCHAR(255) NOT NULL,
    status VARCHAR(32) NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    entity JSONB NOT NULL,
    PRIMARY KEY (project_id, collection, id)
);

CREATE INDEX IF NOT EXISTS idx_records_status
ON records (project_id, collection, status, created_at);
`
