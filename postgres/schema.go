package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS workflow_nodes (
    workflow_id TEXT  NOT NULL,
    id          TEXT  NOT NULL,
    type        TEXT  NOT NULL,
    data        JSONB NOT NULL DEFAULT '{}',
    position    INT   NOT NULL,
    PRIMARY KEY (workflow_id, id)
);

CREATE TABLE IF NOT EXISTS workflow_edges (
    workflow_id   TEXT NOT NULL,
    id            TEXT NOT NULL,
    source        TEXT NOT NULL,
    target        TEXT NOT NULL,
    source_handle TEXT NOT NULL DEFAULT '',
    target_handle TEXT NOT NULL DEFAULT '',
    position      INT  NOT NULL,
    PRIMARY KEY (workflow_id, id)
);

CREATE TABLE IF NOT EXISTS workflow_runs (
    id           TEXT PRIMARY KEY,
    workflow_id  TEXT        NOT NULL,
    scope        TEXT        NOT NULL,
    status       TEXT        NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS node_executions (
    id          TEXT PRIMARY KEY,
    run_id      TEXT        NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
    node_id     TEXT        NOT NULL,
    node_type   TEXT        NOT NULL,
    node_label  TEXT        NOT NULL DEFAULT '',
    status      TEXT        NOT NULL,
    inputs      JSONB,
    outputs     JSONB,
    error       TEXT        NOT NULL DEFAULT '',
    start_time  TIMESTAMPTZ NOT NULL,
    end_time    TIMESTAMPTZ,
    duration_ms BIGINT,
    UNIQUE (run_id, node_id)
);

CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow ON workflow_runs(workflow_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_node_executions_run    ON node_executions(run_id, start_time);
`

// CreateSchema creates the workflow and run history tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops every table CreateSchema creates.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS node_executions, workflow_runs, workflow_edges, workflow_nodes CASCADE;`)
	return err
}
