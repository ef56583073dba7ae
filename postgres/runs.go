package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meikuraledutech/flow"
)

// StartRun inserts run, filling in a missing ID, creation time and status.
func (s *PGStore) StartRun(ctx context.Context, run *flow.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = flow.StatusPending
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_runs (id, workflow_id, scope, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.WorkflowID, string(run.Scope), string(run.Status), run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert run: %w", err)
	}
	return nil
}

// SetRunStatus updates the status of a run. Returns flow.ErrRunNotFound if
// the run does not exist.
func (s *PGStore) SetRunStatus(ctx context.Context, runID string, status flow.Status) error {
	return s.updateRun(ctx, "update run",
		`UPDATE workflow_runs SET status = $1 WHERE id = $2 RETURNING id`, string(status), runID)
}

// CompleteRun sets a terminal status and the completion time. Returns
// flow.ErrRunNotFound if the run does not exist.
func (s *PGStore) CompleteRun(ctx context.Context, runID string, status flow.Status) error {
	if !status.Terminal() {
		return fmt.Errorf("postgres: complete run with non-terminal status %s", status)
	}
	return s.updateRun(ctx, "complete run",
		`UPDATE workflow_runs SET status = $1, completed_at = NOW() WHERE id = $2 RETURNING id`, string(status), runID)
}

func (s *PGStore) updateRun(ctx context.Context, op, query string, args ...any) error {
	var id string
	err := s.db.QueryRow(ctx, query, args...).Scan(&id)
	if isNoRows(err) {
		return flow.ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: %s: %w", op, err)
	}
	return nil
}

// LogNodeStart records a node as started. It shares the upsert of
// LogNodeFinish, so the order of the two calls does not matter.
func (s *PGStore) LogNodeStart(ctx context.Context, exec *flow.NodeExecution) error {
	return s.upsertExecution(ctx, exec)
}

// LogNodeFinish overwrites the execution row of (exec.RunID, exec.NodeID).
// Returns flow.ErrRunNotFound if the run does not exist.
func (s *PGStore) LogNodeFinish(ctx context.Context, exec *flow.NodeExecution) error {
	return s.upsertExecution(ctx, exec)
}

// upsertExecution keeps one row per (run_id, node_id). A later write keeps
// the first row's id, and its inputs and start time when the new ones are
// absent.
const upsertExecutionSQL = `
INSERT INTO node_executions
    (id, run_id, node_id, node_type, node_label, status, inputs, outputs, error, start_time, end_time, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()), $11, $12)
ON CONFLICT (run_id, node_id) DO UPDATE SET
    node_type   = EXCLUDED.node_type,
    node_label  = EXCLUDED.node_label,
    status      = EXCLUDED.status,
    inputs      = COALESCE(EXCLUDED.inputs, node_executions.inputs),
    outputs     = EXCLUDED.outputs,
    error       = EXCLUDED.error,
    start_time  = COALESCE($10, node_executions.start_time),
    end_time    = EXCLUDED.end_time,
    duration_ms = EXCLUDED.duration_ms
RETURNING id, start_time`

func (s *PGStore) upsertExecution(ctx context.Context, exec *flow.NodeExecution) error {
	id := exec.ID
	if id == "" {
		id = uuid.NewString()
	}
	var start *time.Time
	if !exec.StartTime.IsZero() {
		start = &exec.StartTime
	}
	err := s.db.QueryRow(ctx, upsertExecutionSQL,
		id, exec.RunID, exec.NodeID, string(exec.NodeType), exec.NodeLabel, string(exec.Status),
		nullJSON(exec.Inputs), nullJSON(exec.Outputs), exec.Error, start, exec.EndTime, exec.DurationMs,
	).Scan(&exec.ID, &exec.StartTime)
	if err != nil {
		if isForeignKeyViolation(err) {
			return flow.ErrRunNotFound
		}
		return fmt.Errorf("postgres: upsert node execution %s: %w", exec.NodeID, err)
	}
	return nil
}

// GetRuns returns the runs of a workflow newest first, each with its node
// executions in start order.
func (s *PGStore) GetRuns(ctx context.Context, workflowID string) ([]flow.Run, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, workflow_id, scope, status, created_at, completed_at FROM workflow_runs
		 WHERE workflow_id = $1 ORDER BY created_at DESC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	runs := []flow.Run{}
	index := make(map[string]int)
	var ids []string
	for rows.Next() {
		var (
			r             flow.Run
			scope, status string
		)
		if err := rows.Scan(&r.ID, &r.WorkflowID, &scope, &status, &r.CreatedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		r.Scope, r.Status = flow.Scope(scope), flow.Status(status)
		r.Nodes = []flow.NodeExecution{}
		index[r.ID] = len(runs)
		ids = append(ids, r.ID)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows runs: %w", err)
	}
	if len(ids) == 0 {
		return runs, nil
	}

	rows, err = s.db.Query(ctx,
		`SELECT id, run_id, node_id, node_type, node_label, status, inputs, outputs, error,
		        start_time, end_time, duration_ms
		 FROM node_executions WHERE run_id = ANY($1) ORDER BY start_time, node_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: list node executions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                flow.NodeExecution
			nodeType, status string
			inputs, outputs  []byte
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.NodeID, &nodeType, &e.NodeLabel, &status,
			&inputs, &outputs, &e.Error, &e.StartTime, &e.EndTime, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("postgres: scan node execution: %w", err)
		}
		e.NodeType, e.Status = flow.NodeType(nodeType), flow.Status(status)
		e.Inputs, e.Outputs = inputs, outputs
		i := index[e.RunID]
		runs[i].Nodes = append(runs[i].Nodes, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows node executions: %w", err)
	}
	return runs, nil
}

// ClearRuns deletes the node executions and then the runs of a workflow.
func (s *PGStore) ClearRuns(ctx context.Context, workflowID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM node_executions WHERE run_id IN (SELECT id FROM workflow_runs WHERE workflow_id = $1)`,
		workflowID); err != nil {
		return fmt.Errorf("postgres: delete node executions: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_runs WHERE workflow_id = $1`, workflowID); err != nil {
		return fmt.Errorf("postgres: delete runs: %w", err)
	}
	return tx.Commit(ctx)
}

// nullJSON maps an absent payload to SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
