package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meikuraledutech/flow"
)

// insertEdges writes edges in order. If an edge ID is empty, a UUID is
// auto-generated.
func insertEdges(ctx context.Context, tx pgx.Tx, workflowID string, edges []flow.Edge) error {
	for i, e := range edges {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO workflow_edges (workflow_id, id, source, target, source_handle, target_handle, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			workflowID, e.ID, e.Source, e.Target, e.SourceHandle, e.TargetHandle, i,
		); err != nil {
			return fmt.Errorf("postgres: insert edge %s: %w", e.ID, err)
		}
	}
	return nil
}

// listEdges returns the edges of a workflow in saved order.
// Returns an empty slice (not nil) if none found.
func listEdges(ctx context.Context, q querier, workflowID string) ([]flow.Edge, error) {
	rows, err := q.Query(ctx,
		`SELECT id, source, target, source_handle, target_handle FROM workflow_edges
		 WHERE workflow_id = $1 ORDER BY position`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list edges: %w", err)
	}
	defer rows.Close()

	edges := []flow.Edge{}
	for rows.Next() {
		var e flow.Edge
		if err := rows.Scan(&e.ID, &e.Source, &e.Target, &e.SourceHandle, &e.TargetHandle); err != nil {
			return nil, fmt.Errorf("postgres: scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows edges: %w", err)
	}
	return edges, nil
}
