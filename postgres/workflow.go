package postgres

import (
	"context"
	"fmt"

	"github.com/meikuraledutech/flow"
)

// SaveWorkflow replaces the stored graph of w.ID in a single transaction.
// Edges without IDs get generated ones. Handle occupancy is validated; cycles
// are allowed on save and rejected when the graph runs.
func (s *PGStore) SaveWorkflow(ctx context.Context, w *flow.Workflow) error {
	if _, err := flow.NewGraph(w.Nodes, w.Edges); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Replace semantics.
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_edges WHERE workflow_id = $1`, w.ID); err != nil {
		return fmt.Errorf("postgres: delete edges: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, w.ID); err != nil {
		return fmt.Errorf("postgres: delete nodes: %w", err)
	}
	if err := insertNodes(ctx, tx, w.ID, w.Nodes); err != nil {
		return err
	}
	if err := insertEdges(ctx, tx, w.ID, w.Edges); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a stored graph. Returns nil, nil if no nodes exist
// for id.
func (s *PGStore) GetWorkflow(ctx context.Context, id string) (*flow.Workflow, error) {
	nodes, err := listNodes(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	edges, err := listEdges(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &flow.Workflow{ID: id, Nodes: nodes, Edges: edges}, nil
}

// DeleteWorkflow removes all nodes and edges of id. Run history is kept.
// No error if the workflow doesn't exist.
func (s *PGStore) DeleteWorkflow(ctx context.Context, id string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM workflow_edges WHERE workflow_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete edges: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete nodes: %w", err)
	}
	return tx.Commit(ctx)
}
