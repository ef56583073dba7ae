package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/internal/xjson"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func insertNodes(ctx context.Context, tx pgx.Tx, workflowID string, nodes []flow.Node) error {
	for i, n := range nodes {
		data := []byte(`{}`)
		if n.Data != nil {
			b, err := xjson.Marshal(n.Data)
			if err != nil {
				return fmt.Errorf("postgres: encode node %s: %w", n.ID, err)
			}
			data = b
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO workflow_nodes (workflow_id, id, type, data, position) VALUES ($1, $2, $3, $4, $5)`,
			workflowID, n.ID, string(n.Type), data, i,
		); err != nil {
			return fmt.Errorf("postgres: insert node %s: %w", n.ID, err)
		}
	}
	return nil
}

// listNodes returns the nodes of a workflow in saved order.
// Returns an empty slice (not nil) if none found.
func listNodes(ctx context.Context, q querier, workflowID string) ([]flow.Node, error) {
	rows, err := q.Query(ctx,
		`SELECT id, type, data FROM workflow_nodes WHERE workflow_id = $1 ORDER BY position`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []flow.Node{}
	for rows.Next() {
		var (
			id, typ string
			data    []byte
		)
		if err := rows.Scan(&id, &typ, &data); err != nil {
			return nil, fmt.Errorf("postgres: scan node: %w", err)
		}
		n, err := flow.DecodeNode(id, flow.NodeType(typ), data)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows nodes: %w", err)
	}
	return nodes, nil
}
