package flow

import (
	"context"
	"errors"
)

var (
	ErrCycleDetected    = errors.New("flow: cycle detected, graph is not acyclic")
	ErrUnknownNodeType  = errors.New("flow: unknown node type")
	ErrDuplicateNode    = errors.New("flow: duplicate node id")
	ErrHandleOccupied   = errors.New("flow: target handle already connected")
	ErrRunNotFound      = errors.New("flow: run not found")
	ErrWorkflowNotFound = errors.New("flow: workflow not found")
)

// GraphStore persists editor graphs.
type GraphStore interface {
	// SaveWorkflow replaces the stored graph of w.ID.
	SaveWorkflow(ctx context.Context, w *Workflow) error
	// GetWorkflow returns nil, nil when nothing is stored under id.
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

// Recorder persists runs and node executions for the history view.
type Recorder interface {
	// StartRun inserts run, assigning ID and CreatedAt when empty.
	StartRun(ctx context.Context, run *Run) error
	SetRunStatus(ctx context.Context, runID string, status Status) error
	// LogNodeStart and LogNodeFinish upsert on (RunID, NodeID).
	LogNodeStart(ctx context.Context, exec *NodeExecution) error
	LogNodeFinish(ctx context.Context, exec *NodeExecution) error
	// CompleteRun sets a terminal status and the completion time.
	CompleteRun(ctx context.Context, runID string, status Status) error
	// GetRuns returns runs newest first, each with its node executions
	// ordered by start time.
	GetRuns(ctx context.Context, workflowID string) ([]Run, error)
	// ClearRuns deletes every run and node execution of a workflow.
	ClearRuns(ctx context.Context, workflowID string) error
}
