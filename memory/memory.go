// Package memory implements flow.Recorder and flow.GraphStore in process
// memory. It backs tests and single-process demos; nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meikuraledutech/flow"
)

// Store is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	runs      map[string]*flow.Run
	execs     map[string]map[string]*flow.NodeExecution // runID -> nodeID
	workflows map[string]flow.Workflow
	now       func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		runs:      make(map[string]*flow.Run),
		execs:     make(map[string]map[string]*flow.NodeExecution),
		workflows: make(map[string]flow.Workflow),
		now:       time.Now,
	}
}

// StartRun stores a copy of run, filling in a missing ID, creation time and status.
func (s *Store) StartRun(_ context.Context, run *flow.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}
	if run.Status == "" {
		run.Status = flow.StatusPending
	}
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("memory: run %s already exists", run.ID)
	}
	cp := *run
	cp.Nodes = nil
	s.runs[run.ID] = &cp
	s.execs[run.ID] = make(map[string]*flow.NodeExecution)
	return nil
}

// SetRunStatus returns flow.ErrRunNotFound for an unknown run.
func (s *Store) SetRunStatus(_ context.Context, runID string, status flow.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return flow.ErrRunNotFound
	}
	r.Status = status
	return nil
}

// CompleteRun sets a terminal status and the completion time.
func (s *Store) CompleteRun(_ context.Context, runID string, status flow.Status) error {
	if !status.Terminal() {
		return fmt.Errorf("memory: complete run with non-terminal status %s", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return flow.ErrRunNotFound
	}
	now := s.now().UTC()
	r.Status = status
	r.CompletedAt = &now
	return nil
}

// LogNodeStart and LogNodeFinish share one upsert keyed by (run, node).
func (s *Store) LogNodeStart(_ context.Context, exec *flow.NodeExecution) error {
	return s.upsert(exec)
}

// LogNodeFinish overwrites the record of (exec.RunID, exec.NodeID).
func (s *Store) LogNodeFinish(_ context.Context, exec *flow.NodeExecution) error {
	return s.upsert(exec)
}

func (s *Store) upsert(exec *flow.NodeExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byNode, ok := s.execs[exec.RunID]
	if !ok {
		return flow.ErrRunNotFound
	}
	prev, exists := byNode[exec.NodeID]
	switch {
	case exists:
		exec.ID = prev.ID
	case exec.ID == "":
		exec.ID = uuid.NewString()
	}
	cp := *exec
	cp.Inputs = slices.Clone(exec.Inputs)
	cp.Outputs = slices.Clone(exec.Outputs)
	if exists {
		if cp.Inputs == nil {
			cp.Inputs = prev.Inputs
		}
		if cp.StartTime.IsZero() {
			cp.StartTime = prev.StartTime
		}
	}
	byNode[exec.NodeID] = &cp
	return nil
}

// GetRuns returns copies, newest run first, executions in start order.
func (s *Store) GetRuns(_ context.Context, workflowID string) ([]flow.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := []flow.Run{}
	for _, r := range s.runs {
		if r.WorkflowID != workflowID {
			continue
		}
		cp := *r
		cp.Nodes = []flow.NodeExecution{}
		for _, e := range s.execs[r.ID] {
			cp.Nodes = append(cp.Nodes, *e)
		}
		sort.SliceStable(cp.Nodes, func(i, j int) bool {
			return cp.Nodes[i].StartTime.Before(cp.Nodes[j].StartTime)
		})
		runs = append(runs, cp)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// ClearRuns drops every run of the workflow with its executions.
func (s *Store) ClearRuns(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.runs {
		if r.WorkflowID == workflowID {
			delete(s.execs, id)
			delete(s.runs, id)
		}
	}
	return nil
}

// SaveWorkflow replaces the stored graph after validating it.
func (s *Store) SaveWorkflow(_ context.Context, w *flow.Workflow) error {
	if _, err := flow.NewGraph(w.Nodes, w.Edges); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = flow.Workflow{
		ID:    w.ID,
		Nodes: slices.Clone(w.Nodes),
		Edges: slices.Clone(w.Edges),
	}
	return nil
}

// GetWorkflow returns nil, nil if the workflow was never saved.
func (s *Store) GetWorkflow(_ context.Context, id string) (*flow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, nil
	}
	w.Nodes = slices.Clone(w.Nodes)
	w.Edges = slices.Clone(w.Edges)
	return &w, nil
}

// DeleteWorkflow is a no-op for unknown IDs.
func (s *Store) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workflows, id)
	return nil
}
