// Package engine runs workflow graphs: it orders the targeted nodes,
// resolves their inputs, executes them one at a time through the task
// backend and records every step, stopping at the first failure.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/internal/xjson"
	"github.com/meikuraledutech/flow/task"
)

// ErrInvalidRequest is returned before anything is recorded when a request
// names no nodes, unknown nodes, or an unknown scope.
var ErrInvalidRequest = errors.New("engine: invalid run request")

// Request is a snapshot of the editor graph plus the nodes to execute.
type Request struct {
	WorkflowID string
	Scope      flow.Scope
	// Nodes and Edges are the whole graph. Nodes outside Targets are never
	// executed but still feed their static data to targeted nodes.
	Nodes []flow.Node
	Edges []flow.Edge
	// Targets lists the node IDs for PARTIAL (one or more) and SINGLE
	// (exactly one) runs. FULL runs execute every node.
	Targets []string
}

// Result is what a run produced. Outputs holds the canonical output of every
// node that succeeded with a value, keyed by node ID.
type Result struct {
	RunID   string
	Status  flow.Status
	Outputs map[string]any
}

// NodeError reports the node that stopped a run.
type NodeError struct {
	NodeID   string
	NodeType flow.NodeType
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("engine: node %s (%s): %v", e.NodeID, e.NodeType, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Dispatcher submits a node as a remote task. A nil handle means the node
// runs locally.
type Dispatcher interface {
	Dispatch(ctx context.Context, n flow.Node, in flow.Inputs) (*task.Handle, error)
}

// Awaiter blocks until a dispatched task reaches a terminal state.
type Awaiter interface {
	Await(ctx context.Context, h task.Handle) (any, error)
}

// Engine executes runs. It holds no per-run state, so one Engine serves
// concurrent runs.
type Engine struct {
	dispatcher Dispatcher
	awaiter    Awaiter
	recorder   flow.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine from its collaborators.
func New(d Dispatcher, a Awaiter, r flow.Recorder, opts ...Option) *Engine {
	e := &Engine{
		dispatcher: d,
		awaiter:    a,
		recorder:   r,
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewWithBackend wires a Dispatcher and Poller over one backend.
func NewWithBackend(b task.Backend, policy task.PollPolicy, r flow.Recorder, opts ...Option) *Engine {
	e := New(nil, nil, r, opts...)
	e.dispatcher = task.NewDispatcher(b, e.logger)
	e.awaiter = task.NewPoller(b, policy, e.logger)
	return e
}

// Run executes req. Nodes run strictly one after another in topological
// order; the first failure is recorded, the run is finalized FAILED and the
// error is returned together with the outputs gathered so far.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	g, err := flow.NewGraph(req.Nodes, req.Edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	subset, err := targets(g, req)
	if err != nil {
		return nil, err
	}

	run := &flow.Run{WorkflowID: req.WorkflowID, Scope: req.Scope, Status: flow.StatusPending}
	if err := e.recorder.StartRun(ctx, run); err != nil {
		return nil, fmt.Errorf("engine: start run: %w", err)
	}
	log := e.logger.With("run_id", run.ID, "workflow_id", req.WorkflowID)
	res := &Result{RunID: run.ID, Status: flow.StatusRunning, Outputs: make(map[string]any)}

	runErr := e.recorder.SetRunStatus(ctx, run.ID, flow.StatusRunning)
	if runErr != nil {
		runErr = fmt.Errorf("engine: mark run running: %w", runErr)
	} else {
		log.Info("run started", "scope", req.Scope, "nodes", len(subset))
		produced := make(map[string]any, len(subset))
		runErr = e.execute(ctx, log, run.ID, g, subset, produced)
		for id, v := range produced {
			if v != nil {
				res.Outputs[id] = v
			}
		}
	}

	res.Status = flow.StatusSuccess
	if runErr != nil {
		res.Status = flow.StatusFailed
	}
	// Finalize even if the caller went away so history stays truthful.
	if err := e.recorder.CompleteRun(context.WithoutCancel(ctx), run.ID, res.Status); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("engine: complete run: %w", err))
	}
	if runErr != nil {
		log.Error("run failed", "error", runErr)
		return res, runErr
	}
	log.Info("run succeeded", "outputs", len(res.Outputs))
	return res, nil
}

func targets(g *flow.Graph, req Request) ([]flow.Node, error) {
	switch req.Scope {
	case flow.ScopeFull:
		nodes := g.Nodes()
		if len(nodes) == 0 {
			return nil, fmt.Errorf("%w: graph has no nodes", ErrInvalidRequest)
		}
		return nodes, nil
	case flow.ScopePartial, flow.ScopeSingle:
		if len(req.Targets) == 0 {
			return nil, fmt.Errorf("%w: %s run names no nodes", ErrInvalidRequest, req.Scope)
		}
		if req.Scope == flow.ScopeSingle && len(req.Targets) != 1 {
			return nil, fmt.Errorf("%w: SINGLE run names %d nodes", ErrInvalidRequest, len(req.Targets))
		}
		seen := make(map[string]bool, len(req.Targets))
		nodes := make([]flow.Node, 0, len(req.Targets))
		for _, id := range req.Targets {
			n, ok := g.Node(id)
			if !ok {
				return nil, fmt.Errorf("%w: unknown node %q", ErrInvalidRequest, id)
			}
			if !seen[id] {
				seen[id] = true
				nodes = append(nodes, n)
			}
		}
		return nodes, nil
	}
	return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidRequest, req.Scope)
}

func (e *Engine) execute(ctx context.Context, log *slog.Logger, runID string, g *flow.Graph, subset []flow.Node, outputs map[string]any) error {
	order, err := flow.Sort(subset, g.Edges())
	if err != nil {
		return fmt.Errorf("engine: order nodes: %w", err)
	}
	for _, n := range order {
		if err := e.executeNode(ctx, log, runID, g, n, outputs); err != nil {
			return err
		}
	}
	return nil
}

// executeNode records the start, performs the node, and records the
// outcome before returning, so node N is terminal before N+1 starts.
func (e *Engine) executeNode(ctx context.Context, log *slog.Logger, runID string, g *flow.Graph, n flow.Node, outputs map[string]any) error {
	log = log.With("node_id", n.ID, "node_type", n.Type)
	in := flow.Resolve(g, n.ID, outputs)

	exec := &flow.NodeExecution{
		RunID:     runID,
		NodeID:    n.ID,
		NodeType:  n.Type,
		NodeLabel: n.Label(),
		Status:    flow.StatusRunning,
		StartTime: e.now(),
	}
	inputs, err := xjson.MarshalRaw(in)
	if err != nil {
		return &NodeError{NodeID: n.ID, NodeType: n.Type, Err: fmt.Errorf("encode inputs: %w", err)}
	}
	exec.Inputs = inputs
	if err := e.recorder.LogNodeStart(ctx, exec); err != nil {
		return fmt.Errorf("engine: log start of %s: %w", n.ID, err)
	}
	log.Info("node started")

	out, nodeErr := e.perform(ctx, n, in)
	if nodeErr == nil {
		exec.Outputs, nodeErr = xjson.MarshalRaw(out)
	}

	finishCtx := context.WithoutCancel(ctx)
	if nodeErr != nil {
		exec.Error = nodeErr.Error()
		exec.Outputs = nil
		exec.Finish(flow.StatusFailed, e.now())
		if err := e.recorder.LogNodeFinish(finishCtx, exec); err != nil {
			nodeErr = errors.Join(nodeErr, fmt.Errorf("log finish: %w", err))
		}
		log.Warn("node failed", "error", exec.Error, "duration_ms", *exec.DurationMs)
		return &NodeError{NodeID: n.ID, NodeType: n.Type, Err: nodeErr}
	}

	exec.Finish(flow.StatusSuccess, e.now())
	if err := e.recorder.LogNodeFinish(finishCtx, exec); err != nil {
		return fmt.Errorf("engine: log finish of %s: %w", n.ID, err)
	}
	// A nil entry still marks the node as run.
	outputs[n.ID] = out
	log.Info("node succeeded", "duration_ms", *exec.DurationMs)
	return nil
}

func (e *Engine) perform(ctx context.Context, n flow.Node, in flow.Inputs) (any, error) {
	h, err := e.dispatcher.Dispatch(ctx, n, in)
	if err != nil {
		return nil, err
	}
	if h == nil {
		if n.Data == nil {
			return nil, nil
		}
		v, _ := n.Data.StaticOutput()
		return v, nil
	}
	return e.awaiter.Await(ctx, *h)
}
