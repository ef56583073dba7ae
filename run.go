package flow

import (
	"time"

	"github.com/meikuraledutech/flow/internal/xjson"
)

// Scope says which nodes a run targets.
type Scope string

const (
	ScopeSingle  Scope = "SINGLE"
	ScopePartial Scope = "PARTIAL"
	ScopeFull    Scope = "FULL"
)

func (s Scope) Valid() bool {
	return s == ScopeSingle || s == ScopePartial || s == ScopeFull
}

// Status is shared by runs and node executions.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether s is SUCCESS or FAILED.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Run is one execution attempt over a node subset of a workflow.
type Run struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflowId"`
	Scope       Scope           `json:"scope"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Nodes       []NodeExecution `json:"nodes"`
}

// NodeExecution is the record of one node within one run. There is at most
// one per (RunID, NodeID).
type NodeExecution struct {
	ID         string           `json:"id"`
	RunID      string           `json:"runId"`
	NodeID     string           `json:"nodeId"`
	NodeType   NodeType         `json:"nodeType"`
	NodeLabel  string           `json:"nodeLabel"`
	Status     Status           `json:"status"`
	Inputs     xjson.RawMessage `json:"inputs,omitempty"`
	Outputs    xjson.RawMessage `json:"outputs,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartTime  time.Time        `json:"startTime"`
	EndTime    *time.Time       `json:"endTime,omitempty"`
	DurationMs *int64           `json:"duration,omitempty"`
}

// Finish stamps the terminal state, end time and duration.
func (e *NodeExecution) Finish(status Status, end time.Time) {
	e.Status = status
	e.EndTime = &end
	d := end.Sub(e.StartTime).Milliseconds()
	e.DurationMs = &d
}
