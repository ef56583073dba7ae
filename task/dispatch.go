package task

import (
	"context"
	"log/slog"

	"github.com/meikuraledutech/flow"
)

// Dispatcher submits nodes to a Backend.
type Dispatcher struct {
	backend Backend
	logger  *slog.Logger
}

// NewDispatcher returns a Dispatcher; a nil logger discards output.
func NewDispatcher(b Backend, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{backend: b, logger: logger}
}

// Dispatch submits the task for n and returns its handle without waiting.
// It returns nil, nil for node types that do not use the backend.
func (d *Dispatcher) Dispatch(ctx context.Context, n flow.Node, in flow.Inputs) (*Handle, error) {
	taskID, payload, ok, err := BuildPayload(n, in)
	if !ok {
		return nil, nil
	}
	if err != nil {
		return nil, &DispatchError{TaskID: taskID, Err: err}
	}
	h, err := d.backend.Submit(ctx, taskID, payload)
	if err != nil {
		return nil, &DispatchError{TaskID: taskID, Err: err}
	}
	if h.TaskID == "" {
		h.TaskID = taskID
	}
	d.logger.Debug("task submitted", "node_id", n.ID, "task_id", taskID, "handle", h.ID)
	return &h, nil
}
