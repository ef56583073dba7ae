package task

import (
	"fmt"
	"time"
)

// DispatchError is a synchronous submission failure: bad payload or an
// unreachable backend.
type DispatchError struct {
	TaskID string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("task: dispatch %s: %v", e.TaskID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// RemoteTaskError is a job that reached a failed terminal state. Error
// returns the backend's message verbatim.
type RemoteTaskError struct {
	Handle  Handle
	Status  Status
	Message string
}

func (e *RemoteTaskError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("task %s %s", e.Handle.ID, e.Status)
}

// PollTimeoutError means the poll budget ran out before a terminal state.
type PollTimeoutError struct {
	Handle   Handle
	Attempts int
	Waited   time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %d checks (%s)", e.Handle.ID, e.Attempts, e.Waited.Round(time.Millisecond))
}

// InputError is a node whose resolved inputs and defaults cannot form a
// valid payload.
type InputError struct {
	Handle string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %q: %s", e.Handle, e.Reason)
}
