// Package task is the contract with the asynchronous task backend: the wire
// payloads of each media task, dispatching a node as a task, and polling the
// resulting job to a canonical output.
package task

import (
	"context"

	"github.com/meikuraledutech/flow/internal/xjson"
)

// Task identifiers understood by the backend.
const (
	LLMTaskID          = "llm-run-gemini"
	ExtractFrameTaskID = "media-extract-frame"
	CropImageTaskID    = "media-crop-image"
	UploadTaskID       = "media-upload"
)

// Handle identifies a submitted job. It is only meaningful as a polling key.
type Handle struct {
	ID     string `json:"id"`
	TaskID string `json:"taskId,omitempty"`
}

// Status is the backend's job state.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusQueued        Status = "QUEUED"
	StatusRunning       Status = "RUNNING"
	StatusExecuting     Status = "EXECUTING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
	StatusCanceled      Status = "CANCELED"
	StatusCrashed       Status = "CRASHED"
	StatusSystemFailure Status = "SYSTEM_FAILURE"
	StatusInterrupted   Status = "INTERRUPTED"
	StatusExpired       Status = "EXPIRED"
	StatusTimedOut      Status = "TIMED_OUT"
)

// Failed reports whether s is a terminal state without output.
func (s Status) Failed() bool {
	switch s {
	case StatusFailed, StatusCanceled, StatusCrashed, StatusSystemFailure,
		StatusInterrupted, StatusExpired, StatusTimedOut:
		return true
	}
	return false
}

// Terminal reports whether polling can stop at s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s.Failed()
}

// RunError is the error object the backend reports for a failed job.
type RunError struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
}

// Run is a snapshot of a job as returned by Retrieve.
type Run struct {
	ID     string           `json:"id"`
	Status Status           `json:"status"`
	Output xjson.RawMessage `json:"output,omitempty"`
	Error  *RunError        `json:"error,omitempty"`
}

// Backend is a remote asynchronous execution service.
type Backend interface {
	// Submit enqueues taskID with payload and returns without waiting.
	Submit(ctx context.Context, taskID string, payload any) (Handle, error)
	// Retrieve returns the current state of a job.
	Retrieve(ctx context.Context, h Handle) (Run, error)
}
