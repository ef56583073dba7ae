package task

import (
	"context"
	"errors"
	"sync"
)

// scriptedBackend answers Retrieve from a fixed script, repeating the last entry.
type scriptedBackend struct {
	mu        sync.Mutex
	submitted []submission
	submitErr error
	script    []retrieveResult
	calls     int
}

type submission struct {
	TaskID  string
	Payload any
}

type retrieveResult struct {
	run Run
	err error
}

func (b *scriptedBackend) Submit(_ context.Context, taskID string, payload any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return Handle{}, b.submitErr
	}
	b.submitted = append(b.submitted, submission{TaskID: taskID, Payload: payload})
	return Handle{ID: "run_1"}, nil
}

func (b *scriptedBackend) Retrieve(_ context.Context, h Handle) (Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.script) == 0 {
		return Run{}, errors.New("no script")
	}
	i := b.calls
	if i >= len(b.script) {
		i = len(b.script) - 1
	}
	b.calls++
	r := b.script[i]
	r.run.ID = h.ID
	return r.run, r.err
}
