package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meikuraledutech/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(max int) PollPolicy {
	return PollPolicy{
		FastInterval:      time.Millisecond,
		FastAttempts:      2,
		Interval:          2 * time.Millisecond,
		MaxAttempts:       max,
		MaxRetrieveErrors: 3,
	}
}

func TestAwaitCompleted(t *testing.T) {
	b := &scriptedBackend{script: []retrieveResult{
		{run: Run{Status: StatusQueued}},
		{run: Run{Status: StatusExecuting}},
		{run: Run{Status: StatusCompleted, Output: []byte(`{"text":"hi there"}`)}},
	}}
	out, err := NewPoller(b, fastPolicy(10), nil).Await(context.Background(), Handle{ID: "run_1"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
	assert.Equal(t, 3, b.calls)
}

func TestAwaitRemoteFailure(t *testing.T) {
	for _, status := range []Status{StatusFailed, StatusCanceled, StatusCrashed} {
		t.Run(string(status), func(t *testing.T) {
			b := &scriptedBackend{script: []retrieveResult{
				{run: Run{Status: StatusRunning}},
				{run: Run{Status: status, Error: &RunError{Message: "ffmpeg failed"}}},
			}}
			_, err := NewPoller(b, fastPolicy(10), nil).Await(context.Background(), Handle{ID: "run_1"})
			var remote *RemoteTaskError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, status, remote.Status)
			assert.Equal(t, "ffmpeg failed", err.Error())
		})
	}
}

func TestAwaitRemoteFailureWithoutMessage(t *testing.T) {
	b := &scriptedBackend{script: []retrieveResult{{run: Run{Status: StatusCrashed}}}}
	_, err := NewPoller(b, fastPolicy(10), nil).Await(context.Background(), Handle{ID: "run_9"})
	require.Error(t, err)
	assert.Equal(t, "task run_9 CRASHED", err.Error())
}

func TestAwaitTimeout(t *testing.T) {
	b := &scriptedBackend{script: []retrieveResult{{run: Run{Status: StatusRunning}}}}
	_, err := NewPoller(b, fastPolicy(5), nil).Await(context.Background(), Handle{ID: "run_1"})
	var timeout *PollTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 5, timeout.Attempts)
	assert.Equal(t, 5, b.calls)
}

func TestAwaitToleratesTransientRetrieveErrors(t *testing.T) {
	boom := errors.New("connection reset")
	b := &scriptedBackend{script: []retrieveResult{
		{err: boom},
		{err: boom},
		{run: Run{Status: StatusCompleted, Output: []byte(`"done"`)}},
	}}
	out, err := NewPoller(b, fastPolicy(10), nil).Await(context.Background(), Handle{ID: "run_1"})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestAwaitGivesUpOnRepeatedRetrieveErrors(t *testing.T) {
	boom := errors.New("connection refused")
	b := &scriptedBackend{script: []retrieveResult{{err: boom}}}
	_, err := NewPoller(b, fastPolicy(10), nil).Await(context.Background(), Handle{ID: "run_1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, b.calls)
}

func TestAwaitHonoursCancellation(t *testing.T) {
	b := &scriptedBackend{script: []retrieveResult{{run: Run{Status: StatusRunning}}}}
	ctx, cancel := context.WithCancel(context.Background())
	policy := fastPolicy(1000)
	policy.Interval = time.Hour
	policy.FastAttempts = 0

	done := make(chan error, 1)
	go func() {
		_, err := NewPoller(b, policy, nil).Await(ctx, Handle{ID: "run_1"})
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return after cancel")
	}
}

func TestPollPolicyIntervals(t *testing.T) {
	p := DefaultPollPolicy()
	assert.Equal(t, 500*time.Millisecond, p.wait(1))
	assert.Equal(t, 500*time.Millisecond, p.wait(10))
	assert.Equal(t, time.Second, p.wait(11))
}

func TestDispatch(t *testing.T) {
	b := &scriptedBackend{}
	d := NewDispatcher(b, nil)

	h, err := d.Dispatch(context.Background(), flow.NewNode("t", flow.TextData{Label: "x"}), flow.Inputs{})
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.Empty(t, b.submitted)

	h, err = d.Dispatch(context.Background(),
		flow.NewNode("f", flow.ExtractFrameData{VideoURL: "https://v"}), flow.Inputs{})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, Handle{ID: "run_1", TaskID: ExtractFrameTaskID}, *h)
	require.Len(t, b.submitted, 1)
	assert.Equal(t, ExtractFramePayload{VideoURL: "https://v", Timestamp: "0"}, b.submitted[0].Payload)
}

func TestDispatchErrors(t *testing.T) {
	b := &scriptedBackend{submitErr: errors.New("backend unreachable")}
	d := NewDispatcher(b, nil)

	_, err := d.Dispatch(context.Background(),
		flow.NewNode("f", flow.ExtractFrameData{VideoURL: "https://v"}), flow.Inputs{})
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, ExtractFrameTaskID, dispatchErr.TaskID)

	_, err = d.Dispatch(context.Background(), flow.NewNode("f", flow.ExtractFrameData{}), flow.Inputs{})
	var inErr *InputError
	require.ErrorAs(t, err, &inErr)
	require.ErrorAs(t, err, &dispatchErr, "a bad payload is a dispatch failure")
	assert.Equal(t, ExtractFrameTaskID, dispatchErr.TaskID)
	assert.Empty(t, b.submitted)
}
