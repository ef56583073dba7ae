// Package recordertest is a behavioural suite every flow.Recorder
// implementation must pass.
package recordertest

import (
	"context"
	"testing"
	"time"

	"github.com/meikuraledutech/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises r. newRecorder must return an empty recorder.
func Run(t *testing.T, newRecorder func(t *testing.T) flow.Recorder) {
	t.Run("run lifecycle", func(t *testing.T) { testLifecycle(t, newRecorder(t)) })
	t.Run("node upsert", func(t *testing.T) { testUpsert(t, newRecorder(t)) })
	t.Run("history order", func(t *testing.T) { testOrder(t, newRecorder(t)) })
	t.Run("clear", func(t *testing.T) { testClear(t, newRecorder(t)) })
	t.Run("unknown run", func(t *testing.T) { testUnknownRun(t, newRecorder(t)) })
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func startRun(t *testing.T, r flow.Recorder, workflowID string, createdAt time.Time) *flow.Run {
	t.Helper()
	run := &flow.Run{WorkflowID: workflowID, Scope: flow.ScopeFull, Status: flow.StatusPending, CreatedAt: createdAt}
	require.NoError(t, r.StartRun(context.Background(), run))
	require.NotEmpty(t, run.ID)
	return run
}

func testLifecycle(t *testing.T, r flow.Recorder) {
	ctx := context.Background()
	run := startRun(t, r, "wf-1", base)

	require.NoError(t, r.SetRunStatus(ctx, run.ID, flow.StatusRunning))
	runs, err := r.GetRuns(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, flow.StatusRunning, runs[0].Status)
	assert.Nil(t, runs[0].CompletedAt)
	assert.Empty(t, runs[0].Nodes)

	require.NoError(t, r.CompleteRun(ctx, run.ID, flow.StatusSuccess))
	runs, err = r.GetRuns(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, flow.StatusSuccess, runs[0].Status)
	assert.Equal(t, flow.ScopeFull, runs[0].Scope)
	assert.NotNil(t, runs[0].CompletedAt)
	assert.True(t, runs[0].CreatedAt.Equal(base))
}

func testUpsert(t *testing.T, r flow.Recorder) {
	ctx := context.Background()
	run := startRun(t, r, "wf-1", base)

	exec := &flow.NodeExecution{
		RunID:     run.ID,
		NodeID:    "llm",
		NodeType:  flow.TypeLLM,
		NodeLabel: "Summarise",
		Status:    flow.StatusRunning,
		Inputs:    []byte(`{"userMessage":"Hello"}`),
		StartTime: base,
	}
	require.NoError(t, r.LogNodeStart(ctx, exec))

	finish := *exec
	finish.Outputs = []byte(`"Hi!"`)
	finish.Finish(flow.StatusSuccess, base.Add(1500*time.Millisecond))
	require.NoError(t, r.LogNodeFinish(ctx, &finish))
	// A second finish for the same node overwrites rather than duplicates.
	again := finish
	again.ID = ""
	again.Outputs = []byte(`"Hi again"`)
	require.NoError(t, r.LogNodeFinish(ctx, &again))

	runs, err := r.GetRuns(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Len(t, runs[0].Nodes, 1)

	got := runs[0].Nodes[0]
	assert.Equal(t, "llm", got.NodeID)
	assert.Equal(t, flow.TypeLLM, got.NodeType)
	assert.Equal(t, "Summarise", got.NodeLabel)
	assert.Equal(t, flow.StatusSuccess, got.Status)
	assert.JSONEq(t, `{"userMessage":"Hello"}`, string(got.Inputs))
	assert.JSONEq(t, `"Hi again"`, string(got.Outputs))
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, int64(1500), *got.DurationMs)
	require.NotNil(t, got.EndTime)
	assert.True(t, got.StartTime.Equal(base))
}

func testOrder(t *testing.T, r flow.Recorder) {
	ctx := context.Background()
	older := startRun(t, r, "wf-1", base)
	newer := startRun(t, r, "wf-1", base.Add(time.Minute))
	startRun(t, r, "wf-other", base.Add(2*time.Minute))

	for i, id := range []string{"c", "a", "b"} {
		require.NoError(t, r.LogNodeStart(ctx, &flow.NodeExecution{
			RunID: newer.ID, NodeID: id, NodeType: flow.TypeText, NodeLabel: id,
			Status: flow.StatusRunning, StartTime: base.Add(time.Duration(i) * time.Second),
		}))
	}

	runs, err := r.GetRuns(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)

	var order []string
	for _, n := range runs[0].Nodes {
		order = append(order, n.NodeID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, order)
}

func testClear(t *testing.T, r flow.Recorder) {
	ctx := context.Background()
	run := startRun(t, r, "wf-1", base)
	keep := startRun(t, r, "wf-2", base)
	require.NoError(t, r.LogNodeStart(ctx, &flow.NodeExecution{
		RunID: run.ID, NodeID: "a", NodeType: flow.TypeText, Status: flow.StatusRunning, StartTime: base,
	}))

	require.NoError(t, r.ClearRuns(ctx, "wf-1"))
	runs, err := r.GetRuns(ctx, "wf-1")
	require.NoError(t, err)
	assert.Empty(t, runs)

	runs, err = r.GetRuns(ctx, "wf-2")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, keep.ID, runs[0].ID)

	require.NoError(t, r.ClearRuns(ctx, "never-ran"))
}

func testUnknownRun(t *testing.T, r flow.Recorder) {
	ctx := context.Background()
	assert.ErrorIs(t, r.CompleteRun(ctx, "missing", flow.StatusFailed), flow.ErrRunNotFound)
	assert.ErrorIs(t, r.SetRunStatus(ctx, "missing", flow.StatusRunning), flow.ErrRunNotFound)
}
