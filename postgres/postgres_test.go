package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/internal/recordertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to DATABASE_URL and starts from empty tables.
func openTestStore(t *testing.T) *PGStore {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL is not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.CreateSchema(ctx))
	_, err = s.db.Exec(ctx, `TRUNCATE node_executions, workflow_runs, workflow_edges, workflow_nodes`)
	require.NoError(t, err)
	return s
}

func TestRecorder(t *testing.T) {
	recordertest.Run(t, func(t *testing.T) flow.Recorder { return openTestStore(t) })
}

func TestWorkflowRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	x := 10.0
	w := &flow.Workflow{
		ID: "wf-1",
		Nodes: []flow.Node{
			flow.NewNode("text", flow.TextData{Label: "Hello"}),
			flow.NewNode("crop", flow.CropImageData{Label: "Crop", X: &x}),
			flow.NewNode("frame", flow.ExtractFrameData{VideoURL: "https://v.mp4", Timestamp: "1.5"}),
		},
		Edges: []flow.Edge{
			{ID: "e1", Source: "frame", Target: "crop", TargetHandle: "input"},
			{Source: "text", Target: "crop", TargetHandle: "config-input"},
		},
	}
	require.NoError(t, s.SaveWorkflow(ctx, w))

	got, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, w.Nodes, got.Nodes)
	require.Len(t, got.Edges, 2)
	assert.Equal(t, w.Edges[0], got.Edges[0])
	assert.NotEmpty(t, got.Edges[1].ID)
	assert.Equal(t, "config-input", got.Edges[1].TargetHandle)

	// Replace semantics.
	w.Nodes = w.Nodes[:1]
	w.Edges = nil
	require.NoError(t, s.SaveWorkflow(ctx, w))
	got, err = s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 1)
	assert.Empty(t, got.Edges)

	require.NoError(t, s.DeleteWorkflow(ctx, "wf-1"))
	got, err = s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveWorkflowRejectsOccupiedHandle(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveWorkflow(context.Background(), &flow.Workflow{
		ID: "wf-1",
		Nodes: []flow.Node{
			flow.NewNode("a", flow.TextData{Label: "a"}),
			flow.NewNode("b", flow.TextData{Label: "b"}),
			flow.NewNode("llm", flow.LLMData{}),
		},
		Edges: []flow.Edge{
			{Source: "a", Target: "llm", TargetHandle: "user"},
			{Source: "b", Target: "llm", TargetHandle: "user"},
		},
	})
	assert.ErrorIs(t, err, flow.ErrHandleOccupied)
}

func TestLogNodeForUnknownRun(t *testing.T) {
	s := openTestStore(t)
	err := s.LogNodeStart(context.Background(), &flow.NodeExecution{
		RunID: "missing", NodeID: "a", NodeType: flow.TypeText, Status: flow.StatusRunning,
	})
	assert.ErrorIs(t, err, flow.ErrRunNotFound)
}
