package memory

import (
	"context"
	"testing"

	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/internal/recordertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	recordertest.Run(t, func(*testing.T) flow.Recorder { return New() })
}

func TestWorkflowStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	got, err := s.GetWorkflow(ctx, "wf")
	require.NoError(t, err)
	assert.Nil(t, got)

	w := &flow.Workflow{
		ID: "wf",
		Nodes: []flow.Node{
			flow.NewNode("t", flow.TextData{Label: "Hello"}),
			flow.NewNode("l", flow.LLMData{}),
		},
		Edges: []flow.Edge{{ID: "e1", Source: "t", Target: "l", TargetHandle: "user"}},
	}
	require.NoError(t, s.SaveWorkflow(ctx, w))

	got, err = s.GetWorkflow(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, w, got)

	got.Nodes[0] = flow.NewNode("t", flow.TextData{Label: "changed"})
	again, err := s.GetWorkflow(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, flow.TextData{Label: "Hello"}, again.Nodes[0].Data)

	require.NoError(t, s.DeleteWorkflow(ctx, "wf"))
	got, err = s.GetWorkflow(ctx, "wf")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveWorkflowRejectsOccupiedHandle(t *testing.T) {
	s := New()
	err := s.SaveWorkflow(context.Background(), &flow.Workflow{
		ID:    "wf",
		Nodes: []flow.Node{flow.NewNode("a", flow.TextData{}), flow.NewNode("l", flow.LLMData{})},
		Edges: []flow.Edge{
			{Source: "a", Target: "l", TargetHandle: "user"},
			{Source: "a", Target: "l", TargetHandle: "user"},
		},
	})
	assert.ErrorIs(t, err, flow.ErrHandleOccupied)
}
