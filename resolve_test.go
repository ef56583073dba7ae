package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func mustGraph(t *testing.T, nodes []Node, edges []Edge) *Graph {
	t.Helper()
	g, err := NewGraph(nodes, edges)
	require.NoError(t, err)
	return g
}

func TestResolveStaticData(t *testing.T) {
	g := mustGraph(t,
		[]Node{
			NewNode("text", TextData{Label: "Hello"}),
			NewNode("sys", TextData{Label: "Be terse"}),
			NewNode("img", ImageData{ImageURL: "https://cdn/a.png"}),
			NewNode("llm", LLMData{}),
		},
		[]Edge{
			{Source: "text", Target: "llm", TargetHandle: "user"},
			{Source: "sys", Target: "llm", TargetHandle: "system"},
			{Source: "img", Target: "llm", TargetHandle: "images-0"},
		},
	)

	in := Resolve(g, "llm", map[string]any{})
	require.NotNil(t, in.UserMessage)
	assert.Equal(t, "Hello", *in.UserMessage)
	require.NotNil(t, in.SystemPrompt)
	assert.Equal(t, "Be terse", *in.SystemPrompt)
	assert.Equal(t, []string{"https://cdn/a.png"}, in.ImageURLs)
}

func TestResolvePrefersThisRunOutput(t *testing.T) {
	g := mustGraph(t,
		[]Node{
			NewNode("frame", ExtractFrameData{OutputImage: "https://old/frame.png"}),
			NewNode("crop", CropImageData{}),
		},
		[]Edge{{Source: "frame", Target: "crop", TargetHandle: "input"}},
	)

	stale := Resolve(g, "crop", nil)
	require.NotNil(t, stale.ImageURL)
	assert.Equal(t, "https://old/frame.png", *stale.ImageURL)

	fresh := Resolve(g, "crop", map[string]any{"frame": "https://new/frame.png"})
	require.NotNil(t, fresh.ImageURL)
	assert.Equal(t, "https://new/frame.png", *fresh.ImageURL)

	empty := Resolve(g, "crop", map[string]any{"frame": nil})
	assert.Nil(t, empty.ImageURL, "a source that ran without output hides its static data")
}

func TestResolveMissingEdgesOmitFields(t *testing.T) {
	g := mustGraph(t,
		[]Node{
			NewNode("llm", LLMData{}),
			NewNode("empty", TextData{}),
		},
		[]Edge{{Source: "empty", Target: "llm", TargetHandle: "user"}},
	)
	in := Resolve(g, "llm", nil)
	assert.Equal(t, Inputs{}, in)
}

func TestResolveNumericHandles(t *testing.T) {
	g := mustGraph(t,
		[]Node{
			NewNode("x", TextData{Label: "10"}),
			NewNode("y", TextData{Label: " 20 "}),
			NewNode("w", TextData{Label: "50%"}),
			NewNode("h", TextData{Label: "tall"}),
			NewNode("crop", CropImageData{}),
		},
		[]Edge{
			{Source: "x", Target: "crop", TargetHandle: "x"},
			{Source: "y", Target: "crop", TargetHandle: "y"},
			{Source: "w", Target: "crop", TargetHandle: "width"},
			{Source: "h", Target: "crop", TargetHandle: "height"},
		},
	)
	in := Resolve(g, "crop", map[string]any{"w": 50.0})
	assert.Equal(t, ptr(10.0), in.X)
	assert.Equal(t, ptr(20.0), in.Y)
	assert.Equal(t, ptr(50.0), in.Width)
	assert.Nil(t, in.Height)
}

func TestResolveOtherHandles(t *testing.T) {
	g := mustGraph(t,
		[]Node{
			NewNode("vid", VideoData{VideoURL: "https://cdn/v.mp4"}),
			NewNode("ts", TextData{Label: "3.5"}),
			NewNode("cfg", TextData{Label: "x: 1"}),
			NewNode("frame", ExtractFrameData{}),
			NewNode("crop", CropImageData{}),
		},
		[]Edge{
			{Source: "vid", Target: "frame", TargetHandle: "video-input"},
			{Source: "ts", Target: "frame", TargetHandle: "timestamp-input"},
			{Source: "cfg", Target: "crop", TargetHandle: "config-input"},
			{Source: "vid", Target: "crop", TargetHandle: "unknown-handle"},
		},
	)
	frame := Resolve(g, "frame", nil)
	assert.Equal(t, ptr("https://cdn/v.mp4"), frame.VideoURL)
	assert.Equal(t, ptr("3.5"), frame.Timestamp)

	crop := Resolve(g, "crop", nil)
	assert.Equal(t, ptr("x: 1"), crop.ConfigText)
	assert.Nil(t, crop.ImageURL)
}

func TestResolveNonStringOutput(t *testing.T) {
	g := mustGraph(t,
		[]Node{NewNode("llm", LLMData{}), NewNode("up", LLMData{})},
		[]Edge{{Source: "up", Target: "llm", TargetHandle: "user"}},
	)
	in := Resolve(g, "llm", map[string]any{"up": map[string]any{"answer": 42.0}})
	require.NotNil(t, in.UserMessage)
	assert.JSONEq(t, `{"answer":42}`, *in.UserMessage)

	in = Resolve(g, "llm", map[string]any{"up": 7})
	assert.Equal(t, ptr("7"), in.UserMessage)
}

func TestNewGraphRejectsOccupiedHandle(t *testing.T) {
	_, err := NewGraph(
		[]Node{NewNode("a", TextData{}), NewNode("b", TextData{}), NewNode("llm", LLMData{})},
		[]Edge{
			{Source: "a", Target: "llm", TargetHandle: "user"},
			{Source: "b", Target: "llm", TargetHandle: "user"},
		},
	)
	assert.ErrorIs(t, err, ErrHandleOccupied)

	_, err = NewGraph([]Node{NewNode("a", TextData{}), NewNode("a", TextData{})}, nil)
	assert.ErrorIs(t, err, ErrDuplicateNode)
}
