package trigger

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/meikuraledutech/flow/internal/xjson"
	"github.com/meikuraledutech/flow/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/tasks/media-crop-image/trigger", r.URL.Path)
		assert.Equal(t, "Bearer tr_dev_123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		assert.NoError(t, xjson.Unmarshal(b, &gotBody))
		w.Write([]byte(`{"id":"run_abc"}`))
	}))
	defer srv.Close()

	c := New("tr_dev_123", WithBaseURL(srv.URL+"/"))
	h, err := c.Submit(context.Background(), task.CropImageTaskID, task.CropImagePayload{
		ImageURL: "https://x/a.png",
		Crop:     task.Crop{X: 10, Y: 0, Width: 50, Height: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, task.Handle{ID: "run_abc", TaskID: task.CropImageTaskID}, h)
	assert.Equal(t, map[string]any{
		"payload": map[string]any{
			"imageUrl": "https://x/a.png",
			"crop":     map[string]any{"x": 10.0, "y": 0.0, "width": 50.0, "height": 100.0},
		},
	}, gotBody)
}

func TestSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	_, err := New("bad", WithBaseURL(srv.URL)).Submit(context.Background(), task.LLMTaskID, task.LLMPayload{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid api key")
}

func TestSubmitWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := New("k", WithBaseURL(srv.URL)).Submit(context.Background(), task.LLMTaskID, nil)
	assert.ErrorContains(t, err, "no run id")
}

func TestRetrieve(t *testing.T) {
	tests := []struct {
		name string
		body string
		want task.Run
	}{
		{
			name: "completed",
			body: `{"id":"run_1","status":"COMPLETED","output":{"imageUrl":"https://x/f.png"},"taskIdentifier":"media-extract-frame"}`,
			want: task.Run{ID: "run_1", Status: task.StatusCompleted, Output: []byte(`{"imageUrl":"https://x/f.png"}`)},
		},
		{
			name: "crashed",
			body: `{"id":"run_1","status":"CRASHED","error":{"message":"ffmpeg failed","name":"Error"}}`,
			want: task.Run{ID: "run_1", Status: task.StatusCrashed, Error: &task.RunError{Message: "ffmpeg failed", Name: "Error"}},
		},
		{
			name: "executing without id",
			body: `{"status":"EXECUTING"}`,
			want: task.Run{ID: "run_1", Status: task.StatusExecuting},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/v3/runs/run_1", r.URL.Path)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := New("k", WithBaseURL(srv.URL)).Retrieve(context.Background(), task.Handle{ID: "run_1"})
			require.NoError(t, err)
			assert.Equal(t, tt.want.ID, got.ID)
			assert.Equal(t, tt.want.Status, got.Status)
			assert.Equal(t, tt.want.Error, got.Error)
			if tt.want.Output != nil {
				assert.JSONEq(t, string(tt.want.Output), string(got.Output))
			} else {
				assert.Empty(t, got.Output)
			}
		})
	}
}

func TestPollerOverClient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Write([]byte(`{"id":"run_1","status":"EXECUTING"}`))
			return
		}
		w.Write([]byte(`{"id":"run_1","status":"COMPLETED","output":{"text":"done"}}`))
	}))
	defer srv.Close()

	p := task.NewPoller(New("k", WithBaseURL(srv.URL)), task.PollPolicy{FastInterval: 1, Interval: 1, MaxAttempts: 10}, nil)
	out, err := p.Await(context.Background(), task.Handle{ID: "run_1"})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}
