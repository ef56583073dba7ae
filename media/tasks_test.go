package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meikuraledutech/flow/internal/xjson"
	"github.com/meikuraledutech/flow/local"
	"github.com/meikuraledutech/flow/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingUploader keeps what it was asked to store.
type recordingUploader struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (u *recordingUploader) Upload(_ context.Context, path, object, contentType string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.objects == nil {
		u.objects = map[string]string{}
		u.types = map[string]string{}
	}
	u.objects[object] = string(b)
	u.types[object] = contentType
	return "https://cdn.example/" + object, nil
}

func newTasks(t *testing.T, ffmpegOK bool) (*Tasks, *recordingUploader, string) {
	t.Helper()
	up := &recordingUploader{}
	scratch := t.TempDir()
	return &Tasks{FFmpeg: fakeFFmpeg(t, ffmpegOK), Uploader: up, TempDir: scratch}, up, scratch
}

func assertScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := xjson.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestExtractFrameTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video"))
	}))
	defer srv.Close()

	tasks, up, scratch := newTasks(t, true)
	out, err := tasks.ExtractFrame(context.Background(), mustJSON(t, task.ExtractFramePayload{VideoURL: srv.URL + "/v.mp4"}))
	require.NoError(t, err)

	img := out.(ImageOutput)
	assert.True(t, strings.HasPrefix(img.ImageURL, "https://cdn.example/frames/"))
	object := strings.TrimPrefix(img.ImageURL, "https://cdn.example/")
	assert.Equal(t, "frame", up.objects[object])
	assert.Equal(t, "image/png", up.types[object])
	assertScratchEmpty(t, scratch)
}

func TestCropImageTaskFailure(t *testing.T) {
	tasks, up, scratch := newTasks(t, false)
	_, err := tasks.CropImage(context.Background(), mustJSON(t, task.CropImagePayload{
		ImageURL: "data:image/png;base64,cG5n",
		Crop:     task.Crop{Width: 50, Height: 50},
	}))
	assert.ErrorContains(t, err, "ffmpeg failed")
	assert.Empty(t, up.objects)
	assertScratchEmpty(t, scratch)
}

func TestUploadTask(t *testing.T) {
	tasks, up, scratch := newTasks(t, true)
	out, err := tasks.Upload(context.Background(), mustJSON(t, task.UploadPayload{
		FileData: "data:text/plain;base64,aGVsbG8=",
		FileName: "../my notes.txt",
	}))
	require.NoError(t, err)

	u := out.(URLOutput)
	assert.True(t, strings.HasSuffix(u.URL, "-my_notes.txt"))
	object := strings.TrimPrefix(u.URL, "https://cdn.example/")
	assert.Equal(t, "hello", up.objects[object])
	assert.True(t, strings.HasPrefix(up.types[object], "text/plain"))
	assertScratchEmpty(t, scratch)
}

func TestTasksOnLocalBackend(t *testing.T) {
	tasks, _, _ := newTasks(t, true)
	tasks.LLM = NewLLM(&scriptedGenerator{}, nil)

	b := local.New(local.Config{}, nil)
	defer b.Close()
	tasks.Register(b)

	p := task.NewPoller(b, task.PollPolicy{FastInterval: time.Millisecond, Interval: time.Millisecond, MaxAttempts: 2000}, nil)

	h, err := b.Submit(context.Background(), task.LLMTaskID, task.LLMPayload{Model: "m", UserMessage: "Hi"})
	require.NoError(t, err)
	out, err := p.Await(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, "answer from m", out)

	h, err = b.Submit(context.Background(), task.CropImageTaskID, task.CropImagePayload{
		ImageURL: "data:image/png;base64,cG5n",
		Crop:     task.Crop{Width: 100, Height: 100},
	})
	require.NoError(t, err)
	out, err = p.Await(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.(string), "https://cdn.example/crops/"))
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example/media/frames/a%20b.png", publicURL("https://cdn.example/media/", "frames/a b.png"))
}

func TestMinIORequiresEndpoint(t *testing.T) {
	_, err := NewMinIO(MinIOConfig{})
	assert.Error(t, err)
}

var _ Uploader = (*MinIO)(nil)
