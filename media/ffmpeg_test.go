package media

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/meikuraledutech/flow/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCropFilter(t *testing.T) {
	assert.Equal(t, "crop=iw*0.5:ih*0.5:iw*0.1:ih*0.2", CropFilter(task.Crop{X: 10, Y: 20, Width: 50, Height: 50}))
	assert.Equal(t, "crop=iw*1:ih*1:iw*0:ih*0", CropFilter(task.Crop{Width: 100, Height: 100}))
	assert.Equal(t, "crop=iw*0.335:ih*0.125:iw*0.025:ih*0", CropFilter(task.Crop{X: 2.5, Width: 33.5, Height: 12.5}))
}

func TestArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"-ss", "1.5", "-i", "in.mp4", "-frames:v", "1", "-q:v", "2", "-y", "out.png"},
		ExtractFrameArgs("in.mp4", "out.png", "1.5"))
	assert.Equal(t,
		[]string{"-i", "in.png", "-vf", "crop=iw*0.5:ih*1:iw*0:ih*0", "-y", "out.png"},
		CropArgs("in.png", "out.png", task.Crop{Width: 50, Height: 100}))
}

// fakeFFmpeg writes a shell script standing in for ffmpeg. The working one
// writes "frame" into its last argument.
func fakeFFmpeg(t *testing.T, ok bool) FFmpeg {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	script := "#!/bin/sh\nfor last; do :; done\nprintf frame > \"$last\"\n"
	if !ok {
		script = "#!/bin/sh\necho 'Invalid data found when processing input' >&2\nexit 1\n"
	}
	p := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(p, []byte(script), 0o755))
	return FFmpeg{Binary: p}
}

func TestRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, fakeFFmpeg(t, true).Run(context.Background(), out, "-i", "x", out))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "frame", string(b))

	err = fakeFFmpeg(t, false).Run(context.Background(), out, "-i", "x", out)
	assert.ErrorContains(t, err, "ffmpeg failed")
	assert.ErrorContains(t, err, "Invalid data found when processing input")
}

func TestRunWithoutOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "never.png")
	err := fakeFFmpeg(t, true).Run(context.Background(), out, "-i", "x", filepath.Join(t.TempDir(), "elsewhere.png"))
	assert.EqualError(t, err, "ffmpeg failed: no output produced")
}
