package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/meikuraledutech/flow/task"
)

// FFmpeg runs the ffmpeg binary.
type FFmpeg struct {
	// Binary is a path or a name looked up in PATH. Empty means "ffmpeg".
	Binary string
}

// ExtractFrameArgs grabs a single frame at timestamp seconds.
func ExtractFrameArgs(in, out, timestamp string) []string {
	return []string{"-ss", timestamp, "-i", in, "-frames:v", "1", "-q:v", "2", "-y", out}
}

// CropFilter renders a percentage rectangle as an ffmpeg crop filter.
func CropFilter(c task.Crop) string {
	f := func(pct float64) string { return strconv.FormatFloat(pct/100, 'f', -1, 64) }
	return fmt.Sprintf("crop=iw*%s:ih*%s:iw*%s:ih*%s", f(c.Width), f(c.Height), f(c.X), f(c.Y))
}

func CropArgs(in, out string, c task.Crop) []string {
	return []string{"-i", in, "-vf", CropFilter(c), "-y", out}
}

// Run executes ffmpeg with args and checks that out was written.
func (f FFmpeg) Run(ctx context.Context, out string, args ...string) error {
	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %v (%s)", err, lastLine(stderr.String()))
	}
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		return fmt.Errorf("ffmpeg failed: no output produced")
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
