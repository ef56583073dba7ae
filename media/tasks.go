// Package media implements the media tasks run by the in-process backend:
// the Gemini LLM call, frame extraction and cropping with ffmpeg, and file
// upload to object storage.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/meikuraledutech/flow/internal/xjson"
	"github.com/meikuraledutech/flow/local"
	"github.com/meikuraledutech/flow/task"
)

// ImageOutput is the output of the frame and crop tasks.
type ImageOutput struct {
	ImageURL string `json:"imageUrl"`
}

// URLOutput is the output of the upload task.
type URLOutput struct {
	URL string `json:"url"`
}

// Tasks holds the collaborators of the media task handlers.
type Tasks struct {
	Fetcher  *Fetcher
	FFmpeg   FFmpeg
	Uploader Uploader
	// LLM is optional; without it the LLM task is not registered.
	LLM *LLM
	// TempDir holds per-job scratch directories. Empty means os.TempDir().
	TempDir string
	Logger  *slog.Logger
}

// Register binds every task this Tasks can serve on b.
func (t *Tasks) Register(b *local.Backend) {
	if t.LLM != nil {
		b.Register(task.LLMTaskID, t.LLM.Run, 10*time.Minute)
	}
	// Every media task ends in an upload.
	if t.Uploader == nil {
		return
	}
	b.Register(task.ExtractFrameTaskID, t.ExtractFrame, 5*time.Minute)
	b.Register(task.CropImageTaskID, t.CropImage, 5*time.Minute)
	b.Register(task.UploadTaskID, t.Upload, 5*time.Minute)
}

// ExtractFrame decodes a task.ExtractFramePayload, grabs one frame and
// uploads it as PNG.
func (t *Tasks) ExtractFrame(ctx context.Context, payload []byte) (any, error) {
	var in task.ExtractFramePayload
	if err := xjson.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if in.Timestamp == "" {
		in.Timestamp = "0"
	}
	return t.withScratch(func(dir string) (any, error) {
		src := filepath.Join(dir, "input-vid.mp4")
		out := filepath.Join(dir, "output-frame.png")
		if err := t.fetcher().Save(ctx, in.VideoURL, src); err != nil {
			return nil, err
		}
		if err := t.FFmpeg.Run(ctx, out, ExtractFrameArgs(src, out, in.Timestamp)...); err != nil {
			return nil, err
		}
		u, err := t.Uploader.Upload(ctx, out, "frames/"+uuid.NewString()+".png", "image/png")
		if err != nil {
			return nil, err
		}
		return ImageOutput{ImageURL: u}, nil
	})
}

// CropImage decodes a task.CropImagePayload, crops the image and uploads
// the result as PNG.
func (t *Tasks) CropImage(ctx context.Context, payload []byte) (any, error) {
	var in task.CropImagePayload
	if err := xjson.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return t.withScratch(func(dir string) (any, error) {
		src := filepath.Join(dir, "input-crop.png")
		out := filepath.Join(dir, "output-crop.png")
		if err := t.fetcher().Save(ctx, in.ImageURL, src); err != nil {
			return nil, err
		}
		if err := t.FFmpeg.Run(ctx, out, CropArgs(src, out, in.Crop)...); err != nil {
			return nil, err
		}
		u, err := t.Uploader.Upload(ctx, out, "crops/"+uuid.NewString()+".png", "image/png")
		if err != nil {
			return nil, err
		}
		return ImageOutput{ImageURL: u}, nil
	})
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9.]`)

// Upload decodes a task.UploadPayload and stores its file.
func (t *Tasks) Upload(ctx context.Context, payload []byte) (any, error) {
	var in task.UploadPayload
	if err := xjson.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	name := unsafeName.ReplaceAllString(filepath.Base(in.FileName), "_")
	if name == "" || name == "." || name == "_" {
		name = "file"
	}
	return t.withScratch(func(dir string) (any, error) {
		path := filepath.Join(dir, name)
		if err := t.fetcher().Save(ctx, in.FileData, path); err != nil {
			return nil, err
		}
		contentType := mime.TypeByExtension(filepath.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		u, err := t.Uploader.Upload(ctx, path, "uploads/"+uuid.NewString()+"-"+name, contentType)
		if err != nil {
			return nil, err
		}
		return URLOutput{URL: u}, nil
	})
}

// withScratch runs fn with a fresh directory that is always removed.
func (t *Tasks) withScratch(fn func(dir string) (any, error)) (any, error) {
	dir, err := os.MkdirTemp(t.TempDir, "flow-media-*")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil && t.Logger != nil {
			t.Logger.Warn("remove scratch dir", "dir", dir, "error", err)
		}
	}()
	return fn(dir)
}

func (t *Tasks) fetcher() *Fetcher {
	if t.Fetcher == nil {
		return NewFetcher(nil)
	}
	return t.Fetcher
}
