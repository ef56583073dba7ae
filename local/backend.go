// Package local is an in-process task.Backend. Registered handlers run on
// goroutines bounded by a worker semaphore; jobs are polled exactly like a
// hosted backend's runs.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meikuraledutech/flow/internal/xjson"
	"github.com/meikuraledutech/flow/task"
	"golang.org/x/sync/semaphore"
)

var (
	ErrUnknownTask = errors.New("local: unknown task")
	ErrJobNotFound = errors.New("local: job not found")
	ErrClosed      = errors.New("local: backend closed")
)

// Handler executes one job. payload is the JSON the job was submitted with.
type Handler func(ctx context.Context, payload []byte) (any, error)

// Config sizes the backend.
type Config struct {
	// Workers bounds concurrently executing jobs.
	Workers int `yaml:"workers"`
	// MaxDuration applies to tasks registered without their own limit.
	MaxDuration time.Duration `yaml:"max_duration"`
	// Retention is how long a finished job stays retrievable.
	Retention time.Duration `yaml:"retention"`
}

func DefaultConfig() Config {
	return Config{Workers: 4, MaxDuration: 5 * time.Minute, Retention: time.Hour}
}

type registration struct {
	handler     Handler
	maxDuration time.Duration
}

type job struct {
	run      task.Run
	finished time.Time
}

// Backend implements task.Backend.
type Backend struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	sem    *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	tasks  map[string]registration
	jobs   map[string]*job
	closed bool
}

// New returns a Backend. Zero config fields take the defaults.
func New(cfg Config, logger *slog.Logger) *Backend {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = def.MaxDuration
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Backend{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		sem:    semaphore.NewWeighted(int64(cfg.Workers)),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]registration),
		jobs:   make(map[string]*job),
	}
}

// Register binds taskID to h. A zero maxDuration uses the configured default.
func (b *Backend) Register(taskID string, h Handler, maxDuration time.Duration) {
	if maxDuration <= 0 {
		maxDuration = b.cfg.MaxDuration
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks[taskID] = registration{handler: h, maxDuration: maxDuration}
}

// Submit encodes payload and starts the job in the background.
func (b *Backend) Submit(_ context.Context, taskID string, payload any) (task.Handle, error) {
	body, err := xjson.Marshal(payload)
	if err != nil {
		return task.Handle{}, fmt.Errorf("local: encode payload: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return task.Handle{}, ErrClosed
	}
	reg, ok := b.tasks[taskID]
	if !ok {
		return task.Handle{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	b.evictLocked()

	h := task.Handle{ID: "run_" + uuid.NewString(), TaskID: taskID}
	b.jobs[h.ID] = &job{run: task.Run{ID: h.ID, Status: task.StatusQueued}}
	b.wg.Add(1)
	go b.execute(h, reg, body)
	b.logger.Debug("job queued", "task_id", taskID, "handle", h.ID)
	return h, nil
}

// Retrieve returns a snapshot of the job.
func (b *Backend) Retrieve(_ context.Context, h task.Handle) (task.Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[h.ID]
	if !ok {
		return task.Run{}, fmt.Errorf("%w: %s", ErrJobNotFound, h.ID)
	}
	run := j.run
	if run.Error != nil {
		e := *run.Error
		run.Error = &e
	}
	return run, nil
}

// Close cancels running jobs, waits for their goroutines and rejects new
// submissions.
func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cancel()
	b.wg.Wait()
	return nil
}

func (b *Backend) execute(h task.Handle, reg registration, payload []byte) {
	defer b.wg.Done()
	log := b.logger.With("task_id", h.TaskID, "handle", h.ID)

	if err := b.sem.Acquire(b.ctx, 1); err != nil {
		b.finish(h.ID, task.StatusCanceled, nil, "backend closed before the job started")
		return
	}
	defer b.sem.Release(1)

	b.setStatus(h.ID, task.StatusExecuting)
	ctx, cancel := context.WithTimeout(b.ctx, reg.maxDuration)
	defer cancel()

	start := b.now()
	out, err := invoke(ctx, reg.handler, payload)
	elapsed := b.now().Sub(start)

	var panicErr *panicError
	switch {
	case errors.As(err, &panicErr):
		log.Error("job crashed", "panic", panicErr.value)
		b.finish(h.ID, task.StatusCrashed, nil, panicErr.Error())
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		log.Warn("job timed out", "max_duration", reg.maxDuration)
		b.finish(h.ID, task.StatusTimedOut, nil, fmt.Sprintf("exceeded max duration of %s", reg.maxDuration))
	case err != nil && b.ctx.Err() != nil:
		b.finish(h.ID, task.StatusCanceled, nil, err.Error())
	case err != nil:
		log.Warn("job failed", "error", err, "elapsed", elapsed)
		b.finish(h.ID, task.StatusFailed, nil, err.Error())
	default:
		raw, err := xjson.MarshalRaw(out)
		if err != nil {
			b.finish(h.ID, task.StatusFailed, nil, "encode output: "+err.Error())
			return
		}
		log.Debug("job completed", "elapsed", elapsed)
		b.finish(h.ID, task.StatusCompleted, raw, "")
	}
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("task panicked: %v", e.value) }

func invoke(ctx context.Context, h Handler, payload []byte) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &panicError{value: r}
		}
	}()
	return h(ctx, payload)
}

func (b *Backend) setStatus(id string, status task.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if j, ok := b.jobs[id]; ok {
		j.run.Status = status
	}
}

func (b *Backend) finish(id string, status task.Status, output xjson.RawMessage, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[id]
	if !ok {
		return
	}
	j.run.Status = status
	j.run.Output = output
	if message != "" {
		j.run.Error = &task.RunError{Message: message, Name: "Error"}
	}
	j.finished = b.now()
}

// evictLocked drops finished jobs older than the retention window.
func (b *Backend) evictLocked() {
	cutoff := b.now().Add(-b.cfg.Retention)
	for id, j := range b.jobs {
		if !j.finished.IsZero() && j.finished.Before(cutoff) {
			delete(b.jobs, id)
		}
	}
}
