package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PollPolicy bounds how a job is awaited. The first FastAttempts checks are
// spaced by FastInterval, later ones by Interval.
type PollPolicy struct {
	FastInterval      time.Duration `yaml:"fast_interval"`
	FastAttempts      int           `yaml:"fast_attempts"`
	Interval          time.Duration `yaml:"interval"`
	MaxAttempts       int           `yaml:"max_attempts"`
	MaxRetrieveErrors int           `yaml:"max_retrieve_errors"`
}

// DefaultPollPolicy waits up to roughly ten minutes.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		FastInterval:      500 * time.Millisecond,
		FastAttempts:      10,
		Interval:          time.Second,
		MaxAttempts:       600,
		MaxRetrieveErrors: 3,
	}
}

func (p PollPolicy) wait(attempt int) time.Duration {
	if attempt <= p.FastAttempts {
		return p.FastInterval
	}
	return p.Interval
}

// Poller awaits jobs on a Backend.
type Poller struct {
	backend Backend
	policy  PollPolicy
	logger  *slog.Logger
}

// NewPoller returns a Poller. Zero policy fields take the defaults.
func NewPoller(b Backend, policy PollPolicy, logger *slog.Logger) *Poller {
	def := DefaultPollPolicy()
	if policy.FastInterval <= 0 {
		policy.FastInterval = def.FastInterval
	}
	if policy.FastAttempts < 0 {
		policy.FastAttempts = 0
	}
	if policy.Interval <= 0 {
		policy.Interval = def.Interval
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.MaxRetrieveErrors <= 0 {
		policy.MaxRetrieveErrors = def.MaxRetrieveErrors
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Poller{backend: b, policy: policy, logger: logger}
}

// Await polls h until it completes, fails, or the attempt budget is spent.
// A completed job's output is passed through Normalize.
func (p *Poller) Await(ctx context.Context, h Handle) (any, error) {
	var (
		waited   time.Duration
		failures int
		timer    *time.Timer
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			d := p.policy.wait(attempt - 1)
			if timer == nil {
				timer = time.NewTimer(d)
			} else {
				timer.Reset(d)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-timer.C:
			}
			waited += d
		}

		run, err := p.backend.Retrieve(ctx, h)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			p.logger.Warn("task retrieve failed", "handle", h.ID, "attempt", attempt, "error", err)
			if failures >= p.policy.MaxRetrieveErrors {
				return nil, fmt.Errorf("task: retrieve %s: %w", h.ID, err)
			}
			continue
		}
		failures = 0

		switch {
		case run.Status == StatusCompleted:
			return Normalize(run.Output)
		case run.Status.Failed():
			e := &RemoteTaskError{Handle: h, Status: run.Status}
			if run.Error != nil {
				e.Message = run.Error.Message
			}
			return nil, e
		}
	}
	return nil, &PollTimeoutError{Handle: h, Attempts: p.policy.MaxAttempts, Waited: waited}
}
