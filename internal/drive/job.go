package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Default job polling bounds.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMaxWait      = 5 * time.Minute
)

// JobState is the state of a server-side asynchronous operation.
type JobState int

// Job states.
const (
	JobPending JobState = iota
	JobCompleted
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	default:
		return "pending"
	}
}

// JobStatus is the decoded result of one poll. Code and Message describe a
// failed job.
type JobStatus struct {
	State   JobState
	Code    string
	Message string
}

// Job is a handle to a remote asynchronous operation. StatusURL is opaque to
// the poller; only the check function interprets it.
type Job struct {
	Op        string
	StatusURL string

	state JobState
	done  bool
}

// NewJob creates a handle for the job whose status lives at statusURL.
func NewJob(op, statusURL string) *Job {
	return &Job{Op: op, StatusURL: statusURL}
}

// State returns the last observed state.
func (j *Job) State() JobState {
	return j.state
}

// Done reports whether the job reached a terminal state.
func (j *Job) Done() bool {
	return j.done
}

// JobCheck performs one status round trip for a job.
type JobCheck func(ctx context.Context, job *Job) (JobStatus, error)

// Poller waits for jobs at a fixed interval up to a maximum wait.
type Poller struct {
	interval time.Duration
	maxWait  time.Duration
	logger   *slog.Logger

	// onPoll is called with the observed state after every poll attempt
	// ("error" when the poll itself failed).
	onPoll func(state string)

	sleepFunc func(ctx context.Context, d time.Duration) error
	nowFunc   func() time.Time
}

// NewPoller creates a Poller. Non-positive bounds fall back to the defaults.
func NewPoller(interval, maxWait time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}

	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	return &Poller{
		interval:  interval,
		maxWait:   maxWait,
		logger:    logger,
		sleepFunc: timeSleep,
		nowFunc:   time.Now,
	}
}

// OnPoll registers a hook called after every poll.
func (p *Poller) OnPoll(fn func(state string)) {
	p.onPoll = fn
}

// Await polls job until it completes, fails, or the maximum wait elapses.
//
// A poll that fails to decode, fails in transport, or hits a 5xx/429 is
// transient and polled again. Any other rejection of the status resource is
// surfaced at once. A failed job returns JobFailed with a
// *RemoteRejectedError. Running out of time returns *TimeoutError; the
// remote job keeps running either way, as it does when ctx is canceled.
func (p *Poller) Await(ctx context.Context, job *Job, check JobCheck) (JobState, error) {
	if job.done {
		return job.state, fmt.Errorf("awaiting %s: %w", job.Op, ErrJobFinished)
	}

	start := p.nowFunc()

	for polls := 1; ; polls++ {
		status, err := check(ctx, job)

		if err != nil {
			p.notify("error")

			if ctx.Err() != nil {
				return JobPending, fmt.Errorf("awaiting %s: %w", job.Op, ctx.Err())
			}

			if !transientPollError(err) {
				return JobPending, err
			}

			p.logger.Warn("job poll failed, will poll again",
				slog.String("op", job.Op),
				slog.Int("poll", polls),
				slog.String("error", err.Error()),
			)
		} else {
			p.notify(status.State.String())
			job.state = status.State

			switch status.State {
			case JobCompleted:
				job.done = true
				p.logger.Debug("job completed", slog.String("op", job.Op), slog.Int("polls", polls))

				return JobCompleted, nil
			case JobFailed:
				job.done = true

				code := status.Code
				if code == "" {
					code = "job_failed"
				}

				return JobFailed, &RemoteRejectedError{Code: code, Message: status.Message}
			case JobPending:
			}
		}

		elapsed := p.nowFunc().Sub(start)
		if elapsed >= p.maxWait {
			p.logger.Warn("job did not finish in time",
				slog.String("op", job.Op),
				slog.Int("polls", polls),
				slog.Duration("waited", elapsed),
			)

			return JobPending, &TimeoutError{Op: job.Op, Waited: elapsed, Polls: polls}
		}

		wait := min(p.interval, p.maxWait-elapsed)
		if err := p.sleepFunc(ctx, wait); err != nil {
			return JobPending, fmt.Errorf("awaiting %s: %w", job.Op, err)
		}
	}
}

func (p *Poller) notify(state string) {
	if p.onPoll != nil {
		p.onPoll(state)
	}
}

// transientPollError reports whether a failed poll is worth repeating.
func transientPollError(err error) bool {
	var rejected *RemoteRejectedError
	if errors.As(err, &rejected) {
		return rejected.Status == http.StatusTooManyRequests || rejected.Status >= http.StatusInternalServerError
	}

	return true
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
