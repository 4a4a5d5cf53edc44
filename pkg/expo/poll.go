package expo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/expobuild/pkg/manifest"
)

// Poll defaults.
const (
	DefaultPollTimeout  = 15 * time.Minute
	DefaultPollInterval = 60 * time.Second
)

// JobSource returns the current job list for a project, most recent first.
// *Client implements it.
type JobSource interface {
	FetchJobs(ctx context.Context, m manifest.Manifest) ([]Job, error)
}

var _ JobSource = (*Client)(nil)

// PollConfig configures the wait loop.
type PollConfig struct {
	// Timeout bounds the total wait. Zero uses DefaultPollTimeout.
	Timeout time.Duration

	// Interval is the pause between polls. Zero uses DefaultPollInterval.
	Interval time.Duration

	// RetryTransient keeps polling through transient fetch errors instead of
	// ending the wait.
	RetryTransient bool
}

// Outcome is the terminal state of a wait.
type Outcome string

// Terminal outcomes.
const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeAborted   Outcome = "aborted"
	OutcomeTimedOut  Outcome = "timed_out"
)

// PollResult describes how a wait ended.
type PollResult struct {
	Outcome Outcome
	Job     *Job
	Reason  string
	Polls   int
	Elapsed time.Duration
}

// Success reports whether the build finished.
func (r *PollResult) Success() bool {
	return r != nil && r.Outcome == OutcomeSucceeded
}

// Err returns the error matching a failed outcome, or nil on success.
func (r *PollResult) Err() error {
	if r == nil {
		return nil
	}
	switch r.Outcome {
	case OutcomeAborted:
		return fmt.Errorf("%w: %s", ErrUnknownStatus, r.Reason)
	case OutcomeTimedOut:
		return fmt.Errorf("%w after %s", ErrTimeout, r.Elapsed.Round(time.Second))
	default:
		return nil
	}
}

// PollTick is reported after every poll that keeps the engine waiting.
type PollTick struct {
	Attempt int
	Job     *Job
	Err     error
	NextIn  time.Duration
}

// Poller waits for the most recent build of a project to finish.
type Poller struct {
	source JobSource
	cfg    PollConfig
	logger *zap.Logger
	onTick func(PollTick)
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// PollerOption customises a Poller.
type PollerOption func(*Poller)

// WithLogger sets the logger used for wait messages.
func WithLogger(l *zap.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTickObserver registers a callback invoked after each non-terminal poll.
func WithTickObserver(fn func(PollTick)) PollerOption {
	return func(p *Poller) { p.onTick = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) PollerOption {
	return func(p *Poller) { p.now = now }
}

// WithSleeper replaces the context-aware sleep between polls.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) PollerOption {
	return func(p *Poller) { p.sleep = sleep }
}

// NewPoller creates a poll engine over source.
func NewPoller(source JobSource, cfg PollConfig, opts ...PollerOption) *Poller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPollTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	p := &Poller{
		source: source,
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait polls until the most recent job finishes, reports an unknown status,
// or the deadline passes. Fetch errors, an empty job list, a finished job
// without an artifact url, and context cancellation are returned as errors;
// every other ending is a PollResult.
func (p *Poller) Wait(ctx context.Context, m manifest.Manifest) (*PollResult, error) {
	start := p.now()
	deadline := start.Add(p.cfg.Timeout)
	polls := 0

	for !p.now().After(deadline) {
		polls++

		job, err := p.latest(ctx, m)
		if err != nil {
			if !p.cfg.RetryTransient || !IsTransient(err) {
				return nil, err
			}
			p.logger.Warn(fmt.Sprintf("Build status check failed, retrying in %s ...", p.cfg.Interval), zap.Error(err))
			p.tick(PollTick{Attempt: polls, Err: err, NextIn: p.cfg.Interval})
		} else {
			switch job.Status {
			case StatusFinished:
				if !job.HasArtifact() {
					p.logger.Error("Build finished without an artifact - aborting!", zap.String("job_id", job.ID))
					return nil, fmt.Errorf("%w: finished job %s has no artifact url", ErrMissingArtifact, job.ID)
				}
				p.logger.Info("Artifact built: "+job.ArtifactURL(), zap.String("job_id", job.ID))
				return &PollResult{Outcome: OutcomeSucceeded, Job: &job, Polls: polls, Elapsed: p.now().Sub(start)}, nil

			case StatusInProgress:
				p.logger.Info(fmt.Sprintf("Artifact still building, checking again in %s ...", formatSeconds(p.cfg.Interval)),
					zap.String("job_id", job.ID), zap.Int("poll", polls))
				p.tick(PollTick{Attempt: polls, Job: &job, NextIn: p.cfg.Interval})

			default:
				p.logger.Error(fmt.Sprintf("Unknown status: %s - aborting!", job.Status), zap.String("job_id", job.ID))
				return &PollResult{
					Outcome: OutcomeAborted,
					Job:     &job,
					Reason:  fmt.Sprintf("unknown status: %s", job.Status),
					Polls:   polls,
					Elapsed: p.now().Sub(start),
				}, nil
			}
		}

		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			break
		}
		if err := p.sleep(ctx, min(p.cfg.Interval, remaining)); err != nil {
			return nil, err
		}
	}

	p.logger.Error("Timeout reached! Project is taking longer than expected to finish building, aborting...")
	return &PollResult{
		Outcome: OutcomeTimedOut,
		Reason:  fmt.Sprintf("no finished build within %s", p.cfg.Timeout),
		Polls:   polls,
		Elapsed: p.now().Sub(start),
	}, nil
}

func (p *Poller) latest(ctx context.Context, m manifest.Manifest) (Job, error) {
	jobs, err := p.source.FetchJobs(ctx, m)
	if err != nil {
		return Job{}, err
	}
	return LatestJob(jobs)
}

func (p *Poller) tick(t PollTick) {
	if p.onTick != nil {
		p.onTick(t)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%gs", d.Seconds())
}
