package expo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/expobuild/pkg/manifest"
)

// scriptedSource returns one scripted response per call, repeating the last.
type scriptedSource struct {
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	jobs []Job
	err  error
}

func (s *scriptedSource) FetchJobs(_ context.Context, _ manifest.Manifest) ([]Job, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	r := s.responses[idx]
	return r.jobs, r.err
}

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func inProgress() scriptedResponse {
	return scriptedResponse{jobs: []Job{{ID: "job-1", Platform: PlatformIOS, Status: StatusInProgress}}}
}

func finished(url string) scriptedResponse {
	return scriptedResponse{jobs: []Job{{ID: "job-1", Platform: PlatformIOS, Status: StatusFinished, Artifacts: &Artifacts{URL: url}}}}
}

func newTestPoller(src JobSource, clock *fakeClock, cfg PollConfig, opts ...PollerOption) *Poller {
	opts = append([]PollerOption{WithClock(clock.Now), WithSleeper(clock.Sleep)}, opts...)
	return NewPoller(src, cfg, opts...)
}

func TestPoller_FinishedImmediately(t *testing.T) {
	src := &scriptedSource{responses: []scriptedResponse{finished("https://x/a.ipa")}}
	clock := newFakeClock()

	res, err := newTestPoller(src, clock, PollConfig{}).Wait(context.Background(), testManifest())
	require.NoError(t, err)

	assert.True(t, res.Success())
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "https://x/a.ipa", res.Job.ArtifactURL())
	assert.Equal(t, 1, res.Polls)
	assert.Empty(t, clock.sleeps)
	assert.NoError(t, res.Err())
}

func TestPoller_InProgressThenFinished(t *testing.T) {
	src := &scriptedSource{responses: []scriptedResponse{
		inProgress(),
		inProgress(),
		finished("https://x/a.ipa"),
	}}
	clock := newFakeClock()

	var ticks []PollTick
	p := newTestPoller(src, clock, PollConfig{Interval: time.Second},
		WithTickObserver(func(t PollTick) { ticks = append(ticks, t) }))

	res, err := p.Wait(context.Background(), testManifest())
	require.NoError(t, err)

	assert.True(t, res.Success())
	assert.Equal(t, "https://x/a.ipa", res.Job.ArtifactURL())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.sleeps)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, 3, res.Polls)
	require.Len(t, ticks, 2)
	assert.Equal(t, 1, ticks[0].Attempt)
	assert.Equal(t, 2, ticks[1].Attempt)
}

func TestPoller_UnknownStatusAbortsOnFirstObservation(t *testing.T) {
	for _, status := range []Status{"errored", "canceled", ""} {
		t.Run(string(status), func(t *testing.T) {
			src := &scriptedSource{responses: []scriptedResponse{
				{jobs: []Job{{ID: "job-1", Status: status}}},
				finished("https://x/never.ipa"),
			}}
			clock := newFakeClock()

			res, err := newTestPoller(src, clock, PollConfig{}).Wait(context.Background(), testManifest())
			require.NoError(t, err)

			assert.False(t, res.Success())
			assert.Equal(t, OutcomeAborted, res.Outcome)
			assert.Contains(t, res.Reason, "unknown status")
			assert.Equal(t, 1, src.calls, "unknown status must never be retried")
			assert.Empty(t, clock.sleeps)
			assert.True(t, errors.Is(res.Err(), ErrUnknownStatus))
		})
	}
}

func TestPoller_TimesOut(t *testing.T) {
	src := &scriptedSource{responses: []scriptedResponse{inProgress()}}
	clock := newFakeClock()
	start := clock.Now()

	cfg := PollConfig{Timeout: 10 * time.Second, Interval: 3 * time.Second}
	res, err := newTestPoller(src, clock, cfg).Wait(context.Background(), testManifest())
	require.NoError(t, err)

	assert.False(t, res.Success())
	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.True(t, errors.Is(res.Err(), ErrTimeout))

	// Polls at t=0,3,6,9,10; the last sleep is clamped to the deadline.
	assert.Equal(t, 5, src.calls)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second, time.Second}, clock.sleeps)
	assert.False(t, clock.Now().After(start.Add(cfg.Timeout)), "must not run past the deadline")
}

func TestPoller_ZeroRemainingStillPollsOnce(t *testing.T) {
	src := &scriptedSource{responses: []scriptedResponse{finished("https://x/a.apk")}}
	clock := newFakeClock()

	res, err := newTestPoller(src, clock, PollConfig{Timeout: time.Nanosecond, Interval: time.Hour}).
		Wait(context.Background(), testManifest())
	require.NoError(t, err)
	assert.True(t, res.Success())
}

func TestPoller_EmptyJobListIsError(t *testing.T) {
	src := &scriptedSource{responses: []scriptedResponse{{jobs: []Job{}}}}
	clock := newFakeClock()

	res, err := newTestPoller(src, clock, PollConfig{}).Wait(context.Background(), testManifest())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, IsNoJobs(err))
}

func TestPoller_FetchErrorPropagates(t *testing.T) {
	transient := &APIError{StatusCode: 503}
	src := &scriptedSource{responses: []scriptedResponse{{err: transient}}}
	clock := newFakeClock()

	_, err := newTestPoller(src, clock, PollConfig{}).Wait(context.Background(), testManifest())
	require.Error(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestPoller_RetryTransient(t *testing.T) {
	src := &scriptedSource{responses: []scriptedResponse{
		{err: &APIError{StatusCode: 503}},
		{err: ErrTransport},
		finished("https://x/a.ipa"),
	}}
	clock := newFakeClock()

	res, err := newTestPoller(src, clock, PollConfig{Interval: time.Second, RetryTransient: true}).
		Wait(context.Background(), testManifest())
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, 3, src.calls)
}

func TestPoller_RetryTransientDoesNotHideFatalErrors(t *testing.T) {
	src := &scriptedSource{responses: []scriptedResponse{{err: &APIError{StatusCode: 401, Message: "not logged in"}}}}
	clock := newFakeClock()

	_, err := newTestPoller(src, clock, PollConfig{RetryTransient: true}).Wait(context.Background(), testManifest())
	require.Error(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestPoller_ContextCanceledDuringSleep(t *testing.T) {
	src := &scriptedSource{responses: []scriptedResponse{inProgress()}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPoller(src, PollConfig{Interval: time.Hour})
	_, err := p.Wait(ctx, testManifest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPoller_FinishedWithoutArtifact(t *testing.T) {
	tests := []struct {
		name string
		job  Job
	}{
		{name: "nil artifacts", job: Job{ID: "j", Platform: PlatformIOS, Status: StatusFinished}},
		{name: "empty url", job: Job{ID: "j", Platform: PlatformIOS, Status: StatusFinished, Artifacts: &Artifacts{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &scriptedSource{responses: []scriptedResponse{{jobs: []Job{tt.job}}}}
			clock := newFakeClock()

			res, err := newTestPoller(src, clock, PollConfig{}).Wait(context.Background(), testManifest())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, ErrMissingArtifact))
			assert.True(t, IsMissingArtifact(err))
			assert.Equal(t, 1, src.calls)
			assert.Empty(t, clock.sleeps)
		})
	}
}

func TestPoller_LogsDistinguishOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		src     *scriptedSource
		cfg     PollConfig
		message string
	}{
		{
			name:    "success",
			src:     &scriptedSource{responses: []scriptedResponse{finished("https://x/a.ipa")}},
			message: "Artifact built: https://x/a.ipa",
		},
		{
			name:    "unknown",
			src:     &scriptedSource{responses: []scriptedResponse{{jobs: []Job{{Status: "weird"}}}}},
			message: "Unknown status: weird - aborting!",
		},
		{
			name:    "timeout",
			src:     &scriptedSource{responses: []scriptedResponse{inProgress()}},
			cfg:     PollConfig{Timeout: 2 * time.Second, Interval: time.Second},
			message: "Timeout reached! Project is taking longer than expected to finish building, aborting...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			clock := newFakeClock()

			_, err := newTestPoller(tt.src, clock, tt.cfg, WithLogger(zap.New(core))).Wait(context.Background(), testManifest())
			require.NoError(t, err)
			assert.Equal(t, 1, logs.FilterMessage(tt.message).Len())
		})
	}
}

func TestPoller_WaitMessageUsesSeconds(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	src := &scriptedSource{responses: []scriptedResponse{inProgress(), finished("https://x/a.ipa")}}
	clock := newFakeClock()

	_, err := newTestPoller(src, clock, PollConfig{Interval: 60 * time.Second}, WithLogger(zap.New(core))).
		Wait(context.Background(), testManifest())
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("Artifact still building, checking again in 60s ...").Len())
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(&scriptedSource{}, PollConfig{})
	assert.Equal(t, DefaultPollTimeout, p.cfg.Timeout)
	assert.Equal(t, DefaultPollInterval, p.cfg.Interval)
	assert.Equal(t, 900*time.Second, p.cfg.Timeout)
}

func TestPollResult_NilSafe(t *testing.T) {
	var r *PollResult
	assert.False(t, r.Success())
	assert.NoError(t, r.Err())
}
