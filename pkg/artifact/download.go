// Package artifact downloads build artifacts to local files.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/expobuild/pkg/expo"
)

// Downloader defaults.
const (
	DefaultConcurrency      = 4
	DefaultProgressInterval = 250 * time.Millisecond
)

// MissingArtifactError is returned when a job has no artifact URL.
type MissingArtifactError struct {
	JobID string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("no artifact found for job - %s", e.JobID)
}

// Unwrap allows errors.Is(err, expo.ErrMissingArtifact).
func (e *MissingArtifactError) Unwrap() error {
	return expo.ErrMissingArtifact
}

// HTTPError is returned when the artifact host answers with a non-2xx status.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("download %s: unexpected HTTP status %d", e.URL, e.StatusCode)
}

// Config configures a Downloader.
type Config struct {
	// HTTPClient performs the download. Nil uses a client without timeout,
	// since artifacts can be large.
	HTTPClient *http.Client

	// Progress receives human-readable progress lines. Nil disables them.
	Progress io.Writer

	// ProgressInterval throttles progress lines per download.
	ProgressInterval time.Duration

	// Concurrency bounds DownloadAll. Zero uses DefaultConcurrency.
	Concurrency int

	// Logger receives status messages. Nil disables logging.
	Logger *zap.Logger
}

// Downloader streams artifacts to disk.
type Downloader struct {
	http        *http.Client
	progress    io.Writer
	interval    time.Duration
	concurrency int
	logger      *zap.Logger
}

// NewDownloader creates a Downloader.
func NewDownloader(cfg Config) *Downloader {
	d := &Downloader{
		http:        cfg.HTTPClient,
		interval:    cfg.ProgressInterval,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
	if d.http == nil {
		d.http = &http.Client{}
	}
	if d.interval <= 0 {
		d.interval = DefaultProgressInterval
	}
	if d.concurrency <= 0 {
		d.concurrency = DefaultConcurrency
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if cfg.Progress != nil {
		d.progress = &lockedWriter{w: cfg.Progress}
	}
	return d
}

// FileName returns the local file name for a job's artifact.
func FileName(job expo.Job) string {
	return "app." + job.Platform.Extension()
}

// Download fetches the job's artifact into dir/app.<ext> and returns the path.
// The directory must exist. No request is made when the job has no URL.
func (d *Downloader) Download(ctx context.Context, job expo.Job, dir string) (string, error) {
	if !job.HasArtifact() {
		return "", &MissingArtifactError{JobID: job.ID}
	}
	url := job.ArtifactURL()
	target := filepath.Join(dir, FileName(job))

	d.logger.Info("Downloading artifact to "+target, zap.String("job_id", job.ID), zap.String("platform", string(job.Platform)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("download request: %w", err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(dir, "."+FileName(job)+"-*.part")
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	tracker := newProgressTracker(d.progress, FileName(job), resp.ContentLength, d.interval)
	written, err := io.Copy(tmp, io.TeeReader(resp.Body, tracker))
	tracker.Finish()
	if err != nil {
		cleanup()
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close download file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("move download into place: %w", err)
	}

	d.logger.Debug("Artifact downloaded", zap.String("path", target), zap.Int64("bytes", written))
	return target, nil
}

// Result is the outcome of one download in DownloadAll.
type Result struct {
	Job   expo.Job
	Path  string
	Bytes int64
	Err   error
}

// DownloadAll downloads every job's artifact into dir concurrently. Each
// download owns its destination file. All results are returned; the error
// joins every failure.
func (d *Downloader) DownloadAll(ctx context.Context, jobs []expo.Job, dir string) ([]Result, error) {
	results := make([]Result, len(jobs))
	sem := make(chan struct{}, d.concurrency)

	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = Result{Job: job, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			path, err := d.Download(ctx, job, dir)
			res := Result{Job: job, Path: path, Err: err}
			if err == nil {
				if info, statErr := os.Stat(path); statErr == nil {
					res.Bytes = info.Size()
				}
			}
			results[i] = res
		}()
	}
	wg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("job %s (%s): %w", r.Job.ID, r.Job.Platform, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
