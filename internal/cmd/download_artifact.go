package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/expobuild/internal/observability"
	"github.com/3leaps/expobuild/pkg/artifact"
	"github.com/3leaps/expobuild/pkg/expo"
	"github.com/3leaps/expobuild/pkg/output"
	"github.com/3leaps/expobuild/pkg/storage"
	"github.com/3leaps/expobuild/pkg/storage/s3"
)

var downloadArtifactCmd = &cobra.Command{
	Use:   "download:artifact [project-dir]",
	Short: "Download the most recent artifacts of a project",
	Long: `Download the most recent artifact of each platform into a directory
as app.ipa (iOS) or app.apk (Android).

--to-dir also accepts an S3 URI; artifacts are then downloaded to a
temporary directory and mirrored to the bucket prefix.

Example:
  expobuild download:artifact
  expobuild download:artifact ./mobile --to-dir ./dist --platform ios
  expobuild download:artifact --to-dir s3://release-artifacts/builds/ --region eu-west-1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDownloadArtifact,
}

var (
	downloadToDir          string
	downloadPlatform       string
	downloadRegion         string
	downloadProfile        string
	downloadEndpoint       string
	downloadForcePathStyle bool
)

func init() {
	rootCmd.AddCommand(downloadArtifactCmd)

	f := downloadArtifactCmd.Flags()
	f.StringVarP(&downloadToDir, "to-dir", "t", "", "Directory or s3:// URI to download artifacts to (default: current directory)")
	f.StringVarP(&downloadPlatform, "platform", "p", "*", "Platform glob to download (e.g. ios, {ios,android})")
	f.Int("concurrency", artifact.DefaultConcurrency, "Parallel downloads")
	f.StringVar(&downloadRegion, "region", "", "AWS region for s3:// destinations")
	f.StringVar(&downloadProfile, "profile", "", "AWS profile for s3:// destinations")
	f.StringVar(&downloadEndpoint, "endpoint", "", "Custom S3-compatible endpoint URL")
	f.BoolVar(&downloadForcePathStyle, "force-path-style", false, "Use path-style S3 addressing")
}

func runDownloadArtifact(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := loadProject(args)
	if err != nil {
		return err
	}
	w := p.recordWriter(cmd)

	target := downloadToDir
	if target == "" {
		target = p.Config.Download.Dir
	}
	if target == "" {
		if target, err = os.Getwd(); err != nil {
			return exitError(exitFailure, "Failed to resolve current directory", err)
		}
	}
	dest, err := ParseDestination(target)
	if err != nil {
		return exitError(exitFailure, "Invalid --to-dir", err)
	}

	// Resolve the mirror before downloading so bad credentials fail fast.
	var uploader *s3.Uploader
	dir := dest.Dir
	if dest.IsRemote() {
		uploader, err = s3.New(ctx, s3.Config{
			Bucket:         dest.Remote.Bucket,
			Prefix:         dest.Remote.Prefix,
			Region:         downloadRegion,
			Endpoint:       downloadEndpoint,
			Profile:        downloadProfile,
			ForcePathStyle: downloadForcePathStyle,
		})
		if err != nil {
			return exitError(exitFailure, "Failed to configure storage destination", err)
		}
		if dir, err = os.MkdirTemp("", "expobuild-*"); err != nil {
			return exitError(exitFailure, "Failed to create staging directory", err)
		}
		defer func() { _ = os.RemoveAll(dir) }()
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return exitError(exitFailure, "Failed to create target directory", err)
	}

	jobs, err := p.Client.FetchJobs(ctx, p.Manifest)
	if err != nil {
		observability.CLILogger.Error("Failed to fetch jobs", zap.Error(err))
		emitError(ctx, w, err)
		return exitError(exitFailure, "Failed to fetch build jobs", err)
	}
	selected, err := expo.LatestPerPlatform(jobs, downloadPlatform)
	if err != nil {
		emitError(ctx, w, err)
		return exitError(exitFailure, "No artifact to download", err)
	}

	downloader := artifact.NewDownloader(artifact.Config{
		HTTPClient:       observability.HTTPClient("artifact", 0),
		Progress:         cmd.ErrOrStderr(),
		ProgressInterval: p.Config.Download.ProgressInterval,
		Concurrency:      p.Config.Download.Concurrency,
		Logger:           observability.CLILogger,
	})

	results, dlErr := downloader.DownloadAll(ctx, selected, dir)

	var errs []error
	if dlErr != nil {
		errs = append(errs, dlErr)
	}
	for _, r := range results {
		observability.CLIMetrics.ObserveDownload(string(r.Job.Platform), r.Bytes, r.Err)
		if r.Err != nil {
			emitError(ctx, w, r.Err)
			continue
		}
		rec := &output.DownloadRecord{
			JobID:    r.Job.ID,
			Platform: string(r.Job.Platform),
			URL:      r.Job.ArtifactURL(),
			Path:     r.Path,
			Bytes:    r.Bytes,
		}
		if uploader != nil {
			loc, err := mirror(ctx, uploader, r.Path)
			if err != nil {
				emitError(ctx, w, err)
				errs = append(errs, fmt.Errorf("job %s (%s): %w", r.Job.ID, r.Job.Platform, err))
				continue
			}
			rec.Location = loc
			rec.Path = ""
		}
		if w != nil {
			if werr := w.WriteDownload(ctx, rec); werr != nil {
				observability.CLILogger.Warn("Failed to write download record", zap.Error(werr))
			}
		} else if rec.Location != "" {
			printLine(cmd.OutOrStdout(), rec.Location)
		} else {
			printLine(cmd.OutOrStdout(), rec.Path)
		}
	}

	if err := errors.Join(errs...); err != nil {
		if ctx.Err() != nil {
			return exitError(exitInterrupted, "Download cancelled", err)
		}
		return exitError(exitFailure, "Artifact download failed", err)
	}
	return nil
}

// mirror uploads a downloaded artifact and returns its storage location.
func mirror(ctx context.Context, u *s3.Uploader, path string) (string, error) {
	key := u.Key(path)
	observability.CLILogger.Info("Uploading artifact to "+u.Location(key), zap.String("path", path))
	if err := u.PutFile(ctx, key, path); err != nil {
		switch {
		case storage.IsAccessDenied(err), storage.IsInvalidCredentials(err):
			observability.CLILogger.Error("Storage credentials rejected", zap.Error(err))
		case storage.IsBucketNotFound(err):
			observability.CLILogger.Error("Storage bucket not found", zap.Error(err))
		case storage.Retryable(err):
			observability.CLILogger.Warn("Storage temporarily unavailable, rerun to retry the mirror", zap.Error(err))
		}
		return "", err
	}
	return u.Location(key), nil
}
