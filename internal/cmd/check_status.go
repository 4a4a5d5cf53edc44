package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/expobuild/internal/observability"
	"github.com/3leaps/expobuild/pkg/output"
)

// errBuildInProgress is reported by check:status when a job is still building.
var errBuildInProgress = errors.New("project is already building")

var checkStatusCmd = &cobra.Command{
	Use:   "check:status [project-dir]",
	Short: "Fail if the project already has an active build",
	Long: `Check the build status for a project. Exits non-zero if a build is
already in progress, so CI can avoid queueing a second build.

A project that was never published counts as having no active builds.

Example:
  expobuild check:status
  expobuild check:status ./mobile --output jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheckStatus,
}

func init() {
	rootCmd.AddCommand(checkStatusCmd)
}

func runCheckStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := loadProject(args)
	if err != nil {
		return err
	}
	w := p.recordWriter(cmd)

	idle, err := p.Client.EnsureNoInProgressBuilds(ctx, p.Manifest)
	if err != nil {
		observability.CLILogger.Error("Build status check failed", zap.Error(err))
		emitError(ctx, w, err)
		return exitError(exitFailure, "Failed to check build status", err)
	}

	if w != nil {
		outcome := "idle"
		if !idle {
			outcome = "building"
		}
		if werr := w.WriteResult(ctx, &output.ResultRecord{Outcome: outcome}); werr != nil {
			observability.CLILogger.Warn("Failed to write result record", zap.Error(werr))
		}
	} else if idle {
		printLine(cmd.OutOrStdout(), "No active builds for this project, good to go!")
	} else {
		printLine(cmd.OutOrStdout(), "This project is already building, aborting...")
	}

	if !idle {
		return exitError(exitFailure, "Build in progress", errBuildInProgress)
	}
	return nil
}
