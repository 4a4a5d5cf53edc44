package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/expobuild/internal/observability"
	"github.com/3leaps/expobuild/pkg/expo"
	"github.com/3leaps/expobuild/pkg/output"
)

var waitBuildCmd = &cobra.Command{
	Use:   "wait:build [project-dir]",
	Short: "Wait for the active build to complete",
	Long: `Poll the build service until the most recent build of the project
finishes, reports an unknown status, or the timeout passes.

--interval and --timeout accept seconds ("60") or Go durations ("1m30s").

Example:
  expobuild wait:build
  expobuild wait:build ./mobile --interval 30 --timeout 1200
  expobuild wait:build --retry-transient --output jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWaitBuild,
}

func init() {
	rootCmd.AddCommand(waitBuildCmd)

	waitBuildCmd.Flags().StringP("interval", "i", "", "Sleep interval between checks (default 60s)")
	waitBuildCmd.Flags().StringP("timeout", "t", "", "Max time to wait before timing out (default 15m)")
	waitBuildCmd.Flags().Bool("retry-transient", false, "Keep polling through network errors and 5xx responses")
}

func runWaitBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := loadProject(args)
	if err != nil {
		return err
	}
	w := p.recordWriter(cmd)

	opts := []expo.PollerOption{
		expo.WithLogger(observability.CLILogger.With(zap.String("run_id", p.RunID))),
		expo.WithTickObserver(func(t expo.PollTick) {
			status := ""
			if t.Job != nil {
				status = string(t.Job.Status)
			}
			observability.CLIMetrics.ObservePoll(status)
			if w == nil {
				return
			}
			if werr := w.WritePoll(ctx, output.NewPollRecord(t)); werr != nil {
				observability.CLILogger.Debug("Failed to write poll record", zap.Error(werr))
			}
		}),
	}

	poller := expo.NewPoller(p.Client, expo.PollConfig{
		Timeout:        p.Config.Wait.Timeout,
		Interval:       p.Config.Wait.Interval,
		RetryTransient: p.Config.Wait.RetryTransient,
	}, opts...)

	res, err := poller.Wait(ctx, p.Manifest)
	if err != nil {
		emitError(ctx, w, err)
		if ctx.Err() != nil {
			return exitError(exitInterrupted, "Wait cancelled", err)
		}
		observability.CLILogger.Error("Wait failed", zap.Error(err))
		return exitError(exitFailure, "Failed to wait for build", err)
	}

	observability.CLIMetrics.ObserveWait(string(res.Outcome), res.Elapsed)
	if w != nil {
		if werr := w.WriteResult(ctx, output.NewResultRecord(res)); werr != nil {
			observability.CLILogger.Warn("Failed to write result record", zap.Error(werr))
		}
	}

	if !res.Success() {
		return exitError(exitFailure, "Build did not finish", res.Err())
	}
	return nil
}
