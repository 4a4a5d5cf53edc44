package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/expobuild/internal/observability"
	"github.com/3leaps/expobuild/pkg/output"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [project-dir]",
	Short: "List the build jobs of a project",
	Long: `List every job the build service reports for the project, most
recent first.

Example:
  expobuild jobs
  expobuild jobs ./mobile --output jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := loadProject(args)
	if err != nil {
		return err
	}
	w := p.recordWriter(cmd)

	jobs, err := p.Client.FetchJobs(ctx, p.Manifest)
	if err != nil {
		observability.CLILogger.Error("Failed to fetch jobs", zap.Error(err))
		emitError(ctx, w, err)
		return exitError(exitFailure, "Failed to fetch build jobs", err)
	}

	if w != nil {
		for _, j := range jobs {
			if err := w.WriteJob(ctx, output.NewJobRecord(j)); err != nil {
				return exitError(exitFailure, "Failed to write job record", err)
			}
		}
		return nil
	}

	if len(jobs) == 0 {
		printLine(cmd.OutOrStdout(), "No jobs found for "+p.Manifest.Label())
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPLATFORM\tSTATUS\tCREATED\tARTIFACT")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Platform, j.Status, dash(j.CreatedAt), dash(j.ArtifactURL()))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
