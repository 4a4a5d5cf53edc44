package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/expobuild/internal/observability"
	"github.com/3leaps/expobuild/pkg/expo"
)

// expoWebBase is the root of project pages on the Expo website.
const expoWebBase = "https://expo.io/"

var urlArtifactCmd = &cobra.Command{
	Use:   "url:artifact [project-dir]",
	Short: "Print the URL of the latest artifact",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runURLArtifact,
}

var urlExpoCmd = &cobra.Command{
	Use:   "url:expo [project-dir]",
	Short: "Print the Expo project page URL",
	Long: `Print the expo.io URL of the project, optionally pinned to a release
channel.

Example:
  expobuild url:expo
  expobuild url:expo --release-channel staging`,
	Args: cobra.MaximumNArgs(1),
	RunE: runURLExpo,
}

var releaseChannel string

func init() {
	rootCmd.AddCommand(urlArtifactCmd)
	rootCmd.AddCommand(urlExpoCmd)

	urlExpoCmd.Flags().StringVarP(&releaseChannel, "release-channel", "r", "", "Release channel (staging, production, etc)")
}

func runURLArtifact(cmd *cobra.Command, args []string) error {
	job, err := latestJob(cmd, args)
	if err != nil {
		return err
	}
	if !job.HasArtifact() {
		err := fmt.Errorf("%w: job %s", expo.ErrMissingArtifact, job.ID)
		return exitError(exitFailure, "No artifact URL", err)
	}
	printLine(cmd.OutOrStdout(), job.ArtifactURL())
	return nil
}

func runURLExpo(cmd *cobra.Command, args []string) error {
	job, err := latestJob(cmd, args)
	if err != nil {
		return err
	}
	if job.FullExperienceName == "" {
		return exitError(exitFailure, "No experience name", fmt.Errorf("job %s has no fullExperienceName", job.ID))
	}
	printLine(cmd.OutOrStdout(), ExpoURL(job.FullExperienceName, releaseChannel))
	return nil
}

// ExpoURL builds the project page URL for an experience such as "@owner/slug".
func ExpoURL(fullExperienceName, channel string) string {
	u := expoWebBase + fullExperienceName
	if channel != "" {
		u += "?release-channel=" + url.QueryEscape(channel)
	}
	return u
}

func latestJob(cmd *cobra.Command, args []string) (expo.Job, error) {
	p, err := loadProject(args)
	if err != nil {
		return expo.Job{}, err
	}
	job, err := p.Client.ResolveLatestArtifact(cmd.Context(), p.Manifest)
	if err != nil {
		observability.CLILogger.Error("Failed to resolve latest job", zap.Error(err))
		return expo.Job{}, exitError(exitFailure, "Failed to resolve latest build", err)
	}
	return job, nil
}
