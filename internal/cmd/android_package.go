package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// androidPackageKey locates the Android application id in the manifest.
const androidPackageKey = "android.package"

var androidPackageCmd = &cobra.Command{
	Use:   "android:package [project-dir]",
	Short: "Print the Android package name from app.json",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAndroidPackage,
}

func init() {
	rootCmd.AddCommand(androidPackageCmd)
}

func runAndroidPackage(cmd *cobra.Command, args []string) error {
	m, _, err := loadManifest(args)
	if err != nil {
		return err
	}
	name, _ := m.Lookup(androidPackageKey)
	pkg, ok := name.(string)
	if !ok || pkg == "" {
		return exitError(exitFailure, "Missing Android package",
			fmt.Errorf("couldn't find a value associated with %q in your project's app.json", androidPackageKey))
	}
	printLine(cmd.OutOrStdout(), pkg)
	return nil
}
