// Package cmd implements the expobuild command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/3leaps/expobuild/internal/config"
	"github.com/3leaps/expobuild/internal/observability"
	"github.com/3leaps/expobuild/pkg/manifest"
)

// exitFailure is the exit status for every failed, aborted or timed out command.
const exitFailure = 1

// exitInterrupted is the exit status after SIGINT/SIGTERM.
var exitInterrupted = int(foundry.ExitSignalInt)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile      string
	logLevel     string
	logFormat    string
	apiURL       string
	sessionFile  string
	outputFormat string
	metricsFile  string
)

var (
	shutdownTracing = func(context.Context) error { return nil }
	commandSpan     trace.Span
)

var rootCmd = &cobra.Command{
	Use:   "expobuild",
	Short: "Check, wait for and download Expo standalone builds",
	Long: `expobuild queries the Expo build service for the jobs of a project,
waits for an active build to finish, and fetches the resulting artifacts.

Every command takes an optional project directory (default: current
directory) containing app.json with an "expo" section.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default ~/.config/expobuild/config.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	pf.StringVar(&logFormat, "log-format", "", "Log format (console|json)")
	pf.StringVar(&apiURL, "api-url", "", "Build service API root")
	pf.StringVar(&sessionFile, "session-file", "", "Session state file (default ~/.expo/state.json)")
	pf.StringVarP(&outputFormat, "output", "o", outputText, "Output format (text|jsonl)")
	pf.StringVar(&metricsFile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")
}

// flagConfigKeys maps flags onto the config keys they override.
var flagConfigKeys = map[string]string{
	"log-level":       "logging.level",
	"log-format":      "logging.format",
	"api-url":         "api.base_url",
	"session-file":    "session.path",
	"interval":        "wait.interval",
	"timeout":         "wait.timeout",
	"retry-transient": "wait.retry_transient",
	"concurrency":     "download.concurrency",

	"metrics-textfile": "metrics.textfile",
}

// secondsFlags accept a bare number of seconds as well as a Go duration.
var secondsFlags = map[string]bool{"interval": true, "timeout": true}

func initRuntime(cmd *cobra.Command, _ []string) error {
	switch outputFormat {
	case outputText, outputJSONL:
	default:
		return exitError(exitFailure, "Invalid --output value", fmt.Errorf("unsupported output format %q (expected text or jsonl)", outputFormat))
	}

	overrides, err := flagOverrides(cmd)
	if err != nil {
		return exitError(exitFailure, "Invalid flag value", err)
	}

	cfg, err := config.LoadFile(cmd.Context(), cfgFile, overrides)
	if err != nil {
		return exitError(exitFailure, "Failed to load configuration", err)
	}

	if err := observability.InitCLILogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return exitError(exitFailure, "Failed to initialise logging", err)
	}
	observability.CLILogger.Debug("Configuration loaded",
		zap.String("api_url", cfg.API.BaseURL),
		zap.String("session_path", cfg.Session.Path),
		zap.Duration("wait_timeout", cfg.Wait.Timeout),
		zap.Duration("wait_interval", cfg.Wait.Interval))

	shutdown, err := observability.InitTracing(cmd.Context(), cfg.Tracing.Endpoint, versionInfo.Version)
	if err != nil {
		return exitError(exitFailure, "Failed to initialise tracing", err)
	}
	shutdownTracing = shutdown

	ctx, span := otel.Tracer(observability.ServiceName).Start(cmd.Context(), cmd.Name())
	commandSpan = span
	cmd.SetContext(ctx)
	return nil
}

// finishRuntime ends the command span, flushes traces and writes the
// metrics textfile. Failures are logged only.
func finishRuntime(err error) {
	if commandSpan != nil {
		if err != nil {
			commandSpan.RecordError(err)
			commandSpan.SetStatus(codes.Error, err.Error())
		}
		commandSpan.End()
		commandSpan = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := shutdownTracing(ctx); serr != nil {
		observability.CLILogger.Debug("Failed to flush traces", zap.Error(serr))
	}

	cfg := config.GetConfig()
	if cfg == nil || cfg.Metrics.Textfile == "" {
		return
	}
	path := manifest.ExpandHome(cfg.Metrics.Textfile)
	if werr := observability.CLIMetrics.WriteTextfile(path); werr != nil {
		observability.CLILogger.Warn("Failed to write metrics textfile", zap.Error(werr))
		return
	}
	observability.CLILogger.Debug("Metrics written", zap.String("path", path))
}

func flagOverrides(cmd *cobra.Command) (map[string]any, error) {
	overrides := make(map[string]any)
	for name, key := range flagConfigKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		val := f.Value.String()
		if secondsFlags[name] {
			d, err := secondsOrDuration(val)
			if err != nil {
				return nil, fmt.Errorf("--%s: %w", name, err)
			}
			val = d
		}
		overrides[key] = val
	}
	return overrides, nil
}

// secondsOrDuration normalises "90" to "90s" and validates Go durations.
func secondsOrDuration(s string) (string, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n <= 0 {
			return "", fmt.Errorf("must be positive, got %s", s)
		}
		return strconv.FormatFloat(n, 'f', -1, 64) + "s", nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return "", err
	}
	return s, nil
}

// exitCodeError carries the process exit status for a failed command.
type exitCodeError struct {
	Code    int
	Message string
	Err     error
}

func (e *exitCodeError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *exitCodeError) Unwrap() error { return e.Err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &exitCodeError{Code: code, Message: message, Err: err}
}

// ExitCode returns the exit status for err: 0 for nil, the code carried by
// exitError, the interrupt status for cancellation, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.Code
	}
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	return exitFailure
}

// Execute runs the root command with interrupt handling and returns the
// process exit status.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	finishRuntime(err)
	if err != nil {
		if ctx.Err() != nil && !errors.As(err, new(*exitCodeError)) {
			err = exitError(exitInterrupted, "Interrupted", err)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	_ = observability.CLILogger.Sync()
	return ExitCode(err)
}
