package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/expobuild/internal/config"
	"github.com/3leaps/expobuild/internal/observability"
	"github.com/3leaps/expobuild/pkg/expo"
	"github.com/3leaps/expobuild/pkg/manifest"
	"github.com/3leaps/expobuild/pkg/output"
	"github.com/3leaps/expobuild/pkg/session"
)

// Output formats for --output.
const (
	outputText  = "text"
	outputJSONL = "jsonl"
)

// project bundles everything a command needs to talk to the build service.
type project struct {
	Dir      string
	Manifest manifest.Manifest
	Client   *expo.Client
	Config   *config.Config
	RunID    string
}

func projectDirArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// loadManifest reads the project descriptor named by the optional argument.
func loadManifest(args []string) (manifest.Manifest, string, error) {
	dir, err := manifest.ResolveDir(projectDirArg(args))
	if err != nil {
		return nil, "", exitError(exitFailure, "Failed to resolve project directory", err)
	}
	m, err := manifest.Load(dir)
	if err != nil {
		observability.CLILogger.Error("Failed to read project manifest",
			zap.String("dir", dir),
			zap.Error(err))
		return nil, "", exitError(exitFailure, "Invalid project manifest", err)
	}
	observability.CLILogger.Debug("Loaded project manifest",
		zap.String("dir", dir),
		zap.String("project", m.Label()))
	return m, dir, nil
}

// loadProject reads the manifest and session and builds a status client.
func loadProject(args []string) (*project, error) {
	cfg, err := currentConfig()
	if err != nil {
		return nil, exitError(exitFailure, "Failed to load configuration", err)
	}

	m, dir, err := loadManifest(args)
	if err != nil {
		return nil, err
	}

	sessionPath := manifest.ExpandHome(cfg.Session.Path)
	st, err := session.Load(sessionPath)
	if err != nil {
		observability.CLILogger.Error("Failed to read session state",
			zap.String("path", sessionPath),
			zap.Error(err))
		return nil, exitError(exitFailure, "Invalid session state", err)
	}
	creds := session.CredentialsFor(st)
	observability.CLILogger.Debug("Using credentials", zap.String("scheme", creds.Scheme()))

	client := expo.NewClient(expo.Config{
		BaseURL:     cfg.API.BaseURL,
		Credentials: creds,
		HTTPClient:  observability.HTTPClient("status", requestTimeout(cfg)),
		UserAgent:   "expobuild/" + versionInfo.Version,
		Logger:      observability.CLILogger,
	})

	return &project{
		Dir:      dir,
		Manifest: m,
		Client:   client,
		Config:   cfg,
		RunID:    uuid.NewString(),
	}, nil
}

func requestTimeout(cfg *config.Config) time.Duration {
	if cfg.API.RequestTimeout > 0 {
		return cfg.API.RequestTimeout
	}
	return expo.DefaultRequestTimeout
}

// currentConfig returns the config loaded by the root pre-run hook.
func currentConfig() (*config.Config, error) {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg, nil
	}
	return config.Load(context.Background())
}

// recordWriter returns a JSONL writer for --output jsonl, or nil for text.
func (p *project) recordWriter(cmd *cobra.Command) output.Writer {
	if outputFormat != outputJSONL {
		return nil
	}
	return output.NewJSONLWriter(cmd.OutOrStdout(), p.RunID, p.Manifest.Label())
}

// emitError writes err as a record when w is set. Write failures are logged only.
func emitError(ctx context.Context, w output.Writer, err error) {
	if w == nil || err == nil {
		return
	}
	if werr := w.WriteError(context.WithoutCancel(ctx), output.NewErrorRecord(err)); werr != nil {
		observability.CLILogger.Debug("Failed to emit error record", zap.Error(werr))
	}
}

func printLine(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
