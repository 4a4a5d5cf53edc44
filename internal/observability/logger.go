// Package observability holds the process-wide CLI logger, metrics and
// tracing setup.
package observability

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// CLILogger is the logger used by commands. It is a no-op until
// InitCLILogger runs.
var CLILogger = zap.NewNop()

var loggerMu sync.Mutex

// InitCLILogger replaces CLILogger with a stderr logger at the given level.
// Console output carries no timestamps or caller; json output is the zap
// production encoding.
func InitCLILogger(level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.DisableStacktrace = true
		cfg.DisableCaller = true
		cfg.EncoderConfig.TimeKey = ""
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case FormatJSON:
		cfg = zap.NewProductionConfig()
		cfg.DisableCaller = true
		cfg.Sampling = nil
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return fmt.Errorf("unsupported log format %q (expected console or json)", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	SetCLILogger(logger)
	return nil
}

// SetCLILogger swaps the CLI logger, syncing the previous one.
func SetCLILogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	_ = CLILogger.Sync()
	CLILogger = l
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	s := strings.ToLower(strings.TrimSpace(level))
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	if s == "warning" {
		s = "warn"
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}
