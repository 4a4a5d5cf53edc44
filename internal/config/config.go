// Package config loads expobuild settings from defaults, an optional YAML
// file, EXPOBUILD_* environment variables and runtime overrides.
package config

import (
	"time"
)

// Config is the resolved CLI configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Session  SessionConfig  `mapstructure:"session"`
	Wait     WaitConfig     `mapstructure:"wait"`
	Download DownloadConfig `mapstructure:"download"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// APIConfig configures the build status service client.
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SessionConfig locates the stored login session.
type SessionConfig struct {
	Path string `mapstructure:"path"`
}

// WaitConfig configures wait:build.
type WaitConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	Interval       time.Duration `mapstructure:"interval"`
	RetryTransient bool          `mapstructure:"retry_transient"`
}

// DownloadConfig configures download:artifact.
type DownloadConfig struct {
	// Dir is the default target directory. Empty means the project directory.
	Dir              string        `mapstructure:"dir"`
	Concurrency      int           `mapstructure:"concurrency"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the Prometheus textfile written when a command
// exits. An empty Textfile disables it.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	// Endpoint is a collector URL or host:port. Empty disables export.
	Endpoint string `mapstructure:"endpoint"`
}
