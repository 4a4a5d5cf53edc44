package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/expobuild/pkg/artifact"
	"github.com/3leaps/expobuild/pkg/expo"
	"github.com/3leaps/expobuild/pkg/session"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "EXPOBUILD_"

// ErrInvalidConfig is returned when a loaded value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// envSpec maps an environment variable onto a config key.
type envSpec struct {
	Name string
	Path string
}

func getEnvSpecs() []envSpec {
	return []envSpec{
		{Name: EnvPrefix + "API_URL", Path: "api.base_url"},
		{Name: EnvPrefix + "REQUEST_TIMEOUT", Path: "api.request_timeout"},
		{Name: EnvPrefix + "SESSION_FILE", Path: "session.path"},
		{Name: EnvPrefix + "WAIT_TIMEOUT", Path: "wait.timeout"},
		{Name: EnvPrefix + "WAIT_INTERVAL", Path: "wait.interval"},
		{Name: EnvPrefix + "RETRY_TRANSIENT", Path: "wait.retry_transient"},
		{Name: EnvPrefix + "DOWNLOAD_DIR", Path: "download.dir"},
		{Name: EnvPrefix + "DOWNLOAD_CONCURRENCY", Path: "download.concurrency"},
		{Name: EnvPrefix + "PROGRESS_INTERVAL", Path: "download.progress_interval"},
		{Name: EnvPrefix + "LOG_LEVEL", Path: "logging.level"},
		{Name: EnvPrefix + "LOG_FORMAT", Path: "logging.format"},
		{Name: EnvPrefix + "METRICS_TEXTFILE", Path: "metrics.textfile"},
		{Name: EnvPrefix + "OTLP_ENDPOINT", Path: "tracing.endpoint"},
	}
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", expo.DefaultBaseURL)
	v.SetDefault("api.request_timeout", expo.DefaultRequestTimeout.String())

	v.SetDefault("session.path", session.DefaultPath)

	v.SetDefault("wait.timeout", expo.DefaultPollTimeout.String())
	v.SetDefault("wait.interval", expo.DefaultPollInterval.String())
	v.SetDefault("wait.retry_transient", false)

	v.SetDefault("download.dir", "")
	v.SetDefault("download.concurrency", artifact.DefaultConcurrency)
	v.SetDefault("download.progress_interval", artifact.DefaultProgressInterval.String())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.textfile", "")
	v.SetDefault("tracing.endpoint", "")
}

// getUserConfigPaths lists candidate config files in search order.
func getUserConfigPaths() []string {
	var paths []string
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		paths = append(paths, filepath.Join(dir, "expobuild", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "expobuild", "config.yaml"))
	}
	return paths
}

// Load resolves configuration from the default config file locations.
// Later overrides win over earlier ones and over every other source.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile resolves configuration using the file at path. An empty path
// searches the user config locations; a missing default file is not an
// error, a missing explicit file is.
func LoadFile(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)

	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		if len(o) == 0 {
			continue
		}
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	for _, candidate := range getUserConfigPaths() {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		v.SetConfigFile(candidate)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", candidate, err)
		}
		return nil
	}
	return nil
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// Validate rejects values no command can run with.
func (c *Config) Validate() error {
	switch {
	case c.API.BaseURL == "":
		return fmt.Errorf("%w: api.base_url is empty", ErrInvalidConfig)
	case c.API.RequestTimeout < 0:
		return fmt.Errorf("%w: api.request_timeout must not be negative", ErrInvalidConfig)
	case c.Wait.Timeout <= 0:
		return fmt.Errorf("%w: wait.timeout must be positive", ErrInvalidConfig)
	case c.Wait.Interval <= 0:
		return fmt.Errorf("%w: wait.interval must be positive", ErrInvalidConfig)
	case c.Download.Concurrency < 1:
		return fmt.Errorf("%w: download.concurrency must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}
