// Package config holds the configuration for the backend process.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/localgraph/kg-backend/pkg/version"
)

// Config is the backend's own process configuration, bound from CLI flags
// and GRAPHRAG_-prefixed environment variables. It is distinct from the
// indexer's settings.yaml (see internal/store.Settings), which describes the
// indexer's own model/chunking parameters. That file is read at startup and
// re-read whenever the settings watcher sees it change; an Artifact Store
// reload after an indexing run does not re-read it.
type Config struct {
	Port              int    `mapstructure:"port"`
	CORSOrigin        string `mapstructure:"cors-origin"`
	SettingsPath      string `mapstructure:"settings-path"`
	DataDir           string `mapstructure:"data-dir"`
	InputDir          string `mapstructure:"input-dir"`
	IndexerExecutable string `mapstructure:"indexer-executable"`
	LogFile           string `mapstructure:"log"`
	DisableOutputLog  bool   `mapstructure:"disable-output-log"`
	SearchModel       string `mapstructure:"search-model"`
	SearchBaseURL     string `mapstructure:"search-base-url"`
	SearchAPIKey      string `mapstructure:"search-api-key"`
	SearchTimeoutSecs int    `mapstructure:"search-timeout-secs"`
}

// Load builds a Config from CLI flags layered over environment variables
// and built-in defaults. Flags take precedence; GRAPHRAG_PORT etc. provide
// defaults for deployments that prefer environment configuration.
func Load() (*Config, error) {
	pflag.Int("port", 8000, "HTTP listen port, can also be set via PORT")
	pflag.String("cors-origin", "http://localhost:5173", "Allowed CORS origin, can also be set via CORS_ORIGIN")
	pflag.String("settings-path", "./settings.yaml", "Path to the indexer settings YAML, can also be set via GRAPHRAG_SETTINGS_PATH")
	pflag.String("data-dir", "./output", "Path to the indexer output directory, can also be set via GRAPHRAG_DATA_DIR")
	pflag.String("input-dir", "./input", "Path to the upload input directory")
	pflag.String("indexer-executable", "graphrag-indexer", "Executable invoked to run one indexing pass")
	pflag.String("log", "", "Path to the log file (logs are written to both stdout and file)")
	pflag.Bool("disable-output-log", false, "Disable logging to stdout/stderr; only write to log file if configured")
	pflag.String("search-model", "gpt-4o-mini", "Chat model name to request from the local inference server")
	pflag.String("search-base-url", "http://localhost:11434/v1", "Base URL of the local OpenAI-compatible inference server")
	pflag.String("search-api-key", "", "API key for the local inference server, if it requires one")
	pflag.Int("search-timeout-secs", 300, "Per-call deadline in seconds for search requests")
	pflag.Parse()

	v := viper.New()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	// GRAPHRAG_PORT and GRAPHRAG_CORS_ORIGIN would be inconsistent with the
	// bare PORT/CORS_ORIGIN names spec.md §6.4 actually specifies, so those
	// two keys get a direct alias in addition to the GRAPHRAG_ prefix used
	// for everything else.
	v.SetEnvPrefix("GRAPHRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if val := os.Getenv("PORT"); val != "" && !pflag.CommandLine.Changed("port") {
		v.Set("port", val)
	}
	if val := os.Getenv("CORS_ORIGIN"); val != "" && !pflag.CommandLine.Changed("cors-origin") {
		v.Set("cors-origin", val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data-dir must not be empty")
	}
	if c.InputDir == "" {
		return fmt.Errorf("input-dir must not be empty")
	}
	if c.SearchTimeoutSecs <= 0 {
		return fmt.Errorf("search-timeout-secs must be positive")
	}
	return nil
}

// SetupLogging configures the default slog logger to write to stdout and,
// if configured, to a log file as well.
func (c *Config) SetupLogging() error {
	var writers []io.Writer

	if !c.DisableOutputLog {
		writers = append(writers, os.Stdout)
	}

	if c.LogFile != "" {
		logFile, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", c.LogFile, err)
		}
		writers = append(writers, logFile)
	}

	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}

// VersionString reports the backend's build version for the "/" endpoint.
func VersionString() string {
	return version.Describe()
}
