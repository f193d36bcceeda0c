// Package config provides configuration types and defaults for xh.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/zjrosen/xh/internal/log"
)

// Config holds all configuration options for xh.
type Config struct {
	// Encoding names the text encoding used to decode child output
	// (any WHATWG label such as "utf-8", "latin1", "shift_jis").
	Encoding string `mapstructure:"encoding"`

	// NewSession detaches children into their own session/process group.
	NewSession bool `mapstructure:"new_session"`

	StdoutBufferSize int `mapstructure:"stdout_buffer_size"`
	StderrBufferSize int `mapstructure:"stderr_buffer_size"`

	PathCache PathCacheConfig `mapstructure:"path_cache"`
	History   HistoryConfig   `mapstructure:"history"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Flags     map[string]bool `mapstructure:"flags"`
}

// PathCacheConfig controls caching of executable lookups.
type PathCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // Default: ~/.config/xh/history.db
}

// WatchConfig holds `xh watch` settings.
type WatchConfig struct {
	// Debounce coalesces bursts of file events into one restart.
	Debounce time.Duration `mapstructure:"debounce"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/xh/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultBufferSize is the line reader buffer used when none is configured.
const DefaultBufferSize = 4096

// configDir returns ~/.config/xh, or "" when the home directory is unavailable.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "xh")
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/xh/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	dir := configDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// DefaultHistoryPath returns ~/.config/xh/history.db or empty string if home dir unavailable.
func DefaultHistoryPath() string {
	dir := configDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "history.db")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Encoding:         "utf-8",
		NewSession:       true,
		StdoutBufferSize: DefaultBufferSize,
		StderrBufferSize: DefaultBufferSize,
		PathCache: PathCacheConfig{
			Enabled: true,
			TTL:     30 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "", // Derived from config dir at runtime
		},
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from config dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Flags: map[string]bool{},
	}
}

// Validate checks the whole configuration and returns the first problem found.
func Validate(cfg Config) error {
	if cfg.Encoding != "" {
		if _, err := htmlindex.Get(cfg.Encoding); err != nil {
			return fmt.Errorf("encoding %q is not a known encoding", cfg.Encoding)
		}
	}
	if cfg.StdoutBufferSize < 0 {
		return fmt.Errorf("stdout_buffer_size must not be negative, got %d", cfg.StdoutBufferSize)
	}
	if cfg.StderrBufferSize < 0 {
		return fmt.Errorf("stderr_buffer_size must not be negative, got %d", cfg.StderrBufferSize)
	}
	if cfg.PathCache.TTL < 0 {
		return fmt.Errorf("path_cache.ttl must not be negative, got %s", cfg.PathCache.TTL)
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", cfg.Watch.Debounce)
	}
	for name := range cfg.Flags {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("flags: empty flag name")
		}
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Path requirements only matter once tracing is on
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# xh configuration

# Encoding used to decode child output. Lines that fail to decode are
# passed through as raw bytes.
encoding: utf-8

# Start children in their own session / process group so signals sent to
# xh (Ctrl-C) do not reach them.
new_session: true

# Line reader buffer sizes in bytes
stdout_buffer_size: 4096
stderr_buffer_size: 4096

# Cache executable lookups on PATH
path_cache:
  enabled: true
  ttl: 30s

# Record every run in a local SQLite database (see "xh history")
history:
  enabled: true
  # path: ~/.config/xh/history.db

# "xh watch" settings
watch:
  debounce: 200ms

# Tracing: one span per execution
# tracing:
#   enabled: true
#   exporter: file          # none, file, stdout, otlp
#   file_path: ~/.config/xh/traces/traces.jsonl
#   sample_rate: 1.0
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317

# Feature flags
# flags:
#   drain-unconsumed-streams: true
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
