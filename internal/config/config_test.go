package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// loadConfigFromYAML unmarshals yaml through viper the way the CLI does.
func loadConfigFromYAML(t *testing.T, content string) Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg := Defaults()
	require.NoError(t, v.Unmarshal(&cfg))
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.Equal(t, "utf-8", cfg.Encoding)
	require.True(t, cfg.NewSession)
	require.Equal(t, DefaultBufferSize, cfg.StdoutBufferSize)
	require.Equal(t, DefaultBufferSize, cfg.StderrBufferSize)
	require.True(t, cfg.PathCache.Enabled)
	require.Equal(t, 30*time.Second, cfg.PathCache.TTL)
	require.True(t, cfg.History.Enabled)
	require.Equal(t, 200*time.Millisecond, cfg.Watch.Debounce)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "file", cfg.Tracing.Exporter)
	require.NoError(t, Validate(cfg))
}

func TestDefaultPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	require.Equal(t, filepath.Join(home, ".config", "xh", "history.db"), DefaultHistoryPath())
	require.Equal(t, filepath.Join(home, ".config", "xh", "traces", "traces.jsonl"), DefaultTracesFilePath())
}

func TestTemplate_LoadsAsDefaults(t *testing.T) {
	cfg := loadConfigFromYAML(t, DefaultConfigTemplate())
	want := Defaults()

	require.Equal(t, want.Encoding, cfg.Encoding)
	require.Equal(t, want.NewSession, cfg.NewSession)
	require.Equal(t, want.StdoutBufferSize, cfg.StdoutBufferSize)
	require.Equal(t, want.PathCache, cfg.PathCache)
	require.Equal(t, want.Watch, cfg.Watch)
	require.Equal(t, want.History.Enabled, cfg.History.Enabled)
	require.NoError(t, Validate(cfg))
}

func TestLoad_Overrides(t *testing.T) {
	cfg := loadConfigFromYAML(t, `
encoding: latin1
new_session: false
stderr_buffer_size: 128
path_cache:
  ttl: 5m
history:
  enabled: false
  path: /tmp/h.db
flags:
  drain-unconsumed-streams: true
`)

	require.Equal(t, "latin1", cfg.Encoding)
	require.False(t, cfg.NewSession)
	require.Equal(t, 128, cfg.StderrBufferSize)
	require.Equal(t, DefaultBufferSize, cfg.StdoutBufferSize)
	require.Equal(t, 5*time.Minute, cfg.PathCache.TTL)
	require.False(t, cfg.History.Enabled)
	require.Equal(t, "/tmp/h.db", cfg.History.Path)
	require.True(t, cfg.Flags["drain-unconsumed-streams"])
	require.NoError(t, Validate(cfg))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown encoding", func(c *Config) { c.Encoding = "klingon-8" }, "not a known encoding"},
		{"negative stdout buffer", func(c *Config) { c.StdoutBufferSize = -1 }, "stdout_buffer_size"},
		{"negative stderr buffer", func(c *Config) { c.StderrBufferSize = -1 }, "stderr_buffer_size"},
		{"negative ttl", func(c *Config) { c.PathCache.TTL = -time.Second }, "path_cache.ttl"},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }, "watch.debounce"},
		{"empty flag", func(c *Config) { c.Flags = map[string]bool{" ": true} }, "empty flag name"},
		{"bad sample rate", func(c *Config) { c.Tracing.SampleRate = 1.5 }, "sample_rate"},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, "tracing.exporter"},
		{"file without path", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "file"
		}, "file_path is required"},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
			c.Tracing.OTLPEndpoint = ""
		}, "otlp_endpoint is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			require.ErrorContains(t, Validate(cfg), tt.wantErr)
		})
	}
}

func TestValidateTracing_DisabledSkipsPathChecks(t *testing.T) {
	require.NoError(t, ValidateTracing(TracingConfig{Enabled: false, Exporter: "file"}))
	require.NoError(t, ValidateTracing(TracingConfig{}))
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
