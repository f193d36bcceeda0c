package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveFlags_CreatesNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir", "config.yaml")

	err := SaveFlags(path, map[string]bool{"b-flag": false, "a-flag": true})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "flags:\n  a-flag: true\n  b-flag: false\n", string(data))
}

func TestSaveFlags_PreservesOtherConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	initial := `# top comment
encoding: latin1 # inline
flags:
  old: true
watch:
  debounce: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o600))

	require.NoError(t, SaveFlags(path, map[string]bool{"drain-unconsumed-streams": true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	require.Contains(t, content, "# top comment")
	require.Contains(t, content, "encoding: latin1 # inline")
	require.Contains(t, content, "debounce: 1s")
	require.Contains(t, content, "drain-unconsumed-streams: true")
	require.NotContains(t, content, "old:")

	cfg := loadConfigFromYAML(t, content)
	require.Equal(t, map[string]bool{"drain-unconsumed-streams": true}, cfg.Flags)
}

func TestSaveFlags_AppendsSectionToTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	require.NoError(t, SaveFlags(path, map[string]bool{"x": true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg := loadConfigFromYAML(t, string(data))
	require.True(t, cfg.Flags["x"])
	require.Equal(t, "utf-8", cfg.Encoding)
}

func TestSaveFlags_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("key: [unclosed"), 0o600))

	require.ErrorContains(t, SaveFlags(path, nil), "parsing config")
}

func TestSaveFlags_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, SaveFlags(path, map[string]bool{"a": true}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "config.yaml", entries[0].Name())
}
