package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/xh/internal/config"
	"github.com/zjrosen/xh/internal/flags"
)

func TestEffectiveConfig(t *testing.T) {
	c := config.Defaults()
	c.History.Path = "/tmp/h.db"
	c.Flags = map[string]bool{flags.FlagTraceLineEvents: true}

	got := effectiveConfig(c)
	require.Equal(t, "utf-8", got["encoding"])
	require.Equal(t, "/tmp/h.db", got["history"].(map[string]any)["path"])
	require.Equal(t, (30 * time.Second).String(), got["path_cache"].(map[string]any)["ttl"])

	fl := got["flags"].(map[string]bool)
	require.True(t, fl[flags.FlagTraceLineEvents])
	require.Contains(t, fl, flags.FlagDrainUnconsumed)
	require.False(t, fl[flags.FlagDrainUnconsumed])

	out, err := yaml.Marshal(got)
	require.NoError(t, err)
	require.Contains(t, string(out), "new_session: true")
}

func TestNewRunner_FromDefaults(t *testing.T) {
	c := config.Defaults()
	c.History.Path = t.TempDir() + "/history.db"

	r, err := newRunner(c, flags.FlagDrainUnconsumed)
	require.NoError(t, err)
	defer r.Close()

	require.NotNil(t, r.engine)
	require.NotNil(t, r.history)
	require.Equal(t, "utf-8", r.engine.Decoder().Name())
}

func TestNewRunner_BadEncoding(t *testing.T) {
	c := config.Defaults()
	c.Encoding = "klingon"
	c.History.Enabled = false

	_, err := newRunner(c)
	require.Error(t, err)
}
