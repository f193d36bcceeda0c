package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/xh/internal/history"
)

func TestFormatArgv(t *testing.T) {
	require.Equal(t, `git log -n 5`, formatArgv([]string{"git", "log", "-n", "5"}, 60))
	require.Equal(t, `echo "a b" ""`, formatArgv([]string{"echo", "a b", ""}, 60))

	long := formatArgv([]string{"echo", strings.Repeat("界", 50)}, 20)
	require.LessOrEqual(t, runewidth.StringWidth(long), 20)
	require.True(t, strings.HasSuffix(long, "…"))
}

func TestShortID(t *testing.T) {
	require.Equal(t, "12345678", shortID("1234567890abcdef"))
	require.Equal(t, "abc", shortID("abc"))
}

func TestRenderRuns(t *testing.T) {
	runs := []history.Run{
		{
			ID:        "aaaaaaaa-1111",
			Argv:      []string{"sh", "-c", "exit 0"},
			Mode:      "sync",
			PID:       100,
			ExitCode:  0,
			Status:    "exited",
			StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Duration:  1500 * time.Millisecond,
		},
		{
			ID:        "bbbbbbbb-2222",
			Argv:      []string{"sleep", "5"},
			Mode:      "background",
			PID:       101,
			ExitCode:  -9,
			Status:    "killed",
			StartedAt: time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC),
			Duration:  200 * time.Millisecond,
		},
	}

	out := renderRuns(runs)
	for _, want := range []string{"ID", "COMMAND", "aaaaaaaa", "bbbbbbbb", `sh -c "exit 0"`, "sleep 5", "-9 (killed)", "1.5s", "background"} {
		require.Contains(t, out, want)
	}
	require.NotContains(t, out, "1111")
}
