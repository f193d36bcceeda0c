package shell

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
)

// requireShell skips tests that need a POSIX sh.
func requireShell(t testing.TB) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX sh tests do not run on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newTestEngine(opts ...EngineOption) *Engine {
	return New(append([]EngineOption{WithResolver(NewResolver(0))}, opts...)...)
}

// script runs an sh script synchronously and fails the test on spawn errors.
func script(t *testing.T, e *Engine, body string, opts ...Option) *Completed {
	t.Helper()
	res, err := e.Run(context.Background(), "sh", []string{"-c", body}, opts...)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	return res
}

func trimmed(lines []Text) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Trim()
	}
	return out
}
