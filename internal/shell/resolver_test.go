package shell

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func countingLookup(path string, err error) (LookupFunc, *atomic.Int32) {
	var calls atomic.Int32
	return func(string) (string, error) {
		calls.Add(1)
		return path, err
	}, &calls
}

func TestResolver_CachesSuccessfulLookups(t *testing.T) {
	lookup, calls := countingLookup("/usr/bin/git", nil)
	r := NewResolverWithLookup(time.Minute, lookup)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		path, err := r.Resolve(ctx, "git")
		require.NoError(t, err)
		require.Equal(t, "/usr/bin/git", path)
	}
	require.EqualValues(t, 1, calls.Load())

	r.Forget(ctx, "git")
	_, err := r.Resolve(ctx, "git")
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestResolver_FailuresAreNotCached(t *testing.T) {
	lookup, calls := countingLookup("", errors.New("not found"))
	r := NewResolverWithLookup(time.Minute, lookup)

	for i := 0; i < 2; i++ {
		_, err := r.Resolve(context.Background(), "nope")
		require.Error(t, err)
	}
	require.EqualValues(t, 2, calls.Load())
}

func TestResolver_ZeroTTLDisablesCache(t *testing.T) {
	lookup, calls := countingLookup("/bin/true", nil)
	r := NewResolverWithLookup(0, lookup)

	_, _ = r.Resolve(context.Background(), "true")
	_, _ = r.Resolve(context.Background(), "true")
	require.EqualValues(t, 2, calls.Load())
}

func TestResolver_PathChangeMisses(t *testing.T) {
	lookup, calls := countingLookup("/x/tool", nil)
	r := NewResolverWithLookup(time.Minute, lookup)

	t.Setenv("PATH", "/one")
	_, _ = r.Resolve(context.Background(), "tool")
	t.Setenv("PATH", "/two")
	_, _ = r.Resolve(context.Background(), "tool")
	require.EqualValues(t, 2, calls.Load())
}

func TestResolver_PathsBypassLookup(t *testing.T) {
	requireShell(t)
	lookup, calls := countingLookup("/wrong", nil)
	r := NewResolverWithLookup(time.Minute, lookup)

	sh, err := NewResolver(0).Resolve(context.Background(), "sh")
	require.NoError(t, err)

	path, err := r.Resolve(context.Background(), sh)
	require.NoError(t, err)
	require.Equal(t, sh, path)
	require.Zero(t, calls.Load())
}

func TestEngine_UsesResolverPath(t *testing.T) {
	requireShell(t)
	sh, err := NewResolver(0).Resolve(context.Background(), "sh")
	require.NoError(t, err)

	lookup, calls := countingLookup(sh, nil)
	e := New(WithResolver(NewResolverWithLookup(time.Minute, lookup)))

	res, err := e.Run(context.Background(), "my-shell", []string{"-c", "echo ok"})
	require.NoError(t, err)
	require.Equal(t, "ok\n", res.Stdout.String())
	require.Equal(t, "my-shell", res.Handle().Argv()[0])

	_, err = e.Run(context.Background(), "my-shell", []string{"-c", "true"})
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestEngine_ForgetResolvesAgain(t *testing.T) {
	requireShell(t)
	sh, err := NewResolver(0).Resolve(context.Background(), "sh")
	require.NoError(t, err)

	lookup, calls := countingLookup(sh, nil)
	e := New(WithResolver(NewResolverWithLookup(time.Minute, lookup)))
	ctx := context.Background()

	_, err = e.Run(ctx, "my-shell", []string{"-c", "true"})
	require.NoError(t, err)
	e.Forget(ctx, "my-shell")
	_, err = e.Run(ctx, "my-shell", []string{"-c", "true"})
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}
