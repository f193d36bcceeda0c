package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newCountingLoader(result string, err error) (func(ctx context.Context, name string) (string, error), *int) {
	calls := 0
	return func(ctx context.Context, name string) (string, error) {
		calls++
		if err != nil {
			return "", err
		}
		return result + name, nil
	}, &calls
}

func TestReadThroughCache_Get_LoadsOnceThenHits(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("lookpath", DefaultExpiration, DefaultCleanupInterval)
	fn, calls := newCountingLoader("/usr/bin/", nil)
	rtc := NewReadThroughCache[string, string, string](cache, fn, false)

	got, err := rtc.Get(context.Background(), "git", "git", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/git", got)

	got, err = rtc.Get(context.Background(), "git", "git", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/git", got)
	require.Equal(t, 1, *calls)
}

func TestReadThroughCache_Get_SkipCacheAlwaysLoads(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("lookpath", DefaultExpiration, DefaultCleanupInterval)
	fn, calls := newCountingLoader("/usr/bin/", nil)
	rtc := NewReadThroughCache[string, string, string](cache, fn, true)

	for i := 0; i < 3; i++ {
		_, err := rtc.Get(context.Background(), "git", "git", time.Minute)
		require.NoError(t, err)
	}
	require.Equal(t, 3, *calls)
	_, ok := cache.Get(context.Background(), "git")
	require.False(t, ok)
}

func TestReadThroughCache_Get_ErrorsAreNotCached(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("lookpath", DefaultExpiration, DefaultCleanupInterval)
	fn, calls := newCountingLoader("", errors.New("not found"))
	rtc := NewReadThroughCache[string, string, string](cache, fn, false)

	_, err := rtc.Get(context.Background(), "nope", "nope", time.Minute)
	require.Error(t, err)
	_, err = rtc.Get(context.Background(), "nope", "nope", time.Minute)
	require.Error(t, err)

	require.Equal(t, 2, *calls)
	_, ok := cache.Get(context.Background(), "nope")
	require.False(t, ok)
}

func TestReadThroughCache_Invalidate(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("lookpath", DefaultExpiration, DefaultCleanupInterval)
	fn, calls := newCountingLoader("/bin/", nil)
	rtc := NewReadThroughCache[string, string, string](cache, fn, false)

	_, err := rtc.Get(context.Background(), "sh", "sh", time.Minute)
	require.NoError(t, err)
	require.NoError(t, rtc.Invalidate(context.Background(), "sh"))
	_, err = rtc.Get(context.Background(), "sh", "sh", time.Minute)
	require.NoError(t, err)

	require.Equal(t, 2, *calls)
}
