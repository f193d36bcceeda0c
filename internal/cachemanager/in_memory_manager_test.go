package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewInMemoryCacheManager(t *testing.T) {
	require.NotPanics(t, func() {
		NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)
	})
}

func TestInMemoryCacheManager_GetExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("lookpath", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "sh", "/bin/sh", DefaultExpiration)

	got, ok := cache.Get(context.Background(), "sh")
	require.True(t, ok)
	require.Equal(t, "/bin/sh", got)
}

func TestInMemoryCacheManager_GetMissingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("lookpath", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.Get(context.Background(), "sh")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetWrongType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("lookpath", DefaultExpiration, DefaultCleanupInterval)
	cache.cache.Set("sh", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "sh")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_Expiry(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("lookpath", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "sh", "/bin/sh", 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	_, ok := cache.Get(context.Background(), "sh")
	require.False(t, ok)
}

func TestInMemoryCacheManager_Delete(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("lookpath", DefaultExpiration, DefaultCleanupInterval)
	ctx := context.Background()

	require.NoError(t, cache.Delete(ctx))

	cache.Set(ctx, "sh", "/bin/sh", DefaultExpiration)
	cache.Set(ctx, "ls", "/bin/ls", DefaultExpiration)

	require.NoError(t, cache.Delete(ctx, "sh"))
	_, ok := cache.Get(ctx, "sh")
	require.False(t, ok)

	got, ok := cache.Get(ctx, "ls")
	require.True(t, ok)
	require.Equal(t, "/bin/ls", got)

	require.NoError(t, cache.Delete(ctx, "ls", "missing"))
	_, ok = cache.Get(ctx, "ls")
	require.False(t, ok)
}
