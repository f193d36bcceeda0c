package shell

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/zjrosen/xh/internal/cachemanager"
	"github.com/zjrosen/xh/internal/log"
)

// LookupFunc resolves a program name to a path, like exec.LookPath.
type LookupFunc func(name string) (string, error)

// Resolver finds executables on PATH, caching successful lookups.
// Names containing a path separator bypass the cache.
type Resolver struct {
	cache *cachemanager.ReadThroughCache[string, string, string]
	ttl   time.Duration
}

// NewResolver returns a resolver that caches results for ttl.
// A ttl of zero disables caching.
func NewResolver(ttl time.Duration) *Resolver {
	return NewResolverWithLookup(ttl, exec.LookPath)
}

// NewResolverWithLookup is NewResolver with a custom lookup function.
func NewResolverWithLookup(ttl time.Duration, lookup LookupFunc) *Resolver {
	manager := cachemanager.NewInMemoryCacheManager[string, string]("path-lookup", ttl, 2*ttl+time.Minute)
	fn := func(_ context.Context, name string) (string, error) {
		return lookup(name)
	}
	return &Resolver{
		cache: cachemanager.NewReadThroughCache[string, string, string](manager, fn, ttl <= 0),
		ttl:   ttl,
	}
}

// Resolve returns the path of the program name refers to.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	if strings.ContainsAny(name, `/\`) {
		return exec.LookPath(name)
	}
	// PATH is part of the key so a changed PATH never serves a stale entry
	key := name + "\x00" + os.Getenv("PATH")
	path, err := r.cache.Get(ctx, key, name, r.ttl)
	if err != nil {
		log.Debug(log.CatCache, "executable lookup failed", "name", name, "error", err)
		return "", err
	}
	return path, nil
}

// Forget drops the cached lookup for name under the current PATH.
func (r *Resolver) Forget(ctx context.Context, name string) {
	_ = r.cache.Invalidate(ctx, name+"\x00"+os.Getenv("PATH"))
}
