// Package flags provides feature flags for behavior that is off by default.
// A Registry is read-only once built; unknown flags read as disabled.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/xh/internal/log"
)

const (
	// FlagDrainUnconsumed drains background streams that have no consumer
	// to io.Discard, so a chatty child never blocks on a full pipe.
	FlagDrainUnconsumed = "drain-unconsumed-streams"

	// FlagTraceLineEvents adds a span event for every line a consumer receives.
	FlagTraceLineEvents = "trace-line-events"
)

var known = map[string]string{
	FlagDrainUnconsumed: "drain streams without a consumer in background mode",
	FlagTraceLineEvents: "record one span event per consumed line",
}

// Registry holds feature flag state loaded from configuration.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map. The map is copied.
// If flags is nil, an empty registry is created (all flags disabled).
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	maps.Copy(r.flags, flags)
	for name := range r.flags {
		if _, ok := known[name]; !ok {
			log.Warn(log.CatConfig, "Unknown feature flag in config", "flag", name)
		}
	}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags), "flags", r.All())
	return r
}

// Enabled returns true if the named flag is enabled.
// Returns false for unknown flags and on a nil registry.
func (r *Registry) Enabled(name string) bool {
	if r == nil || r.flags == nil {
		return false
	}
	return r.flags[name]
}

// With returns a new registry with name set to value. r is unchanged.
func (r *Registry) With(name string, value bool) *Registry {
	next := &Registry{flags: r.All()}
	next.flags[name] = value
	return next
}

// All returns a copy of all flags.
// Returns an empty map if the registry is nil.
func (r *Registry) All() map[string]bool {
	if r == nil || r.flags == nil {
		return make(map[string]bool)
	}
	result := make(map[string]bool, len(r.flags))
	maps.Copy(result, r.flags)
	return result
}

// Known returns the names of flags xh understands, sorted.
func Known() []string {
	return slices.Sorted(maps.Keys(known))
}

// Description returns the help text for a known flag, or "".
func Description(name string) string {
	return known[name]
}
