// Package cacheconfig holds the TTL table per content kind (spec.md §4.C10),
// grounded on internal/cache's TTL-table pattern and narrowed to the five
// content kinds the catalog's stale-while-revalidate read path needs.
//
// It is one of the process's three permitted global mutable singletons
// (alongside the event bus and the connection-state cache, spec.md §5);
// callers should obtain it once at process init via Default and never
// re-initialize — construct a fresh Config in tests instead of mutating it.
package cacheconfig

import "time"

// Kind identifies the cached content family.
type Kind string

const (
	KindLibraries    Kind = "libraries"
	KindMediaItems   Kind = "media_items"
	KindEpisodes     Kind = "episodes"
	KindFullMetadata Kind = "full_metadata"
	KindHomeSections Kind = "home_sections"
)

// Config maps each Kind to its staleness TTL.
type Config struct {
	ttls map[Kind]time.Duration
}

// Default returns the TTL table specified in spec.md §4.C10.
func Default() Config {
	return Config{
		ttls: map[Kind]time.Duration{
			KindLibraries:    time.Hour,
			KindMediaItems:   4 * time.Hour,
			KindEpisodes:     12 * time.Hour,
			KindFullMetadata: 24 * time.Hour,
			KindHomeSections: 30 * time.Minute,
		},
	}
}

// TTL returns the configured TTL for kind, or zero if kind is unknown
// (treated the same as "always stale" by IsStale).
func (c Config) TTL(kind Kind) time.Duration {
	return c.ttls[kind]
}

// IsStale reports whether content of the given kind, last fetched at
// fetchedAt, should be considered stale. An absent fetchedAt (the zero
// value) is always stale.
func (c Config) IsStale(fetchedAt time.Time, kind Kind) bool {
	if fetchedAt.IsZero() {
		return true
	}
	ttl := c.TTL(kind)
	if ttl <= 0 {
		return true
	}
	return time.Since(fetchedAt) > ttl
}

// WithTTL returns a copy of c with kind's TTL overridden, used by tests and
// by any future configuration surface without mutating the process default.
func (c Config) WithTTL(kind Kind, ttl time.Duration) Config {
	next := Config{ttls: make(map[Kind]time.Duration, len(c.ttls))}
	for k, v := range c.ttls {
		next.ttls[k] = v
	}
	next.ttls[kind] = ttl
	return next
}
