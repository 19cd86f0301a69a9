package cacheconfig

import (
	"testing"
	"time"
)

func TestIsStaleAbsentFetchedAt(t *testing.T) {
	c := Default()
	if !c.IsStale(time.Time{}, KindLibraries) {
		t.Fatal("absent fetched_at must always be stale")
	}
}

func TestIsStaleWithinTTL(t *testing.T) {
	c := Default()
	fresh := time.Now().Add(-10 * time.Minute)
	if c.IsStale(fresh, KindLibraries) {
		t.Fatal("expected fresh libraries entry to not be stale (TTL 1h)")
	}
}

func TestIsStaleBeyondTTL(t *testing.T) {
	c := Default()
	old := time.Now().Add(-2 * time.Hour)
	if !c.IsStale(old, KindLibraries) {
		t.Fatal("expected 2h-old libraries entry to be stale (TTL 1h)")
	}
}

func TestTTLTable(t *testing.T) {
	c := Default()
	cases := map[Kind]time.Duration{
		KindLibraries:    time.Hour,
		KindMediaItems:   4 * time.Hour,
		KindEpisodes:     12 * time.Hour,
		KindFullMetadata: 24 * time.Hour,
		KindHomeSections: 30 * time.Minute,
	}
	for kind, want := range cases {
		if got := c.TTL(kind); got != want {
			t.Errorf("TTL(%v) = %v, want %v", kind, got, want)
		}
	}
}

func TestWithTTLDoesNotMutateOriginal(t *testing.T) {
	base := Default()
	overridden := base.WithTTL(KindLibraries, time.Minute)

	if base.TTL(KindLibraries) != time.Hour {
		t.Fatal("WithTTL must not mutate the receiver")
	}
	if overridden.TTL(KindLibraries) != time.Minute {
		t.Fatal("WithTTL must override the copy")
	}
}
