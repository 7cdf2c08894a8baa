package cache

import (
	"testing"
	"time"
)

func TestDedupeCacheSuppressWithinTTL(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base

	c := NewDedupeCache(30 * time.Second)
	c.now = func() time.Time { return current }

	key := "user-1:CHAT_MESSAGE:conv-1:user-2"

	if c.ShouldSuppress(key) {
		t.Fatal("unseen key must not be suppressed")
	}

	c.Remember(key)

	current = base.Add(29 * time.Second)
	if !c.ShouldSuppress(key) {
		t.Fatal("key inside the TTL window must be suppressed")
	}
}

func TestDedupeCacheExpiry(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base

	c := NewDedupeCache(30 * time.Second)
	c.now = func() time.Time { return current }

	c.Remember("key-1")

	current = base.Add(30 * time.Second)
	if c.ShouldSuppress("key-1") {
		t.Fatal("key at the TTL boundary must not be suppressed")
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0 after lazy purge", c.Len())
	}
}

func TestDedupeCacheRememberRefreshesWindow(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base

	c := NewDedupeCache(30 * time.Second)
	c.now = func() time.Time { return current }

	c.Remember("key-1")

	current = base.Add(20 * time.Second)
	c.Remember("key-1")

	current = base.Add(45 * time.Second)
	if !c.ShouldSuppress("key-1") {
		t.Fatal("refreshed key must still be suppressed 25s after the refresh")
	}
}

func TestDedupeCacheSweep(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base

	c := NewDedupeCache(30 * time.Second)
	c.now = func() time.Time { return current }

	c.Remember("old")
	current = base.Add(20 * time.Second)
	c.Remember("fresh")

	current = base.Add(35 * time.Second)
	c.sweep()

	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after sweep", c.Len())
	}
	if !c.ShouldSuppress("fresh") {
		t.Fatal("fresh key must survive the sweep")
	}
}

func TestDedupeCacheIgnoresEmptyKey(t *testing.T) {
	t.Parallel()

	c := NewDedupeCache(30 * time.Second)

	c.Remember("")
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0", c.Len())
	}
	if c.ShouldSuppress("") {
		t.Fatal("empty key must never be suppressed")
	}
}

func TestNewDedupeCacheDefaultTTL(t *testing.T) {
	t.Parallel()

	c := NewDedupeCache(0)
	if c.TTL() != defaultTTL {
		t.Fatalf("TTL = %v, want %v", c.TTL(), defaultTTL)
	}
}
