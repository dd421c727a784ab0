package boundedcache_test

import (
	"testing"

	"github.com/mossveil/boundedcache"
)

func TestNewRejectsNonPowerOfTwoShardCount(t *testing.T) {
	_, err := boundedcache.New(boundedcache.Config[string, string]{
		Maximum:    100,
		ShardCount: 3,
	})
	if err == nil {
		t.Error("expected an error for a non-power-of-two ShardCount")
	}
}

func TestNewRejectsNegativeMaximum(t *testing.T) {
	_, err := boundedcache.New(boundedcache.Config[string, string]{
		Maximum: -1,
	})
	if err == nil {
		t.Error("expected an error for a negative Maximum")
	}
}

func TestNewRejectsExpiryModeWithoutPolicy(t *testing.T) {
	_, err := boundedcache.New(boundedcache.Config[string, string]{
		Maximum:    100,
		ExpiryMode: boundedcache.ExpiryCreate,
	})
	if err == nil {
		t.Error("expected an error when ExpiryMode is set without an Expiry policy")
	}
}

func TestNewDefaultsShardCount(t *testing.T) {
	c, err := boundedcache.New(boundedcache.Config[string, string]{Maximum: 100})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c == nil {
		t.Fatal("expected a non-nil cache")
	}
}

func TestPutGet(t *testing.T) {
	c, err := boundedcache.New(boundedcache.Config[string, string]{Maximum: 1000, ShardCount: 4})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	c.Put("key", "value")
	v, ok := c.Get("key")
	if !ok || v != "value" {
		t.Errorf("Get failed: got (%q, %v)", v, ok)
	}

	c.Put("key", "value2")
	v, ok = c.Get("key")
	if !ok || v != "value2" {
		t.Errorf("Update failed: got (%q, %v)", v, ok)
	}
}

func TestGetMiss(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, string]{Maximum: 100})
	if _, ok := c.Get("absent"); ok {
		t.Error("expected a miss for an absent key")
	}
}

func TestPutIfAbsent(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, string]{Maximum: 100})

	_, inserted := c.PutIfAbsent("key", "first")
	if !inserted {
		t.Error("expected the first PutIfAbsent to insert")
	}

	v, inserted := c.PutIfAbsent("key", "second")
	if inserted {
		t.Error("expected the second PutIfAbsent to be a no-op")
	}
	if v != "first" {
		t.Errorf("expected existing value %q, got %q", "first", v)
	}
}

func TestRemove(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, string]{Maximum: 100})

	c.Put("key", "value")
	v, removed := c.Remove("key")
	if !removed || v != "value" {
		t.Errorf("Remove failed: got (%q, %v)", v, removed)
	}

	if _, ok := c.Get("key"); ok {
		t.Error("expected key to be gone after Remove")
	}
}

func TestStatsHitsAndMisses(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, string]{Maximum: 100})

	c.Put("key", "value")
	c.Get("key")
	c.Get("key")
	c.Get("missing")

	stats := c.Stats()
	if stats.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}
