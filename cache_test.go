package boundedcache_test

import (
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/mossveil/boundedcache"
)

func TestComputeInsertsWhenAbsent(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, int]{Maximum: 100})

	v, ok := c.Compute("counter", func(old int, present bool) (int, bool) {
		if present {
			t.Fatal("expected absent on first compute")
		}
		return 1, true
	})
	if !ok || v != 1 {
		t.Errorf("Compute insert failed: got (%d, %v)", v, ok)
	}

	v, ok = c.Compute("counter", func(old int, present bool) (int, bool) {
		if !present {
			t.Fatal("expected present on second compute")
		}
		return old + 1, true
	})
	if !ok || v != 2 {
		t.Errorf("Compute update failed: got (%d, %v)", v, ok)
	}
}

func TestComputeRemovesOnFalse(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, int]{Maximum: 100})

	c.Put("key", 1)
	_, ok := c.Compute("key", func(old int, present bool) (int, bool) {
		return 0, false
	})
	if ok {
		t.Error("expected Compute to report removal")
	}
	if _, present := c.Get("key"); present {
		t.Error("expected key removed after Compute returned ok=false")
	}
}

func TestComputeIfAbsent(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, string]{Maximum: 100})

	calls := 0
	loader := func() (string, bool) {
		calls++
		return "loaded", true
	}

	v, _ := c.ComputeIfAbsent("key", loader)
	if v != "loaded" {
		t.Errorf("expected loaded value, got %q", v)
	}

	c.ComputeIfAbsent("key", loader)
	if calls != 1 {
		t.Errorf("expected loader called once, got %d", calls)
	}
}

func TestMergeCombinesValues(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, int]{Maximum: 100})

	c.Put("key", 10)
	v, _ := c.Merge("key", 5, func(old, new int) (int, bool) {
		return old + new, true
	})
	if v != 15 {
		t.Errorf("expected merged value 15, got %d", v)
	}
}

func TestGetOrLoad(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, string]{Maximum: 100})

	v, err := c.GetOrLoad("key", func(k string) (string, error) {
		return "from-loader:" + k, nil
	})
	if err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}
	if v != "from-loader:key" {
		t.Errorf("unexpected loaded value: %q", v)
	}

	v, _ = c.GetOrLoad("key", func(k string) (string, error) {
		t.Fatal("loader should not run again for a cached key")
		return "", nil
	})
	if v != "from-loader:key" {
		t.Errorf("expected cached value, got %q", v)
	}
}

func TestEvictsToCapacity(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, string]{Maximum: 16, ShardCount: 1})

	for i := 0; i < 200; i++ {
		c.Put(keyN(i), "v")
	}
	c.CleanUp()

	if c.Len() > 32 {
		t.Errorf("expected weightedSize to converge near the cap, got %d entries", c.Len())
	}
}

func TestExpireAfterWrite(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, string]{
		Maximum:          100,
		ExpireAfterWrite: 10 * time.Millisecond,
	})

	c.Put("key", "value")
	if _, ok := c.Get("key"); !ok {
		t.Fatal("expected key present immediately after write")
	}

	time.Sleep(50 * time.Millisecond)
	c.CleanUp()

	if _, ok := c.Get("key"); ok {
		t.Error("expected key expired after ExpireAfterWrite elapsed")
	}

	stats := c.Stats()
	if stats.ExpiredEvictions == 0 {
		t.Error("expected ExpiredEvictions to be recorded")
	}
}

func TestInvalidateAll(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, string]{Maximum: 100})

	for i := 0; i < 10; i++ {
		c.Put(keyN(i), "v")
	}
	c.InvalidateAll()
	c.CleanUp()

	if c.Len() != 0 {
		t.Errorf("expected 0 entries after InvalidateAll, got %d", c.Len())
	}
}

func TestRemovalListenerFiresOnExplicitRemove(t *testing.T) {
	removed := make(chan boundedcache.RemovalCause, 1)
	c, _ := boundedcache.New(boundedcache.Config[string, string]{
		Maximum: 100,
		RemovalListener: func(k, v string, cause boundedcache.RemovalCause) {
			removed <- cause
		},
	})

	c.Put("key", "value")
	c.Remove("key")

	select {
	case cause := <-removed:
		if cause != boundedcache.CauseExplicit {
			t.Errorf("expected CauseExplicit, got %s", cause)
		}
	case <-time.After(time.Second):
		t.Fatal("removal listener never fired")
	}
}

func TestRemovalListenerFiresCauseReplacedOnUpdate(t *testing.T) {
	removed := make(chan boundedcache.RemovalCause, 1)
	c, _ := boundedcache.New(boundedcache.Config[string, string]{
		Maximum: 100,
		RemovalListener: func(k, v string, cause boundedcache.RemovalCause) {
			removed <- cause
		},
	})

	c.Put("key", "value")
	c.Put("key", "value2")

	select {
	case cause := <-removed:
		if cause != boundedcache.CauseReplaced {
			t.Errorf("expected CauseReplaced, got %s", cause)
		}
	case <-time.After(time.Second):
		t.Fatal("removal listener never fired for the replaced value")
	}

	v, ok := c.Get("key")
	if !ok || v != "value2" {
		t.Errorf("expected updated value after replace, got (%q, %v)", v, ok)
	}
}

func TestUpdateCoalescedWithinWriteToleranceStillObservesNewValue(t *testing.T) {
	now := int64(1000)
	c, _ := boundedcache.New(boundedcache.Config[string, string]{
		Maximum:              100,
		ExpireWriteTolerance: time.Second,
		Clock:                func() int64 { return now },
	})

	c.Put("key", "v1")
	// Second write lands at the same instant, well inside the tolerance
	// window, so it is buffered as a read rather than a write task.
	c.Put("key", "v2")

	v, ok := c.Get("key")
	if !ok || v != "v2" {
		t.Errorf("expected coalesced update to still be visible, got (%q, %v)", v, ok)
	}

	// Advance past the tolerance and write again: this one must go through
	// the ordinary write-task path.
	now += int64(2 * time.Second)
	c.Put("key", "v3")

	v, ok = c.Get("key")
	if !ok || v != "v3" {
		t.Errorf("expected write outside tolerance to be visible, got (%q, %v)", v, ok)
	}
}

func TestEvictionListenerFiresOnSizeEviction(t *testing.T) {
	evicted := make(chan boundedcache.RemovalCause, 256)
	c, _ := boundedcache.New(boundedcache.Config[string, string]{
		Maximum:    8,
		ShardCount: 1,
		EvictionListener: func(k, v string, cause boundedcache.RemovalCause) {
			evicted <- cause
		},
	})

	for i := 0; i < 100; i++ {
		c.Put(keyN(i), "v")
	}
	c.CleanUp()

	select {
	case cause := <-evicted:
		if cause != boundedcache.CauseSize {
			t.Errorf("expected CauseSize, got %s", cause)
		}
	default:
		t.Fatal("expected eviction listener to have fired at least once")
	}
}

func TestSetMaximumShrinksThenGrows(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, string]{Maximum: 1000, ShardCount: 1})

	for i := 0; i < 200; i++ {
		c.Put(keyN(i), "v")
	}
	c.CleanUp()
	if c.Len() != 200 {
		t.Fatalf("expected 200 entries before shrink, got %d", c.Len())
	}

	c.SetMaximum(10)
	c.CleanUp()
	if c.Len() > 20 {
		t.Errorf("expected entries to converge near the shrunk cap, got %d", c.Len())
	}

	c.SetMaximum(1000)
	for i := 200; i < 400; i++ {
		c.Put(keyN(i), "v")
	}
	c.CleanUp()
	if c.Len() < 100 {
		t.Errorf("expected entries to accumulate again after growing the cap, got %d", c.Len())
	}
}

func TestColdestReturnsLiveKeys(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, string]{Maximum: 1000, ShardCount: 1})

	want := make(map[string]bool, 10)
	for i := 0; i < 10; i++ {
		k := keyN(i)
		c.Put(k, "v")
		want[k] = true
	}
	c.CleanUp()

	coldest := c.Coldest(5)
	if len(coldest) != 5 {
		t.Fatalf("expected 5 coldest keys, got %d", len(coldest))
	}
	for _, k := range coldest {
		if !want[k] {
			t.Errorf("coldest returned unknown key %q", k)
		}
	}
}

func TestWeakValueCollectedAfterGC(t *testing.T) {
	removed := make(chan boundedcache.RemovalCause, 4)
	c, _ := boundedcache.New(boundedcache.Config[string, *int]{
		Maximum:            100,
		ValueReferenceType: boundedcache.ReferenceWeak,
		RemovalListener: func(k string, v *int, cause boundedcache.RemovalCause) {
			if v != nil {
				t.Errorf("expected a nil old value for a collected entry, got %v", *v)
			}
			removed <- cause
		},
	})

	func() {
		v := new(int)
		*v = 42
		c.Put("key", v)
	}()

	if _, ok := c.Get("key"); !ok {
		t.Fatal("expected key present immediately after put")
	}

	collected := false
	for i := 0; i < 10; i++ {
		runtime.GC()
		if _, ok := c.Get("key"); !ok {
			collected = true
			break
		}
	}
	if !collected {
		t.Skip("GC did not collect the weakly-held value within the retry budget")
	}

	c.CleanUp()

	select {
	case cause := <-removed:
		if cause != boundedcache.CauseCollected {
			t.Errorf("expected CauseCollected, got %s", cause)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a removal notification for the collected entry")
	}

	if got := c.Stats().CollectedEvictions; got != 1 {
		t.Errorf("expected 1 collected eviction, got %d", got)
	}
}

// TestResurrectOnComputeAfterCollection reproduces the collected-value
// handoff: the drain discovers a collected weak value and evicts it with
// cause COLLECTED before Compute gets a chance to touch the same key, so
// Compute's resurrect attempt falls through to a plain insert. Forcing
// CleanUp before Compute makes the ordering deterministic instead of
// depending on how two goroutines happen to race the node monitor.
func TestResurrectOnComputeAfterCollection(t *testing.T) {
	removed := make(chan boundedcache.RemovalCause, 4)
	c, _ := boundedcache.New(boundedcache.Config[string, *int]{
		Maximum:            100,
		ValueReferenceType: boundedcache.ReferenceWeak,
		RemovalListener: func(k string, v *int, cause boundedcache.RemovalCause) {
			removed <- cause
		},
	})

	func() {
		v := new(int)
		*v = 2
		c.Put("key", v)
	}()

	collected := false
	for i := 0; i < 10; i++ {
		runtime.GC()
		if _, ok := c.Get("key"); !ok {
			collected = true
			break
		}
	}
	if !collected {
		t.Skip("GC did not collect the weakly-held value within the retry budget")
	}

	c.CleanUp()

	three := 3
	v, ok := c.Compute("key", func(old *int, present bool) (*int, bool) {
		return &three, true
	})
	if !ok || v == nil || *v != 3 {
		t.Fatalf("expected compute to install 3, got (%v, %v)", v, ok)
	}

	got, ok := c.Get("key")
	if !ok || got == nil || *got != 3 {
		t.Errorf("expected final value 3, got (%v, %v)", got, ok)
	}

	select {
	case cause := <-removed:
		if cause != boundedcache.CauseCollected {
			t.Errorf("expected CauseCollected, got %s", cause)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a removal notification for the collected entry")
	}

	select {
	case cause := <-removed:
		t.Errorf("expected exactly one removal notification, got an extra one with cause %s", cause)
	default:
	}
}

// TestWindowTinyLFUOrderingScenario reproduces the ascending-fill and
// promotion orderings spec'd for a maximum=10, single-shard cache: ten
// misses followed by drain leave exactly one key (the most recent) in the
// window and the rest in main-probation oldest-to-newest, and promoting
// three keys via Get moves them to the protected tail in access order.
func TestWindowTinyLFUOrderingScenario(t *testing.T) {
	c, _ := boundedcache.New(boundedcache.Config[string, string]{Maximum: 10, ShardCount: 1})

	for i := 0; i < 10; i++ {
		c.Put(keyN(i), "v")
	}
	c.CleanUp()

	want := []string{keyN(9), keyN(0), keyN(1), keyN(2), keyN(3), keyN(4), keyN(5), keyN(6), keyN(7), keyN(8)}
	if got := c.Coldest(10); !equalKeys(got, want) {
		t.Fatalf("after ascending fill: got %v, want %v", got, want)
	}
	if stats := c.Stats(); stats.Evictions != 0 {
		t.Errorf("expected zero evictions from an ascending fill within capacity, got %d", stats.Evictions)
	}

	c.Get(keyN(0))
	c.Get(keyN(1))
	c.Get(keyN(2))
	c.CleanUp()

	want = []string{keyN(9), keyN(3), keyN(4), keyN(5), keyN(6), keyN(7), keyN(8), keyN(0), keyN(1), keyN(2)}
	if got := c.Coldest(10); !equalKeys(got, want) {
		t.Fatalf("after promoting 0,1,2: got %v, want %v", got, want)
	}

	// Put 10, 11, 12: each overflows the single-slot window, and the
	// window's sole occupant then contests admission against
	// main-probation's oldest victim. Both sides have frequency 0 (neither
	// the new arrival nor the probation victim has ever been read), so the
	// tie is resolved by the process-wide admission counter rather than
	// anything this test controls -- it admits the new arrival only 1 time
	// in 64. What's guaranteed regardless of how the ties fall: weightedSize
	// never exceeds the cap, the window always ends up holding exactly the
	// most recent key, and 0/1/2 (already promoted to protected, never a
	// party to this contest) are never touched.
	c.Put(keyN(10), "v")
	c.Put(keyN(11), "v")
	c.Put(keyN(12), "v")
	c.CleanUp()

	if got := c.Len(); got > 10 {
		t.Errorf("expected weightedSize to stay within the cap, got %d entries", got)
	}

	got := c.Coldest(10)
	if len(got) == 0 || got[0] != keyN(12) {
		t.Fatalf("expected the window to converge on the most recent key 12, got %v", got)
	}
	for _, k := range []string{keyN(0), keyN(1), keyN(2)} {
		found := false
		for _, g := range got {
			if g == k {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected promoted key %q to survive the window churn, got %v", k, got)
		}
	}

	if stats := c.Stats(); stats.Evictions < 3 {
		t.Errorf("expected at least 3 evictions from the three overflowing puts, got %d", stats.Evictions)
	}
}

func equalKeys(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i, k := range got {
		if k != want[i] {
			return false
		}
	}
	return true
}

func keyN(i int) string {
	return "key-" + strconv.Itoa(i)
}
