package boundedcache

import (
	"sync"
	"time"

	"code.hybscloud.com/spin"
)

// Cache is a concurrent, bounded, Window-TinyLFU cache (spec §2 "Bounded
// Cache façade"). Hot paths (Get/Put/Remove/Compute) are lock-free against
// each other except for per-node monitor acquisition on value mutation;
// all policy state is mutated only under evictionMu, held by the single
// goroutine running maintenance at any moment (spec §5).
//
// Grounded in the teacher's Bicache/Shard split (bicache.go, methods.go):
// the data-map sharding technique survives as dataShard, but unlike the
// teacher, region membership, the sketch, and weighted size are global
// here, not per-shard -- see SPEC_FULL.md §2.1.
type Cache[K comparable, V any] struct {
	cfg       Config[K, V]
	shards    []*dataShard[K, V]
	shardMask uint32

	readBuf  *stripedReadBuffer[K, V]
	writeBuf *writeBuffer[K, V]

	evictionMu sync.Mutex // guards everything below

	windowDeque    accessOrderDeque[K, V]
	probationDeque accessOrderDeque[K, V]
	protectedDeque accessOrderDeque[K, V]
	writeOrderDq   writeOrderDeque[K, V]

	wheel   *timerWheel[K, V]
	sketch  *frequencySketch[K]
	climber *hillClimber
	pacer   *pacer

	maximum              int64
	windowMaximum        int64
	mainMaximum          int64
	mainProtectedMaximum int64
	windowWeighted       int64
	mainProtectedWeighted int64
	weightedSize         int64

	status drainStatus

	counters   *counters
	clock      func() int64
	executor   Executor
	drainTachy *drainTachymeter

	closed bool
}

func (c *Cache[K, V]) shardFor(k K) *dataShard[K, V] {
	h := c.cfg.HashKey(k)
	return c.shards[uint32(h)&c.shardMask]
}

func (c *Cache[K, V]) now() int64 { return c.clock() }

// ---- read path -----------------------------------------------------------

// Get returns the value currently mapped to k, and whether it was present.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	return c.getIfPresent(k, true)
}

// GetIfPresent is the same lookup without implying a loader is in play
// (there is no loader on this path regardless -- see GetOrLoad).
func (c *Cache[K, V]) GetIfPresent(k K) (V, bool) {
	return c.getIfPresent(k, true)
}

func (c *Cache[K, V]) getIfPresent(k K, recordStats bool) (V, bool) {
	shard := c.shardFor(k)
	n, ok := shard.get(k)
	if !ok || !n.isAlive() {
		c.evictionMu.Lock()
		c.climber.recordMiss()
		c.evictionMu.Unlock()
		if recordStats {
			c.counters.recordMiss()
		}
		var zero V
		return zero, false
	}
	v, present := n.getValue()
	if !present {
		c.evictionMu.Lock()
		c.climber.recordMiss()
		c.evictionMu.Unlock()
		if recordStats {
			c.counters.recordMiss()
		}
		var zero V
		return zero, false
	}
	n.accessTimeNanos.Store(c.now())
	c.afterRead(n)
	if recordStats {
		c.counters.recordHit()
	}
	return v, true
}

// afterRead publishes a read event to the striped buffer unless the
// skipReadBuffer fast path applies (spec §4.2, DESIGN.md Open Question 1).
func (c *Cache[K, V]) afterRead(n *Node[K, V]) {
	if c.skipReadBuffer() {
		c.evictionMu.Lock()
		c.onAccess(n)
		c.evictionMu.Unlock()
		return
	}
	result := c.readBuf.offer(n)
	if result == readBufferSuccess {
		c.status.scheduleAfterWrite()
		c.scheduleDrain()
	}
}

// skipReadBuffer is true when recency doesn't matter enough to pay for
// buffering: the cache is under half its capacity and neither access-based
// nor variable per-entry expiration is configured (DESIGN.md Open Question 1).
func (c *Cache[K, V]) skipReadBuffer() bool {
	c.evictionMu.Lock()
	belowHalf := c.weightedSize < c.maximum/2
	c.evictionMu.Unlock()
	return belowHalf && c.cfg.ExpireAfterAccess == 0 && c.cfg.ExpiryMode == ExpiryDisabled
}

// onAccess applies one read event's policy effect: move within the
// region, or promote probation -> protected (spec §4.5 steps 1 and 5).
func (c *Cache[K, V]) onAccess(n *Node[K, V]) {
	if !n.isAlive() {
		return
	}
	c.sketch.increment(n.key)
	switch n.region {
	case regionWindow:
		c.windowDeque.moveToHead(n)
	case regionProbation:
		c.promote(n)
	case regionProtected:
		c.protectedDeque.moveToHead(n)
	}
	c.climber.recordHit()
}

// promote moves a probation hit to protected MRU, demoting protected's LRU
// back to probation MRU if that overflows mainProtectedMaximum (spec §4.5
// step 5; DESIGN.md "Deferred/trimmed teacher surface" explains why this
// is a direct per-access swap rather than the teacher's batched scan).
func (c *Cache[K, V]) promote(n *Node[K, V]) {
	c.probationDeque.remove(n)
	n.region = regionProtected
	c.protectedDeque.pushHead(n)
	c.mainProtectedWeighted += int64(n.weight)
	c.demoteProtectedOverflow()
}

// demoteProtectedOverflow shifts protected's LRU entries back to probation
// MRU until mainProtectedWeighted fits mainProtectedMaximum again. Run after
// every promotion and at the start of every drain's eviction step, since a shrunk maximum
// (SetMaximum) or a climb() step can also leave protected over its share.
func (c *Cache[K, V]) demoteProtectedOverflow() {
	for c.mainProtectedWeighted > c.mainProtectedMaximum {
		demoted := c.protectedDeque.removeLast()
		if demoted == nil {
			break
		}
		c.mainProtectedWeighted -= int64(demoted.weight)
		demoted.region = regionProbation
		c.probationDeque.pushHead(demoted)
	}
}

// ---- write path -----------------------------------------------------------

// Put installs v for k, returning the previous value if any.
func (c *Cache[K, V]) Put(k K, v V) (V, bool) {
	return c.put(k, v, false)
}

// PutIfAbsent installs v for k only if k is absent, returning the value
// now mapped to k and whether it was v itself that got installed.
func (c *Cache[K, V]) PutIfAbsent(k K, v V) (V, bool) {
	return c.put(k, v, true)
}

// put installs v for k. An update to an already-live key mutates that
// node's value in place under its monitor rather than replacing the node,
// so the entry keeps its current region and deque position (spec §4.7: "if
// the old entry was in window, keep it there; otherwise it stays in its
// current region"). A rapid repeat write within Config.ExpireWriteTolerance
// of the node's last write is coalesced into a read-buffer signal instead
// of a write task, so recency is still recorded without paying the
// write-order requeue and expiry recompute on every tight update loop.
func (c *Cache[K, V]) put(k K, v V, onlyIfAbsent bool) (V, bool) {
	now := c.now()
	shard := c.shardFor(k)

	for {
		existing, had := shard.get(k)
		if had && existing.isAlive() {
			if onlyIfAbsent {
				v2, _ := existing.getValue()
				return v2, false
			}

			existing.mu.Lock()
			if !existing.isAlive() {
				existing.mu.Unlock()
				continue // lost a race with removal/eviction; retry as an insert
			}
			oldV, _ := existing.getValue()
			oldWeight := existing.weight
			existing.value.resurrect(c.cfg.ValueReferenceType, v)
			newWeight := c.cfg.Weigher(k, v)
			existing.weight = newWeight
			lastWrite := existing.writeTimeNanos.Load()
			existing.mu.Unlock()

			withinTolerance := newWeight == oldWeight &&
				now-lastWrite < c.cfg.ExpireWriteTolerance.Nanoseconds()
			if withinTolerance {
				existing.accessTimeNanos.Store(now)
				c.afterRead(existing)
			} else {
				existing.writeTimeNanos.Store(now)
				c.afterWrite(writeTask[K, V]{
					kind:        writeTaskUpdate,
					node:        existing,
					weightDelta: int64(newWeight) - int64(oldWeight),
				})
			}
			c.notifyRemoval(k, oldV, CauseReplaced)
			return oldV, true
		}

		weight := c.cfg.Weigher(k, v)
		newNode := newNode[K, V](k, v, c.cfg.ValueReferenceType, weight, now)
		newNode.region = regionWindow
		inserted, wasNew := shard.putIfAbsent(k, newNode)
		if !wasNew {
			if onlyIfAbsent {
				v2, _ := inserted.getValue()
				return v2, false
			}
			continue // someone inserted concurrently; retry against it as an update
		}
		c.afterWrite(writeTask[K, V]{kind: writeTaskAdd, node: newNode})
		if onlyIfAbsent {
			return v, true
		}
		var zero V
		return zero, false
	}
}

// Replace installs v for k only if k is already present, returning
// whether a replacement happened.
func (c *Cache[K, V]) Replace(k K, v V) (V, bool) {
	shard := c.shardFor(k)
	existing, ok := shard.get(k)
	if !ok || !existing.isAlive() {
		var zero V
		return zero, false
	}
	return c.Put(k, v)
}

// ReplaceExpected installs newV for k only if k's current value is oldV,
// comparing values via a caller-supplied equal function since V is not
// constrained to comparable.
func (c *Cache[K, V]) ReplaceExpected(k K, oldV, newV V, equal func(V, V) bool) bool {
	shard := c.shardFor(k)
	existing, ok := shard.get(k)
	if !ok || !existing.isAlive() {
		return false
	}
	cur, present := existing.getValue()
	if !present || !equal(cur, oldV) {
		return false
	}
	c.Put(k, newV)
	return true
}

// Remove deletes k, returning its last value if present.
func (c *Cache[K, V]) Remove(k K) (V, bool) {
	shard := c.shardFor(k)
	n, ok := shard.get(k)
	if !ok {
		var zero V
		return zero, false
	}
	if !shard.deleteIfSame(k, n) {
		var zero V
		return zero, false
	}
	n.retire()
	v, _ := n.getValue()
	c.afterWrite(writeTask[K, V]{kind: writeTaskRemove, node: n})
	return v, true
}

// RemoveExpected deletes k only if its current value equals v.
func (c *Cache[K, V]) RemoveExpected(k K, v V, equal func(V, V) bool) bool {
	shard := c.shardFor(k)
	n, ok := shard.get(k)
	if !ok || !n.isAlive() {
		return false
	}
	cur, present := n.getValue()
	if !present || !equal(cur, v) {
		return false
	}
	_, removed := c.Remove(k)
	return removed
}

// ---- compute family ---------------------------------------------------

// Compute atomically applies f to k's current value (zero value and false
// if absent); if f returns ok=false the entry is removed (or stays
// absent), otherwise the returned value is installed. Runs under the
// node's own monitor when k is already present, matching spec §5's
// "compute holds the node monitor for the duration of the user function".
func (c *Cache[K, V]) Compute(k K, f func(old V, present bool) (newV V, ok bool)) (V, bool) {
	shard := c.shardFor(k)
	for {
		existing, had := shard.get(k)
		if had && existing.isAlive() {
			existing.mu.Lock()
			cur, present := existing.getValue()
			newV, ok := f(cur, present)
			if !ok {
				existing.mu.Unlock()
				c.Remove(k)
				var zero V
				return zero, false
			}
			oldWeight := existing.weight
			existing.value.resurrect(c.cfg.ValueReferenceType, newV)
			newWeight := c.cfg.Weigher(k, newV)
			existing.weight = newWeight
			existing.writeTimeNanos.Store(c.now())
			existing.mu.Unlock()
			c.afterWrite(writeTask[K, V]{
				kind:        writeTaskUpdate,
				node:        existing,
				weightDelta: int64(newWeight) - int64(oldWeight),
			})
			if present {
				c.notifyRemoval(k, cur, CauseReplaced)
			}
			return newV, true
		}

		var zero V
		newV, ok := f(zero, false)
		if !ok {
			return zero, false
		}
		v, inserted := c.PutIfAbsent(k, newV)
		if inserted {
			return newV, true
		}
		// Lost the race with a concurrent insert; retry against it.
		_ = v
	}
}

// ComputeIfAbsent installs f(k)'s result only if k is currently absent.
func (c *Cache[K, V]) ComputeIfAbsent(k K, f func() (V, bool)) (V, bool) {
	if v, ok := c.getIfPresent(k, false); ok {
		return v, true
	}
	newV, ok := f()
	if !ok {
		var zero V
		return zero, false
	}
	v, _ := c.PutIfAbsent(k, newV)
	return v, true
}

// ComputeIfPresent applies f to k's current value only if k is present.
func (c *Cache[K, V]) ComputeIfPresent(k K, f func(V) (V, bool)) (V, bool) {
	return c.Compute(k, func(old V, present bool) (V, bool) {
		if !present {
			return old, false
		}
		return f(old)
	})
}

// Merge combines v with k's current value via f (if present) or installs v
// directly (if absent), removing the entry if f returns ok=false.
func (c *Cache[K, V]) Merge(k K, v V, f func(old, new V) (V, bool)) (V, bool) {
	return c.Compute(k, func(old V, present bool) (V, bool) {
		if !present {
			return v, true
		}
		return f(old, v)
	})
}

// GetOrLoad returns k's value, computing and installing it via loader on a
// miss (spec §6 expansion: the synchronous slice of the out-of-scope async
// loader). The loaded value participates in admission exactly like any
// other put.
func (c *Cache[K, V]) GetOrLoad(k K, loader LoadFunc[K, V]) (V, error) {
	if v, ok := c.getIfPresent(k, true); ok {
		return v, nil
	}
	var loadErr error
	v, _ := c.ComputeIfAbsent(k, func() (V, bool) {
		loaded, err := loader(k)
		if err != nil {
			loadErr = err
			var zero V
			return zero, false
		}
		return loaded, true
	})
	if loadErr != nil {
		var zero V
		return zero, loadErr
	}
	c.counters.recordLoad()
	return v, nil
}

// ---- write buffer plumbing ---------------------------------------------

// afterWrite enqueues t and always schedules a drain; if the write buffer
// is momentarily full the producer spins briefly, then falls back to
// running maintenance itself so every task still eventually executes
// (spec §4.3).
func (c *Cache[K, V]) afterWrite(t writeTask[K, V]) {
	c.status.scheduleAfterWrite()
	if c.writeBuf.tryOffer(t) {
		c.scheduleDrain()
		return
	}
	sw := spin.Wait{}
	for i := 0; i < writeBufferRetrySpins; i++ {
		if c.writeBuf.tryOffer(t) {
			c.scheduleDrain()
			return
		}
		sw.Once()
	}
	// Still full: run maintenance on this goroutine to drain space, then
	// the task is guaranteed to fit.
	c.maintenance()
	c.writeBuf.tryOffer(t)
	c.scheduleDrain()
}

const writeBufferRetrySpins = 64

// scheduleDrain submits the maintenance task to the executor if the
// drain-status transition requires a submission (spec §4.4); on executor
// rejection it degrades to running the drain synchronously on this
// goroutine (spec §4.10/§7 ExecutorRejection).
func (c *Cache[K, V]) scheduleDrain() {
	if !c.status.scheduleDrainBuffers() {
		return
	}
	err := c.executor.Execute(c.runScheduledMaintenance)
	if err != nil {
		c.runScheduledMaintenance()
	}
}

func (c *Cache[K, V]) runScheduledMaintenance() {
	c.maintenance()
}

// ---- maintenance / drain loop -------------------------------------------

// maintenance runs the full ordered drain (spec §4.5), re-running if new
// work arrived while draining, per the drain-status state machine.
func (c *Cache[K, V]) maintenance() {
	c.evictionMu.Lock()
	defer c.evictionMu.Unlock()

	var start time.Time
	if c.drainTachy != nil {
		start = time.Now()
	}

	for {
		now := c.now()

		// 1. Drain read buffer.
		c.readBuf.drainAll(func(n *Node[K, V]) {
			c.onAccess(n)
		})

		// 2. Drain write buffer.
		c.writeBuf.drainTo(func(t writeTask[K, V]) {
			c.applyWriteTask(t, now)
		})

		// 3. Expire entries.
		c.expireEntries(now)

		// 4. Evict to capacity.
		c.evictToCapacity(now)

		// 6. Climb.
		c.climb()

		// 7. Pacer: schedule the next wake for the earliest future
		// expiration.
		if deadline := c.wheel.nextDeadline(); deadline > 0 {
			c.pacer.schedule(now, deadline)
		}

		// 8. Transition drain-status; re-run if new work arrived.
		if !c.status.drainComplete() {
			break
		}
	}

	if c.drainTachy != nil {
		c.drainTachy.recordDrain(start)
		if c.cfg.DrainLog {
			c.drainTachy.logSummary()
		}
	}
}

func (c *Cache[K, V]) applyWriteTask(t writeTask[K, V], now int64) {
	switch t.kind {
	case writeTaskAdd:
		c.linkNew(t.node, now)
	case writeTaskUpdate:
		c.applyUpdate(t.node, t.weightDelta, now)
	case writeTaskRemove:
		c.unlinkDead(t.node)
		t.node.die()
		v, _ := t.node.getValue()
		c.notifyEviction(t.node.key, v, CauseExplicit)
		c.notifyRemoval(t.node.key, v, CauseExplicit)
	}
}

// applyUpdate fixes up policy state after an in-place value update: the
// node keeps its region (spec §4.7 -- an update never resets an entry back
// to the window), only its write-order position and weighted-size
// accounting move. The drain's usual evictToCapacity pass picks up any
// overflow the weight change introduces.
func (c *Cache[K, V]) applyUpdate(n *Node[K, V], weightDelta int64, now int64) {
	if !n.isAlive() {
		return
	}
	switch n.region {
	case regionWindow:
		c.windowWeighted += weightDelta
	case regionProtected:
		c.mainProtectedWeighted += weightDelta
	}
	c.weightedSize += weightDelta
	c.writeOrderDq.moveToTail(n)
	c.scheduleExpiry(n, now, n.varExpireNanos.Load())
}

func (c *Cache[K, V]) linkNew(n *Node[K, V], now int64) {
	weight := int64(n.weight)
	if weight > c.maximum {
		// Entry too big: insert is already visible, immediately schedule
		// eviction with cause SIZE (spec §4.7).
		c.windowDeque.pushHead(n)
		c.windowWeighted += weight
		c.weightedSize += weight
		c.evictNode(n, CauseSize)
		c.counters.recordOverflow()
		return
	}
	n.region = regionWindow
	c.windowDeque.pushHead(n)
	c.windowWeighted += weight
	c.weightedSize += weight
	c.writeOrderDq.pushTail(n)
	c.scheduleExpiry(n, now, now)
}

func (c *Cache[K, V]) scheduleExpiry(n *Node[K, V], now, priorDeadline int64) {
	if c.cfg.ExpiryMode == ExpiryDisabled {
		return
	}
	v, _ := n.getValue()
	deadline := c.cfg.Expiry(n.key, v, now, priorDeadline)
	n.varExpireNanos.Store(deadline)
	c.wheel.reschedule(n)
}

// unlinkDead removes n from whichever deques it currently belongs to. The
// node itself transitions RETIRED -> DEAD by the caller once unlinked.
func (c *Cache[K, V]) unlinkDead(n *Node[K, V]) {
	if n == nil {
		return
	}
	switch n.region {
	case regionWindow:
		c.windowDeque.remove(n)
		c.windowWeighted -= int64(n.weight)
	case regionProbation:
		c.probationDeque.remove(n)
	case regionProtected:
		c.protectedDeque.remove(n)
		c.mainProtectedWeighted -= int64(n.weight)
	}
	c.writeOrderDq.remove(n)
	c.wheel.deschedule(n)
	c.weightedSize -= int64(n.weight)
}

// evictNode performs the double-check-under-node-monitor mandated by spec
// §4.1 before actually unlinking and retiring n for cause.
func (c *Cache[K, V]) evictNode(n *Node[K, V], cause RemovalCause) {
	n.mu.Lock()
	if !n.isAlive() {
		n.mu.Unlock()
		return
	}
	if cause == CauseCollected && !n.isCollected() {
		// Resurrected under our nose: abort (spec §4.1).
		n.mu.Unlock()
		return
	}
	v, _ := n.getValue()
	n.mu.Unlock()

	shard := c.shardFor(n.key)
	shard.deleteIfSame(n.key, n)
	n.retire()
	c.unlinkDead(n)
	n.die()

	c.counters.recordEviction(cause)
	c.notifyEviction(n.key, v, cause)
	c.notifyRemoval(n.key, v, cause)
}

func (c *Cache[K, V]) notifyEviction(k K, v V, cause RemovalCause) {
	if c.cfg.EvictionListener == nil {
		return
	}
	runRecovered(func() { c.cfg.EvictionListener(k, v, cause) })
}

func (c *Cache[K, V]) notifyRemoval(k K, v V, cause RemovalCause) {
	if c.cfg.RemovalListener == nil {
		return
	}
	listener := c.cfg.RemovalListener
	err := c.executor.Execute(func() {
		runRecovered(func() { listener(k, v, cause) })
	})
	if err != nil {
		runRecovered(func() { listener(k, v, cause) })
	}
}

// expireEntries sweeps write-order, access-order, and the timer wheel
// (spec §4.5 step 3).
func (c *Cache[K, V]) expireEntries(now int64) {
	if c.cfg.ExpireAfterWrite > 0 {
		limit := now - c.cfg.ExpireAfterWrite.Nanoseconds()
		for {
			head := c.writeOrderDq.peekFirst()
			if head == nil || head.writeTimeNanos.Load() > limit {
				break
			}
			c.evictNode(head, CauseExpired)
		}
	}

	if c.cfg.ExpireAfterAccess > 0 {
		limit := now - c.cfg.ExpireAfterAccess.Nanoseconds()
		c.sweepAccessExpiry(&c.windowDeque, limit)
		c.sweepAccessExpiry(&c.probationDeque, limit)
		c.sweepAccessExpiry(&c.protectedDeque, limit)
	}

	if c.cfg.ExpiryMode != ExpiryDisabled {
		var sweepStart time.Time
		if c.drainTachy != nil {
			sweepStart = time.Now()
		}
		for _, n := range c.wheel.expireNodes(now) {
			c.evictNode(n, CauseExpired)
		}
		if c.drainTachy != nil {
			c.drainTachy.recordSweep(sweepStart)
		}
	}

	if c.cfg.ValueReferenceType != ReferenceStrong {
		c.sweepCollectedValues()
	}
}

// sweepCollectedValues evicts every live node whose weak/soft value
// reference the GC has cleared since the last drain, with cause COLLECTED
// (spec §4.1/§7 "ReferenceCollected... next drain evicts with cause
// COLLECTED"). Unlike the write-order and access-order sweeps, a collected
// value can surface at any position in any region's deque, not just the
// LRU end, so this walks every entry rather than stopping at the first
// live one.
func (c *Cache[K, V]) sweepCollectedValues() {
	for _, shard := range c.shards {
		shard.forEach(func(n *Node[K, V]) {
			if n.isAlive() && n.isCollected() {
				c.evictNode(n, CauseCollected)
			}
		})
	}
}

func (c *Cache[K, V]) sweepAccessExpiry(deque *accessOrderDeque[K, V], limit int64) {
	for {
		tail := deque.peekLast()
		if tail == nil || tail.accessTimeNanos.Load() > limit {
			return
		}
		c.evictNode(tail, CauseExpired)
	}
}

// evictToCapacity runs the two-phase drain-time eviction (spec §4.5 step 4):
// window overflow migrates into main-probation unconditionally, then, only
// if the cache as a whole is still over its weight bound, the TinyLFU
// admission contest picks a loser between a window arrival and a
// main-probation victim. The two phases are deliberately not fused into one
// contest loop: a window entry exceeding `windowMaximum` is not yet subject
// to eviction pressure (the cache may be well under `maximum`, e.g. while
// still filling up), and running the contest anyway would start evicting
// brand-new entries on frequency ties alone (spec §8 scenario 1's all-miss
// ascending fill must produce zero evictions).
func (c *Cache[K, V]) evictToCapacity(now int64) {
	c.demoteProtectedOverflow()
	c.evictFromWindow()
	c.evictFromMain()
}

// evictFromWindow migrates window's LRU overflow into main-probation MRU
// with no admission contest -- the window is purely an admission buffer, so
// demoting out of it can never itself evict an entry.
func (c *Cache[K, V]) evictFromWindow() {
	for c.windowWeighted > c.windowMaximum {
		candidate := c.windowDeque.peekLast()
		if candidate == nil {
			return
		}
		c.admitFromWindow(candidate)
	}
}

// evictFromMain runs the TinyLFU admission contest only once the cache is
// actually over its weight bound: the most recently window-admitted entry
// (main-probation's MRU) contests against main-probation's long-standing
// LRU victim, and the loser is evicted with cause SIZE.
func (c *Cache[K, V]) evictFromMain() {
	for c.weightedSize > c.maximum {
		victim := c.probationDeque.peekLast()
		candidate := c.probationDeque.peekFirst()

		switch {
		case candidate == nil && victim == nil:
			return
		case candidate == nil:
			c.evictNode(victim, CauseSize)
		case victim == nil || candidate == victim:
			c.evictNode(candidate, CauseSize)
		default:
			if c.admit(candidate, victim) {
				c.evictNode(victim, CauseSize)
			} else {
				c.evictNode(candidate, CauseSize)
			}
		}
	}
}

// admit runs the TinyLFU frequency comparison with a low-probability
// random tie-break to avoid starvation (spec §4.5 step 4).
func (c *Cache[K, V]) admit(candidate, victim *Node[K, V]) bool {
	candidateFreq := c.sketch.frequency(candidate.key)
	victimFreq := c.sketch.frequency(victim.key)
	if candidateFreq > victimFreq {
		return true
	}
	if candidateFreq == victimFreq {
		return fastStripeIndex()%admissionTieBreakDenominator == 0
	}
	return false
}

// admissionTieBreakDenominator makes a tied candidate win roughly 1 in 64
// times, matching Caffeine's low admission-tie probability.
const admissionTieBreakDenominator = 64

// admitFromWindow moves an admitted window candidate into main-probation,
// the window -> main transition that frees its window slot.
func (c *Cache[K, V]) admitFromWindow(n *Node[K, V]) {
	c.windowDeque.remove(n)
	c.windowWeighted -= int64(n.weight)
	n.region = regionProbation
	c.probationDeque.pushHead(n)
}

func (c *Cache[K, V]) climb() {
	delta := c.climber.maybeAdapt(c.maximum)
	if delta == 0 {
		return
	}
	c.windowMaximum, c.mainMaximum, c.mainProtectedMaximum = regionMaxima(c.windowMaximum+delta, c.maximum)
}

// ---- maintenance-adjacent public API ------------------------------------

// Clear removes every entry, notifying listeners with cause EXPLICIT.
func (c *Cache[K, V]) Clear() {
	c.InvalidateAll()
}

// InvalidateAll removes every entry and cancels any pending pacer future.
func (c *Cache[K, V]) InvalidateAll() {
	for _, shard := range c.shards {
		shard.forEach(func(n *Node[K, V]) {
			if shard.deleteIfSame(n.key, n) {
				n.retire()
				c.afterWrite(writeTask[K, V]{kind: writeTaskRemove, node: n})
			}
		})
	}
	c.evictionMu.Lock()
	c.pacer.cancel()
	c.evictionMu.Unlock()
}

// CleanUp cancels any pending pacer future, then forces a synchronous drain
// attempt on the calling goroutine.
func (c *Cache[K, V]) CleanUp() {
	c.evictionMu.Lock()
	c.pacer.cancel()
	c.evictionMu.Unlock()
	c.maintenance()
}

// SetMaximum adjusts the weight cap, re-deriving the region maxima and
// triggering eviction on the next drain if the cache is now over capacity.
func (c *Cache[K, V]) SetMaximum(n int64) {
	c.evictionMu.Lock()
	c.maximum = n
	c.windowMaximum, c.mainMaximum, c.mainProtectedMaximum = regionMaxima(c.windowMaximum, n)
	c.evictionMu.Unlock()
	c.status.scheduleAfterWrite()
	c.scheduleDrain()
}

// Coldest returns up to n entries in eviction order: window-LRU, then
// main-probation-LRU, then main-protected-LRU (spec §6 policy
// introspection).
func (c *Cache[K, V]) Coldest(n int) []K {
	c.evictionMu.Lock()
	defer c.evictionMu.Unlock()

	out := make([]K, 0, n)
	collect := func(d *accessOrderDeque[K, V]) bool {
		keep := true
		d.forEachFromTail(func(node *Node[K, V]) bool {
			if len(out) >= n {
				keep = false
				return false
			}
			out = append(out, node.key)
			return true
		})
		return keep
	}
	if !collect(&c.windowDeque) {
		return out
	}
	if !collect(&c.probationDeque) {
		return out
	}
	collect(&c.protectedDeque)
	return out
}

// Stats returns a snapshot of hit/miss/eviction counters.
func (c *Cache[K, V]) Stats() Stats {
	return c.counters.snapshot()
}

// Len reports the total number of live entries across all shards.
func (c *Cache[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.len()
	}
	return total
}
