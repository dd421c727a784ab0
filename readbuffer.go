package boundedcache

import (
	"runtime"
	"sync/atomic"

	"code.hybscloud.com/atomix"
)

type readBufferResult uint8

const (
	readBufferSuccess readBufferResult = iota
	readBufferFull
	readBufferFailed
)

// readRing is one lossy, fixed-capacity MPSC ring used to batch read
// events (spec §4.2). Cursors use code.hybscloud.com/atomix's
// acquire/release wrappers the way hayabusa-cloud-lfq's MPSC does; slot
// storage uses a plain atomic.Pointer since atomix exposes no generic
// atomic-pointer type.
//
// Unlike lfq.MPSC, offer() distinguishes FULL (ring at capacity) from
// FAILED (lost the CAS race for a slot to another producer), matching the
// spec's three-way SUCCESS/FULL/FAILED contract -- the reason this is
// hand-rolled instead of reusing lfq.Queue's binary error return.
type readRing[K comparable, V any] struct {
	mask    uint64
	readIdx atomix.Uint64
	writeIdx atomix.Uint64
	slots   []atomic.Pointer[Node[K, V]]
}

const readRingCapacity = 16 // per-stripe capacity; must be a power of two

func newReadRing[K comparable, V any]() *readRing[K, V] {
	return &readRing[K, V]{
		mask:  readRingCapacity - 1,
		slots: make([]atomic.Pointer[Node[K, V]], readRingCapacity),
	}
}

// offer tries to record a read of n. It never blocks.
func (r *readRing[K, V]) offer(n *Node[K, V]) readBufferResult {
	writeIdx := r.writeIdx.LoadAcquire()
	readIdx := r.readIdx.LoadRelaxed()
	if writeIdx-readIdx >= readRingCapacity {
		return readBufferFull
	}
	if !r.writeIdx.CompareAndSwapAcqRel(writeIdx, writeIdx+1) {
		return readBufferFailed
	}
	r.slots[writeIdx&r.mask].Store(n)
	return readBufferSuccess
}

// drainTo consumes every currently-offered node, calling f for each, and
// resets the ring. Only the maintenance goroutine (which holds the
// eviction mutex) calls this, so there is a single consumer as the MPSC
// contract requires.
func (r *readRing[K, V]) drainTo(f func(*Node[K, V])) {
	writeIdx := r.writeIdx.LoadAcquire()
	readIdx := r.readIdx.LoadRelaxed()
	for readIdx < writeIdx {
		slot := &r.slots[readIdx&r.mask]
		n := slot.Load()
		if n != nil {
			f(n)
			slot.Store(nil)
		}
		readIdx++
	}
	r.readIdx.StoreRelease(readIdx)
}

func (r *readRing[K, V]) count() uint64 {
	return r.writeIdx.LoadAcquire() - r.readIdx.LoadAcquire()
}

// stripedReadBuffer fans reads out across multiple rings to reduce
// cross-core contention, the same technique the teacher applies to the
// data map (routing by hash) but here routed by a fast per-call pseudo
// random index the way otter's internal/core stripes its lossy buffers.
type stripedReadBuffer[K comparable, V any] struct {
	rings []*readRing[K, V]
	mask  uint32
}

func newStripedReadBuffer[K comparable, V any]() *stripedReadBuffer[K, V] {
	n := nextPowerOfTwoInt(runtime.GOMAXPROCS(0) * 2)
	if n < 1 {
		n = 1
	}
	rings := make([]*readRing[K, V], n)
	for i := range rings {
		rings[i] = newReadRing[K, V]()
	}
	return &stripedReadBuffer[K, V]{rings: rings, mask: uint32(n - 1)}
}

func nextPowerOfTwoInt(v int) int {
	n := 1
	for n < v {
		n <<= 1
	}
	return n
}

func (b *stripedReadBuffer[K, V]) stripe() *readRing[K, V] {
	return b.rings[fastStripeIndex()&b.mask]
}

func (b *stripedReadBuffer[K, V]) offer(n *Node[K, V]) readBufferResult {
	return b.stripe().offer(n)
}

func (b *stripedReadBuffer[K, V]) drainAll(f func(*Node[K, V])) {
	for _, ring := range b.rings {
		ring.drainTo(f)
	}
}

func (b *stripedReadBuffer[K, V]) totalCount() uint64 {
	var total uint64
	for _, ring := range b.rings {
		total += ring.count()
	}
	return total
}
