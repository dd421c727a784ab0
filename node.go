package boundedcache

import (
	"sync"
	"sync/atomic"
	"weak"
)

// region identifies which of the three access-ordered segments a node
// currently belongs to.
type region uint8

const (
	regionWindow region = iota
	regionProbation
	regionProtected
)

// lifecycle mirrors the ALIVE -> RETIRED -> DEAD progression from the spec.
// Transitions only ever move forward; readers observe it with acquire
// semantics via atomic.Uint32.
type lifecycle uint32

const (
	lifecycleAlive lifecycle = iota
	lifecycleRetired
	lifecycleDead
)

// RemovalCause explains why a node left the cache.
type RemovalCause uint8

const (
	// CauseExplicit means the caller removed the entry directly.
	CauseExplicit RemovalCause = iota
	// CauseReplaced means a put/replace/compute installed a new value.
	CauseReplaced
	// CauseSize means the entry was evicted to satisfy the weight bound.
	CauseSize
	// CauseExpired means an expiration policy's deadline passed.
	CauseExpired
	// CauseCollected means the node's weakly/softly held value was
	// cleared by the garbage collector before any other cause applied.
	CauseCollected
)

func (c RemovalCause) String() string {
	switch c {
	case CauseExplicit:
		return "EXPLICIT"
	case CauseReplaced:
		return "REPLACED"
	case CauseSize:
		return "SIZE"
	case CauseExpired:
		return "EXPIRED"
	case CauseCollected:
		return "COLLECTED"
	default:
		return "UNKNOWN"
	}
}

// ReferenceType selects how a node holds its value, mirroring Caffeine's
// key/value reference modes. Go's GC has no soft-reference analog, so
// ReferenceSoft degrades to the same weak.Pointer-backed behavior as
// ReferenceWeak -- see DESIGN.md Open Question 3.
type ReferenceType uint8

const (
	ReferenceStrong ReferenceType = iota
	ReferenceWeak
	ReferenceSoft
)

// valueHolder abstracts strong vs. weak storage of a node's value so the
// hot path and the drain loop can ask "is this still here?" uniformly.
type valueHolder[V any] struct {
	refType ReferenceType
	strong  V
	weak    weak.Pointer[V]
	hasWeak bool
}

func newValueHolder[V any](refType ReferenceType, v V) valueHolder[V] {
	if refType == ReferenceStrong {
		return valueHolder[V]{refType: refType, strong: v}
	}
	// WEAK and SOFT both go through weak.Pointer. The caller owns a
	// strong reference to the boxed copy for as long as it needs one;
	// once that reference is dropped, the GC may clear the weak pointer.
	boxed := new(V)
	*boxed = v
	return valueHolder[V]{refType: refType, weak: weak.Make(boxed), hasWeak: true}
}

// load returns the current value and whether it is still present. A
// cleared weak/soft reference reports false, which the drain loop treats
// as a candidate for CauseCollected eviction.
func (h *valueHolder[V]) load() (V, bool) {
	if h.refType == ReferenceStrong {
		return h.strong, true
	}
	if !h.hasWeak {
		var zero V
		return zero, false
	}
	p := h.weak.Value()
	if p == nil {
		var zero V
		return zero, false
	}
	return *p, true
}

// resurrect reinstalls a value on a node whose reference may have just
// been cleared. Used by compute() to implement spec §4.1's resurrection
// rule: once this returns, a concurrent double-check-under-monitor in the
// drain loop must see the node as alive again.
func (h *valueHolder[V]) resurrect(refType ReferenceType, v V) {
	*h = newValueHolder(refType, v)
}

// Node is the unit of storage and policy bookkeeping: one per live cache
// entry, linked into exactly one region's access-order deque (teacher:
// sll.Node's next/prev/list fields, generalized to carry policy metadata
// instead of only a score).
type Node[K comparable, V any] struct {
	mu sync.Mutex // the node's own monitor (spec §3, §5)

	key    K
	value  valueHolder[V]
	weight uint32

	accessTimeNanos atomic.Int64
	writeTimeNanos  atomic.Int64
	varExpireNanos  atomic.Int64 // 0 == no variable expiry scheduled

	lifecycleWord atomic.Uint32 // lifecycle, packed for acquire/release reads

	region region // guarded by the eviction mutex, not the node monitor

	// access-order deque links (region-scoped), guarded by the eviction mutex.
	prevAccess    *Node[K, V]
	nextAccess    *Node[K, V]
	inAccessDeque bool // true once linked via pushHead, false after remove

	// write-order deque links, guarded by the eviction mutex.
	prevWrite    *Node[K, V]
	nextWrite    *Node[K, V]
	inWriteDeque bool

	// timer-wheel bucket links, guarded by the eviction mutex.
	prevTimer *Node[K, V]
	nextTimer *Node[K, V]
	wheelIdx  int // -1 when not scheduled
}

func newNode[K comparable, V any](key K, value V, refType ReferenceType, weight uint32, now int64) *Node[K, V] {
	n := &Node[K, V]{
		key:      key,
		value:    newValueHolder(refType, value),
		weight:   weight,
		wheelIdx: -1,
	}
	n.accessTimeNanos.Store(now)
	n.writeTimeNanos.Store(now)
	n.lifecycleWord.Store(uint32(lifecycleAlive))
	return n
}

func (n *Node[K, V]) isAlive() bool {
	return lifecycle(n.lifecycleWord.Load()) == lifecycleAlive
}

func (n *Node[K, V]) isRetired() bool {
	return lifecycle(n.lifecycleWord.Load()) == lifecycleRetired
}

func (n *Node[K, V]) isDead() bool {
	return lifecycle(n.lifecycleWord.Load()) == lifecycleDead
}

// retire transitions ALIVE -> RETIRED. Called right after the node has been
// deleted from its data-map shard (the logical removal from the map).
func (n *Node[K, V]) retire() {
	n.lifecycleWord.Store(uint32(lifecycleRetired))
}

// die transitions RETIRED -> DEAD. Must be called under the eviction
// mutex once the drain has unlinked the node from all deques.
func (n *Node[K, V]) die() {
	n.lifecycleWord.Store(uint32(lifecycleDead))
}

func (n *Node[K, V]) getValue() (V, bool) {
	return n.value.load()
}

func (n *Node[K, V]) isCollected() bool {
	if n.value.refType == ReferenceStrong {
		return false
	}
	_, ok := n.value.load()
	return !ok
}
