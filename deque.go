package boundedcache

// accessOrderDeque is an intrusive doubly-linked list over a Node's
// prevAccess/nextAccess fields, giving O(1) peek/first/last/remove/offer.
// Grounded in the teacher's sll.Sll (sll/sll.go): a sentinel root node with
// root.next/root.prev forming the ring, generalized here to operate on the
// Node type directly (no separate score list -- region membership is
// tracked on the Node itself, and this module has no use for sll's
// HighScores/LowScores heap-select since promotion is a strict per-access
// swap, not a batched top-K scan; see DESIGN.md "Deferred/trimmed teacher
// surface").
//
// All operations require the caller to already hold the eviction mutex.
type accessOrderDeque[K comparable, V any] struct {
	head *Node[K, V] // most-recently-used
	tail *Node[K, V] // least-recently-used (the LRU eviction/promotion candidate)
	len  int
}

func (d *accessOrderDeque[K, V]) isEmpty() bool { return d.len == 0 }

func (d *accessOrderDeque[K, V]) peekFirst() *Node[K, V] { return d.head }
func (d *accessOrderDeque[K, V]) peekLast() *Node[K, V]  { return d.tail }

// pushHead links n as the new MRU (head) entry.
func (d *accessOrderDeque[K, V]) pushHead(n *Node[K, V]) {
	if n.inAccessDeque {
		d.remove(n)
	}
	n.prevAccess = nil
	n.nextAccess = d.head
	if d.head != nil {
		d.head.prevAccess = n
	}
	d.head = n
	if d.tail == nil {
		d.tail = n
	}
	n.inAccessDeque = true
	d.len++
}

// remove unlinks n from wherever it currently sits. A no-op if n isn't a
// member (relying on prevAccess/nextAccess alone to detect membership
// breaks for a singleton list, hence the explicit inAccessDeque flag).
func (d *accessOrderDeque[K, V]) remove(n *Node[K, V]) {
	if !n.inAccessDeque {
		return
	}
	if n.prevAccess != nil {
		n.prevAccess.nextAccess = n.nextAccess
	} else if d.head == n {
		d.head = n.nextAccess
	}
	if n.nextAccess != nil {
		n.nextAccess.prevAccess = n.prevAccess
	} else if d.tail == n {
		d.tail = n.prevAccess
	}
	n.prevAccess, n.nextAccess = nil, nil
	n.inAccessDeque = false
	d.len--
}

// moveToHead re-links n at the MRU position. If n isn't currently a member
// (e.g. a newly created node whose insertion task hasn't drained yet),
// this is a no-op: the pending add task will push it properly.
func (d *accessOrderDeque[K, V]) moveToHead(n *Node[K, V]) {
	if !n.inAccessDeque || d.head == n {
		return
	}
	d.remove(n)
	d.pushHead(n)
}

// removeFirst pops and returns the MRU entry, or nil if empty.
func (d *accessOrderDeque[K, V]) removeFirst() *Node[K, V] {
	n := d.head
	if n != nil {
		d.remove(n)
	}
	return n
}

// removeLast pops and returns the LRU entry, or nil if empty.
func (d *accessOrderDeque[K, V]) removeLast() *Node[K, V] {
	n := d.tail
	if n != nil {
		d.remove(n)
	}
	return n
}

// forEachFromTail walks LRU-first (eviction order), stopping early if f
// returns false. Used by coldest().
func (d *accessOrderDeque[K, V]) forEachFromTail(f func(*Node[K, V]) bool) {
	for n := d.tail; n != nil; n = n.prevAccess {
		if !f(n) {
			return
		}
	}
}

// writeOrderDeque is the same intrusive technique applied to the
// prevWrite/nextWrite fields, ordered by insertion/last-write time for
// expireAfterWrite sweeps (spec §4.5 step 3).
type writeOrderDeque[K comparable, V any] struct {
	head *Node[K, V]
	tail *Node[K, V]
	len  int
}

func (d *writeOrderDeque[K, V]) isEmpty() bool { return d.len == 0 }

func (d *writeOrderDeque[K, V]) pushTail(n *Node[K, V]) {
	if n.inWriteDeque {
		d.remove(n)
	}
	n.nextWrite = nil
	n.prevWrite = d.tail
	if d.tail != nil {
		d.tail.nextWrite = n
	}
	d.tail = n
	if d.head == nil {
		d.head = n
	}
	n.inWriteDeque = true
	d.len++
}

func (d *writeOrderDeque[K, V]) remove(n *Node[K, V]) {
	if !n.inWriteDeque {
		return
	}
	if n.prevWrite != nil {
		n.prevWrite.nextWrite = n.nextWrite
	} else if d.head == n {
		d.head = n.nextWrite
	}
	if n.nextWrite != nil {
		n.nextWrite.prevWrite = n.prevWrite
	} else if d.tail == n {
		d.tail = n.prevWrite
	}
	n.prevWrite, n.nextWrite = nil, nil
	n.inWriteDeque = false
	d.len--
}

func (d *writeOrderDeque[K, V]) moveToTail(n *Node[K, V]) {
	if !n.inWriteDeque || d.tail == n {
		return
	}
	d.remove(n)
	d.pushTail(n)
}

func (d *writeOrderDeque[K, V]) peekFirst() *Node[K, V] { return d.head }
