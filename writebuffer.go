package boundedcache

import (
	"code.hybscloud.com/lfq"
)

type writeTaskKind uint8

const (
	writeTaskAdd writeTaskKind = iota
	writeTaskUpdate
	writeTaskRemove
)

// writeTask is one deferred mutation applied by the drain loop (spec
// §4.3/§4.5 step 2). The node's value is already mutated synchronously
// under its own monitor by the time a task reaches the buffer; the task
// only carries what the drain loop needs to fix up policy state.
type writeTask[K comparable, V any] struct {
	kind        writeTaskKind
	node        *Node[K, V]
	weightDelta int64 // writeTaskUpdate: new weight minus old weight
}

// writeBuffer is a thin adapter over lfq.MPSC, reused directly rather than
// reimplemented (spec §4.3 describes exactly an MPSC, lossless, blocking
// producer when full -- code.hybscloud.com/lfq already is that).
type writeBuffer[K comparable, V any] struct {
	q *lfq.MPSC[writeTask[K, V]]
}

func newWriteBuffer[K comparable, V any](capacity int) *writeBuffer[K, V] {
	return &writeBuffer[K, V]{q: lfq.NewMPSC[writeTask[K, V]](capacity)}
}

// tryOffer attempts a single non-blocking enqueue. Callers that need the
// "producer runs maintenance until space frees" guarantee from §4.3 drive
// the retry loop themselves (see Cache.afterWrite), since only they know
// how to run the drain.
func (w *writeBuffer[K, V]) tryOffer(t writeTask[K, V]) bool {
	return w.q.Enqueue(&t) == nil
}

// drainTo removes every currently-queued task, calling f for each, until
// the queue reports empty. Only the maintenance goroutine calls this.
func (w *writeBuffer[K, V]) drainTo(f func(writeTask[K, V])) {
	for {
		t, err := w.q.Dequeue()
		if err != nil {
			return
		}
		f(t)
	}
}
