package boundedcache

import "code.hybscloud.com/atomix"

// drainState is the four-state machine from spec §4.4, packed into an
// atomix.Uint32 so hot-path writers can flip it without the eviction
// mutex.
type drainState uint32

const (
	drainIdle drainState = iota
	drainRequired
	drainProcessingToIdle
	drainProcessingToRequired
)

type drainStatus struct {
	word atomix.Uint32
}

func (d *drainStatus) get() drainState {
	return drainState(d.word.LoadAcquire())
}

// scheduleAfterWrite implements the table row for a write-buffer signal:
// IDLE/REQUIRED -> REQUIRED, P_TO_IDLE/P_TO_REQUIRED -> P_TO_REQUIRED.
// It never itself submits a drain -- a write always also calls
// scheduleDrainBuffers.
func (d *drainStatus) scheduleAfterWrite() {
	for {
		cur := d.get()
		var next drainState
		switch cur {
		case drainIdle, drainRequired:
			next = drainRequired
		default:
			next = drainProcessingToRequired
		}
		if next == cur {
			return
		}
		if d.word.CompareAndSwapAcqRel(uint32(cur), uint32(next)) {
			return
		}
	}
}

// scheduleDrainBuffers implements the second table row: a submit happens
// only transitioning out of the idle family (IDLE or REQUIRED) into
// PROCESSING_TO_IDLE; submit reports whether this call is the one that
// must enqueue the maintenance task.
func (d *drainStatus) scheduleDrainBuffers() (submit bool) {
	for {
		cur := d.get()
		switch cur {
		case drainIdle, drainRequired:
			if d.word.CompareAndSwapAcqRel(uint32(cur), uint32(drainProcessingToIdle)) {
				return true
			}
		case drainProcessingToIdle:
			return false
		case drainProcessingToRequired:
			return false
		}
	}
}

// drainComplete implements the third table row: IDLE if no new work
// arrived while draining, else flip back to PROCESSING_TO_IDLE so the
// caller re-runs the loop body once more before actually going idle.
func (d *drainStatus) drainComplete() (rerun bool) {
	for {
		cur := d.get()
		switch cur {
		case drainProcessingToIdle:
			if d.word.CompareAndSwapAcqRel(uint32(cur), uint32(drainIdle)) {
				return false
			}
		case drainProcessingToRequired:
			if d.word.CompareAndSwapAcqRel(uint32(cur), uint32(drainProcessingToIdle)) {
				return true
			}
		default:
			// Not currently processing; nothing to complete.
			return false
		}
	}
}
