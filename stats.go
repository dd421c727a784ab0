package boundedcache

import "code.hybscloud.com/atomix"

// counters mirrors the teacher's `counters` struct shape (bicache.go),
// widened per spec §4.12 so eviction causes can be told apart in tests
// without re-deriving them from coldest(). Backed by atomix.Uint64 instead
// of sync/atomic directly, matching how the rest of this module already
// depends on atomix for its lock-free counters.
type counters struct {
	hits               atomix.Uint64
	misses             atomix.Uint64
	evictions          atomix.Uint64
	overflows          atomix.Uint64
	expiredEvictions   atomix.Uint64
	collectedEvictions atomix.Uint64
	loads              atomix.Uint64
}

// Stats holds a snapshot of Cache performance counters (teacher: Bicache's
// Stats struct, trimmed of the MFU/MRU-size fields that don't apply to a
// single global weighted-size cache and extended with the cause-specific
// eviction counters the expansion's testable properties need).
type Stats struct {
	Hits               uint64
	Misses             uint64
	Evictions          uint64
	Overflows          uint64
	ExpiredEvictions   uint64
	CollectedEvictions uint64
	Loads              uint64
}

func (c *counters) recordHit()  { c.hits.AddAcqRel(1) }
func (c *counters) recordMiss() { c.misses.AddAcqRel(1) }
func (c *counters) recordLoad() { c.loads.AddAcqRel(1) }

func (c *counters) recordEviction(cause RemovalCause) {
	c.evictions.AddAcqRel(1)
	switch cause {
	case CauseSize:
		// already counted in evictions
	case CauseExpired:
		c.expiredEvictions.AddAcqRel(1)
	case CauseCollected:
		c.collectedEvictions.AddAcqRel(1)
	}
}

func (c *counters) recordOverflow() { c.overflows.AddAcqRel(1) }

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:               c.hits.LoadAcquire(),
		Misses:             c.misses.LoadAcquire(),
		Evictions:          c.evictions.LoadAcquire(),
		Overflows:          c.overflows.LoadAcquire(),
		ExpiredEvictions:   c.expiredEvictions.LoadAcquire(),
		CollectedEvictions: c.collectedEvictions.LoadAcquire(),
		Loads:              c.loads.LoadAcquire(),
	}
}
