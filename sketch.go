package boundedcache

import (
	"github.com/jamiealquiza/fnv"
)

// frequencySketch is a 4-bit Count-Min sketch with periodic aging, used by
// the TinyLFU admission policy (spec §4.6). Counters saturate at 15 and are
// halved once sampleSize increments have been observed, the way Caffeine's
// FrequencySketch resets on saturation.
//
// Grounded in the teacher's allocation-free hashing style
// (github.com/jamiealquiza/fnv, reused here for shard routing too) combined
// with a multiply-mix second stream so four table positions can be derived
// from two hash computations instead of four independent ones, per
// SPEC_FULL.md §4.6.
type frequencySketch[K comparable] struct {
	table      []uint64 // each uint64 packs sixteen 4-bit counters
	tableMask  uint64
	size       int // increments observed since the last reset
	sampleSize int
	hashKey    func(K) uint64
}

const (
	sketchResetMask  = 0x7777777777777777
	sketchOneMask    = 0x1111111111111111
	mixConstant      = 0x9E3779B97F4A7C15 // fixed odd constant, Fibonacci hashing mix
)

func newFrequencySketch[K comparable](hashKey func(K) uint64) *frequencySketch[K] {
	return &frequencySketch[K]{hashKey: hashKey}
}

// ensureCapacity allocates the counter table sized to the next power of two
// >= maximum, matching Caffeine's ensureCapacity(n) semantics.
func (s *frequencySketch[K]) ensureCapacity(maximum int64) {
	newSize := nextPowerOfTwo(maximum)
	if newSize < 16 {
		newSize = 16
	}
	if int64(len(s.table)*16) >= newSize {
		return
	}
	s.table = make([]uint64, newSize/16)
	s.tableMask = uint64(len(s.table)) - 1
	s.sampleSize = int(10 * newSize)
	if s.sampleSize <= 0 {
		s.sampleSize = 10
	}
	s.size = 0
}

func nextPowerOfTwo(v int64) int64 {
	if v < 1 {
		return 1
	}
	n := int64(1)
	for n < v {
		n <<= 1
	}
	return n
}

// positions returns four mixed hash values for a key, one per counter,
// combining two hash streams the way Caffeine folds one spread hash into
// four block-local indices; indexAndShift turns each into a (table-index,
// counter-slot-shift) pair.
func (s *frequencySketch[K]) positions(key K) [4]uint64 {
	h1 := s.hashKey(key)
	h2 := fnv.Hash64a(keyToStringHash(h1))
	h2 *= mixConstant

	var idx [4]uint64
	for i := 0; i < 4; i++ {
		combined := h1 + uint64(i)*h2
		combined ^= combined >> 33
		idx[i] = combined
	}
	return idx
}

func keyToStringHash(h uint64) string {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(h >> (8 * i))
	}
	return string(buf)
}

func (s *frequencySketch[K]) indexAndShift(pos uint64, block int) (int, uint) {
	// Each 64-bit word holds 16 four-bit counters. block selects which of
	// the 4 hash rotations lands in which 16-counter neighborhood, the way
	// Caffeine spreads the 4 counters of one item across 4 different
	// blocks to reduce false-positive correlation.
	counterIdx := (pos ^ uint64(block)*0x100000001B3) & s.tableMask
	slot := (pos >> 1) & 15
	return int(counterIdx), uint(slot) * 4
}

// increment bumps all four counters for key, saturating at 15, and ages the
// whole table once sampleSize increments have accumulated.
func (s *frequencySketch[K]) increment(key K) {
	if len(s.table) == 0 {
		return
	}
	pos := s.positions(key)
	added := false
	for i := 0; i < 4; i++ {
		idx, shift := s.indexAndShift(pos[i], i)
		word := s.table[idx]
		counter := (word >> shift) & 0xF
		if counter < 15 {
			s.table[idx] = word + (1 << shift)
			added = true
		}
	}
	if added {
		s.size++
		if s.size >= s.sampleSize {
			s.reset()
		}
	}
}

// reset halves every counter in the table (right-shift by one bit per
// nibble, masking out the bit shifted in from the neighboring nibble).
func (s *frequencySketch[K]) reset() {
	for i := range s.table {
		s.table[i] = (s.table[i] >> 1) & sketchResetMask
	}
	s.size >>= 1
}

// frequency returns the minimum of the key's four counters, the Count-Min
// estimate used by admission.
func (s *frequencySketch[K]) frequency(key K) int {
	if len(s.table) == 0 {
		return 0
	}
	pos := s.positions(key)
	freq := 15
	for i := 0; i < 4; i++ {
		idx, shift := s.indexAndShift(pos[i], i)
		counter := int((s.table[idx] >> shift) & 0xF)
		if counter < freq {
			freq = counter
		}
	}
	return freq
}
