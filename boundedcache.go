// Package boundedcache implements a concurrent, in-memory bounded cache
// with Window-TinyLFU admission, optional time-based expiration, and
// optional entry weighting.
package boundedcache

import (
	"fmt"
	"runtime"
	"time"

	"github.com/jamiealquiza/fnv"
)

// ExpiryMode enables variable per-entry expiration. Any mode other than
// ExpiryDisabled makes the drain call the Expiry policy when an entry is
// inserted and when it is updated; the modes are not otherwise told apart,
// and a read does not recompute an entry's deadline.
type ExpiryMode uint8

const (
	ExpiryDisabled ExpiryMode = iota
	ExpiryCreate
	ExpiryUpdate
	ExpiryAccess
)

// ComputeMode selects whether compute-family operations run the user
// function synchronously (holding the node monitor) or are dispatched to
// the configured Executor. Only ComputeSync is implemented in §4's core;
// ComputeAsync is accepted but currently runs synchronously too, since the
// asynchronous compute/loader abstraction is explicitly out of scope
// (§1) beyond the synchronous getOrLoad slice.
type ComputeMode uint8

const (
	ComputeSync ComputeMode = iota
	ComputeAsync
)

// Executor runs a maintenance task, optionally rejecting it (spec §7
// ExecutorRejection -- the caller then runs the drain synchronously).
type Executor interface {
	Execute(task func()) error
}

// Weigher computes an entry's weight; a nil Config.Weigher weighs every
// entry as 1.
type Weigher[K comparable, V any] func(k K, v V) uint32

// ExpiryPolicy computes a variable per-entry deadline (absolute monotonic
// nanoseconds, 0 meaning "no variable expiry"), given the entry, the
// current time, and the entry's current deadline.
type ExpiryPolicy[K comparable, V any] func(k K, v V, nowNanos int64, currentDeadline int64) int64

// Listener is invoked with a node's key, its last-known value, and the
// cause it left the cache.
type Listener[K comparable, V any] func(k K, v V, cause RemovalCause)

// LoadFunc computes a value for a key missing from the cache (the
// synchronous slice of the out-of-scope async loader -- see §6 getOrLoad).
type LoadFunc[K comparable, V any] func(k K) (V, error)

// ConfigError reports an invalid Config passed to New (spec §7).
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("boundedcache: invalid config field %q: %s", e.Field, e.Reason)
}

// Config configures a Cache. Fields are set directly rather than through a
// chained options DSL, matching the teacher's direct-field Config style
// (bicache.go's Config{MFUSize, MRUSize, AutoEvict, ...}).
type Config[K comparable, V any] struct {
	// Maximum is the weight cap. 0 means unbounded (no size eviction).
	Maximum int64

	// InitialCapacity hints the total initial map size, split evenly across
	// the shards.
	InitialCapacity int

	// ShardCount is the data-map shard count; must be a power of two.
	// Defaults to the next power of two >= 4*GOMAXPROCS.
	ShardCount int

	// HashKey hashes a key for shard routing and sketch positions.
	// Defaults to FNV-1a over fmt.Sprintf("%v", k).
	HashKey func(K) uint64

	KeyReferenceType   ReferenceType
	ValueReferenceType ReferenceType

	// ExpireAfterAccess/ExpireAfterWrite are 0 (disabled) or a positive
	// duration.
	ExpireAfterAccess time.Duration
	ExpireAfterWrite  time.Duration

	// ExpiryMode/Expiry configure variable per-entry expiration.
	ExpiryMode ExpiryMode
	Expiry     ExpiryPolicy[K, V]

	// ExpireWriteTolerance coalesces a rapid repeat write on the same key
	// into a read for buffering purposes. Defaults to 1 second.
	ExpireWriteTolerance time.Duration

	Weigher Weigher[K, V]
	Compute ComputeMode

	EvictionListener Listener[K, V]
	RemovalListener  Listener[K, V]

	Executor  Executor
	Scheduler Scheduler

	// Clock returns monotonic nanoseconds. Defaults to a time.Now()-based
	// monotonic reading.
	Clock func() int64

	// DrainLog enables tachymeter-backed timing logs for the drain loop
	// and TTL sweep, the same gate the teacher's EvictLog provides.
	DrainLog bool
}

const (
	defaultExpireWriteTolerance = time.Second
	maximumCapacity             = int64(1<<63 - 1)
)

func defaultHashKey[K comparable](k K) uint64 {
	return fnv.Hash64a(fmt.Sprintf("%v", k))
}

// clockBase anchors defaultClock so its readings come from the monotonic
// clock rather than the wall clock.
var clockBase = time.Now()

func defaultClock() int64 {
	return int64(time.Since(clockBase))
}

// New validates cfg and constructs a Cache, mirroring the teacher's New(c
// *Config) (*Bicache, error) validation style (bicache.go's power-of-two
// ShardCount check and MRUSize>0 check become ShardCount/Maximum checks
// here).
func New[K comparable, V any](cfg Config[K, V]) (*Cache[K, V], error) {
	if cfg.ShardCount == 0 {
		cfg.ShardCount = nextPowerOfTwoInt(4 * runtime.GOMAXPROCS(0))
	}
	if cfg.ShardCount&(cfg.ShardCount-1) != 0 {
		return nil, &ConfigError{Field: "ShardCount", Reason: "must be a power of 2"}
	}
	if cfg.Maximum < 0 {
		return nil, &ConfigError{Field: "Maximum", Reason: "must be >= 0 (0 means unbounded)"}
	}
	if cfg.ExpiryMode != ExpiryDisabled && cfg.Expiry == nil {
		return nil, &ConfigError{Field: "Expiry", Reason: "required when ExpiryMode != ExpiryDisabled"}
	}

	if cfg.HashKey == nil {
		cfg.HashKey = defaultHashKey[K]
	}
	if cfg.Weigher == nil {
		cfg.Weigher = func(K, V) uint32 { return 1 }
	}
	if cfg.ExpireWriteTolerance == 0 {
		cfg.ExpireWriteTolerance = defaultExpireWriteTolerance
	}
	if cfg.Clock == nil {
		cfg.Clock = defaultClock
	}
	if cfg.Executor == nil {
		cfg.Executor = newDefaultExecutor()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = newDefaultScheduler()
	}

	maximum := cfg.Maximum
	if maximum == 0 {
		maximum = maximumCapacity
	}

	shards := make([]*dataShard[K, V], cfg.ShardCount)
	perShardCap := cfg.InitialCapacity / cfg.ShardCount
	for i := range shards {
		shards[i] = newDataShard[K, V](perShardCap)
	}

	now := cfg.Clock()
	initialWindowMax := maximum - int64(initialPercentMain*float64(maximum))
	windowMax, mainMax, mainProtMax := regionMaxima(initialWindowMax, maximum)

	c := &Cache[K, V]{
		cfg:                 cfg,
		shards:              shards,
		shardMask:           uint32(cfg.ShardCount - 1),
		maximum:             maximum,
		windowMaximum:       windowMax,
		mainMaximum:         mainMax,
		mainProtectedMaximum: mainProtMax,
		sketch:              newFrequencySketch[K](cfg.HashKey),
		climber:             newHillClimber(),
		wheel:               newTimerWheel[K, V](now),
		readBuf:             newStripedReadBuffer[K, V](),
		writeBuf:            newWriteBuffer[K, V](writeBufferCapacity),
		counters:            &counters{},
		clock:               cfg.Clock,
		executor:            cfg.Executor,
	}
	if cfg.Maximum > 0 {
		// An unbounded cache never evicts, so the frequency sketch (whose
		// only job is admission at eviction time) stays unallocated --
		// increment/frequency are no-ops against a zero-length table.
		c.sketch.ensureCapacity(maximum)
	}
	c.pacer = newPacer(cfg.Scheduler, c.runScheduledMaintenance)
	if cfg.DrainLog {
		c.drainTachy = newDrainTachymeter(cfg.ShardCount)
	}
	return c, nil
}

const writeBufferCapacity = 128
