package boundedcache

// climbSampleSize is how many access events are observed between each
// adaptive step, matching Caffeine's HillClimber default sample window.
const climbSampleSize = 10000

// percentMainProtected is the fixed fraction of main given to the
// protected region, per spec §3 ("mainProtectedMaximum = PERCENT_MAIN_PROTECTED
// x mainMaximum").
const percentMainProtected = 0.80

// hillClimber adapts the window/main split by sampled hit rate (spec §4.8).
// It holds no locks of its own; callers run it under the eviction mutex as
// step 6 of the drain loop.
type hillClimber struct {
	stepPercent   float64 // signed fraction of maximum to shift per step
	prevHitRate   float64
	hits          int64
	misses        int64
	initialized   bool
}

const climberInitialStepPercent = 0.0625 // Caffeine's default initial step, 6.25% of maximum

// initialPercentMain is Caffeine's PERCENT_MAIN: the window starts at only
// 1% of maximum, leaving 99% to main so admission has something to compare
// a new window candidate against from the very first eviction.
const initialPercentMain = 0.99

func newHillClimber() *hillClimber {
	return &hillClimber{stepPercent: climberInitialStepPercent}
}

func (c *hillClimber) recordHit()   { c.hits++ }
func (c *hillClimber) recordMiss()  { c.misses++ }

func (c *hillClimber) sampleSize() int64 { return c.hits + c.misses }

// maybeAdapt runs one hill-climb step if climbSampleSize events have
// accumulated since the last step, returning the signed delta (in entries)
// to apply to windowMaximum, or 0 if no step was taken.
func (c *hillClimber) maybeAdapt(maximum int64) int64 {
	total := c.sampleSize()
	if total < climbSampleSize {
		return 0
	}
	hitRate := float64(c.hits) / float64(total)
	c.hits, c.misses = 0, 0

	if !c.initialized {
		c.prevHitRate = hitRate
		c.initialized = true
		return 0
	}

	delta := hitRate - c.prevHitRate
	if delta < 0 {
		// Hit rate got worse: reverse direction and damp the step so the
		// climb converges instead of oscillating at full amplitude.
		c.stepPercent = -c.stepPercent / 2
	}
	c.prevHitRate = hitRate

	step := int64(c.stepPercent * float64(maximum))
	if step == 0 {
		if c.stepPercent > 0 {
			step = 1
		} else if c.stepPercent < 0 {
			step = -1
		}
	}
	return step
}

// regionMaxima recomputes the three region caps from a candidate
// windowMaximum, clamped to [0, maximum], per spec §3's linked invariants.
func regionMaxima(windowMaximum, maximum int64) (window, main, mainProtected int64) {
	if windowMaximum < 0 {
		windowMaximum = 0
	}
	if windowMaximum > maximum {
		windowMaximum = maximum
	}
	main = maximum - windowMaximum
	mainProtected = int64(percentMainProtected * float64(main))
	return windowMaximum, main, mainProtected
}
