package boundedcache

import (
	"log"
	"time"

	"github.com/jamiealquiza/tachymeter"
)

// logRecovered logs a recovered panic from a user callback, matching the
// teacher's bracketed-tag log.Printf style (bicache.go: "[Bicache ...]").
// No structured logging library appears anywhere in the retrieval pack, so
// stdlib log is the idiomatic choice here too -- see DESIGN.md.
func logRecovered(r interface{}) {
	log.Printf("[boundedcache] recovered panic in callback: %v", r)
}

// drainTachymeter wraps two tachymeter.Tachymeter instances -- one for the
// drain loop, one for the TTL/wheel sweep -- the same split the teacher's
// bgAutoEvict keeps between ttlTachy and promoTachy.
type drainTachymeter struct {
	drain *tachymeter.Tachymeter
	sweep *tachymeter.Tachymeter
}

func newDrainTachymeter(size int) *drainTachymeter {
	if size < 1 {
		size = 1
	}
	return &drainTachymeter{
		drain: tachymeter.New(&tachymeter.Config{Size: size}),
		sweep: tachymeter.New(&tachymeter.Config{Size: size}),
	}
}

func (d *drainTachymeter) recordDrain(start time.Time) {
	d.drain.AddTime(time.Since(start))
}

func (d *drainTachymeter) recordSweep(start time.Time) {
	d.sweep.AddTime(time.Since(start))
}

// logSummary prints cumulative/min/max timings the way bgAutoEvict does,
// then resets both meters for the next interval.
func (d *drainTachymeter) logSummary() {
	drainStats := d.drain.Calc()
	sweepStats := d.sweep.Calc()

	if sweepStats.Count > 0 {
		log.Printf("[boundedcache EvictTTL] cumulative: %s | min: %s | max: %s",
			sweepStats.Time.Cumulative, sweepStats.Time.Min, sweepStats.Time.Max)
	}
	if drainStats.Count > 0 {
		log.Printf("[boundedcache Drain] cumulative: %s | min: %s | max: %s",
			drainStats.Time.Cumulative, drainStats.Time.Min, drainStats.Time.Max)
	}

	d.drain.Reset()
	d.sweep.Reset()
}
