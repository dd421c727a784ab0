package boundedcache

import "sync/atomic"

// fastStripeIndex returns a cheap, racy-by-design counter used only to
// spread callers across read-buffer stripes. It does not need to be a
// high quality random source -- a monotonically advancing counter mixed
// with a per-call xorshift step is enough to decorrelate concurrent
// callers, the same tradeoff hayabusa-cloud-lfq's benchmarks make with
// their own striping helpers.
var stripeCounter atomic.Uint64

func fastStripeIndex() uint32 {
	x := stripeCounter.Add(0x9E3779B97F4A7C15)
	x ^= x >> 33
	x *= 0xFF51AFD7ED558CCD
	x ^= x >> 33
	return uint32(x)
}
