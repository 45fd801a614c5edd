package evictor

import "sync/atomic"

// counters tracks cumulative soft-eviction activity, read via Metrics.
// Grounded on the teacher's internal/evictor/counters.go atomic-bank shape.
type counters struct {
	scans         atomic.Int64
	scanHits      atomic.Int64
	evictedItems  atomic.Int64
	evictedWeight atomic.Int64
}

func newCounters() *counters { return &counters{} }

func (c *counters) snapshot() (scans, scanHits, evictedItems, evictedWeight int64) {
	return c.scans.Load(), c.scanHits.Load(), c.evictedItems.Load(), c.evictedWeight.Load()
}
