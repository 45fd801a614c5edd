package evictor

import "time"

// NoOp is returned when eviction config is disabled: it performs no
// background reclamation and reports zero metrics.
type NoOp struct{}

func (NoOp) ForceCall(time.Duration) error                                 { return nil }
func (NoOp) Metrics() (scans, scanHits, evictedItems, evictedWeight int64) { return 0, 0, 0, 0 }
func (NoOp) Close() error                                                  { return nil }
