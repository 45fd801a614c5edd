// Package telemetry implements the periodic structured-logging loop that
// reports cache activity, grounded on the teacher's internal/telemetry
// package: a sampler that snapshots cumulative counters and a logger loop
// that converts successive snapshots into per-interval deltas.
package telemetry

import (
	"github.com/Borislavv/lfucache/internal/evictor"
	"github.com/Borislavv/lfucache/internal/stats"
)

// StoreMetrics is the subset of store.Store the sampler reads.
type StoreMetrics interface {
	Len() int64
	Weight() int64
}

type sampler struct {
	stats   *stats.Recorder
	store   StoreMetrics
	evictor evictor.Evictor
}

func newSampler(s *stats.Recorder, store StoreMetrics, ev evictor.Evictor) sampler {
	return sampler{stats: s, store: store, evictor: ev}
}

// snapshot holds cumulative counters (monotonic, except len/weight which
// are instantaneous gauges carried along for the storage line).
type snapshot struct {
	stats.Summary

	entries int64
	weight  int64

	softScans, softHits, softEvictedItems, softEvictedWeight int64
}

func (s sampler) snapshot() snapshot {
	softScans, softHits, softItems, softWeight := s.evictor.Metrics()
	return snapshot{
		Summary:           s.stats.Snapshot(),
		entries:           s.store.Len(),
		weight:            s.store.Weight(),
		softScans:         softScans,
		softHits:          softHits,
		softEvictedItems:  softItems,
		softEvictedWeight: softWeight,
	}
}

// deltaSnapshot turns two cumulative snapshots into the per-interval delta
// for every counter that's actually cumulative. entries/weight are left as
// the current gauge value, not diffed.
func deltaSnapshot(prev, cur snapshot) snapshot {
	return snapshot{
		Summary: stats.Summary{
			CacheHits:     delta(prev.CacheHits, cur.CacheHits),
			CacheMisses:   delta(prev.CacheMisses, cur.CacheMisses),
			KeysAdded:     delta(prev.KeysAdded, cur.KeysAdded),
			KeysUpdated:   delta(prev.KeysUpdated, cur.KeysUpdated),
			KeysDeleted:   delta(prev.KeysDeleted, cur.KeysDeleted),
			KeysRejected:  delta(prev.KeysRejected, cur.KeysRejected),
			KeysEvicted:   delta(prev.KeysEvicted, cur.KeysEvicted),
			WeightAdded:   delta(prev.WeightAdded, cur.WeightAdded),
			WeightRemoved: delta(prev.WeightRemoved, cur.WeightRemoved),
			AccessAdded:   delta(prev.AccessAdded, cur.AccessAdded),
			AccessDropped: delta(prev.AccessDropped, cur.AccessDropped),
		},
		entries:           cur.entries,
		weight:            cur.weight,
		softScans:         delta(prev.softScans, cur.softScans),
		softHits:          delta(prev.softHits, cur.softHits),
		softEvictedItems:  delta(prev.softEvictedItems, cur.softEvictedItems),
		softEvictedWeight: delta(prev.softEvictedWeight, cur.softEvictedWeight),
	}
}

// delta treats a counter that went backwards (a Recorder replaced mid-run,
// effectively never in production) as a fresh cumulative value rather than
// a negative delta.
func delta(prev, cur int64) int64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}
