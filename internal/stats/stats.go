// Package stats implements the StatsRecorder component (spec §4.I): a
// fixed bank of atomic counters exposed as an immutable snapshot.
//
// Grounded on the teacher's internal/cache/counters.go and
// internal/evictor/counters.go — both plain atomic.Int64 fields plus a
// snapshot() accessor, no locking needed since atomics are already safe
// for concurrent increment.
package stats

import "sync/atomic"

// Recorder holds the base counters named in spec §4.I plus a handful this
// implementation supplements to make weight and access-log pressure
// observable (see SPEC_FULL.md §3): weight_added, weight_removed,
// access_added, access_dropped.
type Recorder struct {
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	keysAdded    atomic.Int64
	keysUpdated  atomic.Int64
	keysDeleted  atomic.Int64
	keysRejected atomic.Int64
	keysEvicted  atomic.Int64

	weightAdded   atomic.Int64
	weightRemoved atomic.Int64
	accessAdded   atomic.Int64
	accessDropped atomic.Int64
}

func New() *Recorder { return &Recorder{} }

func (r *Recorder) Hit()             { r.cacheHits.Add(1) }
func (r *Recorder) Miss()            { r.cacheMisses.Add(1) }
func (r *Recorder) KeyAdded()        { r.keysAdded.Add(1) }
func (r *Recorder) KeyUpdated()      { r.keysUpdated.Add(1) }
func (r *Recorder) KeyDeleted()      { r.keysDeleted.Add(1) }
func (r *Recorder) KeyRejected()     { r.keysRejected.Add(1) }
func (r *Recorder) KeyEvicted()      { r.keysEvicted.Add(1) }
func (r *Recorder) WeightAdded(n int64)   { r.weightAdded.Add(n) }
func (r *Recorder) WeightRemoved(n int64) { r.weightRemoved.Add(n) }
func (r *Recorder) AccessAdded()     { r.accessAdded.Add(1) }
func (r *Recorder) AccessDropped()   { r.accessDropped.Add(1) }

// Summary is the immutable snapshot returned to callers.
type Summary struct {
	CacheHits     int64
	CacheMisses   int64
	KeysAdded     int64
	KeysUpdated   int64
	KeysDeleted   int64
	KeysRejected  int64
	KeysEvicted   int64
	WeightAdded   int64
	WeightRemoved int64
	AccessAdded   int64
	AccessDropped int64
}

func (r *Recorder) Snapshot() Summary {
	return Summary{
		CacheHits:     r.cacheHits.Load(),
		CacheMisses:   r.cacheMisses.Load(),
		KeysAdded:     r.keysAdded.Load(),
		KeysUpdated:   r.keysUpdated.Load(),
		KeysDeleted:   r.keysDeleted.Load(),
		KeysRejected:  r.keysRejected.Load(),
		KeysEvicted:   r.keysEvicted.Load(),
		WeightAdded:   r.weightAdded.Load(),
		WeightRemoved: r.weightRemoved.Load(),
		AccessAdded:   r.accessAdded.Load(),
		AccessDropped: r.accessDropped.Load(),
	}
}
