// Package sketch implements the FrequencyEstimator component: a four-bit
// count-min sketch with Doorkeeper gating and periodic aging.
//
// This is a single, non-sharded structure — unlike the teacher's
// ShardedAdmitter (one sketch+doorkeeper per admission shard, built for
// many concurrent writers), the cache's concurrency model has exactly one
// writer (the AccessLog drainer, see internal/accesslog), so sharding the
// sketch would only skew estimates across shards for no contention benefit.
package sketch

import (
	"runtime"
	"sync/atomic"
	"time"
)

const (
	nibbleMask    = 0xF
	maskNibbles64 = 0x7777777777777777

	// Bounded CAS retry policy, identical to the teacher's bloom package.
	maxCASTries     = 64
	yieldEveryTries = 8
	sleepAfterTries = 32

	// minDepth is the floor on independent row-indices per key (spec §3: depth ≥ 4).
	minDepth = 4

	// agingMultiplier implements spec §4.A: "every reset_interval = 10 × counters increments".
	agingMultiplier = 10
)

// Estimator is the FrequencyEstimator: increment(key_id), estimate(key_id) → u8, clear().
type Estimator struct {
	words []uint64 // nibble-packed counters, 16 per word
	mask  uint32   // width-1; width is the next power of two of the configured counter count
	depth int       // independent row derivations per key, >= 4

	door doorkeeper

	adds        atomic.Uint64
	resetAt     uint64
	agingActive atomic.Uint32
}

// New builds an Estimator sized for `counters` logical counters (rounded up
// to the next power of two) using `depth` independent hash rows (clamped to
// the spec's minimum of 4).
func New(counters, depth int) *Estimator {
	if depth < minDepth {
		depth = minDepth
	}
	if counters < 1 {
		counters = 1
	}
	width := nextPow2(counters)
	if width < 1 {
		width = 1
	}

	e := &Estimator{depth: depth}
	wordCount := (uint64(width) + 15) / 16
	e.words = make([]uint64, wordCount)
	e.mask = uint32(width - 1)
	// reset_interval = 10 × counters (spec §4.A), measured against the
	// configured counter count, not the power-of-two rounded width.
	e.resetAt = uint64(agingMultiplier) * uint64(counters)
	e.door.init(uint32(width))
	return e
}

// Increment bumps every row's counter for key_id unless a row is already
// saturated at 15, then unconditionally marks the Doorkeeper bit. The
// increment that brings the count to the aging interval triggers the aging
// step before returning.
func (e *Estimator) Increment(keyID uint64) {
	h := keyID
	for r := 0; r < e.depth; r++ {
		idx := uint32(h) & e.mask
		e.incAt(idx)
		h = mix64(h)
	}
	e.door.set(keyID)
	e.adds.Add(1)

	e.maybeReset()
}

// Estimate returns the minimum counter across all rows for key_id, plus one
// if the Doorkeeper has seen this key_id before.
func (e *Estimator) Estimate(keyID uint64) uint8 {
	h := keyID
	var min uint8 = 255
	for r := 0; r < e.depth; r++ {
		idx := uint32(h) & e.mask
		if c := e.getAt(idx); c < min {
			min = c
		}
		h = mix64(h)
	}

	if e.door.get(keyID) && min < 15 {
		min++
	}
	return min
}

// Clear halves nothing — it wipes the sketch and Doorkeeper entirely,
// distinct from the periodic halving aging performed by maybeReset.
func (e *Estimator) Clear() {
	for i := range e.words {
		atomic.StoreUint64(&e.words[i], 0)
	}
	e.door.reset()
	e.adds.Store(0)
}

func (e *Estimator) incAt(idx uint32) {
	w, sh := e.wordShift(idx)
	ptr := &e.words[w]

	for tries := 1; tries <= maxCASTries; tries++ {
		old := atomic.LoadUint64(ptr)
		n := (old >> sh) & nibbleMask
		if n == nibbleMask {
			return
		}
		neu := old + (1 << sh)
		if atomic.CompareAndSwapUint64(ptr, old, neu) {
			return
		}
		if tries%yieldEveryTries == 0 {
			runtime.Gosched()
			if tries >= sleepAfterTries {
				time.Sleep(0)
			}
		}
	}
}

func (e *Estimator) getAt(idx uint32) uint8 {
	w, sh := e.wordShift(idx)
	val := atomic.LoadUint64(&e.words[w])
	return uint8((val >> sh) & nibbleMask)
}

func (e *Estimator) wordShift(idx uint32) (uint32, uint) {
	return idx >> 4, uint((idx & 0xF) << 2)
}

// maybeReset performs the spec's aging step exactly once per window;
// concurrent callers lose the race cooperatively via agingActive.
func (e *Estimator) maybeReset() {
	if e.adds.Load() < e.resetAt {
		return
	}
	if e.agingActive.CompareAndSwap(0, 1) {
		if e.adds.Load() >= e.resetAt {
			e.reset()
			e.adds.Store(0)
		}
		e.agingActive.Store(0)
	}
}

// reset halves every counter (c >> 1) and clears the Doorkeeper, per spec §4.A.
func (e *Estimator) reset() {
	for i := range e.words {
		ptr := &e.words[i]
		for tries := 1; tries <= maxCASTries; tries++ {
			old := atomic.LoadUint64(ptr)
			neu := (old >> 1) & maskNibbles64
			if atomic.CompareAndSwapUint64(ptr, old, neu) {
				break
			}
			if tries%yieldEveryTries == 0 {
				runtime.Gosched()
				if tries >= sleepAfterTries {
					time.Sleep(0)
				}
			}
		}
	}
	e.door.reset()
}
