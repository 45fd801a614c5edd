// Package store implements the Store component (spec §4.E): a sharded map
// from key_id to StoredEntry. The store performs no admission or TTL
// logic of its own — it is a pure concurrent data structure, grounded on
// the teacher's internal/cache/db/map.go + shard.go sharding scheme.
package store

import (
	"sync/atomic"
	"time"

	"github.com/Borislavv/lfucache/internal/shared/random"
)

const minShards = 256

// shardCount picks shards >= 256 or the nearest power of two above
// capacityHint/8, per spec §4.E.
func shardCount(capacityHint int) int {
	n := minShards
	target := capacityHint / 8
	for n < target {
		n <<= 1
	}
	return n
}

// Store is a sharded map[key_id]Entry[V]. Readers take a per-shard read
// lock; writers take a per-shard write lock.
type Store[V any] struct {
	shards []*shard[V]
	mask   uint64
	len    int64
	weight int64
}

// New builds a Store sized for capacityHint logical entries (0 uses the
// default minimum shard count).
func New[V any](capacityHint int) *Store[V] {
	n := shardCount(capacityHint)
	s := &Store[V]{shards: make([]*shard[V], n), mask: uint64(n - 1)}
	for i := range s.shards {
		s.shards[i] = newShard[V]()
	}
	return s
}

func (s *Store[V]) shardFor(keyID uint64) *shard[V] {
	return s.shards[keyID&s.mask]
}

// Get clones the entry out from under its shard lock and releases
// immediately — the "available only if V is cloneable" path of spec §4.E,
// always available in Go since assignment already copies V's value.
func (s *Store[V]) Get(keyID, keyHash uint64) (V, bool) {
	e, ok := s.shardFor(keyID).get(keyID, keyHash)
	if !ok {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Ref is a guard bound to the owning shard's read lock. Callers must call
// Release and must not hold the guard across a blocking/suspension point —
// spec §4.E's get_ref contract.
type Ref[V any] struct {
	sh    *shard[V]
	entry *Entry[V]
}

func (r *Ref[V]) Value() V           { return r.entry.Value }
func (r *Ref[V]) Weight() int64      { return r.entry.Weight }
func (r *Ref[V]) ExpireAt() *time.Time { return r.entry.ExpireAt }
func (r *Ref[V]) Release()           { r.sh.RUnlock() }

// Peek returns the raw entry for keyID without a keyHash check, for the
// executor's expiry re-check where only a key_id is available (the TTL
// wheel has no notion of keyHash). Mirrors Delete's trust level, which
// already operates key_id-only.
func (s *Store[V]) Peek(keyID uint64) (*Entry[V], bool) {
	return s.shardFor(keyID).peek(keyID)
}

// Contains reports whether keyID (matching keyHash) is currently stored,
// without copying the value out.
func (s *Store[V]) Contains(keyID, keyHash uint64) bool {
	_, ok := s.shardFor(keyID).get(keyID, keyHash)
	return ok
}

// GetRef returns a guard tied to the shard's read lock instead of cloning.
func (s *Store[V]) GetRef(keyID, keyHash uint64) (*Ref[V], bool) {
	sh := s.shardFor(keyID)
	sh.RLock()
	e, ok := sh.items[keyID]
	if !ok || e.KeyHash != keyHash {
		sh.RUnlock()
		return nil, false
	}
	return &Ref[V]{sh: sh, entry: e}, true
}

// Put inserts or replaces the entry for keyID, adjusting aggregate counters.
func (s *Store[V]) Put(keyID uint64, e *Entry[V]) {
	s.Upsert(keyID, func(*Entry[V], bool) *Entry[V] { return e })
}

// Upsert atomically reads the current entry for keyID (nil, false if
// absent) and installs whatever fn returns, adjusting aggregate counters
// in the same lock acquisition — required so a concurrent reader can never
// observe a half-applied upsert.
func (s *Store[V]) Upsert(keyID uint64, fn func(old *Entry[V], existed bool) *Entry[V]) (old *Entry[V], existed bool) {
	sh := s.shardFor(keyID)
	old, existed, delta := sh.upsert(keyID, fn)
	atomic.AddInt64(&s.weight, delta)
	if !existed {
		atomic.AddInt64(&s.len, 1)
	}
	return old, existed
}

// Delete removes keyID, returning the removed entry so callers can cancel
// any TTL scheduling or inspect its weight.
func (s *Store[V]) Delete(keyID uint64) (removed *Entry[V], hit bool) {
	removed, hit = s.shardFor(keyID).delete(keyID)
	if hit {
		atomic.AddInt64(&s.weight, -removed.Weight)
		atomic.AddInt64(&s.len, -1)
	}
	return removed, hit
}

// SampleVictims implements admission.VictimSource: it walks a handful of
// shards starting from a uniformly random offset, collecting up to n
// candidate key_ids, skipping exclude. Randomizing the start shard (rather
// than always scanning from shard 0) spreads eviction pressure evenly
// across the map instead of favoring low-numbered shards under light load.
func (s *Store[V]) SampleVictims(n int, exclude uint64) []uint64 {
	if n <= 0 {
		return nil
	}
	out := make([]uint64, 0, n)
	shardsToTry := len(s.shards)
	start := uint64(random.Float64() * float64(shardsToTry))
	for i := 0; i < shardsToTry && len(out) < n; i++ {
		sh := s.shards[(start+uint64(i))&s.mask]
		out = append(out, sh.sample(n-len(out), exclude)...)
	}
	return out
}

func (s *Store[V]) Clear() {
	for _, sh := range s.shards {
		sh.clear()
	}
	atomic.StoreInt64(&s.len, 0)
	atomic.StoreInt64(&s.weight, 0)
}

func (s *Store[V]) Len() int64    { return atomic.LoadInt64(&s.len) }
func (s *Store[V]) Weight() int64 { return atomic.LoadInt64(&s.weight) }
