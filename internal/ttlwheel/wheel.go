// Package ttlwheel implements the TtlTicker component (spec §4.C): a
// fixed-stride time wheel that reports expired key_ids for the executor to
// remove. The wheel itself never deletes anything — it only tracks which
// bucket a key_id's expiry falls into and yields candidates on sweep.
//
// Grounded on the teacher's internal/lifetimer provider/consumer shape
// (see sweeper.go) for the background draining cadence; the wheel data
// structure itself has no teacher analogue — the teacher instead samples
// entries directly (internal/cache/db/refresh.go's stochastic refresh) and
// has no equivalent of a deterministic bucketed expiry index.
package ttlwheel

import (
	"sync"
	"time"
)

// Wheel is a ring of N buckets of duration B, indexed by
// floor(expire_at / B) mod N.
type Wheel struct {
	mu      sync.Mutex
	buckets []map[uint64]struct{}
	width   time.Duration
	n       int64
	cursor  int64 // absolute bucket index already swept through
}

// New builds a wheel with n buckets of the given width, with the sweep
// cursor anchored at now so the first DrainExpired call doesn't walk every
// bucket since the Unix epoch.
func New(n int, width time.Duration, now time.Time) *Wheel {
	if n < 1 {
		n = 1
	}
	if width <= 0 {
		width = time.Second
	}
	w := &Wheel{n: int64(n), width: width}
	w.buckets = make([]map[uint64]struct{}, n)
	for i := range w.buckets {
		w.buckets[i] = make(map[uint64]struct{})
	}
	w.cursor = w.bucketAbsIndex(now)
	return w
}

func (w *Wheel) bucketAbsIndex(t time.Time) int64 {
	return t.UnixNano() / int64(w.width)
}

// Schedule places keyID into the bucket corresponding to expireAt. If
// expireAt falls beyond the wheel's horizon (n*width), the key lands in
// the wrap-closest bucket and is re-checked on a later sweep once the
// cursor cycles back around to that same bucket index.
func (w *Wheel) Schedule(keyID uint64, expireAt time.Time) {
	idx := w.bucketAbsIndex(expireAt) % w.n
	w.mu.Lock()
	w.buckets[idx][keyID] = struct{}{}
	w.mu.Unlock()
}

// Cancel removes keyID from the bucket it was scheduled into for expireAt.
// Canceling a key not present in that bucket is a no-op.
func (w *Wheel) Cancel(keyID uint64, expireAt time.Time) {
	idx := w.bucketAbsIndex(expireAt) % w.n
	w.mu.Lock()
	delete(w.buckets[idx], keyID)
	w.mu.Unlock()
}

// DrainExpired advances the cursor to floor(now/width), yielding and
// clearing every bucket passed over.
func (w *Wheel) DrainExpired(now time.Time) []uint64 {
	target := w.bucketAbsIndex(now)

	w.mu.Lock()
	defer w.mu.Unlock()

	var out []uint64
	for w.cursor <= target {
		idx := ((w.cursor % w.n) + w.n) % w.n
		for k := range w.buckets[idx] {
			out = append(out, k)
		}
		w.buckets[idx] = make(map[uint64]struct{})
		w.cursor++
	}
	return out
}

func (w *Wheel) BucketWidth() time.Duration { return w.width }
