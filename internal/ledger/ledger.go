// Package ledger implements the WeightLedger: a mapping key_id → weight
// plus the scalar used_weight, mutated only by the CommandExecutor
// goroutine (spec §5) — no lock is required on the map itself; used_weight
// is kept atomic so stats/telemetry can read it lock-free from any
// goroutine.
package ledger

import "sync/atomic"

// Ledger has no teacher analogue: the teacher tracks weight as per-shard
// atomic aggregates on the store itself rather than as a separate
// key_id→weight map, because its admission control never needs to reason
// about a specific key's weight after the fact. Spec §3's AdmissionPolicy
// does (update_weight, weight_of), so this is new code in the teacher's
// idiom of "plain data structure, atomics only where genuinely concurrent".
type Ledger struct {
	weights map[uint64]int64
	used    atomic.Int64
}

func New() *Ledger {
	return &Ledger{weights: make(map[uint64]int64)}
}

// Set records or updates the weight of keyID, adjusting used_weight by the delta.
func (l *Ledger) Set(keyID uint64, weight int64) {
	if old, ok := l.weights[keyID]; ok {
		l.used.Add(weight - old)
	} else {
		l.used.Add(weight)
	}
	l.weights[keyID] = weight
}

// Delete removes keyID from the ledger, subtracting its weight from used_weight.
// Deleting an absent key is a no-op (idempotent, per spec §8 invariant 4).
func (l *Ledger) Delete(keyID uint64) {
	if old, ok := l.weights[keyID]; ok {
		delete(l.weights, keyID)
		l.used.Add(-old)
	}
}

func (l *Ledger) WeightOf(keyID uint64) (int64, bool) {
	w, ok := l.weights[keyID]
	return w, ok
}

func (l *Ledger) Contains(keyID uint64) bool {
	_, ok := l.weights[keyID]
	return ok
}

// UsedWeight is safe to read from any goroutine.
func (l *Ledger) UsedWeight() int64 { return l.used.Load() }

func (l *Ledger) Len() int { return len(l.weights) }

// Clear empties the ledger and resets used_weight to zero.
func (l *Ledger) Clear() {
	l.weights = make(map[uint64]int64)
	l.used.Store(0)
}
