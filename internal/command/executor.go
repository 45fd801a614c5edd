package command

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Borislavv/lfucache/internal/ack"
	"github.com/Borislavv/lfucache/internal/admission"
	"github.com/Borislavv/lfucache/internal/stats"
	"github.com/Borislavv/lfucache/internal/store"
	"github.com/Borislavv/lfucache/internal/ttlwheel"
)

// ErrShuttingDown is returned by Enqueue once Shutdown has been called.
// Commands still queued when the executor stops are not given this error;
// their acknowledgements resolve with ack.ShuttingDown instead.
var ErrShuttingDown = errors.New("command: executor is shutting down")

// Deps bundles the subsystems the executor mutates. Held by value on
// Executor so every dispatch path reaches them without an extra pointer hop.
type Deps[V any] struct {
	Store     *store.Store[V]
	Admission *admission.Policy
	Wheel     *ttlwheel.Wheel
	Stats     *stats.Recorder
	Logger    *slog.Logger
	Now       func() time.Time
}

// Executor is the CommandExecutor: a single goroutine draining a bounded
// channel of Commands, applying each through Admission and Store.
type Executor[V any] struct {
	deps Deps[V]

	queue   chan *Command[V]
	stopped chan struct{}
	stopOnce sync.Once
	shuttingDown atomic.Bool
	wg sync.WaitGroup
}

// New builds and starts the executor with a queue of the given capacity.
func New[V any](deps Deps[V], bufferSize int) *Executor[V] {
	if bufferSize < 1 {
		bufferSize = 1
	}
	e := &Executor[V]{
		deps:    deps,
		queue:   make(chan *Command[V], bufferSize),
		stopped: make(chan struct{}),
	}
	e.wg.Add(1)
	go e.spin()
	return e
}

// Enqueue submits a command, blocking until there is room in the queue
// (spec §5's backpressure) unless the executor is shutting down or ctx is
// canceled first. Once Shutdown has been called, Enqueue fails
// synchronously without attempting to send.
func (e *Executor[V]) Enqueue(ctx context.Context, cmd *Command[V]) error {
	if e.shuttingDown.Load() {
		return ErrShuttingDown
	}
	select {
	case e.queue <- cmd:
		return nil
	case <-e.stopped:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue attempts a non-blocking submit, returning false immediately if
// the queue is full or the executor is shutting down. Used by the TTL
// sweeper so a saturated queue never stalls the sweep loop — per spec §7,
// a sweep that can't get a slot is simply retried next tick.
func (e *Executor[V]) TryEnqueue(cmd *Command[V]) bool {
	if e.shuttingDown.Load() {
		return false
	}
	select {
	case e.queue <- cmd:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting new commands and waits for the goroutine to
// drain (resolving, not applying) whatever was already queued.
func (e *Executor[V]) Shutdown() {
	e.stopOnce.Do(func() {
		e.shuttingDown.Store(true)
		close(e.stopped)
	})
	e.wg.Wait()
}

func (e *Executor[V]) spin() {
	defer e.wg.Done()
	for {
		select {
		case cmd := <-e.queue:
			e.process(cmd)
		case <-e.stopped:
			e.drainRemaining()
			return
		}
	}
}

// drainRemaining resolves every command still sitting in the buffered
// channel as ShuttingDown without applying it, per spec §4.F.
func (e *Executor[V]) drainRemaining() {
	for {
		select {
		case cmd := <-e.queue:
			cmd.Ack.Resolve(ack.ShuttingDown)
		default:
			return
		}
	}
}

func (e *Executor[V]) process(cmd *Command[V]) {
	if e.shuttingDown.Load() {
		cmd.Ack.Resolve(ack.ShuttingDown)
		return
	}
	switch cmd.Kind {
	case KindPut:
		e.applyPut(cmd)
	case KindUpsert:
		e.applyUpsert(cmd)
	case KindDelete:
		e.applyDelete(cmd)
	case KindExpire:
		e.applyExpire(cmd)
	}
}

func (e *Executor[V]) applyPut(cmd *Command[V]) {
	decision := e.deps.Admission.TryAdmit(admission.Candidate{KeyID: cmd.KeyID, Weight: cmd.Put.Weight})
	if !decision.Admit {
		e.deps.Stats.KeyRejected()
		cmd.Ack.Resolve(ack.Rejected)
		return
	}
	e.evictVictims(decision.Evicted)

	old, existed := e.deps.Store.Upsert(cmd.KeyID, func(*store.Entry[V], bool) *store.Entry[V] {
		return &store.Entry[V]{
			Value:    cmd.Put.Value,
			Weight:   cmd.Put.Weight,
			ExpireAt: cmd.Put.ExpireAt,
			KeyHash:  cmd.KeyHash,
		}
	})
	// a replaced entry's old TTL bucket must be canceled, or the new entry
	// gets deleted at the original key's expiry instead of its own.
	if existed && old.ExpireAt != nil {
		e.deps.Wheel.Cancel(cmd.KeyID, *old.ExpireAt)
	}
	if cmd.Put.ExpireAt != nil {
		e.deps.Wheel.Schedule(cmd.KeyID, *cmd.Put.ExpireAt)
	}
	e.deps.Stats.KeyAdded()
	e.deps.Stats.WeightAdded(cmd.Put.Weight)
	cmd.Ack.Resolve(ack.Accepted)
}

// applyUpsert implements spec §4.F's Upsert dispatch: behave as Put when
// the key is absent; otherwise update fields in place, running the weight
// admission check only when the weight actually changes.
func (e *Executor[V]) applyUpsert(cmd *Command[V]) {
	if cmd.Upsert.IsEmpty() {
		cmd.Ack.Resolve(ack.Rejected)
		return
	}

	if !e.deps.Store.Contains(cmd.KeyID, cmd.KeyHash) {
		weight := cmd.Upsert.FallbackWeight
		if cmd.Upsert.Weight != nil {
			weight = *cmd.Upsert.Weight
		}
		var expireAt *time.Time
		if cmd.Upsert.TTLChange == TTLSet {
			expireAt = &cmd.Upsert.ExpireAt
		}
		value := cmd.Upsert.FallbackValue
		if cmd.Upsert.Value != nil {
			value = *cmd.Upsert.Value
		}
		e.applyPut(&Command[V]{
			KeyID:   cmd.KeyID,
			KeyHash: cmd.KeyHash,
			Put:     PutSpec[V]{Value: value, Weight: weight, ExpireAt: expireAt},
			Ack:     cmd.Ack,
		})
		return
	}

	weightChanged := cmd.Upsert.Weight != nil
	if weightChanged {
		decision, err := e.deps.Admission.UpdateWeight(cmd.KeyID, *cmd.Upsert.Weight)
		if err != nil || !decision.Admit {
			e.deps.Stats.KeyRejected()
			cmd.Ack.Resolve(ack.Rejected)
			return
		}
		e.evictVictims(decision.Evicted)
	}

	var oldWeight, newWeight int64
	var oldExpireAt *time.Time
	e.deps.Store.Upsert(cmd.KeyID, func(old *store.Entry[V], existed bool) *store.Entry[V] {
		neu := *old
		oldWeight = old.Weight
		oldExpireAt = old.ExpireAt
		if cmd.Upsert.Value != nil {
			neu.Value = *cmd.Upsert.Value
		}
		if cmd.Upsert.Weight != nil {
			neu.Weight = *cmd.Upsert.Weight
		}
		switch cmd.Upsert.TTLChange {
		case TTLSet:
			t := cmd.Upsert.ExpireAt
			neu.ExpireAt = &t
		case TTLCleared:
			neu.ExpireAt = nil
		}
		newWeight = neu.Weight
		return &neu
	})

	// the old TTL bucket must be canceled on any TTL change, or the key
	// gets deleted at its previous expiry despite carrying a new (or no)
	// one now.
	switch cmd.Upsert.TTLChange {
	case TTLSet:
		if oldExpireAt != nil {
			e.deps.Wheel.Cancel(cmd.KeyID, *oldExpireAt)
		}
		e.deps.Wheel.Schedule(cmd.KeyID, cmd.Upsert.ExpireAt)
	case TTLCleared:
		if oldExpireAt != nil {
			e.deps.Wheel.Cancel(cmd.KeyID, *oldExpireAt)
		}
	}
	if newWeight != oldWeight {
		e.deps.Stats.WeightAdded(newWeight - oldWeight)
	}
	e.deps.Stats.KeyUpdated()
	cmd.Ack.Resolve(ack.Accepted)
}

func (e *Executor[V]) applyDelete(cmd *Command[V]) {
	removed, hit := e.deps.Store.Delete(cmd.KeyID)
	if !hit {
		cmd.Ack.Resolve(ack.Done)
		return
	}
	e.deps.Admission.NoteDelete(cmd.KeyID)
	if removed.ExpireAt != nil {
		e.deps.Wheel.Cancel(cmd.KeyID, *removed.ExpireAt)
	}
	e.deps.Stats.KeyDeleted()
	e.deps.Stats.WeightRemoved(removed.Weight)
	cmd.Ack.Resolve(ack.Done)
}

// applyExpire handles a ttl-ticker-reported expiry candidate. The ticker
// only ever reports candidates (spec §4.C) — it cannot itself tell a stale
// wheel entry (renewed TTL, or a longer-than-horizon TTL sharing a bucket
// with an earlier lap) from a real one, so the executor re-checks the
// entry's actual ExpireAt before removing anything. A stale candidate is
// left in place and rescheduled, since the sweep already cleared it out of
// the wheel's bucket on the way here.
func (e *Executor[V]) applyExpire(cmd *Command[V]) {
	entry, hit := e.deps.Store.Peek(cmd.KeyID)
	if !hit {
		cmd.Ack.Resolve(ack.Done)
		return
	}
	if entry.ExpireAt == nil || entry.ExpireAt.After(e.deps.Now()) {
		if entry.ExpireAt != nil {
			e.deps.Wheel.Schedule(cmd.KeyID, *entry.ExpireAt)
		}
		cmd.Ack.Resolve(ack.Done)
		return
	}
	e.applyDelete(cmd)
}

func (e *Executor[V]) evictVictims(victims []uint64) {
	for _, v := range victims {
		removed, hit := e.deps.Store.Delete(v)
		if !hit {
			continue
		}
		if removed.ExpireAt != nil {
			e.deps.Wheel.Cancel(v, *removed.ExpireAt)
		}
		e.deps.Stats.KeyEvicted()
		e.deps.Stats.WeightRemoved(removed.Weight)
	}
}
