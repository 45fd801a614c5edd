// Package evictor implements the supplemental background soft-evictor
// (SPEC_FULL.md's eviction config component): a worker that reclaims weight
// proactively once the store crosses a soft threshold, instead of only ever
// reclaiming it as a side effect of an admitted Put. Disabled entirely when
// no eviction config is supplied.
//
// Grounded on the teacher's internal/evictor/evictor.go provider/consumer
// goroutine shape (one provider ticking at CallsPerSec, GOMAXPROCS+1
// consumers draining an invocation channel), reworked to reclaim weight by
// sampling victims from admission.VictimSource and deleting them through
// the command executor rather than mutating the store directly — every
// eviction must still flow through the single-writer command queue.
package evictor

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Borislavv/lfucache/config"
	"github.com/Borislavv/lfucache/internal/ack"
	"github.com/Borislavv/lfucache/internal/admission"
	"github.com/Borislavv/lfucache/internal/command"
	"github.com/Borislavv/lfucache/internal/shared/rate"
)

var ErrNotResponded = errors.New("evictor: not responded")

const defaultBackoffSpinsPerCall = 2048

// Evictor is the public handle returned by New; NoOp satisfies it too.
type Evictor interface {
	ForceCall(timeout time.Duration) error
	Metrics() (scans, scanHits, evictedItems, evictedWeight int64)
	Close() error
}

// WeightStore is the subset of store.Store the evictor needs: its current
// aggregate weight and a way to sample victims without holding any
// executor-owned state.
type WeightStore interface {
	Weight() int64
	admission.VictimSource
}

// Enqueuer is the subset of command.Executor the evictor drives deletes
// through.
type Enqueuer[V any] interface {
	Enqueue(ctx context.Context, cmd *command.Command[V]) error
}

type Worker[V any] struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg    *config.EvictionCfg
	logger *slog.Logger
	store  WeightStore
	exec   Enqueuer[V]

	counters *counters
	invokeCh chan struct{}
}

// New starts a background soft-evictor, or returns a NoOp if cfg is nil.
func New[V any](ctx context.Context, cfg *config.EvictionCfg, logger *slog.Logger, store WeightStore, exec Enqueuer[V]) Evictor {
	if !cfg.Enabled() {
		return &NoOp{}
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Worker[V]{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		store:    store,
		exec:     exec,
		counters: newCounters(),
		invokeCh: make(chan struct{}),
	}
	return w.run()
}

func (w *Worker[V]) ForceCall(timeout time.Duration) error {
	after := time.NewTimer(timeout)
	defer after.Stop()
	select {
	case <-w.ctx.Done():
	case w.invokeCh <- struct{}{}:
	case <-after.C:
		return ErrNotResponded
	}
	return nil
}

func (w *Worker[V]) Metrics() (scans, scanHits, evictedItems, evictedWeight int64) {
	return w.counters.snapshot()
}

func (w *Worker[V]) Close() error {
	w.cancel()
	return nil
}

func (w *Worker[V]) run() *Worker[V] {
	w.logger.Info("soft evictor is running", "calls_per_sec", w.cfg.CallsPerSec, "soft_weight_limit", w.cfg.SoftWeightLimit)
	go func() {
		defer w.logger.Info("soft evictor is stopped")
		var wg sync.WaitGroup
		for i := 0; i <= runtime.GOMAXPROCS(0); i++ {
			wg.Go(w.consumer)
		}
		wg.Go(w.provider)
		wg.Wait()
	}()
	return w
}

// provider paces scans with a rate.Jitter instead of a plain ticker — the
// same rate-limited-channel shape the teacher's lifetimer uses for its own
// periodic invocation, rather than reimplementing rate limiting by hand.
func (w *Worker[V]) provider() {
	callsPerSec := int(w.cfg.CallsPerSec)
	if callsPerSec <= 0 {
		callsPerSec = 1
	}
	jitter := rate.NewJitter(w.ctx, callsPerSec)

	for {
		select {
		case <-w.ctx.Done():
			return
		case _, ok := <-jitter.Chan():
			if !ok {
				return
			}
			w.counters.scans.Add(1)
			if w.store.Weight() <= w.cfg.SoftWeightLimit {
				continue
			}
			select {
			case <-w.ctx.Done():
				return
			case w.invokeCh <- struct{}{}:
				w.counters.scanHits.Add(1)
			}
		}
	}
}

func (w *Worker[V]) consumer() {
	spins := w.cfg.BackoffSpinsPerCall
	if spins <= 0 {
		spins = defaultBackoffSpinsPerCall
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.invokeCh:
			before := w.store.Weight()
			items := w.evictUntilWithinLimit(spins)
			if items > 0 {
				after := w.store.Weight()
				freed := before - after
				if freed < 0 {
					freed = 0
				}
				w.counters.evictedItems.Add(items)
				w.counters.evictedWeight.Add(freed)
			}
		}
	}
}

// evictUntilWithinLimit samples one victim at a time and deletes it through
// the executor, stopping once the store drops back under the soft limit or
// maxSpins victim-deletion attempts have run out (the teacher's backoff
// shape, preventing a single consumer from spinning forever under churn).
func (w *Worker[V]) evictUntilWithinLimit(maxSpins int64) int64 {
	var evicted int64
	for i := int64(0); i < maxSpins; i++ {
		if w.store.Weight() <= w.cfg.SoftWeightLimit {
			return evicted
		}
		victims := w.store.SampleVictims(1, 0)
		if len(victims) == 0 {
			return evicted
		}
		a := ack.New()
		if err := w.exec.Enqueue(w.ctx, &command.Command[V]{Kind: command.KindDelete, KeyID: victims[0], Ack: a}); err != nil {
			return evicted
		}
		if status, err := a.Wait(w.ctx); err == nil && status == ack.Done {
			evicted++
		}
	}
	return evicted
}
