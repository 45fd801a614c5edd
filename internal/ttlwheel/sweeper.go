package ttlwheel

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drives DrainExpired at a fixed cadence (default: the wheel's
// bucket width) and forwards each candidate key_id to onExpired, which the
// cache wires to an expiry-candidate command (command.KindExpire): the
// executor re-checks the entry's real expiry and only then deletes it, so
// weight accounting and stats stay consistent with any other removal path.
//
// Shaped after the teacher's internal/lifetimer.LifetimeWorker provider
// loop: a ticker-driven goroutine, stoppable via context cancellation.
type Sweeper struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wheel   *Wheel
	nowFn   func() time.Time
	cadence time.Duration
	onExpired func(keyID uint64)
	logger *slog.Logger
}

// NewSweeper starts the background goroutine immediately, ticking at
// tickInterval (config's ttl_tick_interval; falling back to the wheel's
// bucket width when <= 0, since sweeping more slowly than a bucket's
// width would let a bucket accumulate more than one lap's worth of keys).
func NewSweeper(ctx context.Context, wheel *Wheel, tickInterval time.Duration, nowFn func() time.Time, onExpired func(keyID uint64), logger *slog.Logger) *Sweeper {
	ctx, cancel := context.WithCancel(ctx)
	if tickInterval <= 0 {
		tickInterval = wheel.BucketWidth()
	}
	s := &Sweeper{ctx: ctx, cancel: cancel, wheel: wheel, nowFn: nowFn, cadence: tickInterval, onExpired: onExpired, logger: logger}
	go s.run()
	return s
}

func (s *Sweeper) run() {
	cadence := s.cadence
	if cadence <= 0 {
		cadence = time.Second
	}
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			expired := s.wheel.DrainExpired(s.nowFn())
			for _, keyID := range expired {
				s.onExpired(keyID)
			}
		}
	}
}

func (s *Sweeper) Close() { s.cancel() }
