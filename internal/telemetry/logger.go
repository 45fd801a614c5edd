package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/Borislavv/lfucache/internal/evictor"
	"github.com/Borislavv/lfucache/internal/shared/bytes"
	"github.com/Borislavv/lfucache/internal/stats"
)

// Logs runs the periodic delta-snapshot logging loop. Close stops it.
type Logs struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	interval time.Duration
}

// New starts the loop immediately if interval > 0, otherwise returns a
// handle whose Close is a no-op.
func New(ctx context.Context, logger *slog.Logger, stats *stats.Recorder, store StoreMetrics, ev evictor.Evictor, interval time.Duration) *Logs {
	ctx, cancel := context.WithCancel(ctx)
	l := &Logs{ctx: ctx, cancel: cancel, logger: logger, interval: interval}
	if interval > 0 {
		go l.loop(stats, store, ev)
	}
	return l
}

func (l *Logs) Close() { l.cancel() }

func (l *Logs) loop(stats *stats.Recorder, store StoreMetrics, ev evictor.Evictor) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	s := newSampler(stats, store, ev)
	prev := s.snapshot()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			cur := s.snapshot()
			d := deltaSnapshot(prev, cur)
			prev = cur

			common := []any{"interval", l.interval.String()}

			l.logger.Info("cache_access",
				append(common,
					"hits", d.CacheHits,
					"misses", d.CacheMisses,
				)...,
			)
			l.logger.Info("cache_writes",
				append(common,
					"added", d.KeysAdded,
					"updated", d.KeysUpdated,
					"deleted", d.KeysDeleted,
					"rejected", d.KeysRejected,
					"evicted", d.KeysEvicted,
				)...,
			)
			if d.softScans > 0 || d.softEvictedItems > 0 {
				l.logger.Info("soft_evictor",
					append(common,
						"scans", d.softScans,
						"hits", d.softHits,
						"freed_items", d.softEvictedItems,
						"freed_weight", d.softEvictedWeight,
					)...,
				)
			}
			l.logger.Info("storage",
				append(common,
					"entries", cur.entries,
					"weight", bytes.FmtMem(uint64(cur.weight)),
					"weight_added", bytes.FmtMem(uint64(d.WeightAdded)),
					"weight_removed", bytes.FmtMem(uint64(d.WeightRemoved)),
				)...,
			)
		}
	}
}
