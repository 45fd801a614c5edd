// Package accesslog implements the AccessLog component (spec §4.B): a
// bounded multi-producer/single-consumer channel of key_id samples that
// record() pushes into non-blocking, dropping on full, drained by a
// dedicated goroutine into the FrequencyEstimator.
//
// Adapted from the teacher's internal/shared/queue.Queue (a fixed-size
// ring buffer with TryPush/TryPop) combined with the provider/consumer
// goroutine shape of internal/lifetimer.LifetimeWorker.
package accesslog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Borislavv/lfucache/internal/shared/queue"
)

// Sink receives drained samples; internal/sketch.Estimator satisfies this.
type Sink interface {
	Increment(keyID uint64)
}

const idlePause = time.Millisecond

// AccessLog is the bounded ring-buffer described above.
type AccessLog struct {
	ctx    context.Context
	cancel context.CancelFunc
	q      queue.Queue
	sink   Sink
	logger *slog.Logger

	recorded atomic.Int64
	dropped  atomic.Int64
}

// New starts the drainer goroutine and returns the log. capacity is
// rounded up to at least 2 by queue.Queue.Init.
func New(ctx context.Context, capacity int, sink Sink, logger *slog.Logger) *AccessLog {
	ctx, cancel := context.WithCancel(ctx)
	a := &AccessLog{ctx: ctx, cancel: cancel, sink: sink, logger: logger}
	a.q.Init(capacity)
	go a.drain()
	return a
}

// Record is non-blocking. Ordering among producers is not guaranteed and
// not required, per spec §4.B. Returns false if the sample was dropped
// because the ring buffer was full.
func (a *AccessLog) Record(keyID uint64) bool {
	if a.q.TryPush(keyID) {
		a.recorded.Add(1)
		return true
	}
	a.dropped.Add(1)
	return false
}

func (a *AccessLog) drain() {
	for {
		select {
		case <-a.ctx.Done():
			return
		default:
		}
		if keyID, ok := a.q.TryPop(); ok {
			a.sink.Increment(keyID)
			continue
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(idlePause):
		}
	}
}

func (a *AccessLog) Recorded() int64 { return a.recorded.Load() }
func (a *AccessLog) Dropped() int64  { return a.dropped.Load() }

// Close stops the drainer goroutine.
func (a *AccessLog) Close() { a.cancel() }
