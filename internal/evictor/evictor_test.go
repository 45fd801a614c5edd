package evictor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Borislavv/lfucache/config"
	"github.com/Borislavv/lfucache/internal/ack"
	"github.com/Borislavv/lfucache/internal/admission"
	"github.com/Borislavv/lfucache/internal/command"
	"github.com/Borislavv/lfucache/internal/ledger"
	"github.com/Borislavv/lfucache/internal/sketch"
	"github.com/Borislavv/lfucache/internal/stats"
	"github.com/Borislavv/lfucache/internal/store"
	"github.com/Borislavv/lfucache/internal/ttlwheel"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newExecutor(t *testing.T, cacheWeight int64) (*command.Executor[string], *store.Store[string]) {
	t.Helper()
	st := store.New[string](0)
	est := sketch.New(64, 4)
	pol := admission.New(cacheWeight, 5, ledger.New(), est, st)
	wheel := ttlwheel.New(60, time.Second, time.Unix(1000, 0))
	e := command.New(command.Deps[string]{
		Store: st, Admission: pol, Wheel: wheel, Stats: stats.New(), Logger: testLogger(),
		Now: func() time.Time { return time.Unix(1000, 0) },
	}, 64)
	t.Cleanup(e.Shutdown)
	return e, st
}

func put(t *testing.T, exec *command.Executor[string], keyID uint64, value string, weight int64) {
	t.Helper()
	a := ack.New()
	require.NoError(t, exec.Enqueue(context.Background(), &command.Command[string]{
		Kind: command.KindPut, KeyID: keyID, KeyHash: keyID,
		Put: command.PutSpec[string]{Value: value, Weight: weight},
		Ack: a,
	}))
	status, err := a.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, ack.Accepted, status)
}

func TestNew_ReturnsNoOpWhenDisabled(t *testing.T) {
	ev := New[string](context.Background(), nil, testLogger(), nil, nil)
	_, ok := ev.(*NoOp)
	require.True(t, ok)
	require.NoError(t, ev.Close())
}

func TestWorker_ReclaimsWeightAboveSoftLimit(t *testing.T) {
	exec, st := newExecutor(t, 1000)
	for i := uint64(0); i < 20; i++ {
		put(t, exec, i, "v", 40)
	}
	require.Equal(t, int64(800), st.Weight())

	cfg := &config.EvictionCfg{CallsPerSec: 1000, BackoffSpinsPerCall: 100, SoftWeightLimit: 200}
	ev := New[string](context.Background(), cfg, testLogger(), st, exec)
	defer ev.Close()

	require.NoError(t, ev.ForceCall(time.Second))
	require.Eventually(t, func() bool {
		return st.Weight() <= 200
	}, time.Second, 2*time.Millisecond)

	_, _, evictedItems, evictedWeight := ev.Metrics()
	require.Greater(t, evictedItems, int64(0))
	require.Greater(t, evictedWeight, int64(0))
}

func TestWorker_ForceCallTimesOutWhenNoWorkerListening(t *testing.T) {
	w := &Worker[string]{ctx: context.Background(), invokeCh: make(chan struct{})}
	err := w.ForceCall(time.Millisecond)
	require.ErrorIs(t, err, ErrNotResponded)
}
