package command

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Borislavv/lfucache/internal/ack"
	"github.com/Borislavv/lfucache/internal/admission"
	"github.com/Borislavv/lfucache/internal/ledger"
	"github.com/Borislavv/lfucache/internal/sketch"
	"github.com/Borislavv/lfucache/internal/stats"
	"github.com/Borislavv/lfucache/internal/store"
	"github.com/Borislavv/lfucache/internal/ttlwheel"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExecutor(t *testing.T, cacheWeight int64) (*Executor[string], *store.Store[string], *stats.Recorder) {
	t.Helper()
	e, st, rec, _, _ := newTestExecutorWithClock(t, cacheWeight)
	return e, st, rec
}

// newTestExecutorWithClock exposes the wheel and a settable "now" for tests
// that need to drive expiry re-checks deterministically.
func newTestExecutorWithClock(t *testing.T, cacheWeight int64) (*Executor[string], *store.Store[string], *stats.Recorder, *ttlwheel.Wheel, *time.Time) {
	t.Helper()
	st := store.New[string](0)
	est := sketch.New(64, 4)
	led := ledger.New()
	pol := admission.New(cacheWeight, 5, led, est, st)
	base := time.Unix(1000, 0)
	wheel := ttlwheel.New(60, time.Second, base)
	rec := stats.New()
	now := base

	e := New(Deps[string]{
		Store: st, Admission: pol, Wheel: wheel, Stats: rec, Logger: testLogger(),
		Now: func() time.Time { return now },
	}, 16)
	t.Cleanup(e.Shutdown)
	return e, st, rec, wheel, &now
}

func TestExecutor_PutAccepted(t *testing.T) {
	e, st, rec := newTestExecutor(t, 100)

	a := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{
		Kind: KindPut, KeyID: 1, KeyHash: 1,
		Put: PutSpec[string]{Value: "hello", Weight: 10},
		Ack: a,
	}))

	status, err := a.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, ack.Accepted, status)

	v, ok := st.Get(1, 1)
	require.True(t, ok)
	require.Equal(t, "hello", v)
	require.Equal(t, int64(1), rec.Snapshot().KeysAdded)
}

func TestExecutor_PutRejectedOversized(t *testing.T) {
	e, _, rec := newTestExecutor(t, 100)

	a := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{
		Kind: KindPut, KeyID: 1, KeyHash: 1,
		Put: PutSpec[string]{Value: "hello", Weight: 200},
		Ack: a,
	}))

	status, _ := a.Wait(context.Background())
	require.Equal(t, ack.Rejected, status)
	require.Equal(t, int64(1), rec.Snapshot().KeysRejected)
}

func TestExecutor_DeleteOfAbsentKeyIsDone(t *testing.T) {
	e, _, _ := newTestExecutor(t, 100)

	a := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{Kind: KindDelete, KeyID: 99, Ack: a}))

	status, _ := a.Wait(context.Background())
	require.Equal(t, ack.Done, status)
}

func TestExecutor_DeleteRemovesStoredKey(t *testing.T) {
	e, st, rec := newTestExecutor(t, 100)

	put := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{
		Kind: KindPut, KeyID: 1, KeyHash: 1,
		Put: PutSpec[string]{Value: "hello", Weight: 10},
		Ack: put,
	}))
	put.Wait(context.Background())

	del := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{Kind: KindDelete, KeyID: 1, Ack: del}))
	status, _ := del.Wait(context.Background())
	require.Equal(t, ack.Done, status)

	_, ok := st.Get(1, 1)
	require.False(t, ok)
	require.Equal(t, int64(1), rec.Snapshot().KeysDeleted)
}

func TestExecutor_UpsertOnAbsentKeyBehavesAsPut(t *testing.T) {
	e, st, _ := newTestExecutor(t, 100)

	weight := int64(15)
	a := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{
		Kind: KindUpsert, KeyID: 5, KeyHash: 5,
		Upsert: UpsertSpec[string]{Weight: &weight, FallbackValue: "x", FallbackWeight: 1},
		Ack:    a,
	}))

	status, _ := a.Wait(context.Background())
	require.Equal(t, ack.Accepted, status)
	v, ok := st.Get(5, 5)
	require.True(t, ok)
	require.Equal(t, "x", v)
}

func TestExecutor_UpsertChangesWeightWithoutTouchingValue(t *testing.T) {
	e, st, _ := newTestExecutor(t, 100)

	put := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{
		Kind: KindPut, KeyID: 1, KeyHash: 1,
		Put: PutSpec[string]{Value: "topic", Weight: 20},
		Ack: put,
	}))
	put.Wait(context.Background())

	newWeight := int64(29)
	upsert := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{
		Kind: KindUpsert, KeyID: 1, KeyHash: 1,
		Upsert: UpsertSpec[string]{Weight: &newWeight},
		Ack:    upsert,
	}))
	status, _ := upsert.Wait(context.Background())
	require.Equal(t, ack.Accepted, status)

	v, ok := st.Get(1, 1)
	require.True(t, ok)
	require.Equal(t, "topic", v, "value-unrelated upsert must not touch the stored value")
}

func TestExecutor_UpsertRejectsEmptySpec(t *testing.T) {
	e, _, _ := newTestExecutor(t, 100)

	a := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{Kind: KindUpsert, KeyID: 1, Ack: a}))
	status, _ := a.Wait(context.Background())
	require.Equal(t, ack.Rejected, status)
}

func TestExecutor_ExpireCandidateDeletesActuallyExpiredKey(t *testing.T) {
	e, st, rec, _, now := newTestExecutorWithClock(t, 100)

	expireAt := (*now).Add(time.Second)
	put := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{
		Kind: KindPut, KeyID: 1, KeyHash: 1,
		Put: PutSpec[string]{Value: "hello", Weight: 10, ExpireAt: &expireAt},
		Ack: put,
	}))
	put.Wait(context.Background())

	*now = expireAt.Add(time.Millisecond)

	expire := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{Kind: KindExpire, KeyID: 1, Ack: expire}))
	status, _ := expire.Wait(context.Background())
	require.Equal(t, ack.Done, status)

	_, ok := st.Get(1, 1)
	require.False(t, ok)
	require.Equal(t, int64(1), rec.Snapshot().KeysDeleted)
}

func TestExecutor_ExpireCandidateLeavesRenewedKeyAlone(t *testing.T) {
	e, st, rec, wheel, now := newTestExecutorWithClock(t, 100)

	firstExpiry := (*now).Add(time.Second)
	put := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{
		Kind: KindPut, KeyID: 1, KeyHash: 1,
		Put: PutSpec[string]{Value: "hello", Weight: 10, ExpireAt: &firstExpiry},
		Ack: put,
	}))
	put.Wait(context.Background())

	// the key gets a longer TTL before the sweep delivers the stale
	// candidate scheduled for the original, shorter expiry.
	secondExpiry := (*now).Add(10 * time.Second)
	upsert := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{
		Kind: KindUpsert, KeyID: 1, KeyHash: 1,
		Upsert: UpsertSpec[string]{TTLChange: TTLSet, ExpireAt: secondExpiry},
		Ack:    upsert,
	}))
	upsert.Wait(context.Background())

	*now = firstExpiry.Add(time.Millisecond)

	expire := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{Kind: KindExpire, KeyID: 1, Ack: expire}))
	status, _ := expire.Wait(context.Background())
	require.Equal(t, ack.Done, status)

	v, ok := st.Get(1, 1)
	require.True(t, ok, "a stale expiry candidate must not delete a key whose TTL was renewed")
	require.Equal(t, "hello", v)
	require.Equal(t, int64(0), rec.Snapshot().KeysDeleted)

	// the stale candidate must be rescheduled against the real expiry so a
	// later sweep still catches it.
	expired := wheel.DrainExpired(secondExpiry.Add(time.Millisecond))
	require.Contains(t, expired, uint64(1))
}

func TestExecutor_ExpireCandidateOfAbsentKeyIsDone(t *testing.T) {
	e, _, _, _, _ := newTestExecutorWithClock(t, 100)

	a := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{Kind: KindExpire, KeyID: 99, Ack: a}))
	status, _ := a.Wait(context.Background())
	require.Equal(t, ack.Done, status)
}

func TestExecutor_PutReplacingTTLKeyCancelsOldBucket(t *testing.T) {
	e, st, _, wheel, now := newTestExecutorWithClock(t, 100)

	expireAt := (*now).Add(time.Second)
	first := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{
		Kind: KindPut, KeyID: 1, KeyHash: 1,
		Put: PutSpec[string]{Value: "v1", Weight: 10, ExpireAt: &expireAt},
		Ack: first,
	}))
	first.Wait(context.Background())

	second := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{
		Kind: KindPut, KeyID: 1, KeyHash: 1,
		Put: PutSpec[string]{Value: "v2", Weight: 10},
		Ack: second,
	}))
	second.Wait(context.Background())

	expired := wheel.DrainExpired(expireAt.Add(time.Millisecond))
	require.NotContains(t, expired, uint64(1), "replacing a ttl key without a new ttl must cancel its old bucket")

	v, ok := st.Get(1, 1)
	require.True(t, ok)
	require.Equal(t, "v2", v)
}

func TestExecutor_UpsertClearingTTLCancelsOldBucket(t *testing.T) {
	e, st, _, wheel, now := newTestExecutorWithClock(t, 100)

	expireAt := (*now).Add(time.Second)
	put := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{
		Kind: KindPut, KeyID: 1, KeyHash: 1,
		Put: PutSpec[string]{Value: "v1", Weight: 10, ExpireAt: &expireAt},
		Ack: put,
	}))
	put.Wait(context.Background())

	clearTTL := ack.New()
	require.NoError(t, e.Enqueue(context.Background(), &Command[string]{
		Kind: KindUpsert, KeyID: 1, KeyHash: 1,
		Upsert: UpsertSpec[string]{TTLChange: TTLCleared},
		Ack:    clearTTL,
	}))
	clearTTL.Wait(context.Background())

	expired := wheel.DrainExpired(expireAt.Add(time.Millisecond))
	require.NotContains(t, expired, uint64(1), "clearing a key's ttl must cancel its old bucket")

	_, ok := st.Get(1, 1)
	require.True(t, ok)
}

func TestExecutor_EnqueueAfterShutdownFailsWithShuttingDown(t *testing.T) {
	st := store.New[string](0)
	est := sketch.New(64, 4)
	pol := admission.New(100, 5, ledger.New(), est, st)
	wheel := ttlwheel.New(60, time.Second, time.Unix(1000, 0))
	rec := stats.New()
	e := New(Deps[string]{
		Store: st, Admission: pol, Wheel: wheel, Stats: rec, Logger: testLogger(),
		Now: func() time.Time { return time.Unix(1000, 0) },
	}, 16)

	// fill the queue without letting the goroutine drain it first is hard to
	// race deterministically; instead verify the post-shutdown contract:
	// Enqueue fails synchronously once Shutdown has returned.
	e.Shutdown()

	a := ack.New()
	err := e.Enqueue(context.Background(), &Command[string]{Kind: KindDelete, KeyID: 1, Ack: a})
	require.ErrorIs(t, err, ErrShuttingDown)
}
