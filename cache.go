// Package lfucache is the Cache facade (spec §4.H): the public entry point
// wiring every leaf component — Hasher, FrequencyEstimator, AccessLog,
// TtlTicker, WeightLedger, AdmissionPolicy, Store, CommandExecutor,
// StatsRecorder, the optional soft-evictor and telemetry logger — behind
// the operations a host process actually calls.
//
// Grounded on the teacher's internal/cache/cache.go: a struct that owns
// every subsystem and wires their background goroutines together in its
// constructor, exposing Get/Set/Del plus Metrics()/Close() at the top.
package lfucache

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/Borislavv/lfucache/config"
	"github.com/Borislavv/lfucache/internal/ack"
	"github.com/Borislavv/lfucache/internal/accesslog"
	"github.com/Borislavv/lfucache/internal/admission"
	"github.com/Borislavv/lfucache/internal/command"
	"github.com/Borislavv/lfucache/internal/evictor"
	"github.com/Borislavv/lfucache/internal/hash"
	"github.com/Borislavv/lfucache/internal/ledger"
	"github.com/Borislavv/lfucache/internal/sketch"
	"github.com/Borislavv/lfucache/internal/stats"
	"github.com/Borislavv/lfucache/internal/store"
	"github.com/Borislavv/lfucache/internal/telemetry"
	"github.com/Borislavv/lfucache/internal/ttlwheel"
)

// Sentinel errors surfaced synchronously, per spec §7's InvalidArgument kind.
var (
	ErrInvalidWeight  = errors.New("lfucache: weight must be >= 1 and <= cache_weight")
	ErrInvalidTTL     = errors.New("lfucache: ttl must be > 0")
	ErrInvalidRequest = errors.New("lfucache: upsert request must change value, weight or ttl")
)

// ErrShuttingDown re-exports the executor's sentinel so callers never need
// to import internal/command directly.
var ErrShuttingDown = command.ErrShuttingDown

// defaultWheelBuckets gives the wheel roughly an hour of horizon at a
// 1-second bucket width; keys with a longer TTL still work, they just
// revisit the same bucket on every lap until their expiry is reached.
const defaultWheelBuckets = 3600

// Ref is a read-only guard over a stored value, tied to the owning store
// shard's read lock. Release it as soon as you're done reading Value.
type Ref[V any] = store.Ref[V]

// Cache is the generic, weight-bounded, concurrent cache described by
// spec §4.H. K is the key type (hashed internally); V is the value type.
type Cache[K comparable, V any] struct {
	cfg    *config.Config[K, V]
	logger *slog.Logger

	store     *store.Store[V]
	ledger    *ledger.Ledger
	estimator *sketch.Estimator
	admission *admission.Policy
	accessLog *accesslog.AccessLog
	wheel     *ttlwheel.Wheel
	sweeper   *ttlwheel.Sweeper
	exec      *command.Executor[V]
	stats     *stats.Recorder
	evictor   evictor.Evictor
	telemetry *telemetry.Logs

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds and starts a Cache from cfg. Passing a nil logger falls back
// to a plain text logger on stderr. The returned Cache owns background
// goroutines (AccessLog drainer, TtlTicker sweeper, optional soft-evictor
// and telemetry loop); call Shutdown to stop them.
func New[K comparable, V any](ctx context.Context, cfg *config.Config[K, V], logger *slog.Logger) *Cache[K, V] {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	ctx, cancel := context.WithCancel(ctx)

	st := store.New[V](cfg.Capacity)
	led := ledger.New()
	est := sketch.New(cfg.Counters, 4)
	pol := admission.New(cfg.CacheWeight, cfg.SampleSize, led, est, st)
	wheel := ttlwheel.New(defaultWheelBuckets, cfg.TTLBucketWidth, cfg.Clock.Now())
	rec := stats.New()

	c := &Cache[K, V]{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		ledger:    led,
		estimator: est,
		admission: pol,
		wheel:     wheel,
		stats:     rec,
		ctx:       ctx,
		cancel:    cancel,
	}

	c.exec = command.New(command.Deps[V]{
		Store: st, Admission: pol, Wheel: wheel, Stats: rec, Logger: logger, Now: cfg.Clock.Now,
	}, cfg.CommandBufferSize)

	c.accessLog = accesslog.New(ctx, cfg.AccessBufferSize, accessSink{est}, logger)
	c.sweeper = ttlwheel.NewSweeper(ctx, wheel, cfg.TTLTickInterval, cfg.Clock.Now, c.onExpired, logger)
	c.evictor = evictor.New[V](ctx, cfg.Eviction, logger, st, c.exec)
	if cfg.Telemetry.Enabled() {
		c.telemetry = telemetry.New(ctx, logger, rec, st, c.evictor, cfg.Telemetry.Interval)
	}

	return c
}

// accessSink feeds drained AccessLog samples into the FrequencyEstimator.
type accessSink struct {
	est *sketch.Estimator
}

func (s accessSink) Increment(keyID uint64) { s.est.Increment(keyID) }

func (c *Cache[K, V]) hashKey(key K) (keyID, keyHash uint64) {
	id, hi, lo := c.cfg.Hasher.Hash(hash.KeyBytes(key))
	return id, hi ^ lo
}

func (c *Cache[K, V]) record(keyID uint64) {
	if c.accessLog.Record(keyID) {
		c.stats.AccessAdded()
	} else {
		c.stats.AccessDropped()
	}
}

// Put enqueues an insert/replace of key with the default weight estimate
// (config.WeightFn) and no TTL.
func (c *Cache[K, V]) Put(ctx context.Context, key K, value V) (*ack.Ack, error) {
	return c.put(ctx, key, value, 0, nil)
}

// PutWithWeight enqueues an insert/replace with an explicit weight, which
// must satisfy 1 <= weight <= cache_weight.
func (c *Cache[K, V]) PutWithWeight(ctx context.Context, key K, value V, weight int64) (*ack.Ack, error) {
	if weight < 1 || weight > c.cfg.CacheWeight {
		return nil, ErrInvalidWeight
	}
	return c.put(ctx, key, value, weight, nil)
}

// PutWithTTL enqueues an insert/replace that expires after ttl.
func (c *Cache[K, V]) PutWithTTL(ctx context.Context, key K, value V, ttl time.Duration) (*ack.Ack, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	expireAt := c.cfg.Clock.Now().Add(ttl)
	return c.put(ctx, key, value, 0, &expireAt)
}

// PutWithWeightAndTTL enqueues an insert/replace with both an explicit
// weight and a TTL.
func (c *Cache[K, V]) PutWithWeightAndTTL(ctx context.Context, key K, value V, weight int64, ttl time.Duration) (*ack.Ack, error) {
	if weight < 1 || weight > c.cfg.CacheWeight {
		return nil, ErrInvalidWeight
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	expireAt := c.cfg.Clock.Now().Add(ttl)
	return c.put(ctx, key, value, weight, &expireAt)
}

func (c *Cache[K, V]) put(ctx context.Context, key K, value V, weight int64, expireAt *time.Time) (*ack.Ack, error) {
	keyID, keyHash := c.hashKey(key)
	if weight <= 0 {
		weight = c.cfg.WeightFn(key, value, expireAt != nil)
		if weight < 1 {
			weight = 1
		}
	}

	a := ack.New()
	err := c.exec.Enqueue(ctx, &command.Command[V]{
		Kind:    command.KindPut,
		KeyID:   keyID,
		KeyHash: keyHash,
		Put:     command.PutSpec[V]{Value: value, Weight: weight, ExpireAt: expireAt},
		Ack:     a,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpsertRequest describes a partial update to an existing entry, or the
// fields to use if the key turns out to be absent (spec §4.F's "behaves
// as Put" fallback).
type UpsertRequest[K comparable, V any] struct {
	Key K

	Value  *V
	Weight *int64

	SetTTL   bool
	ClearTTL bool
	TTL      time.Duration

	FallbackValue  V
	FallbackWeight int64
}

func (r UpsertRequest[K, V]) isEmpty() bool {
	return r.Value == nil && r.Weight == nil && !r.SetTTL && !r.ClearTTL
}

// Upsert enqueues a partial update. Absent keys are inserted using
// FallbackValue/FallbackWeight (weight defaulting through WeightFn if left
// at zero), exactly as a Put. The request must still set Value, Weight or a
// TTL change: one carrying only fallback fields is rejected with
// ErrInvalidRequest.
func (c *Cache[K, V]) Upsert(ctx context.Context, req UpsertRequest[K, V]) (*ack.Ack, error) {
	if req.isEmpty() {
		return nil, ErrInvalidRequest
	}
	keyID, keyHash := c.hashKey(req.Key)

	spec := command.UpsertSpec[V]{Value: req.Value, Weight: req.Weight}
	switch {
	case req.SetTTL:
		spec.TTLChange = command.TTLSet
		spec.ExpireAt = c.cfg.Clock.Now().Add(req.TTL)
	case req.ClearTTL:
		spec.TTLChange = command.TTLCleared
	}

	fallbackValue := req.FallbackValue
	if req.Value != nil {
		fallbackValue = *req.Value
	}
	fallbackWeight := req.FallbackWeight
	switch {
	case req.Weight != nil:
		fallbackWeight = *req.Weight
	case fallbackWeight <= 0:
		fallbackWeight = c.cfg.WeightFn(req.Key, fallbackValue, req.SetTTL)
		if fallbackWeight < 1 {
			fallbackWeight = 1
		}
	}
	spec.FallbackValue = fallbackValue
	spec.FallbackWeight = fallbackWeight

	a := ack.New()
	err := c.exec.Enqueue(ctx, &command.Command[V]{
		Kind: command.KindUpsert, KeyID: keyID, KeyHash: keyHash, Upsert: spec, Ack: a,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns a clone of the stored value, or false if absent or expired.
// A hit records the access and increments cache_hits; a miss (including an
// expired entry, which is marked for best-effort deletion) increments
// cache_misses.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	keyID, keyHash := c.hashKey(key)
	ref, ok := c.store.GetRef(keyID, keyHash)
	if !ok {
		c.stats.Miss()
		var zero V
		return zero, false
	}
	if c.expired(ref) {
		ref.Release()
		c.stats.Miss()
		c.onExpired(keyID)
		var zero V
		return zero, false
	}
	v := ref.Value()
	ref.Release()
	c.record(keyID)
	c.stats.Hit()
	return v, true
}

// GetRef returns a guard bound to the owning shard's read lock instead of
// cloning. Callers must call Release and must not hold the guard across a
// suspension point, since the shard's write lock blocks behind it.
func (c *Cache[K, V]) GetRef(key K) (*Ref[V], bool) {
	keyID, keyHash := c.hashKey(key)
	ref, ok := c.store.GetRef(keyID, keyHash)
	if !ok {
		c.stats.Miss()
		return nil, false
	}
	if c.expired(ref) {
		ref.Release()
		c.stats.Miss()
		c.onExpired(keyID)
		return nil, false
	}
	c.record(keyID)
	c.stats.Hit()
	return ref, true
}

func (c *Cache[K, V]) expired(ref *Ref[V]) bool {
	expireAt := ref.ExpireAt()
	return expireAt != nil && !expireAt.After(c.cfg.Clock.Now())
}

// MultiGet looks up every key, returning a map containing only the hits.
func (c *Cache[K, V]) MultiGet(keys []K) map[K]V {
	out := make(map[K]V, len(keys))
	for _, k := range keys {
		if v, ok := c.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// MultiGetIterator returns a lazy, finite sequence of (key, value) pairs
// for the hits among keys, looked up one at a time as the sequence is
// consumed.
func (c *Cache[K, V]) MultiGetIterator(keys []K) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, k := range keys {
			v, ok := c.Get(k)
			if !ok {
				continue
			}
			if !yield(k, v) {
				return
			}
		}
	}
}

// MapGet looks up key and, on a hit, applies f to the value. It's a
// free function rather than a method because Go methods can't introduce
// an additional type parameter (R) beyond the receiver's own K, V.
func MapGet[K comparable, V any, R any](c *Cache[K, V], key K, f func(V) R) (R, bool) {
	v, ok := c.Get(key)
	if !ok {
		var zero R
		return zero, false
	}
	return f(v), true
}

// Delete enqueues a removal. Deleting an absent key still resolves Done.
func (c *Cache[K, V]) Delete(ctx context.Context, key K) (*ack.Ack, error) {
	keyID, keyHash := c.hashKey(key)
	a := ack.New()
	err := c.exec.Enqueue(ctx, &command.Command[V]{
		Kind: command.KindDelete, KeyID: keyID, KeyHash: keyHash, Ack: a,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// onExpired routes a key_id suspected expired — by a reader or by the
// TtlTicker sweep — to the executor as an expiry candidate. It is only a
// candidate: the executor re-checks the entry's real ExpireAt before
// removing anything, since this key_id may have been renewed since it was
// scheduled. Using TryEnqueue rather than a blocking Enqueue means a
// saturated queue never stalls the caller or the sweeper; the candidate is
// simply retried on the next sweep or the next read that touches it.
func (c *Cache[K, V]) onExpired(keyID uint64) {
	c.exec.TryEnqueue(&command.Command[V]{Kind: command.KindExpire, KeyID: keyID, Ack: ack.New()})
}

// Stats returns an immutable snapshot of the cache's counters.
func (c *Cache[K, V]) Stats() stats.Summary { return c.stats.Snapshot() }

// Shutdown drains in-flight commands (resolving queued-but-unapplied ones
// as ShuttingDown) and stops every background goroutine. Operations
// enqueued after Shutdown returns fail with ErrShuttingDown.
func (c *Cache[K, V]) Shutdown() {
	c.exec.Shutdown()
	c.sweeper.Close()
	c.accessLog.Close()
	_ = c.evictor.Close()
	if c.telemetry != nil {
		c.telemetry.Close()
	}
	c.cancel()
}
