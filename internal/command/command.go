// Package command implements the Command and CommandExecutor components
// (spec §4.F): a single-consumer queue that serializes all mutating cache
// operations, applying them through the AdmissionPolicy and Store and
// resolving each command's Acknowledgement exactly once.
//
// Exact dispatch semantics (victim eviction happening inside the Put path
// before store insertion, delete-then-notify ordering, shutdown draining
// queued-but-unapplied commands as ShuttingDown) are pinned from
// original_source/src/cache/command/command_executor.rs, re-expressed here
// in spec.md's literal terms. The goroutine shape — a provider loop
// selecting on a work channel and a stop signal — is grounded on the
// teacher's internal/lifetimer.LifetimeWorker.
package command

import (
	"time"

	"github.com/Borislavv/lfucache/internal/ack"
)

// Kind tags which mutating operation a Command represents.
type Kind int

const (
	KindPut Kind = iota
	KindUpsert
	KindDelete
	// KindExpire is an expiry candidate reported by the ttl ticker (spec
	// §4.C): "the ticker only reports candidates... the executor owns
	// actual removal". The executor re-checks the entry's real ExpireAt
	// before deleting, since a candidate can be stale (a since-renewed
	// TTL, or a wheel bucket shared by an earlier lap for a longer-than-
	// horizon TTL).
	KindExpire
)

// PutSpec carries the already-validated fields for a Put: weight and TTL
// validation (InvalidArgument) happens synchronously in the Cache facade
// before a command is ever built, so the executor can trust these values.
type PutSpec[V any] struct {
	Value    V
	Weight   int64
	ExpireAt *time.Time
}

// TTLChange distinguishes "leave the TTL alone" from "clear it" in an
// UpsertSpec, since a nil *time.Time is ambiguous between those two.
type TTLChange int

const (
	TTLUnchanged TTLChange = iota
	TTLSet
	TTLCleared
)

// UpsertSpec carries the optional fields of an upsert; nil/Unchanged
// members mean "leave as-is". IsEmpty reports the InvalidRequest case.
type UpsertSpec[V any] struct {
	Value     *V
	Weight    *int64
	TTLChange TTLChange
	ExpireAt  time.Time // valid only when TTLChange == TTLSet

	// Fallback fields used only when the key is absent and the upsert
	// behaves as a Put (spec §4.F): the caller must supply a usable value
	// and weight in that case.
	FallbackValue  V
	FallbackWeight int64
}

func (u UpsertSpec[V]) IsEmpty() bool {
	return u.Value == nil && u.Weight == nil && u.TTLChange == TTLUnchanged
}

// Command is the tagged union of spec §3's {Put, Upsert, Delete} plus the
// ttl ticker's Expire candidate, carrying the key, the proposed entry
// fields, and a one-shot acknowledgement slot.
type Command[V any] struct {
	Kind    Kind
	KeyID   uint64
	KeyHash uint64

	Put    PutSpec[V]
	Upsert UpsertSpec[V]

	Ack *ack.Ack
}
