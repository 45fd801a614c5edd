// Package hash provides the pluggable key-hashing boundary. The default
// implementation wraps github.com/zeebo/xxh3 with a pool of reusable
// hashers, mirroring the teacher's model.Key construction.
package hash

import (
	"fmt"
	"strconv"
	"sync"
	"unsafe"

	"github.com/zeebo/xxh3"
)

// Hasher derives a 64-bit key_id plus a 128-bit fingerprint (hi, lo) used
// only for collision-safety comparisons on the read path; key_id itself
// drives sharding, the sketch and the ledger.
type Hasher interface {
	Hash(key []byte) (id uint64, hi uint64, lo uint64)
}

type xxh3Hasher struct{}

// New returns the default xxh3-backed Hasher.
func New() Hasher { return xxh3Hasher{} }

var hasherPool = sync.Pool{New: func() any { return xxh3.New() }}

func (xxh3Hasher) Hash(key []byte) (id uint64, hi uint64, lo uint64) {
	h := hasherPool.Get().(*xxh3.Hasher)
	h.Reset()
	_, _ = h.Write(key)

	u128 := h.Sum128()
	id = h.Sum64()

	hasherPool.Put(h)
	return id, u128.Hi, u128.Lo
}

// KeyBytes converts an arbitrary comparable key into a byte slice suitable
// for hashing: string and []byte keys are used in place without copying,
// the common integer types are encoded as decimal text (a small
// allocation), and everything else falls back to fmt.Sprint (the same
// strategy as agilira-balios's keyToString generic helper).
func KeyBytes[K comparable](key K) []byte {
	switch v := any(key).(type) {
	case string:
		return unsafe.Slice(unsafe.StringData(v), len(v))
	case []byte:
		return v
	case int:
		return strconv.AppendInt(nil, int64(v), 10)
	case int32:
		return strconv.AppendInt(nil, int64(v), 10)
	case int64:
		return strconv.AppendInt(nil, v, 10)
	case uint:
		return strconv.AppendUint(nil, uint64(v), 10)
	case uint32:
		return strconv.AppendUint(nil, uint64(v), 10)
	case uint64:
		return strconv.AppendUint(nil, v, 10)
	default:
		s := fmt.Sprint(v)
		return unsafe.Slice(unsafe.StringData(s), len(s))
	}
}
