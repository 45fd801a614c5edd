package config

import (
	"reflect"

	"github.com/Borislavv/lfucache/internal/clock"
	"github.com/Borislavv/lfucache/internal/hash"
)

// WeightFn estimates the weight of a candidate entry, per spec §4.J:
// weight_fn(key, value, has_ttl) -> i64, must return >= 1.
type WeightFn[K comparable, V any] func(key K, value V, hasTTL bool) int64

// Config bundles the YAML-loadable Params with the three pluggable
// boundaries spec §4.J leaves open: weight estimation, key hashing and
// time. K and V are carried here rather than on Params because Params
// must stay a plain struct yaml.v3 can unmarshal directly.
type Config[K comparable, V any] struct {
	Params

	WeightFn WeightFn[K, V]
	Hasher   hash.Hasher
	Clock    clock.Clock
}

// New wraps p with the default WeightFn, Hasher and Clock, applying
// AdjustConfig first if it hasn't already run.
func New[K comparable, V any](p Params) *Config[K, V] {
	if p.Shards == 0 {
		p.AdjustConfig()
	}
	return &Config[K, V]{
		Params:   p,
		WeightFn: DefaultWeightFn[K, V],
		Hasher:   hash.New(),
		Clock:    clock.New(),
	}
}

const ttlSurcharge int64 = 24

// DefaultWeightFn estimates an entry's weight from the in-memory footprint
// of its key and value, plus a fixed surcharge for entries carrying a TTL
// (mirroring the extra bookkeeping a timed entry costs the wheel). String
// and byte-slice payloads are measured by length rather than header size,
// since that's what actually dominates their footprint.
func DefaultWeightFn[K comparable, V any](key K, value V, hasTTL bool) int64 {
	w := sizeOf(key) + sizeOf(value)
	if hasTTL {
		w += ttlSurcharge
	}
	if w < 1 {
		w = 1
	}
	return w
}

func sizeOf(v any) int64 {
	switch x := v.(type) {
	case string:
		return int64(len(x))
	case []byte:
		return int64(len(x))
	default:
		t := reflect.TypeOf(v)
		if t == nil {
			return 0
		}
		return int64(t.Size())
	}
}
