// Package clock abstracts time access so the executor, ttl wheel and
// telemetry loop can be driven by a deterministic clock in tests.
package clock

import (
	"time"

	bclock "github.com/benbjohnson/clock"

	"github.com/Borislavv/lfucache/internal/shared/cachedtime"
)

// Clock is the interface consumed throughout the cache. benbjohnson/clock's
// *bclock.Mock already implements it, so tests can inject one directly.
type Clock interface {
	Now() time.Time
}

type real struct {
	underlying bclock.Clock
}

// New returns the production Clock. Now() is served from the
// ticker-refreshed cache in internal/shared/cachedtime instead of a
// time.Now() syscall on every call; the wrapped benbjohnson/clock.Clock is
// kept so other time primitives (After, Timer, Ticker) stay swappable.
func New() Clock {
	return &real{underlying: bclock.New()}
}

func (r *real) Now() time.Time { return cachedtime.Now() }

// Underlying exposes the wrapped benbjohnson/clock.Clock for callers that
// need Timer/Ticker/After rather than just Now().
func (r *real) Underlying() bclock.Clock { return r.underlying }

// NewMock returns a benbjohnson/clock Mock. It satisfies Clock and also
// gives tests Add/Set for deterministic TTL assertions.
func NewMock() *bclock.Mock { return bclock.NewMock() }
