// Package idgen produces correlation ids for outbound calls.
package idgen

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/juju/clock"
)

// Generator hands out ids that are unique for the lifetime of the process.
// Implementations must be goroutine-safe.
type Generator interface {
	Next() string
}

// Timestamp generates ids from the current millisecond in base 36 followed by a
// decimal counter. The counter resets when the millisecond advances, so many ids
// issued within one tick still differ. A clock stepping backwards is treated as the
// same tick.
type Timestamp struct {
	clock clock.Clock

	mu   sync.Mutex
	last int64
	n    uint64
}

// NewTimestamp returns a Timestamp generator reading the given clock.
// A nil clock means the wall clock.
func NewTimestamp(clk clock.Clock) *Timestamp {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Timestamp{clock: clk}
}

func (g *Timestamp) Next() string {
	ms := g.clock.Now().UnixMilli()

	g.mu.Lock()
	if ms > g.last {
		g.last = ms
		g.n = 0
	} else {
		g.n++
	}
	tick, n := g.last, g.n
	g.mu.Unlock()

	return strconv.FormatInt(tick, 36) + strconv.FormatUint(n, 10)
}

// UUID generates random version 4 UUIDs.
type UUID struct{}

func (UUID) Next() string {
	return uuid.NewString()
}

// Sequence generates Prefix followed by 1, 2, 3, ... It is deterministic, which makes
// it handy in tests.
type Sequence struct {
	Prefix string
	seq    atomic.Uint64
}

func (s *Sequence) Next() string {
	return s.Prefix + strconv.FormatUint(s.seq.Add(1), 10)
}

// ByName returns the generator configured by name: "timestamp" (default) or "uuid".
func ByName(name string) (Generator, bool) {
	switch name {
	case "", "timestamp":
		return NewTimestamp(nil), true
	case "uuid":
		return UUID{}, true
	}
	return nil, false
}
