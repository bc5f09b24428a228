package executor

import (
	"math"
	"sync/atomic"
	"time"

	"fortio.org/safecast"
)

// Instant is an absolute point in time, in ticks of the executor's [Clock].
type Instant uint64

// Never is the expiry of a task with no pending timer, and the deadline
// reported when nothing is pending.
const Never = Instant(math.MaxUint64)

// IsNever reports whether i is the [Never] sentinel.
func (i Instant) IsNever() bool { return i == Never }

// Clock is the monotonic time source consumed by the executor.
type Clock interface {
	// Now returns the current tick count. It must never decrease.
	Now() Instant
	// Duration converts a number of ticks to wall time, for parking.
	Duration(ticks uint64) time.Duration
}

// SystemClock is a [Clock] backed by the Go runtime's monotonic clock.
type SystemClock struct {
	anchor time.Time
	tick   time.Duration
}

// NewSystemClock returns a clock that counts ticks of the given length since
// it was created. A non-positive tick defaults to one microsecond.
func NewSystemClock(tick time.Duration) *SystemClock {
	if tick <= 0 {
		tick = time.Microsecond
	}
	return &SystemClock{anchor: time.Now(), tick: tick}
}

// Now implements [Clock].
func (c *SystemClock) Now() Instant {
	ticks, err := safecast.Conv[uint64](int64(time.Since(c.anchor) / c.tick))
	if err != nil {
		return 0
	}
	return Instant(ticks)
}

// Duration implements [Clock], saturating instead of overflowing.
func (c *SystemClock) Duration(ticks uint64) time.Duration {
	n, err := safecast.Conv[int64](ticks)
	if err != nil || n > math.MaxInt64/int64(c.tick) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(n) * c.tick
}

// Tick returns the length of one tick.
func (c *SystemClock) Tick() time.Duration { return c.tick }

// ManualClock is a [Clock] that only moves when told to, for tests and
// virtual-time simulation. It is safe for concurrent use.
type ManualClock struct {
	now atomic.Uint64
}

// NewManualClock returns a clock reading start.
func NewManualClock(start Instant) *ManualClock {
	c := &ManualClock{}
	c.now.Store(uint64(start))
	return c
}

// Now implements [Clock].
func (c *ManualClock) Now() Instant { return Instant(c.now.Load()) }

// Duration implements [Clock]. Virtual ticks take no wall time.
func (c *ManualClock) Duration(uint64) time.Duration { return 0 }

// Set moves the clock to t, ignoring attempts to move it backwards.
func (c *ManualClock) Set(t Instant) {
	for {
		cur := c.now.Load()
		if uint64(t) <= cur || c.now.CompareAndSwap(cur, uint64(t)) {
			return
		}
	}
}

// Advance moves the clock forward by ticks, saturating below [Never].
func (c *ManualClock) Advance(ticks uint64) Instant {
	for {
		cur := c.now.Load()
		next := cur + ticks
		if next < cur || next == uint64(Never) {
			next = uint64(Never) - 1
		}
		if c.now.CompareAndSwap(cur, next) {
			return Instant(next)
		}
	}
}
