package executor

import (
	"context"
	"time"
)

// Idler is the hook [Executor.Run] calls between cycles, to wait for work.
//
// Idle should return once the clock reaches deadline, when wake receives, or
// when ctx is done (returning its error). Returning early is always allowed:
// the caller simply polls again. A deadline of [Never] means no timer is
// pending.
type Idler interface {
	Idle(ctx context.Context, deadline Instant, wake <-chan struct{}) error
}

// IdlerFunc adapts a function to [Idler].
type IdlerFunc func(ctx context.Context, deadline Instant, wake <-chan struct{}) error

// Idle implements [Idler].
func (f IdlerFunc) Idle(ctx context.Context, deadline Instant, wake <-chan struct{}) error {
	return f(ctx, deadline, wake)
}

// ClockIdler parks the goroutine on a runtime timer until the deadline,
// converting ticks with Clock.Duration. It is the default [Idler].
type ClockIdler struct {
	Clock Clock
}

// Idle implements [Idler].
func (x *ClockIdler) Idle(ctx context.Context, deadline Instant, wake <-chan struct{}) error {
	now := x.Clock.Now()
	if deadline <= now {
		return nil
	}
	var expired <-chan time.Time
	if deadline != Never {
		t := time.NewTimer(x.Clock.Duration(uint64(deadline - now)))
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
	case <-expired:
	}
	return nil
}

// VirtualIdler advances a [ManualClock] straight to the deadline instead of
// sleeping, unless a wake is already pending. With no deadline it blocks
// until woken.
type VirtualIdler struct {
	Clock *ManualClock
}

// Idle implements [Idler].
func (x *VirtualIdler) Idle(ctx context.Context, deadline Instant, wake <-chan struct{}) error {
	if deadline <= x.Clock.Now() {
		return nil
	}
	if deadline == Never {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
			return nil
		}
	}
	select {
	case <-wake:
	default:
		x.Clock.Set(deadline)
	}
	return nil
}
