package executor

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemClock(t *testing.T) {
	c := NewSystemClock(0)
	assert.Equal(t, time.Microsecond, c.Tick())

	c = NewSystemClock(time.Millisecond)
	a := c.Now()
	time.Sleep(3 * time.Millisecond)
	b := c.Now()
	assert.GreaterOrEqual(t, b, a+2)

	assert.Equal(t, 5*time.Millisecond, c.Duration(5))
	assert.Equal(t, time.Duration(math.MaxInt64), c.Duration(math.MaxUint64))
	assert.Equal(t, time.Duration(math.MaxInt64), c.Duration(math.MaxInt64/2))
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(10)
	assert.Equal(t, Instant(10), c.Now())
	assert.Zero(t, c.Duration(1000))

	c.Set(5)
	assert.Equal(t, Instant(10), c.Now(), "never moves backwards")
	c.Set(20)
	assert.Equal(t, Instant(20), c.Now())

	assert.Equal(t, Instant(25), c.Advance(5))
	assert.Equal(t, Never-1, c.Advance(math.MaxUint64))
	assert.False(t, c.Now().IsNever())
	assert.True(t, Never.IsNever())
}

func TestClockIdler(t *testing.T) {
	c := NewSystemClock(time.Millisecond)
	idler := &ClockIdler{Clock: c}
	ctx := context.Background()

	// past deadline
	require.NoError(t, idler.Idle(ctx, 0, nil))

	start := time.Now()
	require.NoError(t, idler.Idle(ctx, c.Now()+20, nil))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	wake := make(chan struct{}, 1)
	wake <- struct{}{}
	require.NoError(t, idler.Idle(ctx, Never, wake))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, idler.Idle(cctx, Never, nil), context.Canceled)
}

func TestVirtualIdler(t *testing.T) {
	c := NewManualClock(0)
	idler := &VirtualIdler{Clock: c}
	ctx := context.Background()

	require.NoError(t, idler.Idle(ctx, 100, nil))
	assert.Equal(t, Instant(100), c.Now())

	// a pending wake wins over jumping ahead
	wake := make(chan struct{}, 1)
	wake <- struct{}{}
	require.NoError(t, idler.Idle(ctx, 200, wake))
	assert.Equal(t, Instant(100), c.Now())

	wake <- struct{}{}
	require.NoError(t, idler.Idle(ctx, Never, wake))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, idler.Idle(cctx, Never, wake), context.Canceled)
}
