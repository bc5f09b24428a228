package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnAlloc_FreedExactlyOnce(t *testing.T) {
	e, _ := newTestExecutor(t)
	alloc := &countingAllocator{}

	var (
		held  [3]Waker
		ready bool
	)
	token := SpawnAlloc(func() FutureFunc {
		return func(cx *Context) Poll {
			if ready {
				return Ready
			}
			for i := range held {
				held[i] = cx.Waker().Clone()
			}
			return Pending
		}
	}, WithAllocator(alloc))
	require.NoError(t, token.Err())
	task := token.Task()
	assert.Equal(t, int32(1), alloc.allocs.Load())
	assert.Equal(t, 1, RefCount(task))

	require.NoError(t, e.Spawner().Spawn(token))
	e.Poll()
	// only the held wakers remain
	assert.Equal(t, 3, RefCount(task))

	ready = true
	held[0].Wake()
	assert.True(t, held[0].IsZero())
	assert.Equal(t, 3, RefCount(task), "the waker's reference moved to the queue entry")

	e.Poll()
	assert.False(t, task.Spawned())
	assert.Equal(t, 2, RefCount(task))
	assert.Zero(t, alloc.releases.Load(), "wakers still outstanding")

	held[1].Drop()
	assert.Zero(t, alloc.releases.Load())
	held[2].Drop()
	assert.Equal(t, int32(1), alloc.releases.Load())
	assert.Zero(t, alloc.bytes.Load())
	assert.Equal(t, 0, RefCount(task))

	// dropping a consumed waker is a no-op
	held[0].Drop()
	held[2].Drop()
	assert.Equal(t, int32(1), alloc.releases.Load())
}

func TestSpawnAlloc_FreedAfterStaleEntry(t *testing.T) {
	e, _ := newTestExecutor(t)
	alloc := &countingAllocator{}
	var polls int

	token := SpawnAlloc(func() FutureFunc {
		return func(cx *Context) Poll {
			polls++
			cx.Waker().WakeByRef()
			return Ready
		}
	}, WithAllocator(alloc))
	task := token.Task()
	require.NoError(t, e.Spawner().Spawn(token))

	e.Poll()
	assert.Equal(t, 1, polls)
	assert.Equal(t, 1, RefCount(task), "held by the stale queue entry")
	assert.Zero(t, alloc.releases.Load())

	e.Poll()
	assert.Equal(t, 1, polls)
	assert.Equal(t, int32(1), alloc.releases.Load())
}

func TestSpawnAlloc_TimerHoldsReference(t *testing.T) {
	e, clock := newTestExecutor(t, WithMetrics(true))
	alloc := &countingAllocator{}
	var polls int

	token := SpawnAlloc(func() FutureFunc {
		return func(cx *Context) Poll {
			polls++
			if polls == 1 {
				require.True(t, cx.WakeAt(50))
				return Pending
			}
			return Ready
		}
	}, WithAllocator(alloc))
	task := token.Task()
	require.NoError(t, e.Spawner().Spawn(token))

	assert.Equal(t, Instant(50), e.Poll())
	assert.Equal(t, 1, RefCount(task))
	assert.Zero(t, e.Metrics().Orphans)

	clock.Set(50)
	assert.Equal(t, Instant(50), e.Poll(), "expired timer is queued")
	assert.Equal(t, 1, RefCount(task))
	assert.Equal(t, uint64(1), e.Metrics().TimerFires)

	assert.Equal(t, Never, e.Poll())
	assert.Equal(t, 2, polls)
	assert.Equal(t, int32(1), alloc.releases.Load())
}

func TestSpawnAlloc_Orphaned(t *testing.T) {
	var logs logBuffer
	e, _ := newTestExecutor(t, WithMetrics(true), WithLogger(newTestLogger(&logs)), WithName(`orphans`))
	alloc := &countingAllocator{}

	token := SpawnAlloc(func() FutureFunc {
		// pending, with no way to be woken
		return func(*Context) Poll { return Pending }
	}, WithAllocator(alloc))
	task := token.Task()
	require.NoError(t, e.Spawner().Spawn(token))
	e.Poll()

	assert.True(t, task.Spawned())
	assert.Equal(t, 0, RefCount(task))
	assert.Zero(t, alloc.releases.Load())
	assert.Equal(t, uint64(1), e.Metrics().Orphans)
	assert.Contains(t, logs.String(), `allocated task orphaned`)
	assert.Contains(t, logs.String(), `"executor":"orphans"`)
}

func TestSpawnAlloc_HeapAllocator(t *testing.T) {
	e, _ := newTestExecutor(t)
	ready := false
	newFuture := func() FutureFunc {
		return func(cx *Context) Poll {
			if ready {
				return Ready
			}
			cx.Waker().WakeByRef()
			return Pending
		}
	}

	size := uint64(sizeOfAlloc[FutureFunc]())
	heap := NewHeapAllocator(uintptr(size + size/2))
	assert.Equal(t, uintptr(size+size/2), heap.Capacity())

	first := SpawnAlloc(newFuture, WithAllocator(heap))
	require.NoError(t, first.Err())
	assert.Equal(t, uintptr(size), heap.Used())

	constructed := false
	second := SpawnAlloc(func() FutureFunc {
		constructed = true
		return nil
	}, WithAllocator(heap))
	require.ErrorIs(t, second.Err(), ErrOutOfMemory)
	assert.False(t, constructed)
	require.ErrorIs(t, e.Spawner().Spawn(second), ErrOutOfMemory)

	require.NoError(t, e.Spawner().Spawn(first))
	e.Poll()
	assert.Equal(t, uintptr(size), heap.Used())
	ready = true
	e.Poll()
	assert.Zero(t, heap.Used())
	assert.Equal(t, heap.Capacity(), heap.Available())

	require.NoError(t, SpawnAlloc(newFuture, WithAllocator(heap)).Err())
}

func TestSpawnAlloc_NilAllocator(t *testing.T) {
	token := SpawnAlloc(func() FutureFunc { return nil }, WithAllocator(nil))
	assert.Error(t, token.Err())
	assert.True(t, token.Task().IsZero())
}

func TestRefCount_NonAllocated(t *testing.T) {
	var storage TaskStorage[FutureFunc]
	assert.Equal(t, -1, RefCount(storage.Ref()))
	assert.Equal(t, -1, RefCount(TaskRef{}))
}

func sizeOfAlloc[F Future]() uintptr {
	var token SpawnToken
	alloc := &countingAllocator{}
	token = SpawnAlloc(func() F {
		var zero F
		return zero
	}, WithAllocator(alloc))
	if token.Err() != nil {
		panic(token.Err())
	}
	return uintptr(alloc.bytes.Load())
}

func TestSpawnAlloc_TokenCommittedOnce(t *testing.T) {
	e, _ := newTestExecutor(t)
	alloc := &countingAllocator{}

	var polls int
	token := SpawnAlloc(func() FutureFunc {
		return func(*Context) Poll {
			polls++
			return Ready
		}
	}, WithAllocator(alloc))
	task := token.Task()

	spawner := e.Spawner()
	require.NoError(t, spawner.Spawn(token))
	assert.ErrorIs(t, spawner.Spawn(token), ErrInvalidToken)
	assert.Equal(t, 1, RefCount(task), "a refused commit takes no reference")

	e.Poll()
	assert.Equal(t, 1, polls)
	assert.False(t, task.Spawned())
	assert.Equal(t, int32(1), alloc.releases.Load())
	assert.Zero(t, alloc.bytes.Load())
	assert.Equal(t, uint64(0), e.Metrics().Orphans)
}
