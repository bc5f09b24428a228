package executor

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Allocator accounts for the memory backing allocated task storage.
//
// Storage itself is always obtained from the Go heap; an Allocator decides
// whether a spawn may proceed, and is told when the storage is released.
type Allocator interface {
	// Allocate reserves size bytes, or returns an error (typically wrapping
	// [ErrOutOfMemory]) if it cannot.
	Allocate(size uintptr) error
	// Release returns size bytes previously reserved.
	Release(size uintptr)
}

type unboundedAllocator struct{}

func (unboundedAllocator) Allocate(uintptr) error { return nil }
func (unboundedAllocator) Release(uintptr)        {}

// HeapAllocator is a bounded [Allocator] with a fixed byte capacity, modelling
// a static heap region. It is safe for concurrent use.
type HeapAllocator struct {
	capacity uintptr
	used     atomic.Uintptr
}

// NewHeapAllocator returns an allocator with capacity bytes.
func NewHeapAllocator(capacity uintptr) *HeapAllocator {
	return &HeapAllocator{capacity: capacity}
}

// Allocate implements [Allocator].
func (a *HeapAllocator) Allocate(size uintptr) error {
	for {
		used := a.used.Load()
		if size > a.capacity-used {
			return fmt.Errorf("%w: requested %d bytes, %d of %d available", ErrOutOfMemory, size, a.capacity-used, a.capacity)
		}
		if a.used.CompareAndSwap(used, used+size) {
			return nil
		}
	}
}

// Release implements [Allocator].
func (a *HeapAllocator) Release(size uintptr) {
	for {
		used := a.used.Load()
		if size > used {
			invariantViolation(nil, "heap allocator released more than it allocated")
		}
		if a.used.CompareAndSwap(used, used-size) {
			return
		}
	}
}

// Used returns the number of bytes currently reserved.
func (a *HeapAllocator) Used() uintptr { return a.used.Load() }

// Available returns the number of bytes that may still be reserved.
func (a *HeapAllocator) Available() uintptr { return a.capacity - a.used.Load() }

// Capacity returns the total number of bytes.
func (a *HeapAllocator) Capacity() uintptr { return a.capacity }

// refCount is the reference count of an allocated task.
//
// References are held by ready-queue entries (one per queued insertion) and
// by outstanding wakers. The storage is released exactly once, when the
// count reaches zero and the computation has completed.
type refCount struct {
	n         atomic.Int32
	freed     atomic.Bool
	allocator Allocator
	size      uintptr
	// free drops the computation, for the garbage collector
	free func()
}

func (r *refCount) acquire() {
	if r.n.Add(1) <= 1 {
		invariantViolation(nil, "reference acquired on released task storage")
	}
}

func (r *refCount) release(h *TaskHeader) {
	n := r.n.Add(-1)
	if n > 0 {
		return
	}
	e := h.executor.Load()
	if n < 0 {
		invariantViolation(e.log(), "reference count underflow")
	}
	if h.state.load().spawned() {
		// nothing can wake or poll it again
		e.log().Warning().
			Str(`executor`, e.Name()).
			Stringer(`task`, TaskRef{ptr: h}).
			Log(`allocated task orphaned`)
		e.stats().orphaned()
		return
	}
	if !r.freed.CompareAndSwap(false, true) {
		invariantViolation(e.log(), "task storage freed twice")
	}
	if r.free != nil {
		r.free()
	}
	r.allocator.Release(r.size)
	e.log().Debug().
		Str(`executor`, e.Name()).
		Uint64(`size`, uint64(r.size)).
		Log(`allocated task freed`)
}

// AllocTaskStorage is task storage obtained per spawn by [SpawnAlloc].
type AllocTaskStorage[F Future] struct {
	raw    TaskHeader
	refs   refCount
	future F
}

// SpawnAlloc allocates storage for one computation of type F, charging the
// configured [Allocator], and constructs the computation in it with
// newFuture. If the allocator refuses, newFuture is not called and the token
// carries the allocator's error.
//
// The storage is released once the computation has completed and every
// waker referring to it has been dropped.
func SpawnAlloc[F Future](newFuture func() F, opts ...AllocOption) SpawnToken {
	cfg, err := resolveAllocOptions(opts)
	if err != nil {
		return spawnFailed(err)
	}
	size := unsafe.Sizeof(AllocTaskStorage[F]{})
	if err := cfg.allocator.Allocate(size); err != nil {
		return spawnFailed(fmt.Errorf("executor: allocate task storage: %w", err))
	}

	s := &AllocTaskStorage[F]{}
	s.refs.allocator = cfg.allocator
	s.refs.size = size
	s.refs.free = func() {
		var zero F
		s.future = zero
	}
	// owned by the ready-queue entry created on commit
	s.refs.n.Store(1)
	s.raw.refs = &s.refs
	s.raw.state.spawn()

	ok := false
	defer func() {
		if !ok {
			s.raw.state.abandon()
			cfg.allocator.Release(size)
		}
	}()
	s.raw.prepare(unsafe.Pointer(s), pollAlloc[F], &allocWakerVTable)
	s.raw.expiresAt = Never
	s.future = newFuture()
	ok = true
	return SpawnToken{task: TaskRef{ptr: &s.raw}}
}

// RefCount returns the current reference count of an allocated task, or -1
// for other storage strategies.
func RefCount(t TaskRef) int {
	if t.ptr == nil || t.ptr.refs == nil {
		return -1
	}
	return int(t.ptr.refs.n.Load())
}

// pollAlloc is the erased poll of AllocTaskStorage[F].
func pollAlloc[F Future](t TaskRef) {
	s := (*AllocTaskStorage[F])(t.ptr.data)
	e := t.ptr.executor.Load()
	w := WakerFromTask(t)
	cx := newContext(e, t, &w)
	if s.future.Poll(&cx) == Ready {
		var zero F
		s.future = zero
		t.ptr.finish()
	}
	w.Drop()
}
