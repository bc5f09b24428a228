package executor

import (
	"unsafe"
)

// TaskStorage holds one task of computation type F for the lifetime of the
// program: declare it as a package-level variable, or otherwise keep it
// reachable and at a fixed address. It may be spawned again once its
// previous computation has completed.
//
// A TaskStorage must not be copied after first use.
type TaskStorage[F Future] struct {
	raw    TaskHeader
	future F
}

// Spawn claims the storage and constructs a computation in place with
// newFuture. If the storage still holds a computation, newFuture is not
// called and the token carries [ErrAlreadySpawned].
func (s *TaskStorage[F]) Spawn(newFuture func() F) SpawnToken {
	if !s.raw.state.spawn() {
		return spawnFailed(ErrAlreadySpawned)
	}
	return s.spawnClaimed(newFuture)
}

// spawnClaimed initializes a storage whose state was already claimed.
func (s *TaskStorage[F]) spawnClaimed(newFuture func() F) SpawnToken {
	ok := false
	defer func() {
		if !ok {
			s.raw.poll = nil
			s.raw.state.abandon()
		}
	}()
	s.raw.prepare(unsafe.Pointer(s), pollStorage[F], &staticWakerVTable)
	s.raw.expiresAt = Never
	s.future = newFuture()
	ok = true
	return SpawnToken{task: TaskRef{ptr: &s.raw}}
}

// Ref returns the task reference of the storage.
func (s *TaskStorage[F]) Ref() TaskRef { return TaskRef{ptr: &s.raw} }

// pollStorage is the erased poll of TaskStorage[F].
func pollStorage[F Future](t TaskRef) {
	s := (*TaskStorage[F])(t.ptr.data)
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
