package executor

// TaskPool is a fixed-capacity set of [TaskStorage] slots of the same
// computation type, allocated once. A slot is claimed at spawn and becomes
// free again when its task completes.
//
// A TaskPool must not be copied after first use.
type TaskPool[F Future] struct {
	slots []TaskStorage[F]
}

// NewTaskPool allocates a pool of size slots. It panics if size is not
// positive.
func NewTaskPool[F Future](size int) *TaskPool[F] {
	if size <= 0 {
		panic("executor: task pool size must be positive")
	}
	return &TaskPool[F]{slots: make([]TaskStorage[F], size)}
}

// Spawn claims the first free slot and constructs a computation in it with
// newFuture. If every slot is in use, newFuture is not called and the token
// carries [ErrPoolExhausted].
func (p *TaskPool[F]) Spawn(newFuture func() F) SpawnToken {
	for i := range p.slots {
		s := &p.slots[i]
		if s.raw.state.spawn() {
			return s.spawnClaimed(newFuture)
		}
	}
	return spawnFailed(ErrPoolExhausted)
}

// Len returns the number of slots.
func (p *TaskPool[F]) Len() int { return len(p.slots) }

// Available returns the number of slots that could currently be claimed.
// The result is a snapshot and may be stale by the time it is used.
func (p *TaskPool[F]) Available() int {
	var n int
	for i := range p.slots {
		if p.slots[i].raw.state.load() == 0 {
			n++
		}
	}
	return n
}

// Slot returns the task reference of slot i.
func (p *TaskPool[F]) Slot(i int) TaskRef { return p.slots[i].Ref() }
