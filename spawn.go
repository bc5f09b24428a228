package executor

// SpawnToken is the deferred result of a spawn: either a claimed,
// initialized task waiting to be handed to an executor, or the reason the
// spawn failed. It must be passed to [Spawner.Spawn] exactly once.
type SpawnToken struct {
	task TaskRef
	err  error
}

// Err returns the deferred failure, if any.
func (t SpawnToken) Err() error { return t.err }

// Task returns the claimed task, or a zero TaskRef if the spawn failed.
func (t SpawnToken) Task() TaskRef { return t.task }

func spawnFailed(err error) SpawnToken { return SpawnToken{err: err} }

// Spawner commits spawn tokens to an executor's ready queue. It is a small
// value, safe to copy and to use from any goroutine.
type Spawner struct {
	executor *Executor
}

// Executor returns the target executor.
func (s Spawner) Executor() *Executor { return s.executor }

// Spawn hands the token's task to the executor, returning the token's
// deferred error if the spawn failed. A token is committed at most once:
// committing it again returns [ErrInvalidToken]. The zero Spawner returns
// [ErrNoExecutor], leaving the token uncommitted.
func (s Spawner) Spawn(token SpawnToken) error {
	e := s.executor
	if e == nil {
		return ErrNoExecutor
	}
	if token.err != nil {
		e.spawnFailed(token.err)
		return token.err
	}
	h := token.task.ptr
	if h == nil {
		e.spawnFailed(ErrInvalidToken)
		return ErrInvalidToken
	}
	if !h.executor.CompareAndSwap(nil, e) {
		e.spawnFailed(ErrInvalidToken)
		return ErrInvalidToken
	}
	e.metrics.spawned()
	e.logger.Debug().
		Str(`executor`, e.name).
		Stringer(`task`, token.task).
		Log(`task spawned`)
	// RUN_QUEUED was set by the claim
	e.enqueue(h)
	return nil
}

// MustSpawn is like Spawn, but panics on failure.
func (s Spawner) MustSpawn(token SpawnToken) {
	if err := s.Spawn(token); err != nil {
		panic(err)
	}
}
