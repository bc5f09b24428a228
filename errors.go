package executor

import (
	"errors"

	"github.com/joeycumines/logiface"
)

var (
	// ErrAlreadySpawned is returned when spawning onto a storage that still
	// holds a computation.
	ErrAlreadySpawned = errors.New("executor: task already spawned")

	// ErrPoolExhausted is returned when every slot of a [TaskPool] is in use.
	ErrPoolExhausted = errors.New("executor: task pool exhausted")

	// ErrOutOfMemory is returned by a bounded [Allocator] that cannot satisfy
	// a request.
	ErrOutOfMemory = errors.New("executor: out of memory")

	// ErrExecutorRunning is returned when [Executor.Run] is called while the
	// executor is already running on another goroutine.
	ErrExecutorRunning = errors.New("executor: already running")

	// ErrReentrantRun is returned when [Executor.Run] is called from within a
	// poll on the same executor.
	ErrReentrantRun = errors.New("executor: cannot call Run from within a poll")

	// ErrInvalidToken is returned when spawning a zero [SpawnToken], or one
	// that was already committed.
	ErrInvalidToken = errors.New("executor: invalid spawn token")

	// ErrNoExecutor is returned by the zero [Spawner].
	ErrNoExecutor = errors.New("executor: spawner has no executor")
)

// InvariantError is the panic value raised when an internal invariant is
// broken, e.g. a reference count underflow or a double free. These indicate
// misuse of the unsafe surface (copied wakers, storages moved after spawn)
// and are not recoverable.
type InvariantError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	msg := "executor: invariant violated"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *InvariantError) Unwrap() error {
	return e.Cause
}

// invariantViolation logs at critical level, then panics with an
// [*InvariantError].
func invariantViolation(logger *logiface.Logger[logiface.Event], msg string) {
	logger.Crit().
		Str(`invariant`, msg).
		Log(`executor invariant violated`)
	panic(&InvariantError{Message: msg})
}
