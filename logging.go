package executor

import (
	"errors"
	"time"
)

// spawnWarnRates bounds spawn failure warnings, per failure kind. A full pool
// tends to fail every spawn attempt until it drains.
var spawnWarnRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

// spawnFailureKind categorises a spawn error for logging.
func spawnFailureKind(err error) string {
	switch {
	case errors.Is(err, ErrAlreadySpawned):
		return `already_spawned`
	case errors.Is(err, ErrPoolExhausted):
		return `pool_exhausted`
	case errors.Is(err, ErrOutOfMemory):
		return `out_of_memory`
	case errors.Is(err, ErrInvalidToken):
		return `invalid_token`
	default:
		return `other`
	}
}

// spawnFailed records a token that carried an error.
func (e *Executor) spawnFailed(err error) {
	e.metrics.spawnFailed()
	kind := spawnFailureKind(err)
	if _, ok := e.spawnWarn.Allow(kind); !ok {
		return
	}
	e.logger.Warning().
		Str(`executor`, e.name).
		Str(`kind`, kind).
		Err(err).
		Log(`spawn failed`)
}
