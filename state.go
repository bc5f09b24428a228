package executor

import (
	"strings"
	"sync/atomic"
)

const (
	// stateSpawned is set while the storage holds an unfinished computation.
	stateSpawned uint32 = 1 << 0
	// stateRunQueued is set while the task is linked into a ready queue (or
	// is about to be, by whoever set it).
	stateRunQueued uint32 = 1 << 1
)

// taskState is the per-task atomic state word.
//
// State Machine:
//
//	0                     → SPAWNED|RUN_QUEUED   [spawn, CAS]
//	SPAWNED               → SPAWNED|RUN_QUEUED   [wake, CAS]
//	SPAWNED|RUN_QUEUED    → SPAWNED              [poll prologue, AND]
//	SPAWNED(|RUN_QUEUED)  → (RUN_QUEUED)         [complete, AND]
//
// A wake that races with a poll lands after the prologue cleared RUN_QUEUED,
// so it always re-queues the task. A task that completes after such a wake is
// left as RUN_QUEUED only: it is still linked, and the next drain discards the
// entry without polling. Spawning is refused until that happens.
type taskState struct {
	v atomic.Uint32
}

// spawn claims an idle storage. It fails, leaving the state untouched, if the
// storage holds a computation or a stale ready-queue entry.
func (s *taskState) spawn() bool {
	return s.v.CompareAndSwap(0, stateSpawned|stateRunQueued)
}

// markQueued sets RUN_QUEUED, returning true if the caller is now responsible
// for linking the task into its ready queue.
func (s *taskState) markQueued() bool {
	for {
		cur := s.v.Load()
		if cur&stateRunQueued != 0 || cur&stateSpawned == 0 {
			return false
		}
		if s.v.CompareAndSwap(cur, cur|stateRunQueued) {
			return true
		}
	}
}

// beginPoll clears RUN_QUEUED, and reports whether the task still holds a
// computation that may be polled.
func (s *taskState) beginPoll() bool {
	return s.v.And(^stateRunQueued)&stateSpawned != 0
}

// complete clears SPAWNED.
func (s *taskState) complete() {
	s.v.And(^stateSpawned)
}

// abandon resets a claimed storage that was never handed to a ready queue.
func (s *taskState) abandon() {
	s.v.Store(0)
}

func (s *taskState) load() stateBits {
	return stateBits(s.v.Load())
}

// stateBits is a snapshot of a taskState, for diagnostics.
type stateBits uint32

func (b stateBits) spawned() bool   { return uint32(b)&stateSpawned != 0 }
func (b stateBits) runQueued() bool { return uint32(b)&stateRunQueued != 0 }

// String returns a human-readable representation of the state.
func (b stateBits) String() string {
	if b == 0 {
		return "Idle"
	}
	var parts []string
	if b.spawned() {
		parts = append(parts, "Spawned")
	}
	if b.runQueued() {
		parts = append(parts, "RunQueued")
	}
	if rest := uint32(b) &^ (stateSpawned | stateRunQueued); rest != 0 {
		parts = append(parts, "Unknown")
	}
	return strings.Join(parts, "|")
}
