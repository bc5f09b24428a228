package executor

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Poll is the result of one step of a computation.
type Poll uint8

const (
	// Pending means the computation is not finished, and has arranged (via a
	// waker or timer) to be polled again.
	Pending Poll = iota
	// Ready means the computation has finished.
	Ready
)

// String returns a human-readable representation of the poll result.
func (p Poll) String() string {
	switch p {
	case Pending:
		return "Pending"
	case Ready:
		return "Ready"
	default:
		return fmt.Sprintf("Poll(%d)", uint8(p))
	}
}

// Future is a resumable computation, driven by repeated calls to Poll from
// the executor goroutine. Poll must not block.
type Future interface {
	Poll(cx *Context) Poll
}

// FutureFunc adapts a function to [Future].
type FutureFunc func(cx *Context) Poll

// Poll implements [Future].
func (f FutureFunc) Poll(cx *Context) Poll { return f(cx) }

// TaskHeader is the task control block shared by every storage strategy.
//
// Fields are grouped by who may touch them: the state word and ready-queue
// link are atomic and may be used from any goroutine, the remainder are
// written by the spawner while it holds the claim, and afterwards only by the
// goroutine polling the task.
type TaskHeader struct { // betteralign:ignore
	state    taskState
	runNext  atomic.Pointer[TaskHeader]
	executor atomic.Pointer[Executor]

	// erased storage: data points at the concrete storage value, poll is
	// valid iff SPAWNED is set
	data   unsafe.Pointer
	poll   func(TaskRef)
	vtable *RawWakerVTable

	// allocated storage only
	refs *refCount

	// timer queue (executor goroutine only)
	expiresAt Instant
	timerPrev *TaskHeader
	timerNext *TaskHeader
	timerLink bool
}

// prepare resets the erased fields of a freshly claimed storage.
func (h *TaskHeader) prepare(data unsafe.Pointer, poll func(TaskRef), vtable *RawWakerVTable) {
	h.data = data
	h.poll = poll
	h.vtable = vtable
	h.executor.Store(nil)
}

// finish is called by the erased poll once the computation has been
// destroyed. It invalidates the poll pointer, which tells the executor to
// clear SPAWNED once it is done with the header.
func (h *TaskHeader) finish() {
	if e := h.executor.Load(); e != nil {
		e.unlinkTimer(h)
	}
	h.expiresAt = Never
	h.poll = nil
}

// TaskRef is an opaque reference to a task control block.
type TaskRef struct {
	ptr *TaskHeader
}

// IsZero reports whether t refers to no task.
func (t TaskRef) IsZero() bool { return t.ptr == nil }

// Spawned reports whether the task currently holds an unfinished computation.
func (t TaskRef) Spawned() bool { return t.ptr != nil && t.ptr.state.load().spawned() }

// RunQueued reports whether the task is currently pending a poll.
func (t TaskRef) RunQueued() bool { return t.ptr != nil && t.ptr.state.load().runQueued() }

// Executor returns the executor the task was last spawned on, or nil.
func (t TaskRef) Executor() *Executor {
	if t.ptr == nil {
		return nil
	}
	return t.ptr.executor.Load()
}

// String implements fmt.Stringer.
func (t TaskRef) String() string {
	if t.ptr == nil {
		return "TaskRef(nil)"
	}
	return fmt.Sprintf("TaskRef(%p, %s)", t.ptr, t.ptr.state.load())
}

// Context is passed to [Future.Poll]. It is only valid for the duration of
// that call.
type Context struct {
	waker *Waker
	task  TaskRef
	exec  *Executor
}

// Waker returns the waker of the task being polled. It is borrowed: use
// [Waker.Clone] to keep one beyond the current poll.
func (cx *Context) Waker() *Waker { return cx.waker }

// Task returns the task being polled.
func (cx *Context) Task() TaskRef { return cx.task }

// Executor returns the executor polling the task.
func (cx *Context) Executor() *Executor { return cx.exec }

// Spawner returns a spawner for the executor polling the task.
func (cx *Context) Spawner() Spawner { return cx.exec.Spawner() }

// Now reads the executor's clock.
func (cx *Context) Now() Instant { return cx.exec.clock.Now() }

// WakeAt arranges for the current task to be woken once the clock reaches at.
// Timers registered during one poll coalesce to the earliest. It returns false
// if the executor was built without integrated timers.
func (cx *Context) WakeAt(at Instant) bool {
	if cx.exec.timers == nil {
		return false
	}
	if h := cx.task.ptr; at < h.expiresAt {
		h.expiresAt = at
	}
	return true
}

// ScheduleWake arranges for the task behind w to be woken once the clock
// reaches at. The waker must belong to a task of this executor. It returns
// false if that is not the case, or if integrated timers are disabled.
func (cx *Context) ScheduleWake(at Instant, w *Waker) bool {
	t, ok := TaskFromWaker(w)
	if !ok || t.ptr.executor.Load() != cx.exec {
		return false
	}
	if t.ptr == cx.task.ptr {
		return cx.WakeAt(at)
	}
	return cx.exec.scheduleWake(t.ptr, at)
}

func newContext(e *Executor, t TaskRef, w *Waker) Context {
	return Context{waker: w, task: t, exec: e}
}
