package executor

import (
	"unsafe"
)

// RawWakerVTable is the operation table of a [RawWaker].
//
// Each function receives the data pointer of the waker it was called on.
// Clone must return a waker that is independently owned. Wake and Drop
// consume the waker's ownership; WakeByRef does not.
type RawWakerVTable struct {
	Clone     func(data unsafe.Pointer) RawWaker
	Wake      func(data unsafe.Pointer)
	WakeByRef func(data unsafe.Pointer)
	Drop      func(data unsafe.Pointer)

	// task marks tables whose data pointer is a *TaskHeader
	task bool
}

// RawWaker is a type-erased (data pointer, operation table) pair.
type RawWaker struct {
	Data   unsafe.Pointer
	VTable *RawWakerVTable
}

// Waker is an owned handle that marks a task ready when invoked.
//
// A Waker must be used as a value with explicit ownership: [Waker.Clone]
// produces a new owned Waker, while [Waker.Wake] and [Waker.Drop] consume the
// receiver, leaving it zero. Copying a Waker by assignment does not create a
// new reference, so exactly one of the copies may be consumed.
type Waker struct {
	raw RawWaker
}

// NewWaker takes ownership of raw.
func NewWaker(raw RawWaker) Waker { return Waker{raw: raw} }

// Raw returns the underlying pair, without affecting ownership.
func (w *Waker) Raw() RawWaker { return w.raw }

// IsZero reports whether w holds no reference (never set, or consumed).
func (w *Waker) IsZero() bool { return w == nil || w.raw.VTable == nil }

// Clone returns a new, independently owned waker for the same task.
func (w *Waker) Clone() Waker {
	if w.IsZero() {
		return Waker{}
	}
	return Waker{raw: w.raw.VTable.Clone(w.raw.Data)}
}

// Wake wakes the task, consuming w.
func (w *Waker) Wake() {
	if w.IsZero() {
		return
	}
	raw := w.raw
	w.raw = RawWaker{}
	raw.VTable.Wake(raw.Data)
}

// WakeByRef wakes the task without consuming w.
func (w *Waker) WakeByRef() {
	if w.IsZero() {
		return
	}
	w.raw.VTable.WakeByRef(w.raw.Data)
}

// Drop releases w without waking.
func (w *Waker) Drop() {
	if w.IsZero() {
		return
	}
	raw := w.raw
	w.raw = RawWaker{}
	raw.VTable.Drop(raw.Data)
}

// WillWake reports whether w and other wake the same task in the same way.
func (w *Waker) WillWake(other *Waker) bool {
	if w.IsZero() || other.IsZero() {
		return false
	}
	return w.raw.Data == other.raw.Data && w.raw.VTable == other.raw.VTable
}

// TaskFromWaker returns the task behind an executor-issued waker.
func TaskFromWaker(w *Waker) (TaskRef, bool) {
	if w.IsZero() || !w.raw.VTable.task {
		return TaskRef{}, false
	}
	return TaskRef{ptr: (*TaskHeader)(w.raw.Data)}, true
}

// WakerFromTask returns a new owned waker for t, taking a reference where the
// storage strategy counts them.
func WakerFromTask(t TaskRef) Waker {
	if t.ptr == nil || t.ptr.vtable == nil {
		return Waker{}
	}
	return Waker{raw: t.ptr.vtable.Clone(unsafe.Pointer(t.ptr))}
}

// WakeTask marks t ready, inserting it into its executor's ready queue unless
// it is already queued or has completed. It is safe to call from any
// goroutine, and never blocks.
func WakeTask(t TaskRef) {
	if t.ptr != nil {
		wakeTask(t.ptr)
	}
}

// wakeTask reports whether the task was inserted by this call.
func wakeTask(h *TaskHeader) bool {
	if !h.state.markQueued() {
		return false
	}
	e := h.executor.Load()
	if e == nil {
		invariantViolation(nil, "queued task has no executor")
	}
	e.enqueue(h)
	return true
}

var (
	// staticWakerVTable serves singleton and pool storage, whose lifetime is
	// not tied to wakers.
	staticWakerVTable RawWakerVTable

	// allocWakerVTable serves allocated storage, counting references.
	allocWakerVTable RawWakerVTable
)

func init() {
	staticWakerVTable = RawWakerVTable{
		Clone: func(data unsafe.Pointer) RawWaker {
			return RawWaker{Data: data, VTable: &staticWakerVTable}
		},
		Wake: func(data unsafe.Pointer) {
			wakeTask((*TaskHeader)(data))
		},
		WakeByRef: func(data unsafe.Pointer) {
			wakeTask((*TaskHeader)(data))
		},
		Drop: func(unsafe.Pointer) {},
		task: true,
	}

	allocWakerVTable = RawWakerVTable{
		Clone: func(data unsafe.Pointer) RawWaker {
			(*TaskHeader)(data).refs.acquire()
			return RawWaker{Data: data, VTable: &allocWakerVTable}
		},
		Wake: func(data unsafe.Pointer) {
			h := (*TaskHeader)(data)
			// our reference becomes the queue entry's
			if !wakeTask(h) {
				h.refs.release(h)
			}
		},
		WakeByRef: func(data unsafe.Pointer) {
			h := (*TaskHeader)(data)
			h.refs.acquire()
			if !wakeTask(h) {
				h.refs.release(h)
			}
		},
		Drop: func(data unsafe.Pointer) {
			h := (*TaskHeader)(data)
			h.refs.release(h)
		},
		task: true,
	}
}
