package executor

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// runQueue is the ready queue: an intrusive lock-free stack threaded through
// TaskHeader.runNext.
//
// Concurrency Model: MPSC (Multiple Producers, Single Consumer)
//   - enqueue: any goroutine, CAS on head, never blocks or allocates
//   - dequeueAll: executor goroutine only, detaches the whole list with one swap
//
// The RUN_QUEUED bit guarantees a task is linked at most once, so the list
// never contains a cycle. Producers only push and the consumer only detaches
// the whole list, so the CAS on head is not exposed to ABA.
type runQueue struct { // betteralign:ignore
	_    cpu.CacheLinePad
	head atomic.Pointer[TaskHeader]
	_    cpu.CacheLinePad
}

// enqueue links h, returning true if the queue was empty before.
//
// The caller must have set RUN_QUEUED on h.
func (q *runQueue) enqueue(h *TaskHeader) bool {
	for {
		prev := q.head.Load()
		h.runNext.Store(prev)
		if q.head.CompareAndSwap(prev, h) {
			return prev == nil
		}
	}
}

// dequeueAll detaches every queued task and calls fn once for each, returning
// the number of tasks handled. Tasks enqueued while fn runs, including those
// handled earlier in this call, remain queued for the next call.
func (q *runQueue) dequeueAll(fn func(h *TaskHeader)) int {
	task := q.head.Swap(nil)
	var n int
	for task != nil {
		// read before fn: a wake during fn may relink task onto the new list
		next := task.runNext.Load()
		task.runNext.Store(nil)
		fn(task)
		task = next
		n++
	}
	return n
}

// isEmpty may report false negatives under concurrent enqueue.
func (q *runQueue) isEmpty() bool {
	return q.head.Load() == nil
}
