package sim

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	executor "github.com/joeycumines/go-executor"
)

// worker sleeps steps times on the executor's timer, then reports done.
type worker struct {
	steps int
	sleep uint64
	timer *executor.Timer
	done  func()
}

func (x *worker) Poll(cx *executor.Context) executor.Poll {
	for {
		if x.timer != nil {
			if x.timer.Poll(cx) == executor.Pending {
				return executor.Pending
			}
			x.timer = nil
		}
		if x.steps == 0 {
			x.done()
			return executor.Ready
		}
		x.steps--
		x.timer = executor.TimerAfter(cx, x.sleep)
	}
}

// supervisor keeps spawning pool and allocated workers until each quota is
// met, backing off whenever the pool or heap is full.
type supervisor struct {
	run       *run
	pool      *executor.TaskPool[*worker]
	heap      *executor.HeapAllocator
	poolLeft  int
	allocLeft int
	timer     *executor.Timer
}

func (x *supervisor) Poll(cx *executor.Context) executor.Poll {
	for {
		if x.timer != nil {
			if x.timer.Poll(cx) == executor.Pending {
				return executor.Pending
			}
			x.timer = nil
		}
		x.spawn(cx.Spawner())
		if x.poolLeft == 0 && x.allocLeft == 0 {
			x.run.finished()
			return executor.Ready
		}
		x.timer = executor.TimerAfter(cx, x.run.scenario.Worker.SleepTicks+1)
	}
}

func (x *supervisor) spawn(spawner executor.Spawner) {
	for x.poolLeft > 0 {
		if err := spawner.Spawn(x.pool.Spawn(x.run.newWorker)); err != nil {
			x.run.spawnFailed(err)
			break
		}
		x.poolLeft--
		x.run.spawned++
	}
	for x.allocLeft > 0 {
		if err := spawner.Spawn(executor.SpawnAlloc(x.run.newWorker, executor.WithAllocator(x.heap))); err != nil {
			x.run.spawnFailed(err)
			if errors.Is(err, executor.ErrOutOfMemory) && x.heap.Used() == 0 {
				x.run.fail(fmt.Errorf("sim: heap cannot hold a single task: %w", err))
			}
			break
		}
		x.allocLeft--
		x.run.spawned++
	}
}

// irqLine stands in for an interrupt line: producers raise it from any
// goroutine, and the handler task registers the waker to be woken by it.
type irqLine struct {
	mu      sync.Mutex
	waker   executor.Waker
	pending atomic.Int64
}

func (x *irqLine) raise() {
	x.pending.Add(1)
	x.mu.Lock()
	w := x.waker
	x.waker = executor.Waker{}
	x.mu.Unlock()
	w.Wake()
}

func (x *irqLine) register(w *executor.Waker) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.waker.WillWake(w) {
		return
	}
	x.waker.Drop()
	x.waker = w.Clone()
}

func (x *irqLine) take() int64 { return x.pending.Swap(0) }

func (x *irqLine) close() {
	x.mu.Lock()
	w := x.waker
	x.waker = executor.Waker{}
	x.mu.Unlock()
	w.Drop()
}

// irqHandler counts interrupts until every producer event has been seen.
type irqHandler struct {
	run  *run
	line *irqLine
	want int64
}

func (x *irqHandler) Poll(cx *executor.Context) executor.Poll {
	for {
		x.run.interrupts += x.line.take()
		if x.run.interrupts >= x.want {
			x.line.close()
			x.run.finished()
			return executor.Ready
		}
		x.line.register(cx.Waker())
		// a raise between take and register has no waker to wake
		if x.line.pending.Load() == 0 {
			return executor.Pending
		}
	}
}

func (r *run) spawnFailed(err error) {
	switch {
	case errors.Is(err, executor.ErrPoolExhausted):
		r.poolExhausted++
	case errors.Is(err, executor.ErrOutOfMemory):
		r.outOfMemory++
	default:
		r.otherFailures++
	}
}
