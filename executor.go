package executor

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Executor drives tasks: it owns one ready queue, an optional timer queue,
// and the loop that polls whatever is ready.
//
// Thread Safety:
//   - Spawner.Spawn, WakeTask and every Waker method may be called from any
//     goroutine, including concurrently with Poll.
//   - Poll and Run must only be driven by one goroutine at a time.
//   - Futures are only ever polled on the goroutine driving the executor.
type Executor struct { // betteralign:ignore
	queue runQueue

	clock  Clock
	idler  Idler
	pender func()
	wakeCh chan struct{}

	// nil unless integrated timers are enabled
	timers *timerQueue

	logger    *logiface.Logger[logiface.Event]
	spawnWarn *catrate.Limiter
	metrics   *execMetrics
	name      string

	// task being polled (executor goroutine only)
	current *TaskHeader

	polling         atomic.Bool
	running         atomic.Bool
	loopGoroutineID atomic.Uint64
}

// New creates an executor configured by opts.
func New(opts ...ExecutorOption) (*Executor, error) {
	cfg, err := resolveExecutorOptions(opts)
	if err != nil {
		return nil, err
	}
	e := &Executor{
		clock:  cfg.clock,
		idler:  cfg.idler,
		pender: cfg.pender,
		wakeCh: make(chan struct{}, 1),
		logger: cfg.logger,
		name:   cfg.name,
	}
	if cfg.timers {
		e.timers = &timerQueue{}
	}
	if cfg.metricsEnabled {
		e.metrics = newExecMetrics()
	}
	if cfg.logger != nil {
		e.spawnWarn = catrate.NewLimiter(spawnWarnRates)
	}
	return e, nil
}

// Spawner returns a spawner that commits tasks to this executor.
func (e *Executor) Spawner() Spawner { return Spawner{executor: e} }

// Name returns the configured name, or "" (also for a nil executor).
func (e *Executor) Name() string {
	if e == nil {
		return ""
	}
	return e.name
}

// Clock returns the configured time source.
func (e *Executor) Clock() Clock { return e.clock }

// TimersEnabled reports whether the executor maintains a timer queue.
func (e *Executor) TimersEnabled() bool { return e.timers != nil }

// Metrics returns a snapshot of the runtime statistics. It is zero unless the
// executor was built with WithMetrics(true). Safe to call from any goroutine.
func (e *Executor) Metrics() Metrics { return e.metrics.snapshot() }

// enqueue links a task whose RUN_QUEUED bit the caller set, signalling the
// loop if the queue was empty.
func (e *Executor) enqueue(h *TaskHeader) {
	e.metrics.woke()
	if e.queue.enqueue(h) {
		e.signal()
	}
}

func (e *Executor) signal() {
	if e.pender != nil {
		e.pender()
	}
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

// Poll runs one cycle: every task queued at the start of the cycle is polled
// exactly once, then expired timers are moved into the ready queue.
//
// It returns the instant by which Poll should be called again: the current
// time if tasks are already queued, the earliest timer expiry otherwise, or
// [Never] if nothing is pending. Work enqueued from other goroutines after
// Poll returns is announced through the pender and the wake channel.
//
// Poll must not be called concurrently, nor from within a poll.
func (e *Executor) Poll() Instant {
	if !e.polling.CompareAndSwap(false, true) {
		invariantViolation(e.logger, "executor polled concurrently or reentrantly")
	}
	defer func() {
		e.current = nil
		e.polling.Store(false)
	}()

	n := e.queue.dequeueAll(e.pollTask)

	now := e.clock.Now()
	if e.timers != nil {
		e.metrics.timersFired(e.timers.dequeueExpired(now, func(h *TaskHeader) {
			// the reference the timer entry held moves to the queue entry
			h.vtable.Wake(unsafe.Pointer(h))
		}))
	}

	e.metrics.cycle(n)

	switch {
	case !e.queue.isEmpty():
		return now
	case e.timers != nil:
		return e.timers.nextExpiration()
	default:
		return Never
	}
}

// pollTask handles one entry taken from the ready queue, consuming the
// reference the entry held.
func (e *Executor) pollTask(h *TaskHeader) {
	// read while the entry keeps the storage from being claimed
	vtable := h.vtable
	if !h.state.beginPoll() {
		// woken during its final poll
		vtable.Drop(unsafe.Pointer(h))
		return
	}
	poll := h.poll
	if poll == nil {
		invariantViolation(e.logger, "spawned task has no poll function")
	}

	// the task re-registers its timer on every poll
	var timed bool
	if e.timers != nil && h.timerLink {
		e.timers.remove(h)
		timed = true
	}
	h.expiresAt = Never
	e.current = h
	var start time.Time
	if e.metrics != nil {
		start = time.Now()
	}

	poll(TaskRef{ptr: h})

	if e.metrics != nil {
		e.metrics.polled(time.Since(start))
	}
	e.current = nil
	if e.timers != nil {
		e.relinkTimer(h, timed)
	}
	if h.poll == nil {
		// the storage may be claimed again from here on
		h.state.complete()
	}
	vtable.Drop(unsafe.Pointer(h))
}

// relinkTimer re-sorts h in the timer queue. A linked entry holds a
// reference to the task, taken on link and dropped on unlink; linked reports
// whether h held one before.
func (e *Executor) relinkTimer(h *TaskHeader, linked bool) {
	e.timers.update(h)
	switch {
	case !linked && h.timerLink:
		h.vtable.Clone(unsafe.Pointer(h))
	case linked && !h.timerLink:
		h.vtable.Drop(unsafe.Pointer(h))
	}
}

// unlinkTimer removes h from the timer queue, if linked.
func (e *Executor) unlinkTimer(h *TaskHeader) {
	if e.timers == nil || !h.timerLink {
		return
	}
	e.timers.remove(h)
	h.vtable.Drop(unsafe.Pointer(h))
}

// scheduleWake sets a timer for a task other than the one being polled.
func (e *Executor) scheduleWake(h *TaskHeader, at Instant) bool {
	if e.timers == nil || !h.state.load().spawned() {
		return false
	}
	if at < h.expiresAt {
		h.expiresAt = at
	}
	if h != e.current {
		e.relinkTimer(h, h.timerLink)
	}
	return true
}

// Run drives the executor until ctx is done, alternating [Executor.Poll]
// with the configured [Idler]. It returns the context's error, or the
// idler's.
func (e *Executor) Run(ctx context.Context) error {
	if e.isLoopGoroutine() {
		return ErrReentrantRun
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrExecutorRunning
	}
	defer e.running.Store(false)

	e.loopGoroutineID.Store(getGoroutineID())
	defer e.loopGoroutineID.Store(0)

	e.logger.Debug().Str(`executor`, e.name).Log(`run started`)
	defer e.logger.Debug().Str(`executor`, e.name).Log(`run stopped`)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		deadline := e.Poll()
		if err := e.idler.Idle(ctx, deadline, e.wakeCh); err != nil {
			return err
		}
	}
}

// isLoopGoroutine reports whether the caller is the goroutine inside Run.
func (e *Executor) isLoopGoroutine() bool {
	id := e.loopGoroutineID.Load()
	return id != 0 && id == getGoroutineID()
}

// log returns the logger, nil-safe on the receiver.
func (e *Executor) log() *logiface.Logger[logiface.Event] {
	if e == nil {
		return nil
	}
	return e.logger
}

// stats returns the metrics collector, nil-safe on the receiver.
func (e *Executor) stats() *execMetrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
