// Package executor provides a cooperative, single-threaded task executor in
// the style of embedded async runtimes: tasks live in caller-provided storage,
// readiness is signalled through an intrusive lock-free ready queue, and the
// common paths never allocate.
//
// # Architecture
//
// Every task is a [TaskHeader] embedded in a storage value holding exactly one
// computation (a [Future]). Three storage strategies share that layout:
//   - [TaskStorage]: a singleton, typically a package-level variable,
//     respawnable once its computation completes
//   - [TaskPool]: a fixed set of slots allocated once, claimed at spawn
//   - [SpawnAlloc]: storage per spawn, reference counted and released to an
//     [Allocator] once the computation completed and no waker remains
//
// A spawn yields a [SpawnToken], which a [Spawner] commits to an
// [Executor]'s ready queue. [Executor.Poll] drains that queue, polling each
// task once, then moves expired timers into the queue and reports the next
// deadline. [Executor.Run] loops Poll with an [Idler].
//
// # Wakers
//
// A [Waker] is a (data pointer, operation table) pair, see [RawWaker]. It is
// an owned value: [Waker.Clone] creates a reference, [Waker.Wake] and
// [Waker.Drop] consume one. Waking a task that is already queued, or has
// completed, is a no-op.
//
// # Thread Safety
//
//   - Wakers, [WakeTask] and [Spawner.Spawn] are safe from any goroutine
//     (the Go analogue of an interrupt handler), and never block
//   - Poll and Run must be driven by a single goroutine
//   - a Future is only polled from the goroutine driving its executor
//
// # Usage
//
//	e, err := executor.New(executor.WithClock(executor.NewSystemClock(time.Millisecond)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var blink executor.TaskStorage[*Blinker]
//	e.Spawner().MustSpawn(blink.Spawn(func() *Blinker { return NewBlinker() }))
//
//	if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
package executor
