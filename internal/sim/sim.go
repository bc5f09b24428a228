// Package sim runs executor scenarios on the host: worker tasks in every
// storage strategy, plus goroutines raising interrupts for a handler task.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"fortio.org/safecast"
	executor "github.com/joeycumines/go-executor"
	"github.com/joeycumines/go-executor/internal/simconfig"
	"github.com/joeycumines/go-executor/internal/trace"
	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"
)

// Options configures [Run].
type Options struct {
	// Logger is passed to the executor. Nil disables logging.
	Logger *logiface.Logger[logiface.Event]
	// Trace receives a msgpack cycle trace, if set.
	Trace io.Writer
}

// Result summarizes a completed run.
type Result struct {
	Scenario string
	RunID    string
	Virtual  bool

	// Ticks is the executor clock at the end of the run.
	Ticks   uint64
	Elapsed time.Duration

	Spawned       int
	PoolExhausted int
	OutOfMemory   int
	OtherFailures int
	Interrupts    int64
	HeapInUse     uintptr

	Metrics executor.Metrics
}

// run is the state shared by the scenario's tasks. It is only touched from
// the executor goroutine.
type run struct {
	scenario      simconfig.Scenario
	cancel        context.CancelFunc
	remaining     int
	spawned       int
	poolExhausted int
	outOfMemory   int
	otherFailures int
	interrupts    int64
	fatal         error
}

func (r *run) newWorker() *worker {
	return &worker{
		steps: r.scenario.Worker.Steps,
		sleep: r.scenario.Worker.SleepTicks,
		done:  r.finished,
	}
}

func (r *run) finished() {
	r.remaining--
	if r.remaining == 0 {
		r.cancel()
	}
}

func (r *run) fail(err error) {
	if r.fatal == nil {
		r.fatal = err
	}
	r.cancel()
}

// Run executes the scenario until every task completes, or ctx is done.
func Run(ctx context.Context, sc simconfig.Scenario, opts Options) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	heapBytes, err := safecast.Conv[uint64](sc.Alloc.HeapBytes)
	if err != nil {
		return nil, fmt.Errorf("alloc.heap_bytes: %w", err)
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := &run{scenario: sc, cancel: cancel}

	var (
		clock executor.Clock
		idler executor.Idler
	)
	if sc.Virtual {
		mc := executor.NewManualClock(0)
		clock, idler = mc, &executor.VirtualIdler{Clock: mc}
	} else {
		clock = executor.NewSystemClock(sc.Tick)
		idler = &executor.ClockIdler{Clock: clock}
	}

	var rec *trace.Recorder
	if opts.Trace != nil {
		if rec, err = trace.NewRecorder(opts.Trace, sc.Name); err != nil {
			return nil, err
		}
	}

	var e *executor.Executor
	traced := executor.IdlerFunc(func(ctx context.Context, deadline executor.Instant, wake <-chan struct{}) error {
		if rec != nil {
			m := e.Metrics()
			if err := rec.Record(trace.Cycle{
				Now:        uint64(clock.Now()),
				Deadline:   uint64(deadline),
				Polls:      m.Polls,
				Wakes:      m.Wakes,
				TimerFires: m.TimerFires,
			}); err != nil {
				return err
			}
		}
		return idler.Idle(ctx, deadline, wake)
	})

	e, err = executor.New(
		executor.WithClock(clock),
		executor.WithIdler(traced),
		executor.WithLogger(opts.Logger),
		executor.WithIntegratedTimers(sc.Timers),
		executor.WithMetrics(true),
		executor.WithName(sc.Name),
	)
	if err != nil {
		return nil, err
	}
	spawner := e.Spawner()

	singletons := make([]executor.TaskStorage[*worker], sc.Singleton.Count)
	r.remaining += len(singletons)
	for i := range singletons {
		if err := spawner.Spawn(singletons[i].Spawn(r.newWorker)); err != nil {
			return nil, err
		}
		r.spawned++
	}

	var heap *executor.HeapAllocator
	if sc.Pool.Spawns > 0 || sc.Alloc.Spawns > 0 {
		sup := &supervisor{run: r, poolLeft: sc.Pool.Spawns, allocLeft: sc.Alloc.Spawns}
		if sc.Pool.Spawns > 0 {
			sup.pool = executor.NewTaskPool[*worker](sc.Pool.Size)
		}
		if sc.Alloc.Spawns > 0 {
			heap = executor.NewHeapAllocator(uintptr(heapBytes))
			sup.heap = heap
		}
		r.remaining += sc.Pool.Spawns + sc.Alloc.Spawns + 1
		var storage executor.TaskStorage[*supervisor]
		if err := spawner.Spawn(storage.Spawn(func() *supervisor { return sup })); err != nil {
			return nil, err
		}
	}

	line := &irqLine{}
	g, gctx := errgroup.WithContext(ctx)
	if want := int64(sc.Interrupts()); want > 0 {
		r.remaining++
		var storage executor.TaskStorage[*irqHandler]
		if err := spawner.Spawn(storage.Spawn(func() *irqHandler {
			return &irqHandler{run: r, line: line, want: want}
		})); err != nil {
			return nil, err
		}
		for range sc.Producers.Count {
			g.Go(func() error {
				return produce(gctx, line, sc.Producers.Events, sc.Producers.Interval)
			})
		}
	}
	if r.remaining == 0 {
		cancel()
	}

	opts.Logger.Info().
		Str("scenario", sc.Name).
		Int("tasks", r.remaining).
		Log("simulation started")

	start := time.Now()
	runErr := e.Run(ctx)
	elapsed := time.Since(start)
	cancel()
	if err := g.Wait(); err != nil {
		return nil, err
	}
	line.close()

	switch {
	case r.fatal != nil:
		return nil, r.fatal
	case parent.Err() != nil:
		return nil, parent.Err()
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		return nil, runErr
	}

	res := &Result{
		Scenario:      sc.Name,
		Virtual:       sc.Virtual,
		Ticks:         uint64(clock.Now()),
		Elapsed:       elapsed,
		Spawned:       r.spawned,
		PoolExhausted: r.poolExhausted,
		OutOfMemory:   r.outOfMemory,
		OtherFailures: r.otherFailures,
		Interrupts:    r.interrupts,
		Metrics:       e.Metrics(),
	}
	if rec != nil {
		res.RunID = rec.RunID()
	}
	if heap != nil {
		res.HeapInUse = heap.Used()
	}

	opts.Logger.Info().
		Str("scenario", sc.Name).
		Uint64("ticks", res.Ticks).
		Dur("elapsed", elapsed).
		Uint64("polls", res.Metrics.Polls).
		Log("simulation finished")

	return res, nil
}

// produce raises events interrupts on line, one per interval.
func produce(ctx context.Context, line *irqLine, events int, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for range events {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			line.raise()
		}
	}
	return nil
}
