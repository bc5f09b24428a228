package executor

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of runtime statistics for an [Executor], returned by
// [Executor.Metrics]. Metrics are only collected when the executor was built
// with WithMetrics(true).
//
// Example:
//
//	e, _ := New(WithMetrics(true))
//	_ = e.Run(ctx)
//	m := e.Metrics()
//	fmt.Printf("polls: %d, P99 poll: %v\n", m.Polls, m.PollLatency.P99)
type Metrics struct {
	// Cycles is the number of calls to Executor.Poll.
	Cycles uint64
	// Polls is the number of erased polls invoked.
	Polls uint64
	// Wakes is the number of insertions into the ready queue, including
	// spawns.
	Wakes uint64
	// Spawns is the number of tokens committed successfully.
	Spawns uint64
	// SpawnFailures is the number of tokens that carried an error.
	SpawnFailures uint64
	// TimerFires is the number of tasks woken by timer expiry.
	TimerFires uint64
	// Orphans is the number of allocated tasks whose last reference was
	// dropped before they completed.
	Orphans uint64

	// PollLatency is the wall-clock duration of individual polls.
	PollLatency LatencyMetrics

	// Batch is the number of tasks handled per ready-queue drain.
	Batch BatchMetrics
}

// LatencyMetrics summarises a latency distribution.
type LatencyMetrics struct {
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
	Mean  time.Duration
	Count int
}

// BatchMetrics summarises drained batch sizes.
type BatchMetrics struct {
	Current int
	Max     int
	// Avg is an exponential moving average with alpha=0.1, initialized to
	// the first observed value.
	Avg float64
}

// execMetrics is the live collector behind Metrics. A nil *execMetrics
// collects nothing.
type execMetrics struct {
	cycles        atomic.Uint64
	polls         atomic.Uint64
	wakes         atomic.Uint64
	spawns        atomic.Uint64
	spawnFailures atomic.Uint64
	timerFires    atomic.Uint64
	orphans       atomic.Uint64

	mu      sync.Mutex
	latency *quantileSet
	batch   BatchMetrics
	batchN  int
}

func newExecMetrics() *execMetrics {
	return &execMetrics{latency: newQuantileSet(0.50, 0.90, 0.99)}
}

func (m *execMetrics) spawned() {
	if m != nil {
		m.spawns.Add(1)
	}
}

func (m *execMetrics) spawnFailed() {
	if m != nil {
		m.spawnFailures.Add(1)
	}
}

func (m *execMetrics) woke() {
	if m != nil {
		m.wakes.Add(1)
	}
}

func (m *execMetrics) orphaned() {
	if m != nil {
		m.orphans.Add(1)
	}
}

func (m *execMetrics) timersFired(n int) {
	if m != nil && n > 0 {
		m.timerFires.Add(uint64(n))
	}
}

// polled records one poll. Executor goroutine only, but Metrics may read
// concurrently.
func (m *execMetrics) polled(d time.Duration) {
	if m == nil {
		return
	}
	m.polls.Add(1)
	m.mu.Lock()
	m.latency.observe(float64(d))
	m.mu.Unlock()
}

// cycle records the end of one Executor.Poll that drained n tasks.
func (m *execMetrics) cycle(n int) {
	if m == nil {
		return
	}
	m.cycles.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batch.Current = n
	if n > m.batch.Max {
		m.batch.Max = n
	}
	if m.batchN == 0 {
		m.batch.Avg = float64(n)
	} else {
		m.batch.Avg = 0.9*m.batch.Avg + 0.1*float64(n)
	}
	m.batchN++
}

func (m *execMetrics) snapshot() Metrics {
	if m == nil {
		return Metrics{}
	}
	s := Metrics{
		Cycles:        m.cycles.Load(),
		Polls:         m.polls.Load(),
		Wakes:         m.wakes.Load(),
		Spawns:        m.spawns.Load(),
		SpawnFailures: m.spawnFailures.Load(),
		TimerFires:    m.timerFires.Load(),
		Orphans:       m.orphans.Load(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Batch = m.batch
	s.PollLatency = LatencyMetrics{
		P50:   time.Duration(m.latency.quantile(0)),
		P90:   time.Duration(m.latency.quantile(1)),
		P99:   time.Duration(m.latency.quantile(2)),
		Max:   time.Duration(m.latency.max),
		Mean:  time.Duration(m.latency.mean()),
		Count: m.latency.count,
	}
	return s
}
