package executor

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

// newTestExecutor returns an executor on virtual time, starting at zero.
func newTestExecutor(t *testing.T, opts ...ExecutorOption) (*Executor, *ManualClock) {
	t.Helper()
	clock := NewManualClock(0)
	e, err := New(append([]ExecutorOption{
		WithClock(clock),
		WithIdler(&VirtualIdler{Clock: clock}),
	}, opts...)...)
	require.NoError(t, err)
	return e, clock
}

// logBuffer collects JSON log lines, safe for concurrent writes.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (x *logBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.Write(p)
}

func (x *logBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.String()
}

func newTestLogger(w *logBuffer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
}

// countingAllocator is an unbounded Allocator that records its calls.
type countingAllocator struct {
	allocs   atomic.Int32
	releases atomic.Int32
	bytes    atomic.Int64
}

func (x *countingAllocator) Allocate(size uintptr) error {
	x.allocs.Add(1)
	x.bytes.Add(int64(size))
	return nil
}

func (x *countingAllocator) Release(size uintptr) {
	x.releases.Add(1)
	x.bytes.Add(-int64(size))
}

// wakerSlot lets a test hold a task's waker between polls.
type wakerSlot struct {
	mu sync.Mutex
	w  Waker
}

func (x *wakerSlot) store(w Waker) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.w.Drop()
	x.w = w
}

func (x *wakerSlot) wake() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.w.Wake()
}

func (x *wakerSlot) wakeByRef() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.w.WakeByRef()
}

func (x *wakerSlot) drop() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.w.Drop()
}
