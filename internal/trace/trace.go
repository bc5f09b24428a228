// Package trace records executor run cycles as a msgpack stream.
//
// A trace is one [Header] followed by any number of [Cycle] records, each
// encoded as its own msgpack value.
package trace

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Header opens a trace.
type Header struct {
	RunID    string    `msgpack:"run_id"`
	Scenario string    `msgpack:"scenario"`
	Started  time.Time `msgpack:"started"`
}

// Cycle is one executor cycle, sampled just before the executor idles.
type Cycle struct {
	Seq        uint64 `msgpack:"seq"`
	Now        uint64 `msgpack:"now"`
	Deadline   uint64 `msgpack:"deadline"`
	Polls      uint64 `msgpack:"polls"`
	Wakes      uint64 `msgpack:"wakes"`
	TimerFires uint64 `msgpack:"timer_fires"`
}

// Recorder writes a trace. It is safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	enc *msgpack.Encoder
	id  string
	seq uint64
}

// NewRecorder writes the header for a new run to w.
func NewRecorder(w io.Writer, scenario string) (*Recorder, error) {
	r := &Recorder{enc: msgpack.NewEncoder(w), id: uuid.NewString()}
	if err := r.enc.Encode(&Header{RunID: r.id, Scenario: scenario, Started: time.Now().UTC()}); err != nil {
		return nil, fmt.Errorf("trace: write header: %w", err)
	}
	return r, nil
}

// RunID identifies the run in the header.
func (r *Recorder) RunID() string { return r.id }

// Record appends c, assigning its sequence number.
func (r *Recorder) Record(c Cycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	c.Seq = r.seq
	if err := r.enc.Encode(&c); err != nil {
		return fmt.Errorf("trace: write cycle %d: %w", c.Seq, err)
	}
	return nil
}

// Read decodes a whole trace from r.
func Read(r io.Reader) (Header, []Cycle, error) {
	dec := msgpack.NewDecoder(r)
	var h Header
	if err := dec.Decode(&h); err != nil {
		return Header{}, nil, fmt.Errorf("trace: read header: %w", err)
	}
	var cycles []Cycle
	for {
		var c Cycle
		if err := dec.Decode(&c); err != nil {
			if errors.Is(err, io.EOF) {
				return h, cycles, nil
			}
			return h, cycles, fmt.Errorf("trace: read cycle %d: %w", len(cycles)+1, err)
		}
		cycles = append(cycles, c)
	}
}
