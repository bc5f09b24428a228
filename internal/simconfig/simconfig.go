// Package simconfig loads scenario files for the executor simulator.
//
// A scenario is TOML or YAML, chosen by file extension. Unset fields keep the
// values from [Default].
package simconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Scenario describes one simulation run.
type Scenario struct {
	Name string `toml:"name" yaml:"name"`

	// Tick is the length of one clock tick.
	Tick time.Duration `toml:"tick" yaml:"tick"`
	// Virtual runs on a manual clock that jumps to each deadline.
	Virtual bool `toml:"virtual" yaml:"virtual"`
	// Timers enables the integrated timer queue.
	Timers bool `toml:"timers" yaml:"timers"`

	Worker    Worker    `toml:"worker" yaml:"worker"`
	Singleton Singleton `toml:"singleton" yaml:"singleton"`
	Pool      Pool      `toml:"pool" yaml:"pool"`
	Alloc     Alloc     `toml:"alloc" yaml:"alloc"`
	Producers Producers `toml:"producers" yaml:"producers"`
}

// Worker shapes every worker task: Steps sleeps of SleepTicks each.
type Worker struct {
	Steps      int    `toml:"steps" yaml:"steps"`
	SleepTicks uint64 `toml:"sleep_ticks" yaml:"sleep_ticks"`
}

// Singleton configures statically allocated tasks.
type Singleton struct {
	Count int `toml:"count" yaml:"count"`
}

// Pool configures a fixed pool, and how many spawns are attempted on it.
type Pool struct {
	Size   int `toml:"size" yaml:"size"`
	Spawns int `toml:"spawns" yaml:"spawns"`
}

// Alloc configures heap-allocated tasks against a bounded heap.
type Alloc struct {
	HeapBytes int `toml:"heap_bytes" yaml:"heap_bytes"`
	Spawns    int `toml:"spawns" yaml:"spawns"`
}

// Producers configures goroutines standing in for interrupt sources, each
// raising Events interrupts every Interval.
type Producers struct {
	Count    int           `toml:"count" yaml:"count"`
	Events   int           `toml:"events" yaml:"events"`
	Interval time.Duration `toml:"interval" yaml:"interval"`
}

// Default returns the built-in scenario.
func Default() Scenario {
	return Scenario{
		Name:      "default",
		Tick:      time.Millisecond,
		Virtual:   true,
		Timers:    true,
		Worker:    Worker{Steps: 4, SleepTicks: 25},
		Singleton: Singleton{Count: 2},
		Pool:      Pool{Size: 4, Spawns: 6},
		Alloc:     Alloc{HeapBytes: 4096, Spawns: 8},
		Producers: Producers{Count: 2, Events: 50, Interval: time.Millisecond},
	}
}

// Load reads a scenario from path, layered over [Default].
func Load(path string) (Scenario, error) {
	s := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, &s); err != nil {
			return Scenario{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
		}
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return Scenario{}, err
		}
		if err := yaml.Unmarshal(b, &s); err != nil {
			return Scenario{}, fmt.Errorf("%s: failed to parse YAML: %w", path, err)
		}
	default:
		return Scenario{}, fmt.Errorf("%s: unsupported scenario format %q", path, ext)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate reports the first invalid field.
func (s Scenario) Validate() error {
	switch {
	case s.Tick <= 0:
		return errors.New("tick must be positive")
	case s.Virtual && !s.Timers:
		return errors.New("virtual time requires timers")
	case s.Worker.Steps < 0:
		return errors.New("worker.steps must not be negative")
	case s.Singleton.Count < 0:
		return errors.New("singleton.count must not be negative")
	case s.Pool.Spawns > 0 && s.Pool.Size <= 0:
		return errors.New("pool.size must be positive when pool.spawns is set")
	case s.Pool.Spawns < 0 || s.Alloc.Spawns < 0:
		return errors.New("spawn counts must not be negative")
	case s.Alloc.Spawns > 0 && s.Alloc.HeapBytes <= 0:
		return errors.New("alloc.heap_bytes must be positive when alloc.spawns is set")
	case s.Producers.Count < 0 || s.Producers.Events < 0:
		return errors.New("producer counts must not be negative")
	case s.Producers.Count > 0 && s.Producers.Interval <= 0:
		return errors.New("producers.interval must be positive")
	}
	return nil
}

// Interrupts returns the total number of interrupts the producers raise.
func (s Scenario) Interrupts() int { return s.Producers.Count * s.Producers.Events }
