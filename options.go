// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package executor

import (
	"errors"

	"github.com/joeycumines/logiface"
)

// executorOptions holds configuration options for Executor creation.
type executorOptions struct {
	clock          Clock
	idler          Idler
	pender         func()
	logger         *logiface.Logger[logiface.Event]
	name           string
	timers         bool
	metricsEnabled bool
}

// --- Executor Options ---

// ExecutorOption configures an Executor instance.
type ExecutorOption interface {
	applyExecutor(*executorOptions) error
}

// executorOptionImpl implements ExecutorOption.
type executorOptionImpl struct {
	applyExecutorFunc func(*executorOptions) error
}

func (o *executorOptionImpl) applyExecutor(opts *executorOptions) error {
	return o.applyExecutorFunc(opts)
}

// WithClock sets the time source used for timers and idle deadlines.
// Defaults to a [SystemClock] with one microsecond ticks.
func WithClock(clock Clock) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		if clock == nil {
			return errors.New("executor: nil clock")
		}
		opts.clock = clock
		return nil
	}}
}

// WithIdler sets the hook [Executor.Run] calls between cycles. Defaults to a
// [ClockIdler] on the configured clock.
func WithIdler(idler Idler) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		opts.idler = idler
		return nil
	}}
}

// WithPender sets a callback invoked whenever a task is enqueued into an
// empty ready queue. It may be called from any goroutine, and must not block.
func WithPender(pender func()) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		opts.pender = pender
		return nil
	}}
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithIntegratedTimers sets whether the executor maintains a timer queue.
// When disabled, [Context.WakeAt] reports false. Enabled by default.
func WithIntegratedTimers(enabled bool) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		opts.timers = enabled
		return nil
	}}
}

// WithMetrics enables runtime metrics collection on the Executor.
// When enabled, metrics can be accessed via Executor.Metrics().
// Poll latency is measured with the wall clock, regardless of the
// configured [Clock].
func WithMetrics(enabled bool) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithName sets a name attached to log events.
func WithName(name string) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		opts.name = name
		return nil
	}}
}

// resolveExecutorOptions applies ExecutorOption instances to executorOptions.
func resolveExecutorOptions(opts []ExecutorOption) (*executorOptions, error) {
	cfg := &executorOptions{
		timers: true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyExecutor(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.clock == nil {
		cfg.clock = NewSystemClock(0)
	}
	if cfg.idler == nil {
		cfg.idler = &ClockIdler{Clock: cfg.clock}
	}
	return cfg, nil
}

// --- Alloc Options ---

// allocOptions holds configuration for a single SpawnAlloc call.
type allocOptions struct {
	allocator Allocator
}

// AllocOption configures [SpawnAlloc].
type AllocOption interface {
	applyAlloc(*allocOptions) error
}

type allocOptionImpl struct {
	applyAllocFunc func(*allocOptions) error
}

func (o *allocOptionImpl) applyAlloc(opts *allocOptions) error {
	return o.applyAllocFunc(opts)
}

// WithAllocator sets the allocator charged for the task storage. Defaults to
// an unbounded allocator backed by the Go heap.
func WithAllocator(allocator Allocator) AllocOption {
	return &allocOptionImpl{func(opts *allocOptions) error {
		if allocator == nil {
			return errors.New("executor: nil allocator")
		}
		opts.allocator = allocator
		return nil
	}}
}

func resolveAllocOptions(opts []AllocOption) (*allocOptions, error) {
	cfg := &allocOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyAlloc(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.allocator == nil {
		cfg.allocator = unboundedAllocator{}
	}
	return cfg, nil
}
