// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scale

import (
	"fmt"

	"github.com/joeycumines/logiface"
)

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	mux               Multiplexer
	logger            *logiface.Logger[logiface.Event]
	immediateRunLimit int
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithMultiplexer injects the readiness/timer engine the loop drives each
// tick, in place of the default [PollMultiplexer]. The loop takes ownership:
// closing the loop closes the multiplexer. Injecting distinct multiplexers
// yields fully independent loops, which is the intended testing seam.
func WithMultiplexer(mux Multiplexer) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.mux = mux
		return nil
	}}
}

// WithLogger sets the structured logger used to report callback failures and
// other loop diagnostics. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithImmediateRunLimit caps how many immediates are processed per
// deferred-processing pass (default 10), bounding worst-case drain latency.
// Any remainder runs on a subsequent pass.
func WithImmediateRunLimit(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n < 1 {
			return &RangeError{Message: fmt.Sprintf("scale: invalid immediate run limit: %d", n)}
		}
		opts.immediateRunLimit = n
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		immediateRunLimit: defaultImmediateRunLimit,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// --- Emitter Options ---

// emitterOptions holds configuration options for EventEmitter creation.
type emitterOptions struct {
	loop   *Loop
	logger *logiface.Logger[logiface.Event]
}

// EmitterOption configures an EventEmitter instance.
type EmitterOption interface {
	applyEmitter(*emitterOptions)
}

type emitterOptionImpl struct {
	applyEmitterFunc func(*emitterOptions)
}

func (e *emitterOptionImpl) applyEmitter(opts *emitterOptions) {
	e.applyEmitterFunc(opts)
}

// WithEmitterLoop binds the emitter to a loop, enabling
// [EventEmitter.OnDeferred] listeners. Absent [WithEmitterLogger], the
// emitter also inherits the loop's logger.
func WithEmitterLoop(l *Loop) EmitterOption {
	return &emitterOptionImpl{func(opts *emitterOptions) {
		opts.loop = l
	}}
}

// WithEmitterLogger sets the structured logger used for listener leak
// warnings. A nil logger disables them.
func WithEmitterLogger(logger *logiface.Logger[logiface.Event]) EmitterOption {
	return &emitterOptionImpl{func(opts *emitterOptions) {
		opts.logger = logger
	}}
}

func resolveEmitterOptions(opts []EmitterOption) *emitterOptions {
	cfg := &emitterOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyEmitter(cfg)
	}
	return cfg
}
