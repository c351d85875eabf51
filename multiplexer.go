package scale

import "time"

// Multiplexer is the readiness/timer engine a [Loop] drives each tick. The
// loop only consumes this interface; [NewPollMultiplexer] provides the
// default implementation, and tests may inject their own via
// [WithMultiplexer].
//
// A multiplexer is live while at least one referenced handle exists. Timer
// handles are created referenced; check and wake handles are created
// referenced as well, and the loop unrefs the ones that should not keep it
// alive on their own.
//
// Thread Safety: apart from [WakeHandle.Signal], a multiplexer is driven only
// from the loop's thread of control.
type Multiplexer interface {
	// Poll runs exactly one iteration: wait for the wake descriptor or the
	// next timer expiration (immediately when block is false), fire due
	// timers in expiration order, then run check callbacks. It reports
	// whether referenced handles remain, i.e. whether the loop is still live.
	Poll(block bool) bool

	// StartTimer arms a timer that invokes fire after delay, and again every
	// repeat thereafter when repeat is non-zero.
	StartTimer(delay, repeat time.Duration, fire func()) (TimerHandle, error)

	// NewCheck registers a callback run once per Poll iteration, after due
	// timers have fired.
	NewCheck(fn func()) (CheckHandle, error)

	// NewWaker returns a handle whose Signal method interrupts a blocking
	// Poll from any goroutine. fn, if non-nil, runs on the loop side of the
	// wake-up.
	NewWaker(fn func()) (WakeHandle, error)

	// Walk calls fn for every live (non-closed) handle. Used for shutdown.
	Walk(fn func(Handle))

	// Close releases the multiplexer's own resources. All handles must
	// already be closed; a final non-blocking Poll lets their close
	// bookkeeping settle first.
	Close() error
}

// Handle is a multiplexer-owned resource with keep-alive semantics. A
// referenced handle keeps [Multiplexer.Poll] reporting the loop live; an
// unreferenced one does not, but its callbacks still run.
type Handle interface {
	// Ref marks the handle as keeping the loop alive. No-op if already
	// referenced or closed.
	Ref()

	// Unref marks the handle as not keeping the loop alive.
	Unref()

	// Close releases the handle. Closed handles never fire again.
	Close() error

	// Closed reports whether Close has been called.
	Closed() bool
}

// TimerHandle is a [Handle] for an armed timer.
type TimerHandle interface {
	Handle

	// Stop disarms the timer without closing the handle.
	Stop() error
}

// CheckHandle is a [Handle] for a per-iteration check callback.
type CheckHandle interface {
	Handle
}

// WakeHandle is a [Handle] for the cross-context wake-source.
type WakeHandle interface {
	Handle

	// Signal interrupts a blocking Poll. Safe to call from any goroutine.
	Signal() error
}
