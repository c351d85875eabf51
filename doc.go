// Package scale provides a single-threaded cooperative event loop for Go,
// featuring three scheduling tiers (immediates, deferreds, and timers) and a
// node-style [EventEmitter] publish/subscribe primitive.
//
// # Architecture
//
// The core is a [Loop] that owns an immediate queue, a deferred queue, and a
// set of active timers, and drives one tick at a time
// by delegating to a [Multiplexer], the underlying readiness/timer engine.
// Callbacks are represented by [Callback], a cancellable single-shot unit of
// work carrying a function, its bound arguments, and an optional
// post-execution hook used for queue bookkeeping.
//
// Scheduling tiers, highest priority first:
//   - [Loop.CallImmediately]: runs before the current tick's other pending
//     work is considered complete. Drained up to a per-pass run limit
//     (default 10) as a starvation guard.
//   - [Loop.CallSoon]: runs after the current tick, in FIFO order, on the
//     next deferred drain.
//   - [Loop.SetTimeout] / [Loop.SetInterval]: fire in expiration order as
//     reported by the multiplexer. A zero delay takes the deferred path.
//
// # Execution Model
//
// Exactly one callback runs at a time, to completion, with no preemption.
// Suspension occurs only at the multiplexer wait point inside [Loop.Tick]:
// the tick blocks there when idle, or returns immediately when deferred or
// immediate work is pending. Scheduler state is mutated only from the loop's
// own thread of control; external producers must hand off via the wake-source
// ([Loop.Stop] does this), never by touching the queues directly.
//
// # Error Handling
//
// A panic escaping a scheduled callback is recovered, logged with the failing
// callback's identity and arguments, and suppressed; the loop continues. A
// panic carrying a [FatalError] (see [Fatal]) is captured and re-raised at the
// start of the next tick, so [Loop.Run] returns it after shutting the loop
// down. Emitting "error" on an [EventEmitter] with no listeners fails with
// [ErrUncaughtError]: errors must never be silently dropped.
//
// # Usage
//
//	loop, err := scale.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	loop.SetTimeout(func(args ...any) {
//	    fmt.Println("hello after 100ms")
//	    loop.Stop()
//	}, 100*time.Millisecond)
//
//	if err := loop.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Platform Support
//
// The default multiplexer waits on a wake descriptor (eventfd on Linux, a
// pipe elsewhere) and is Unix-only. The [Multiplexer] interface is injectable
// via [WithMultiplexer], which also enables multiple independent loops in
// tests.
package scale
