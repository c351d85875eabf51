package scale

// Defer wraps fn so each invocation is rescheduled onto l's deferred queue,
// running at the end of the loop pass rather than inline at the call site.
// Scheduling failures (e.g. a closed loop) are reported through the loop's
// logger since the wrapper has nowhere else to put them.
func Defer(l *Loop, fn Func) Func {
	return func(args ...any) {
		if _, err := l.CallSoon(fn, args...); err != nil {
			l.log.Err().
				Err(err).
				Str("func", funcName(fn)).
				Log("deferred call could not be scheduled")
		}
	}
}

// AsyncFunc adapts a continuation-passing function for use with the loop.
// The wrapped function receives a done callback as its first argument, which
// it must invoke (with any result arguments) exactly once when finished.
type AsyncFunc struct {
	loop *Loop
	fn   func(done Func, args ...any)
}

// NewAsyncFunc wraps fn for invocation against l. The wrapped fn runs
// synchronously; only continuation delivery varies between the two Invoke
// variants.
func NewAsyncFunc(l *Loop, fn func(done Func, args ...any)) *AsyncFunc {
	return &AsyncFunc{loop: l, fn: fn}
}

// Invoke calls the wrapped function, delivering the continuation
// synchronously when the function completes.
func (a *AsyncFunc) Invoke(done Func, args ...any) {
	a.fn(done, args...)
}

// InvokeAsync calls the wrapped function with the continuation rescheduled
// through the loop's deferred queue, decoupling callers from the timing of
// the done callback.
func (a *AsyncFunc) InvokeAsync(done Func, args ...any) {
	a.fn(Defer(a.loop, done), args...)
}
