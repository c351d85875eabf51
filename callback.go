package scale

// Func is the callable scheduled onto a [Loop]. Arguments are bound at
// scheduling time and passed through verbatim on invocation.
type Func func(args ...any)

// Callback is a cancellable, single-shot unit of deferred work. It wraps a
// function, its bound arguments, and an optional post-execution hook used by
// the owning queue or timer for bookkeeping.
//
// A Callback is owned exclusively by the queue or timer holding it, and is
// dropped after execution or after cancellation removes it from its queue.
// Cancellation is cooperative: it is checked at invocation time only, so
// cancelling a callback that is already mid-execution has no effect on that
// execution.
type Callback struct {
	fn   Func
	args []any

	// after runs post-execution, only when fn actually ran and the callback
	// is still not canceled by the time fn returns.
	after func()

	// onCanceled fires when canceled first transitions false to true.
	onCanceled func()

	canceled bool
}

// NewCallback constructs an inert, non-canceled callback binding fn to args.
func NewCallback(fn Func, args ...any) *Callback {
	return &Callback{fn: fn, args: args}
}

// Invoke runs the wrapped function with its bound arguments. It is a no-op if
// the callback has been canceled. The after hook runs only when the function
// actually executed and the callback was not canceled during that execution.
func (c *Callback) Invoke() {
	if c.canceled {
		return
	}

	c.fn(c.args...)

	if !c.canceled && c.after != nil {
		c.after()
	}
}

// Cancel marks the callback canceled. The first transition fires the
// onCanceled hook, if set; subsequent calls are no-ops. There is no way to
// un-cancel a callback.
func (c *Callback) Cancel() {
	if c.canceled {
		return
	}
	c.canceled = true

	if c.onCanceled != nil {
		c.onCanceled()
	}
}

// Canceled reports whether Cancel has been called.
func (c *Callback) Canceled() bool {
	return c.canceled
}
