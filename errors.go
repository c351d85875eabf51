package scale

import "errors"

// Standard errors.
var (
	// ErrLoopClosed is returned when operations are attempted on a loop whose
	// multiplexer resources have been released.
	ErrLoopClosed = errors.New("scale: loop is closed")

	// ErrMultiplexerClosed is returned when handles are requested from a
	// closed multiplexer.
	ErrMultiplexerClosed = errors.New("scale: multiplexer is closed")

	// ErrUncaughtError is returned by [EventEmitter.Emit] when "error" is
	// emitted with no registered listeners. Errors must always be handled.
	ErrUncaughtError = errors.New(`scale: uncaught, unspecified "error" event`)
)

// TypeError reports a value that is not of the expected type, such as a nil
// listener or a negative maximum listener count.
type TypeError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	if e.Message == "" {
		return "type error"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *TypeError) Unwrap() error {
	return e.Cause
}

// RangeError reports a value outside the expected range, such as a negative
// timer delay or interval.
type RangeError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	if e.Message == "" {
		return "range error"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *RangeError) Unwrap() error {
	return e.Cause
}

// FatalError marks a process-fatal condition raised inside a scheduled
// callback. Unlike ordinary callback failures, which are logged and
// suppressed, a recovered FatalError is captured by the loop driver and
// re-raised at the start of the next tick, terminating [Loop.Run] with the
// original error surfaced to its caller.
type FatalError struct {
	Cause error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Cause == nil {
		return "scale: fatal signal"
	}
	return "scale: fatal signal: " + e.Cause.Error()
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *FatalError) Unwrap() error {
	return e.Cause
}

// Fatal wraps err so that panicking with the result inside a scheduled
// callback terminates the run loop instead of being logged and suppressed.
//
//	loop.CallSoon(func(...any) {
//	    panic(scale.Fatal(errors.New("interrupted")))
//	})
func Fatal(err error) *FatalError {
	return &FatalError{Cause: err}
}
