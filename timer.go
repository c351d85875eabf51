package scale

import "time"

// Events emitted by [Timer].
const (
	TimerStarted = "started"
	TimerStopped = "stopped"
	TimerTimeout = "timeout"
)

// Timer is an event-emitting facade over the loop's timer scheduling. It
// emits "started" when armed, "timeout" on each expiry, and "stopped" when
// cancelled. A repeating timer fires "timeout" every interval until stopped;
// a one-shot timer fires it once.
type Timer struct {
	*EventEmitter

	loop      *Loop
	cb        *Callback
	delay     time.Duration
	repeating bool
}

// NewTimer creates an unarmed timer bound to l. A negative delay fails with
// a [RangeError].
func NewTimer(l *Loop, delay time.Duration, repeating bool) (*Timer, error) {
	if delay < 0 {
		return nil, &RangeError{Message: "scale: timer delay must be non-negative"}
	}
	return &Timer{
		EventEmitter: NewEventEmitter(WithEmitterLoop(l)),
		loop:         l,
		delay:        delay,
		repeating:    repeating,
	}, nil
}

// Start arms the timer and emits "started". Starting an already-armed timer
// is a no-op.
func (t *Timer) Start() error {
	if t.cb != nil {
		return nil
	}

	var (
		cb  *Callback
		err error
	)
	if t.repeating {
		cb, err = t.loop.SetInterval(t.fire, t.delay)
	} else {
		cb, err = t.loop.SetTimeout(t.fire, t.delay)
	}
	if err != nil {
		return err
	}
	t.cb = cb

	_, err = t.Emit(TimerStarted, t)
	return err
}

// Stop cancels a pending expiry and emits "stopped". Stopping an unarmed
// timer is a no-op.
func (t *Timer) Stop() error {
	if t.cb == nil {
		return nil
	}
	t.cb.Cancel()
	t.cb = nil

	_, err := t.Emit(TimerStopped, t)
	return err
}

// Active reports whether the timer is armed.
func (t *Timer) Active() bool {
	return t.cb != nil && !t.cb.Canceled()
}

func (t *Timer) fire(args ...any) {
	if !t.repeating {
		t.cb = nil
	}
	// Emit only fails for the "error" event.
	_, _ = t.Emit(TimerTimeout, t)
}
