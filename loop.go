package scale

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// keepAliveInterval is the idle-timer period used by RunForever to keep the
// multiplexer referenced while no other handles exist.
const keepAliveInterval = 24 * time.Hour

// defaultImmediateRunLimit caps immediates processed per deferred-processing
// pass, bounding worst-case drain latency.
const defaultImmediateRunLimit = 10

// osExit is an indirection seam for Exit.
var osExit = os.Exit

// Loop is a single-threaded cooperative scheduler with three tiers of
// callbacks: immediates, deferreds, and timers. It owns the queues and the
// active timer set, and drives one tick at a time by delegating to a
// [Multiplexer].
//
// All scheduling methods must be called from the loop's own thread of
// control (callback bodies, or before Run starts). The only cross-thread
// operation is [Loop.Stop], which hands off through the wake-source.
type Loop struct {
	// Prevent copying
	_ [0]func()

	mux Multiplexer
	log *logiface.Logger[logiface.Event]

	immediates []*Callback
	deferreds  []*Callback

	// activeTimers maps live timer handles to their callbacks. Handles leave
	// the set when their one-shot fires or their callback is canceled.
	activeTimers map[TimerHandle]*Callback

	// check is the deferred-processing handle, run once per multiplexer
	// iteration. It is referenced exactly while queued work is pending,
	// which is what keeps an otherwise idle loop alive.
	check      CheckHandle
	checkRefed bool

	// waker interrupts a blocking tick. Unreferenced: it never keeps the
	// loop alive on its own.
	waker WakeHandle

	immediateRunLimit int
	immediatesRun     int

	// fatal holds a captured process-fatal error, re-raised at the start of
	// the next tick.
	fatal error

	state         loopState
	stopRequested atomic.Bool
}

// New creates a loop. Without [WithMultiplexer] it owns a fresh
// [PollMultiplexer].
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	mux := cfg.mux
	muxOwned := false
	if mux == nil {
		mux, err = NewPollMultiplexer()
		if err != nil {
			return nil, err
		}
		muxOwned = true
	}

	l := &Loop{
		mux:               mux,
		log:               cfg.logger,
		immediateRunLimit: cfg.immediateRunLimit,
		activeTimers:      make(map[TimerHandle]*Callback),
	}

	fail := func(err error) (*Loop, error) {
		if muxOwned {
			_ = mux.Close()
		}
		return nil, err
	}

	if l.waker, err = mux.NewWaker(nil); err != nil {
		return fail(err)
	}
	l.waker.Unref()

	if l.check, err = mux.NewCheck(l.processDeferreds); err != nil {
		return fail(err)
	}
	l.check.Unref()

	return l, nil
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// CallImmediately schedules fn to run before the current tick's other
// pending work is considered complete: ahead of deferred callbacks still
// queued for this tick's drain. Immediates are processed up to the per-pass
// run limit; any remainder runs on a subsequent pass.
func (l *Loop) CallImmediately(fn Func, args ...any) (*Callback, error) {
	if err := l.schedulable(fn); err != nil {
		return nil, err
	}

	cb := NewCallback(fn, args...)
	cb.after = l.drainImmediates

	wasIdle := len(l.immediates) == 0 && len(l.deferreds) == 0
	l.immediates = append(l.immediates, cb)
	if wasIdle {
		l.retainCheck()
	}

	return cb, nil
}

// CallSoon schedules fn to run after the current tick finishes, in FIFO
// order on the next deferred drain. The wake-source becomes referenced the
// moment the queue transitions from empty to non-empty, keeping the loop
// alive to process it.
func (l *Loop) CallSoon(fn Func, args ...any) (*Callback, error) {
	if err := l.schedulable(fn); err != nil {
		return nil, err
	}

	cb := NewCallback(fn, args...)
	cb.after = l.drainImmediates

	wasIdle := len(l.immediates) == 0 && len(l.deferreds) == 0
	l.deferreds = append(l.deferreds, cb)
	if wasIdle {
		l.retainCheck()
	}

	return cb, nil
}

// SetTimeout schedules fn to run once after delay. A negative delay fails
// with a [RangeError]. A zero delay schedules through the deferred path
// instead of arming a timer: it is semantically "run after this tick".
func (l *Loop) SetTimeout(fn Func, delay time.Duration, args ...any) (*Callback, error) {
	if err := l.schedulable(fn); err != nil {
		return nil, err
	}
	if delay < 0 {
		return nil, &RangeError{Message: fmt.Sprintf("scale: invalid delay specified: %v", delay)}
	}
	if delay == 0 {
		return l.CallSoon(fn, args...)
	}

	cb := NewCallback(fn, args...)
	handle, err := l.mux.StartTimer(delay, 0, func() { l.invoke(cb) })
	if err != nil {
		return nil, err
	}
	l.activeTimers[handle] = cb

	cb.after = func() {
		l.reclaimTimer(handle)
		l.drainImmediates()
	}
	cb.onCanceled = func() {
		l.reclaimTimer(handle)
	}

	return cb, nil
}

// SetInterval schedules fn to run repeatedly, every interval. A negative
// interval fails with a [RangeError]. The timer handle stays armed and in
// the active set until the returned callback is canceled.
func (l *Loop) SetInterval(fn Func, interval time.Duration, args ...any) (*Callback, error) {
	if err := l.schedulable(fn); err != nil {
		return nil, err
	}
	if interval < 0 {
		return nil, &RangeError{Message: fmt.Sprintf("scale: invalid interval specified: %v", interval)}
	}

	cb := NewCallback(fn, args...)
	cb.after = l.drainImmediates

	handle, err := l.mux.StartTimer(interval, interval, func() { l.invoke(cb) })
	if err != nil {
		return nil, err
	}
	l.activeTimers[handle] = cb

	cb.onCanceled = func() {
		l.reclaimTimer(handle)
	}

	return cb, nil
}

// reclaimTimer stops and closes a timer handle and drops it from the active
// set. No-op for handles already reclaimed (e.g. canceled after firing).
func (l *Loop) reclaimTimer(handle TimerHandle) {
	if _, ok := l.activeTimers[handle]; !ok {
		return
	}
	delete(l.activeTimers, handle)
	if !handle.Closed() {
		_ = handle.Stop()
		_ = handle.Close()
	}
}

// Tick performs exactly one pass of the multiplexer. The pass is
// non-blocking when deferred or immediate work is pending, and a blocking
// single-event wait otherwise. A fatal error captured from a previous
// callback is re-raised here, at the start of the tick, rather than at the
// point it occurred. The bool result reports whether referenced handles
// remain (whether the loop is still live).
func (l *Loop) Tick() (bool, error) {
	if l.state.Load() == StateClosed {
		return false, ErrLoopClosed
	}

	if err := l.fatal; err != nil {
		l.fatal = nil
		return false, err
	}

	block := len(l.deferreds) == 0 && len(l.immediates) == 0

	entered := l.state.TryTransition(StateIdle, StateRunning)
	alive := l.mux.Poll(block)
	if entered {
		l.state.TryTransition(StateRunning, StateIdle)
	}

	return alive, nil
}

// processDeferreds is the check-handle callback, run once per multiplexer
// iteration. It resets the per-pass immediates budget, drains pending
// immediates, then drains a snapshot of the deferred queue: deferreds
// scheduled by the callbacks it runs wait for the next pass, while
// immediates they schedule run as soon as the scheduling callback finishes
// (via the after hook). When the pass leaves no queued work, the check
// handle is dereferenced so the loop may idle or exit.
func (l *Loop) processDeferreds() {
	l.immediatesRun = 0

	hadWork := len(l.deferreds) > 0 || len(l.immediates) > 0

	l.drainImmediates()

	ran := l.deferreds
	l.deferreds = nil
	for i, cb := range ran {
		l.invoke(cb)
		ran[i] = nil
	}

	if hadWork && len(l.deferreds) == 0 && len(l.immediates) == 0 {
		l.releaseCheck()
	}
}

// drainImmediates runs queued immediates until the queue empties or the
// per-pass run limit is reached.
func (l *Loop) drainImmediates() {
	for len(l.immediates) > 0 && l.immediatesRun < l.immediateRunLimit {
		l.immediatesRun++
		cb := l.immediates[0]
		l.immediates[0] = nil
		l.immediates = l.immediates[1:]
		l.invoke(cb)
	}
}

func (l *Loop) retainCheck() {
	if !l.checkRefed && !l.check.Closed() {
		l.checkRefed = true
		l.check.Ref()
	}
}

func (l *Loop) releaseCheck() {
	if l.checkRefed {
		l.checkRefed = false
		l.check.Unref()
	}
}

// invoke executes a callback under the loop's failure policy: ordinary
// failures are logged with the callback's identity and suppressed; a
// [FatalError] is captured for re-raising at the next tick boundary.
func (l *Loop) invoke(cb *Callback) {
	err := l.runCallback(cb)
	if err == nil {
		return
	}

	var fatal *FatalError
	if errors.As(err, &fatal) {
		l.fatal = err
		return
	}

	l.log.Err().
		Err(err).
		Str("func", funcName(cb.fn)).
		Any("args", cb.args).
		Log("callback failed")
}

// runCallback converts a callback panic into an error inspected by invoke.
func (l *Loop) runCallback(cb *Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()

	cb.Invoke()
	return nil
}

// funcName resolves the symbol name of a scheduled function for logging.
func funcName(fn Func) string {
	if fn == nil {
		return "<nil>"
	}
	if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
		return f.Name()
	}
	return "<unknown>"
}

// Run ticks repeatedly until the multiplexer reports no more referenced
// handles, a stop is requested, or a fatal error surfaces. A stop observed
// after a tick closes the loop (Stopping to Closed); a fatal error also
// closes the loop before being returned.
func (l *Loop) Run() error {
	for {
		alive, err := l.Tick()
		if err != nil {
			l.close()
			return err
		}
		if l.stopRequested.Load() {
			l.close()
			return nil
		}
		if !alive {
			// A fatal captured on the final tick would otherwise never get
			// its re-raising tick.
			if err := l.fatal; err != nil {
				l.fatal = nil
				l.close()
				return err
			}
			return nil
		}
	}
}

// RunForever runs the loop with a long-period keep-alive timer, so it keeps
// waiting for work even when no user handles are armed. It returns when
// stopped or on a fatal error.
func (l *Loop) RunForever() error {
	keepAlive, err := l.SetInterval(func(...any) {}, keepAliveInterval)
	if err != nil {
		return err
	}
	defer keepAlive.Cancel()

	return l.Run()
}

// RunOnce performs a single tick. When timeout is positive, a throwaway
// multiplexer timer bounds the blocking wait.
func (l *Loop) RunOnce(timeout time.Duration) error {
	var handle TimerHandle
	if timeout > 0 {
		var err error
		handle, err = l.mux.StartTimer(timeout, 0, func() {})
		if err != nil {
			return err
		}
	}

	_, err := l.Tick()

	if handle != nil && !handle.Closed() {
		_ = handle.Stop()
		_ = handle.Close()
	}
	return err
}

// Stop requests a graceful stop: the loop finishes draining the current
// tick, then closes. Safe to call from any goroutine; the wake-source is
// signaled so a blocked tick returns promptly.
func (l *Loop) Stop() {
	l.state.TransitionAny([]LoopState{StateIdle, StateRunning}, StateStopping)
	l.stopRequested.Store(true)
	_ = l.waker.Signal()
}

// StopImmediately forcibly clears all queues, closes all handles, and
// releases the multiplexer without waiting for the current tick to finish
// gracefully.
func (l *Loop) StopImmediately() {
	l.close()
}

// Exit stops the loop, force-closes it, and terminates the process with the
// given status code.
func (l *Loop) Exit(code int) {
	l.Stop()
	l.close()
	osExit(code)
}

// close releases everything the loop owns. Handles are closed first, then
// the multiplexer runs one final non-blocking pass so close bookkeeping
// settles before it is discarded. Idempotent.
func (l *Loop) close() {
	if !l.state.TransitionAny([]LoopState{StateIdle, StateRunning, StateStopping}, StateClosed) {
		return
	}

	l.immediates = nil
	l.deferreds = nil

	for handle := range l.activeTimers {
		if !handle.Closed() {
			_ = handle.Stop()
			_ = handle.Close()
		}
	}
	l.activeTimers = make(map[TimerHandle]*Callback)

	l.checkRefed = false
	_ = l.waker.Close()
	_ = l.check.Close()

	l.mux.Walk(func(h Handle) {
		_ = h.Close()
	})

	l.mux.Poll(false)
	_ = l.mux.Close()
}

// schedulable validates a scheduling request.
func (l *Loop) schedulable(fn Func) error {
	if l.state.Load() == StateClosed {
		return ErrLoopClosed
	}
	if fn == nil {
		return &TypeError{Message: "scale: callback function must be non-nil"}
	}
	return nil
}
