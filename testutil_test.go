package scale

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// testEvent is a minimal logiface.Event implementation that records the
// message and fields, for asserting on the structured logging paths.
type testEvent struct {
	logiface.UnimplementedEvent
	fields map[string]any
	msg    string
	level  logiface.Level
}

func (e *testEvent) Level() logiface.Level        { return e.level }
func (e *testEvent) AddField(key string, val any) { e.fields[key] = val }
func (e *testEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}
func (e *testEvent) AddError(err error) bool {
	e.fields["err"] = err
	return true
}

// testEventFactory creates testEvent instances.
type testEventFactory struct{}

func (f *testEventFactory) NewEvent(level logiface.Level) *testEvent {
	return &testEvent{level: level, fields: make(map[string]any)}
}

// logCapture collects written events for inspection.
type logCapture struct {
	events []*testEvent
}

func (c *logCapture) Write(event *testEvent) error {
	c.events = append(c.events, event)
	return nil
}

// byMessage returns the captured events carrying msg.
func (c *logCapture) byMessage(msg string) []*testEvent {
	var out []*testEvent
	for _, e := range c.events {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// newCaptureLogger returns a generic logger whose output lands in the
// returned capture.
func newCaptureLogger() (*logiface.Logger[logiface.Event], *logCapture) {
	capture := &logCapture{}
	typedLogger := logiface.New[*testEvent](
		logiface.WithEventFactory[*testEvent](&testEventFactory{}),
		logiface.WithWriter[*testEvent](capture),
	)
	return typedLogger.Logger(), capture
}

// fakeMux is a deterministic in-memory Multiplexer. Timers only fire when
// the test calls expire, and Poll runs check callbacks synchronously, so
// scheduling order can be asserted tick by tick.
type fakeMux struct {
	timers []*fakeTimer
	checks []*fakeCheck
	wakers []*fakeWaker
	polls  []bool
	refs   int
	closed bool
}

func newFakeMux() *fakeMux { return &fakeMux{} }

type fakeHandle struct {
	mux    *fakeMux
	refed  bool
	closed bool
}

func (h *fakeHandle) Ref() {
	if !h.refed && !h.closed {
		h.refed = true
		h.mux.refs++
	}
}

func (h *fakeHandle) Unref() {
	if h.refed {
		h.refed = false
		h.mux.refs--
	}
}

func (h *fakeHandle) Closed() bool { return h.closed }

func (h *fakeHandle) markClosed() {
	if !h.closed {
		h.Unref()
		h.closed = true
	}
}

type fakeTimer struct {
	fakeHandle
	fire    func()
	delay   time.Duration
	repeat  time.Duration
	stopped bool
	fires   int
}

func (t *fakeTimer) Stop() error {
	t.stopped = true
	return nil
}

func (t *fakeTimer) Close() error {
	t.markClosed()
	return nil
}

type fakeCheck struct {
	fakeHandle
	fn func()
}

func (c *fakeCheck) Close() error {
	c.markClosed()
	return nil
}

type fakeWaker struct {
	fakeHandle
	fn      func()
	signals atomic.Int32
}

func (w *fakeWaker) Signal() error {
	w.signals.Add(1)
	return nil
}

func (w *fakeWaker) Close() error {
	w.markClosed()
	return nil
}

func (m *fakeMux) Poll(block bool) bool {
	m.polls = append(m.polls, block)
	checks := append([]*fakeCheck(nil), m.checks...)
	for _, c := range checks {
		if !c.closed {
			c.fn()
		}
	}
	return m.refs > 0
}

func (m *fakeMux) StartTimer(delay, repeat time.Duration, fire func()) (TimerHandle, error) {
	t := &fakeTimer{fakeHandle: fakeHandle{mux: m}, fire: fire, delay: delay, repeat: repeat}
	t.Ref()
	m.timers = append(m.timers, t)
	return t, nil
}

func (m *fakeMux) NewCheck(fn func()) (CheckHandle, error) {
	c := &fakeCheck{fakeHandle: fakeHandle{mux: m}, fn: fn}
	c.Ref()
	m.checks = append(m.checks, c)
	return c, nil
}

func (m *fakeMux) NewWaker(fn func()) (WakeHandle, error) {
	w := &fakeWaker{fakeHandle: fakeHandle{mux: m}, fn: fn}
	w.Ref()
	m.wakers = append(m.wakers, w)
	return w, nil
}

func (m *fakeMux) Walk(fn func(Handle)) {
	for _, t := range m.timers {
		if !t.closed {
			fn(t)
		}
	}
	for _, c := range m.checks {
		if !c.closed {
			fn(c)
		}
	}
	for _, w := range m.wakers {
		if !w.closed {
			fn(w)
		}
	}
}

func (m *fakeMux) Close() error {
	m.closed = true
	return nil
}

// expire fires every armed timer once, as a real multiplexer would at the
// timers' shared expiration instant.
func (m *fakeMux) expire() {
	timers := append([]*fakeTimer(nil), m.timers...)
	for _, t := range timers {
		if t.closed || t.stopped {
			continue
		}
		t.fires++
		t.fire()
	}
}

// newTestLoop builds a loop on a fakeMux with a capturing logger.
func newTestLoop(opts ...LoopOption) (*Loop, *fakeMux, *logCapture) {
	m := newFakeMux()
	logger, capture := newCaptureLogger()
	l, err := New(append([]LoopOption{WithMultiplexer(m), WithLogger(logger)}, opts...)...)
	if err != nil {
		panic(err)
	}
	return l, m, capture
}
