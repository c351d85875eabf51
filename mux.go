//go:build unix

package scale

import (
	"container/heap"
	"encoding/binary"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// PollMultiplexer is the default [Multiplexer]. It multiplexes a wake
// descriptor (eventfd on Linux, a self-pipe elsewhere) and a min-heap of
// timers through a single poll(2) wait per iteration.
//
// Apart from [WakeHandle.Signal], a PollMultiplexer must only be driven from
// one goroutine.
type PollMultiplexer struct {
	timers    muxTimerHeap
	checks    []*muxCheck
	wakers    []*muxWaker
	handles   []muxLiveHandle
	wakeBuf   [8]byte
	wakeRead  int
	wakeWrite int
	refs      int
	seq       uint64
	closed    bool
}

// muxLiveHandle is the intersection used for Walk and shutdown bookkeeping.
type muxLiveHandle interface {
	Handle
}

// NewPollMultiplexer creates a PollMultiplexer with its wake descriptor open.
func NewPollMultiplexer() (*PollMultiplexer, error) {
	wakeRead, wakeWrite, err := createWakeFd(0, wakeFdCloexec|wakeFdNonblock)
	if err != nil {
		return nil, err
	}
	return &PollMultiplexer{
		wakeRead:  wakeRead,
		wakeWrite: wakeWrite,
	}, nil
}

// Poll implements [Multiplexer.Poll].
func (m *PollMultiplexer) Poll(block bool) bool {
	if m.closed {
		return false
	}

	timeout := 0
	if block && m.refs > 0 {
		timeout = m.calculateTimeout()
	}

	fds := []unix.PollFd{{Fd: int32(m.wakeRead), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, timeout)
		if err == unix.EINTR {
			continue
		}
		if err == nil && n > 0 && fds[0].Revents&unix.POLLIN != 0 {
			m.drainWake()
		}
		break
	}

	m.runTimers()
	m.runChecks()

	return m.refs > 0
}

// calculateTimeout determines how long to block in poll, in milliseconds.
// Returns -1 (block until woken) when no timer is armed.
func (m *PollMultiplexer) calculateTimeout() int {
	next := m.peekTimer()
	if next == nil {
		return -1
	}

	delay := time.Until(next.when)
	if delay <= 0 {
		return 0
	}
	// Ceiling rounding: a sub-millisecond wait must not truncate to a busy 0.
	if delay < time.Millisecond {
		return 1
	}
	return int(delay.Milliseconds())
}

// drainWake empties the wake descriptor and dispatches pending waker callbacks.
func (m *PollMultiplexer) drainWake() {
	for {
		if _, err := readFD(m.wakeRead, m.wakeBuf[:]); err != nil {
			break
		}
	}
	for _, w := range m.wakers {
		if w.closed || !w.signaled.CompareAndSwap(true, false) {
			continue
		}
		if w.fn != nil {
			w.fn()
		}
	}
}

// runTimers fires all expired timers in expiration order. Repeating timers
// are rearmed before their callback runs, so a callback cancelling its own
// timer observes the stopped state.
func (m *PollMultiplexer) runTimers() {
	now := time.Now()
	for {
		t := m.peekTimer()
		if t == nil || t.when.After(now) {
			return
		}
		heap.Pop(&m.timers)

		if t.repeat > 0 {
			t.when = now.Add(t.repeat)
			t.seq = m.nextSeq()
			heap.Push(&m.timers, t)
		} else {
			t.armed = false
			t.unref()
		}

		t.fire()
	}
}

// peekTimer returns the earliest armed timer, discarding stopped heads.
func (m *PollMultiplexer) peekTimer() *muxTimer {
	for len(m.timers) > 0 {
		t := m.timers[0]
		if t.closed || !t.armed {
			heap.Pop(&m.timers)
			continue
		}
		return t
	}
	return nil
}

// runChecks runs every live check callback once.
func (m *PollMultiplexer) runChecks() {
	// Snapshot: a check may register or close handles while running.
	checks := make([]*muxCheck, len(m.checks))
	copy(checks, m.checks)
	for _, c := range checks {
		if !c.closed {
			c.fn()
		}
	}
}

// StartTimer implements [Multiplexer.StartTimer].
func (m *PollMultiplexer) StartTimer(delay, repeat time.Duration, fire func()) (TimerHandle, error) {
	if m.closed {
		return nil, ErrMultiplexerClosed
	}
	t := &muxTimer{
		muxHandle: muxHandle{mux: m},
		when:      time.Now().Add(delay),
		repeat:    repeat,
		fire:      fire,
		armed:     true,
		seq:       m.nextSeq(),
	}
	t.Ref()
	heap.Push(&m.timers, t)
	m.handles = append(m.handles, t)
	return t, nil
}

// NewCheck implements [Multiplexer.NewCheck].
func (m *PollMultiplexer) NewCheck(fn func()) (CheckHandle, error) {
	if m.closed {
		return nil, ErrMultiplexerClosed
	}
	c := &muxCheck{muxHandle: muxHandle{mux: m}, fn: fn}
	c.Ref()
	m.checks = append(m.checks, c)
	m.handles = append(m.handles, c)
	return c, nil
}

// NewWaker implements [Multiplexer.NewWaker].
func (m *PollMultiplexer) NewWaker(fn func()) (WakeHandle, error) {
	if m.closed {
		return nil, ErrMultiplexerClosed
	}
	w := &muxWaker{muxHandle: muxHandle{mux: m}, fn: fn}
	w.Ref()
	m.wakers = append(m.wakers, w)
	m.handles = append(m.handles, w)
	return w, nil
}

// Walk implements [Multiplexer.Walk].
func (m *PollMultiplexer) Walk(fn func(Handle)) {
	handles := make([]muxLiveHandle, len(m.handles))
	copy(handles, m.handles)
	for _, h := range handles {
		if !h.Closed() {
			fn(h)
		}
	}
}

// Close implements [Multiplexer.Close].
func (m *PollMultiplexer) Close() error {
	if m.closed {
		return ErrMultiplexerClosed
	}
	m.closed = true

	_ = closeFD(m.wakeRead)
	if m.wakeWrite != m.wakeRead {
		_ = closeFD(m.wakeWrite)
	}

	m.timers = nil
	m.checks = nil
	m.wakers = nil
	m.handles = nil
	return nil
}

func (m *PollMultiplexer) nextSeq() uint64 {
	m.seq++
	return m.seq
}

// dropHandle removes h from the live handle list.
func (m *PollMultiplexer) dropHandle(h muxLiveHandle) {
	for i, live := range m.handles {
		if live == h {
			m.handles = append(m.handles[:i], m.handles[i+1:]...)
			return
		}
	}
}

// muxHandle carries the ref/unref keep-alive bookkeeping shared by every
// handle kind.
type muxHandle struct {
	mux    *PollMultiplexer
	refd   bool
	closed bool
}

// Ref implements [Handle.Ref].
func (h *muxHandle) Ref() {
	if h.closed || h.refd {
		return
	}
	h.refd = true
	h.mux.refs++
}

// Unref implements [Handle.Unref].
func (h *muxHandle) Unref() {
	h.unref()
}

func (h *muxHandle) unref() {
	if !h.refd {
		return
	}
	h.refd = false
	h.mux.refs--
}

// Closed implements [Handle.Closed].
func (h *muxHandle) Closed() bool {
	return h.closed
}

// destroy marks the handle closed and releases its reference.
func (h *muxHandle) destroy() {
	if h.closed {
		return
	}
	h.unref()
	h.closed = true
}

// muxTimer is a heap-ordered timer handle. Stopped timers stay in the heap
// and are discarded lazily when they reach the head.
type muxTimer struct {
	muxHandle
	fire   func()
	when   time.Time
	repeat time.Duration
	seq    uint64
	armed  bool
}

// Stop implements [TimerHandle.Stop].
func (t *muxTimer) Stop() error {
	if t.closed {
		return ErrMultiplexerClosed
	}
	t.armed = false
	t.unref()
	return nil
}

// Close implements [Handle.Close].
func (t *muxTimer) Close() error {
	if t.closed {
		return ErrMultiplexerClosed
	}
	t.armed = false
	t.destroy()
	t.mux.dropHandle(t)
	return nil
}

// muxCheck runs its callback once per Poll iteration.
type muxCheck struct {
	muxHandle
	fn func()
}

// Close implements [Handle.Close].
func (c *muxCheck) Close() error {
	if c.closed {
		return ErrMultiplexerClosed
	}
	c.destroy()
	for i, live := range c.mux.checks {
		if live == c {
			c.mux.checks = append(c.mux.checks[:i], c.mux.checks[i+1:]...)
			break
		}
	}
	c.mux.dropHandle(c)
	return nil
}

// muxWaker interrupts a blocking Poll from any goroutine.
type muxWaker struct {
	muxHandle
	fn       func()
	signaled atomic.Bool
}

// Signal implements [WakeHandle.Signal]. Safe to call concurrently; write
// errors during shutdown (EBADF, EPIPE) are returned but are expected and
// non-fatal for callers racing a close.
func (w *muxWaker) Signal() error {
	w.signaled.Store(true)
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := writeFD(w.mux.wakeWrite, buf[:])
	return err
}

// Close implements [Handle.Close].
func (w *muxWaker) Close() error {
	if w.closed {
		return ErrMultiplexerClosed
	}
	w.destroy()
	for i, live := range w.mux.wakers {
		if live == w {
			w.mux.wakers = append(w.mux.wakers[:i], w.mux.wakers[i+1:]...)
			break
		}
	}
	w.mux.dropHandle(w)
	return nil
}

// muxTimerHeap is a min-heap of timers ordered by expiration, with a sequence
// tiebreak so equal deadlines fire in arming order.
type muxTimerHeap []*muxTimer

func (h muxTimerHeap) Len() int { return len(h) }

func (h muxTimerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h muxTimerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *muxTimerHeap) Push(x any) {
	*h = append(*h, x.(*muxTimer))
}

func (h *muxTimerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}
