package scale

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timerEvents records the timer's lifecycle events in order.
func timerEvents(t *testing.T, timer *Timer) *[]string {
	t.Helper()
	var events []string
	for _, name := range []string{TimerStarted, TimerTimeout, TimerStopped} {
		_, err := timer.On(name, func(...any) { events = append(events, name) })
		require.NoError(t, err)
	}
	return &events
}

func TestNewTimer_NegativeDelay(t *testing.T) {
	l, _, _ := newTestLoop()

	_, err := NewTimer(l, -time.Second, false)

	var rangeErr *RangeError
	require.ErrorAs(t, err, &rangeErr)
}

func TestTimer_OneShotLifecycle(t *testing.T) {
	l, m, _ := newTestLoop()
	timer, err := NewTimer(l, 25*time.Millisecond, false)
	require.NoError(t, err)
	events := timerEvents(t, timer)

	require.NoError(t, timer.Start())
	assert.True(t, timer.Active())
	require.Len(t, m.timers, 1)
	assert.Zero(t, m.timers[0].repeat)

	m.expire()

	assert.Equal(t, []string{TimerStarted, TimerTimeout}, *events)
	assert.False(t, timer.Active(), "one-shot timer is inactive after firing")

	// Stopping after the expiry is a no-op: no "stopped" event.
	require.NoError(t, timer.Stop())
	assert.Equal(t, []string{TimerStarted, TimerTimeout}, *events)
}

func TestTimer_RepeatingFiresUntilStopped(t *testing.T) {
	l, m, _ := newTestLoop()
	timer, err := NewTimer(l, 10*time.Millisecond, true)
	require.NoError(t, err)
	events := timerEvents(t, timer)

	require.NoError(t, timer.Start())
	require.Len(t, m.timers, 1)
	assert.Equal(t, 10*time.Millisecond, m.timers[0].repeat)

	m.expire()
	m.expire()
	assert.Equal(t, []string{TimerStarted, TimerTimeout, TimerTimeout}, *events)
	assert.True(t, timer.Active())

	require.NoError(t, timer.Stop())
	assert.False(t, timer.Active())

	m.expire()
	assert.Equal(t, []string{TimerStarted, TimerTimeout, TimerTimeout, TimerStopped}, *events,
		"a stopped timer must not fire again")
}

func TestTimer_StartIdempotent(t *testing.T) {
	l, m, _ := newTestLoop()
	timer, err := NewTimer(l, time.Second, true)
	require.NoError(t, err)
	events := timerEvents(t, timer)

	require.NoError(t, timer.Start())
	require.NoError(t, timer.Start())

	assert.Equal(t, []string{TimerStarted}, *events)
	assert.Len(t, m.timers, 1)
}

func TestTimer_StopWithoutStart(t *testing.T) {
	l, _, _ := newTestLoop()
	timer, err := NewTimer(l, time.Second, false)
	require.NoError(t, err)
	events := timerEvents(t, timer)

	require.NoError(t, timer.Stop())

	assert.Empty(t, *events)
}

func TestTimer_RestartAfterStop(t *testing.T) {
	l, m, _ := newTestLoop()
	timer, err := NewTimer(l, time.Second, false)
	require.NoError(t, err)
	events := timerEvents(t, timer)

	require.NoError(t, timer.Start())
	require.NoError(t, timer.Stop())
	require.NoError(t, timer.Start())

	m.expire()

	assert.Equal(t, []string{TimerStarted, TimerStopped, TimerStarted, TimerTimeout}, *events)
}

func TestTimer_ClosedLoop(t *testing.T) {
	l, _, _ := newTestLoop()
	timer, err := NewTimer(l, time.Second, false)
	require.NoError(t, err)

	l.StopImmediately()

	assert.ErrorIs(t, timer.Start(), ErrLoopClosed)
	assert.False(t, timer.Active())
}
