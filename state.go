package scale

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
// State machine:
//
//	StateIdle → StateRunning        [Tick, on entering the multiplexer pass]
//	StateRunning → StateIdle        [Tick, when the multiplexer pass returns]
//	StateIdle/StateRunning → StateStopping  [Stop]
//	StateStopping → StateClosed     [Run observing the stop request after a tick]
//	any → StateClosed               [StopImmediately / Exit]
type LoopState uint32

const (
	// StateIdle indicates the loop is between ticks.
	StateIdle LoopState = iota
	// StateRunning indicates the loop is inside a tick.
	StateRunning
	// StateStopping indicates a stop has been requested and the loop is draining.
	StateStopping
	// StateClosed indicates multiplexer resources have been released. Terminal.
	StateClosed
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// loopState is a small atomic state machine. Temporary states (Idle, Running)
// transition via CAS; irreversible states (Closed) are stored directly.
type loopState struct {
	v atomic.Uint32
}

// Load returns the current state atomically.
func (s *loopState) Load() LoopState {
	return LoopState(s.v.Load())
}

// TryTransition attempts to atomically transition from one state to another.
func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// TransitionAny attempts to transition from any of the given source states.
func (s *loopState) TransitionAny(validFrom []LoopState, to LoopState) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint32(from), uint32(to)) {
			return true
		}
	}
	return false
}
