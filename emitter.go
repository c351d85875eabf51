package scale

import (
	"github.com/joeycumines/logiface"
)

// Synthetic event names with built-in semantics.
const (
	// EventNewListener is emitted by AddListener with the event name and the
	// listener about to be inserted.
	EventNewListener = "newListener"

	// EventRemoveListener is emitted by RemoveListener with the event name
	// and the removed listener.
	EventRemoveListener = "removeListener"

	// EventError is the strict-delivery event: emitting it with no
	// registered listeners fails with [ErrUncaughtError].
	EventError = "error"
)

// defaultMaxListeners is the per-event listener count above which a leak
// warning is logged, once per event.
const defaultMaxListeners = 10

// Listener is a callback registered on an [EventEmitter]. Listeners run
// synchronously during Emit, in registration order, unless registered via
// [EventEmitter.OnDeferred].
type Listener func(args ...any)

// ListenerID uniquely identifies a registered listener for removal. Go
// functions cannot be reliably compared for equality, so every registration
// is issued a fresh ID.
type ListenerID uint64

// listenerEntry pairs a listener with its ID for removal.
type listenerEntry struct {
	fn Listener
	id ListenerID
}

// EventEmitter is a named-event publish/subscribe registry supporting
// one-shot and persistent listeners, deferred listeners, leak-detection
// warnings, and strict "error" event semantics.
//
// Typically, event names are camel-cased strings, but any string is
// accepted. An EventEmitter is confined to its owner's thread of control;
// like the rest of the scheduler it performs no locking.
type EventEmitter struct {
	events map[string][]listenerEntry

	// warned records events already past their leak warning.
	warned map[string]struct{}

	loop *Loop
	log  *logiface.Logger[logiface.Event]

	maxListeners int
	nextID       ListenerID
}

// NewEventEmitter creates an emitter with the default listener limit.
func NewEventEmitter(opts ...EmitterOption) *EventEmitter {
	cfg := resolveEmitterOptions(opts)

	logger := cfg.logger
	if logger == nil && cfg.loop != nil {
		logger = cfg.loop.log
	}

	return &EventEmitter{
		events:       make(map[string][]listenerEntry),
		warned:       make(map[string]struct{}),
		loop:         cfg.loop,
		log:          logger,
		maxListeners: defaultMaxListeners,
	}
}

// AddListener registers a listener for the event. A nil listener fails with
// a [TypeError].
//
// When listeners exist for "newListener", it is emitted with the event name
// and the listener before insertion. Checking existence first (rather than
// special-casing the event name) is what stops a "newListener" listener that
// registers itself from looping.
//
// Exceeding the per-event listener limit logs a leak warning, once per
// event.
func (e *EventEmitter) AddListener(event string, fn Listener) (ListenerID, error) {
	if fn == nil {
		return 0, &TypeError{Message: "scale: listener must be non-nil"}
	}

	if len(e.events[EventNewListener]) > 0 {
		e.emit(EventNewListener, event, fn)
	}

	id := e.insert(event, fn)
	e.checkLeak(event)
	return id, nil
}

// On is an alias for AddListener.
func (e *EventEmitter) On(event string, fn Listener) (ListenerID, error) {
	return e.AddListener(event, fn)
}

// OnDeferred registers fn so each invocation is rescheduled through the
// bound loop's deferred queue, rather than run synchronously during Emit.
// Requires [WithEmitterLoop].
func (e *EventEmitter) OnDeferred(event string, fn Listener) (ListenerID, error) {
	if fn == nil {
		return 0, &TypeError{Message: "scale: listener must be non-nil"}
	}
	if e.loop == nil {
		return 0, &TypeError{Message: "scale: emitter is not bound to a loop; deferred listeners unavailable"}
	}

	return e.AddListener(event, Listener(Defer(e.loop, Func(fn))))
}

// Once registers a one-time listener: a self-removing wrapper that
// unregisters itself before invoking fn, guaranteeing at most one invocation
// regardless of re-entrant emits.
func (e *EventEmitter) Once(event string, fn Listener) (ListenerID, error) {
	if fn == nil {
		return 0, &TypeError{Message: "scale: listener must be non-nil"}
	}

	if len(e.events[EventNewListener]) > 0 {
		e.emit(EventNewListener, event, fn)
	}

	var id ListenerID
	id = e.insert(event, func(args ...any) {
		e.removeByID(event, id)
		fn(args...)
	})
	e.checkLeak(event)
	return id, nil
}

// insert appends a fresh entry for event and returns its ID.
func (e *EventEmitter) insert(event string, fn Listener) ListenerID {
	e.nextID++
	id := e.nextID
	e.events[event] = append(e.events[event], listenerEntry{fn: fn, id: id})
	return id
}

// checkLeak logs a one-time warning when an event's listener count exceeds
// the limit. A limit of 0 (unlimited) or 1 never warns.
func (e *EventEmitter) checkLeak(event string) {
	n := len(e.events[event])
	if e.maxListeners <= 1 || n <= e.maxListeners {
		return
	}
	if _, ok := e.warned[event]; ok {
		return
	}
	e.warned[event] = struct{}{}

	e.log.Warning().
		Str("event", event).
		Int("count", n).
		Int("max", e.maxListeners).
		Log("possible EventEmitter memory leak detected; use SetMaxListeners to increase the limit")
}

// RemoveListener removes the listener registered under id for event and
// emits "removeListener" with the event name and the listener. Removing an
// absent listener is intentionally a lenient no-op; the result reports
// whether anything was removed.
func (e *EventEmitter) RemoveListener(event string, id ListenerID) bool {
	return e.removeByID(event, id)
}

func (e *EventEmitter) removeByID(event string, id ListenerID) bool {
	entries := e.events[event]
	for i, entry := range entries {
		if entry.id != id {
			continue
		}
		e.events[event] = append(entries[:i], entries[i+1:]...)
		if len(e.events[event]) == 0 {
			delete(e.events, event)
		}
		e.emit(EventRemoveListener, event, entry.fn)
		return true
	}
	return false
}

// RemoveAllListeners removes every listener for event, or for all events
// when event is empty. When "removeListener" listeners exist, removals
// happen individually so each fires the notification; otherwise listener
// sets are cleared directly. In the clear-everything case the
// "removeListener" set itself goes last, after the other events have been
// processed through it.
func (e *EventEmitter) RemoveAllListeners(event string) {
	if len(e.events[EventRemoveListener]) == 0 {
		if event == "" {
			e.events = make(map[string][]listenerEntry)
		} else {
			delete(e.events, event)
		}
		return
	}

	if event != "" {
		e.removeAllOf(event)
		return
	}

	// Snapshot: removal notifications may mutate the registry.
	names := make([]string, 0, len(e.events))
	for name := range e.events {
		if name != EventRemoveListener {
			names = append(names, name)
		}
	}
	for _, name := range names {
		e.removeAllOf(name)
	}
	delete(e.events, EventRemoveListener)
}

func (e *EventEmitter) removeAllOf(event string) {
	entries := e.events[event]
	ids := make([]ListenerID, len(entries))
	for i, entry := range entries {
		ids[i] = entry.id
	}
	for _, id := range ids {
		e.removeByID(event, id)
	}
}

// SetMaxListeners adjusts the per-event leak warning threshold (default 10).
// Zero means unlimited. A negative value fails with a [TypeError].
func (e *EventEmitter) SetMaxListeners(n int) error {
	if n < 0 {
		return &TypeError{Message: "scale: max listeners must be a non-negative number"}
	}
	e.maxListeners = n
	return nil
}

// MaxListeners returns the current leak warning threshold.
func (e *EventEmitter) MaxListeners() int {
	return e.maxListeners
}

// Emit invokes every currently registered listener for event, in
// registration order, synchronously, with the given arguments. It reports
// whether any listener existed. Listeners added or removed during the emit
// do not affect the in-flight iteration (snapshot semantics).
//
// Emitting "error" with no registered listeners fails with
// [ErrUncaughtError]: errors must always be handled.
func (e *EventEmitter) Emit(event string, args ...any) (bool, error) {
	if event == EventError && len(e.events[event]) == 0 {
		return false, ErrUncaughtError
	}
	return e.emit(event, args...), nil
}

// emit dispatches without the "error" policy, for internal notifications.
func (e *EventEmitter) emit(event string, args ...any) bool {
	entries := e.events[event]
	if len(entries) == 0 {
		return false
	}

	snapshot := make([]listenerEntry, len(entries))
	copy(snapshot, entries)
	for _, entry := range snapshot {
		entry.fn(args...)
	}
	return true
}

// ListenerCount returns the number of listeners registered for event.
func (e *EventEmitter) ListenerCount(event string) int {
	return len(e.events[event])
}

// Listeners returns the listeners registered for event, in registration
// order. An absent event yields an empty slice.
func (e *EventEmitter) Listeners(event string) []Listener {
	entries := e.events[event]
	listeners := make([]Listener, len(entries))
	for i, entry := range entries {
		listeners[i] = entry.fn
	}
	return listeners
}
