package scale

import (
	"testing"
)

func TestDefer_ReschedulesOntoLoop(t *testing.T) {
	l, _, _ := newTestLoop()
	var got []any

	deferred := Defer(l, func(args ...any) { got = args })
	deferred("x", 1)

	if got != nil {
		t.Fatal("deferred function must not run inline")
	}
	mustTick(t, l)
	if len(got) != 2 || got[0] != "x" || got[1] != 1 {
		t.Errorf("deferred arguments = %#v", got)
	}
}

func TestDefer_ClosedLoopLogsFailure(t *testing.T) {
	l, _, capture := newTestLoop()
	deferred := Defer(l, func(...any) { t.Error("must not run") })

	l.StopImmediately()
	deferred()

	if len(capture.byMessage("deferred call could not be scheduled")) != 1 {
		t.Error("scheduling failure on a closed loop should be logged")
	}
}

func TestAsyncFunc_InvokeRunsContinuationInline(t *testing.T) {
	l, _, _ := newTestLoop()
	var order []string

	af := NewAsyncFunc(l, func(done Func, args ...any) {
		order = append(order, "work")
		done(args...)
	})
	af.Invoke(func(...any) { order = append(order, "done") }, "x")

	if len(order) != 2 || order[0] != "work" || order[1] != "done" {
		t.Errorf("expected inline continuation, got %v", order)
	}
}

func TestAsyncFunc_InvokeAsyncDefersContinuation(t *testing.T) {
	l, _, _ := newTestLoop()
	var order []string

	af := NewAsyncFunc(l, func(done Func, args ...any) {
		order = append(order, "work")
		done(args...)
	})
	af.InvokeAsync(func(args ...any) { order = append(order, "done") }, "x")

	if len(order) != 1 || order[0] != "work" {
		t.Fatalf("continuation must not run inline, got %v", order)
	}
	mustTick(t, l)
	if len(order) != 2 || order[1] != "done" {
		t.Errorf("continuation should run on the next tick, got %v", order)
	}
}
