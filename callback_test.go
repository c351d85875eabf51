package scale

import "testing"

func TestCallbackInvoke_PassesArguments(t *testing.T) {
	var got []any
	cb := NewCallback(func(args ...any) { got = args }, "a", 2, true)

	cb.Invoke()

	if len(got) != 3 || got[0] != "a" || got[1] != 2 || got[2] != true {
		t.Errorf("unexpected arguments: %#v", got)
	}
}

func TestCallbackInvoke_RunsAfterHook(t *testing.T) {
	var order []string
	cb := NewCallback(func(...any) { order = append(order, "fn") })
	cb.after = func() { order = append(order, "after") }

	cb.Invoke()

	if len(order) != 2 || order[0] != "fn" || order[1] != "after" {
		t.Errorf("expected fn then after, got %v", order)
	}
}

func TestCallbackCancel_PreventsInvoke(t *testing.T) {
	ran := false
	afterRan := false
	cb := NewCallback(func(...any) { ran = true })
	cb.after = func() { afterRan = true }

	cb.Cancel()
	cb.Invoke()

	if ran {
		t.Error("canceled callback must not run")
	}
	if afterRan {
		t.Error("after hook must not run for a canceled callback")
	}
	if !cb.Canceled() {
		t.Error("Canceled() should report true")
	}
}

func TestCallbackCancel_FiresOnCanceledOnce(t *testing.T) {
	fired := 0
	cb := NewCallback(func(...any) {})
	cb.onCanceled = func() { fired++ }

	cb.Cancel()
	cb.Cancel()
	cb.Cancel()

	if fired != 1 {
		t.Errorf("onCanceled fired %d times, want 1", fired)
	}
}

func TestCallbackInvoke_SelfCancelSkipsAfterHook(t *testing.T) {
	afterRan := false
	var cb *Callback
	cb = NewCallback(func(...any) { cb.Cancel() })
	cb.after = func() { afterRan = true }

	cb.Invoke()

	if afterRan {
		t.Error("after hook must not run when the callback cancels itself")
	}
}
