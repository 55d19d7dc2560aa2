package notify

import (
	"reflect"
	"testing"
)

func TestNotifyOrderAndUnsubscribe(t *testing.T) {
	var r Registry[int]
	var got []string

	r.Subscribe(func(v int) { got = append(got, "a") })
	unsubB := r.Subscribe(func(v int) { got = append(got, "b") })
	r.Subscribe(func(v int) { got = append(got, "c") })

	r.Notify(1)
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	unsubB()
	unsubB()
	got = nil
	r.Notify(2)
	if want := []string{"a", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("after unsubscribe got %v, want %v", got, want)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 listeners, got %d", r.Len())
	}
}

func TestNotifyRecoversPanics(t *testing.T) {
	var r Registry[string]
	var panics []any
	r.OnPanic = func(rec any) { panics = append(panics, rec) }

	called := false
	r.Subscribe(func(string) { panic("boom") })
	r.Subscribe(func(string) { called = true })

	r.Notify("x")

	if !called {
		t.Fatal("second listener was not called")
	}
	if len(panics) != 1 || panics[0] != "boom" {
		t.Fatalf("unexpected panics %v", panics)
	}
	if err := PanicError(panics[0]); err == nil || err.Error() != "listener panic: boom" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestUnsubscribeInsideNotify(t *testing.T) {
	var r Registry[int]
	calls := 0
	var unsub func()
	unsub = r.Subscribe(func(int) { calls++; unsub() })

	r.Notify(1)
	r.Notify(2)
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}
