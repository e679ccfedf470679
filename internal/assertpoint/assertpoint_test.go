package assertpoint

import (
	"errors"
	"testing"
)

func TestFireRecordsEvent(t *testing.T) {
	r := New(nil)
	err := errors.New("transition CLOSED->OPEN with no peerConnectionId")
	r.Fire("conversation.open", err, map[string]any{"direction": "incoming"})

	events := r.Events()
	if len(events) != 1 {
 t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Point != "conversation.open" {
 t.Errorf("Point = %q", events[0].Point)
	}
	if !errors.Is(events[0].Err, err) {
 t.Errorf("Err = %v, want %v", events[0].Err, err)
	}
}

func TestOnFireSinkInvoked(t *testing.T) {
	r := New(nil)
	var got Event
	r.OnFire(func(ev Event) { got = ev })

	r.Fire("test.point", errors.New("boom"), nil)

	if got.Point != "test.point" {
 t.Errorf("sink got Point = %q", got.Point)
	}
}

func TestOnFireNilRemovesSink(t *testing.T) {
	r := New(nil)
	calls := 0
	r.OnFire(func(Event) { calls++ })
	r.Fire("a", errors.New("x"), nil)
	r.OnFire(nil)
	r.Fire("b", errors.New("y"), nil)

	if calls != 1 {
 t.Errorf("sink invoked %d times, want 1", calls)
	}
}
