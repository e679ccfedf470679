// Package assertpoint implements an out-of-band diagnostic channel: a
// checkpoint emitted when an internal invariant is violated — a null
// where required, a state-machine transition the model says cannot
// happen. It is never used for control flow; callers still return an
// error to their own caller, the Reporter only records that the
// violation happened.
package assertpoint

import (
	"log/slog"
	"sync"
)

// Reporter records assertion-point events and keeps every fired event for
// Events. The zero value logs through slog.Default; tests construct a
// Reporter with a recording sink to assert on what fired.
type Reporter struct {
	mu sync.Mutex
	log *slog.Logger
	events []Event
	sink func(Event)
}

// Event is one assertion-point firing: Point names the checkpoint (e.g.
// "conversation.transferPeerConnection.lockOrder"), Err is the violated
// contract, Fields carries whatever context the caller had at hand.
type Event struct {
	Point string
	Err error
	Fields map[string]any
}

// New returns a Reporter logging through log. A nil log uses slog.Default.
func New(log *slog.Logger) *Reporter {
	if log == nil {
 log = slog.Default()
	}
	return &Reporter{log: log}
}

// OnFire installs a sink invoked synchronously after every Fire, in
// addition to logging — e.g. to forward events to a remote diagnostics
// endpoint. Pass nil to remove a previously installed sink.
func (r *Reporter) OnFire(sink func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// Fire records an internal invariant violation. point identifies the checkpoint;
// err is the violated contract; fields are logged as structured attributes.
func (r *Reporter) Fire(point string, err error, fields map[string]any) {
	r.mu.Lock()
	ev := Event{Point: point, Err: err, Fields: fields}
	r.events = append(r.events, ev)
	sink := r.sink
	r.mu.Unlock()

	args := make([]any, 0, 2+2*len(fields))
	args = append(args, "point", point)
	for k, v := range fields {
 args = append(args, k, v)
	}
	log := r.log
	if log == nil {
 log = slog.Default()
	}
	log.Error("assertion point fired", append(args, "error", err)...)

	if sink != nil {
 sink(ev)
	}
}

// Events returns a copy of every event fired so far. Intended for tests.
func (r *Reporter) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
