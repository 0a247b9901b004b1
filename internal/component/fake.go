package component

import (
	"sync"

	"github.com/sweeney/dishwasher/internal/event"
)

// Recorder is a Broadcaster that records what components send.
type Recorder struct {
	mu     sync.Mutex
	events []event.Event
	origin []string
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Broadcast records ev.
func (r *Recorder) Broadcast(origin string, ev event.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.origin = append(r.origin, origin)
	r.mu.Unlock()
}

// Events returns a copy of every recorded event.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// Take returns the recorded events and clears the record.
func (r *Recorder) Take() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	r.origin = nil
	return out
}

// OfType returns the recorded events with type t.
func (r *Recorder) OfType(t event.Type) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, ev := range r.events {
		if ev.Type() == t {
			out = append(out, ev)
		}
	}
	return out
}
