package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/dishwasher/internal/event"
)

// FakePublisher records published events for test assertions. It is safe
// for concurrent use; read the recorded slices through the accessors
// while other goroutines may still publish.
type FakePublisher struct {
	mu sync.Mutex

	// Events contains all controller events that were published.
	Events []event.Event

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	handler CommandHandler
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the controller event.
func (f *FakePublisher) Publish(at time.Time, ev event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(at, ev)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, ev)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(ev SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(ev)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, ev)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// OnCommand stores the command handler.
func (f *FakePublisher) OnCommand(h CommandHandler) error {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
	return nil
}

// Deliver decodes payload as if it arrived on the command topic.
func (f *FakePublisher) Deliver(payload []byte) error {
	ev, err := ParseCommand(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
	return nil
}

// Published returns a copy of the recorded controller events.
func (f *FakePublisher) Published() []event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.Event(nil), f.Events...)
}

// System returns a copy of the recorded system events.
func (f *FakePublisher) System() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.SystemEvents...)
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
