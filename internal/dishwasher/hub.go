// Package dishwasher wires controller components together. The Hub routes
// every event a component emits to all other components and owns their
// lifecycle.
package dishwasher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/dishwasher/internal/component"
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/logging"
)

// ErrDuplicateComponent is returned by Add for a name already in use.
var ErrDuplicateComponent = errors.New("dishwasher: duplicate component name")

// ErrStarted is returned by Add once the hub is running.
var ErrStarted = errors.New("dishwasher: hub already started")

// ExternalOrigin is the origin used for events injected from outside any
// component, such as the MQTT command topic or the keyboard.
const ExternalOrigin = "external"

// Member is a component the hub can route to and run.
type Member interface {
	Name() string
	Enqueue(ev event.Event)
	Attach(b component.Broadcaster)
	Start(ctx context.Context)
	Stop()
}

// Hub is the fan-out router. Broadcast and Inject are safe for concurrent
// use; Add must complete before Start.
type Hub struct {
	mu      sync.RWMutex
	members []Member
	names   map[string]struct{}
	started bool
	log     *logging.Logger
}

// New creates an empty Hub.
func New(log *logging.Logger) *Hub {
	if log == nil {
		log = logging.Discard()
	}
	return &Hub{
		names: make(map[string]struct{}),
		log:   log.With("component", "hub"),
	}
}

// Add registers a member. Start order follows registration order.
func (h *Hub) Add(m Member) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return ErrStarted
	}
	name := m.Name()
	if _, dup := h.names[name]; dup || name == ExternalOrigin {
		return fmt.Errorf("%w: %s", ErrDuplicateComponent, name)
	}
	h.names[name] = struct{}{}
	h.members = append(h.members, m)
	m.Attach(h)
	return nil
}

// Broadcast enqueues ev at every member except origin. Events from one
// origin reach each recipient in emission order.
func (h *Hub) Broadcast(origin string, ev event.Event) {
	h.log.Debug("event", "from", origin, "type", ev.TypeName(), "value", ev.ValueText())

	// Delivery runs unlocked: a full queue broadcasts a fault from inside
	// Enqueue. Add only appends, so the snapshot stays valid.
	h.mu.RLock()
	members := h.members
	h.mu.RUnlock()
	for _, m := range members {
		if m.Name() == origin {
			continue
		}
		m.Enqueue(ev)
	}
}

// Inject delivers an event from outside the component set to every member.
func (h *Hub) Inject(ev event.Event) {
	h.Broadcast(ExternalOrigin, ev)
}

// SetTimeFactor asks every component to dilate its timers by factor.
func (h *Hub) SetTimeFactor(factor int32) {
	h.Inject(event.New(event.TimeFactorChanged, factor))
}

// Start launches every member in registration order.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	h.started = true
	members := append([]Member(nil), h.members...)
	h.mu.Unlock()

	for _, m := range members {
		m.Start(ctx)
	}
	h.log.Info("components started", "count", len(members))
}

// Stop stops every member in reverse registration order, waiting for each.
func (h *Hub) Stop() {
	h.mu.RLock()
	members := append([]Member(nil), h.members...)
	h.mu.RUnlock()

	for i := len(members) - 1; i >= 0; i-- {
		members[i].Stop()
		h.log.Debug("component stopped", "name", members[i].Name())
	}
	h.log.Info("components stopped")
}

// Run starts every member, blocks until ctx is done, then stops them.
func (h *Hub) Run(ctx context.Context) {
	h.Start(ctx)
	<-ctx.Done()
	h.Stop()
}
