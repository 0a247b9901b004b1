package mqtt

import (
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/logging"
)

// pendingMsg is a serialized message waiting for the broker.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	// key is set for periodic messages. A newer message with the same key
	// makes the queued one worthless.
	key string
}

// backlog keeps messages published while the broker is unreachable.
//
// Analog readings and heartbeats repeat every few seconds, so only the
// latest of each is kept and they are the first to go when the backlog is
// full. Actuator commands, state changes and faults are only dropped when
// nothing else is left. Not safe for concurrent use.
type backlog struct {
	msgs     []pendingMsg
	capacity int
	overflow bool // a message was dropped since the last drain
	log      *logging.Logger
}

func newBacklog(capacity int, log *logging.Logger) *backlog {
	if log == nil {
		log = logging.Discard()
	}
	return &backlog{
		msgs:     make([]pendingMsg, 0, capacity),
		capacity: capacity,
		log:      log,
	}
}

func (b *backlog) push(m pendingMsg) {
	if b.capacity <= 0 {
		return
	}
	if m.key != "" {
		for i := range b.msgs {
			if b.msgs[i].key == m.key {
				b.remove(i)
				break
			}
		}
	}
	if len(b.msgs) == b.capacity {
		b.evict()
	}
	b.msgs = append(b.msgs, m)
}

// evict drops the oldest periodic message, or the oldest of all when
// there is none.
func (b *backlog) evict() {
	victim := 0
	for i := range b.msgs {
		if b.msgs[i].key != "" {
			victim = i
			break
		}
	}
	if !b.overflow {
		b.log.Warn("mqtt backlog full, dropping messages", "capacity", b.capacity)
		b.overflow = true
	}
	b.remove(victim)
}

func (b *backlog) remove(i int) {
	copy(b.msgs[i:], b.msgs[i+1:])
	b.msgs = b.msgs[:len(b.msgs)-1]
}

// drain returns the queued messages oldest first and empties the backlog.
func (b *backlog) drain() []pendingMsg {
	if len(b.msgs) == 0 {
		return nil
	}
	out := append([]pendingMsg(nil), b.msgs...)
	b.msgs = b.msgs[:0]
	b.overflow = false
	return out
}

func (b *backlog) len() int { return len(b.msgs) }

// periodicKey returns the backlog key for events that are superseded by
// the next one of their type.
func periodicKey(ev event.Event) string {
	switch ev.Type() {
	case event.MeasuredWaterLevel,
		event.MeasuredTemperature,
		event.MeasuredCircCurrent,
		event.MeasuredDrainCurrent,
		event.RemainingTime:
		return ev.TypeName()
	}
	return ""
}
