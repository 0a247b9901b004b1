// Package telemetry forwards controller events and periodic status
// snapshots to MQTT.
package telemetry

import (
	"errors"
	"time"

	"github.com/sweeney/dishwasher/internal/component"
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/mqtt"
	"github.com/sweeney/dishwasher/internal/status"
	"github.com/sweeney/dishwasher/internal/timer"
)

// Name is the component name used on the hub.
const Name = "telemetry"

const actionHeartbeat timer.Action = 0

// Telemetry is the MQTT forwarding component. Publish failures are logged
// and never raised as faults.
type Telemetry struct {
	*component.Runtime

	pub       mqtt.Publisher
	conn      mqtt.ConnectionStatus
	tracker   *status.Tracker
	heartbeat time.Duration
}

// New creates a Telemetry publishing through pub. A zero heartbeat
// disables status snapshots.
func New(pub mqtt.Publisher, tracker *status.Tracker, heartbeat time.Duration, opts component.Options) *Telemetry {
	t := &Telemetry{
		pub:       pub,
		tracker:   tracker,
		heartbeat: heartbeat,
	}
	if cs, ok := pub.(mqtt.ConnectionStatus); ok {
		t.conn = cs
	}
	t.Runtime = component.New(Name, t, opts)
	if heartbeat > 0 {
		t.ScheduleRealtime(heartbeat, actionHeartbeat)
	}
	return t
}

// HaltOnError implements component.Handler.
func (t *Telemetry) HaltOnError() bool { return false }

// ShouldBeQueued implements component.Handler.
func (t *Telemetry) ShouldBeQueued(ev event.Event) bool {
	return ev.Type() != event.KeyPressed
}

// HandleEvent implements component.Handler.
func (t *Telemetry) HandleEvent(ev event.Event) {
	err := t.pub.Publish(t.Now(), ev)
	switch {
	case err == nil:
	case errors.Is(err, mqtt.ErrNotConnected):
		t.Logger().Debug("event buffered", "event", ev.String())
	default:
		t.Logger().Warn("publish event", "event", ev.String(), "error", err)
	}
}

// HandleTimer implements component.Handler.
func (t *Telemetry) HandleTimer(action timer.Action) {
	if action != actionHeartbeat {
		return
	}
	t.ScheduleRealtime(t.heartbeat, actionHeartbeat)

	snap := t.snapshot()
	t.Logger().Info("heartbeat",
		"uptime", snap.Uptime().Truncate(time.Second),
		"state", snap.State.String(),
		"events", snap.EventCount,
	)
	t.publishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	})
}

// PublishStartup sends the retained STARTUP status. Safe to call from
// any goroutine.
func (t *Telemetry) PublishStartup() {
	snap := t.snapshot()
	t.publishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	})
}

// PublishShutdown sends the retained SHUTDOWN status with the reason,
// usually the signal name. Safe to call from any goroutine.
func (t *Telemetry) PublishShutdown(reason string) {
	snap := t.snapshot()
	t.publishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	})
}

func (t *Telemetry) snapshot() status.Snapshot {
	if t.conn != nil {
		t.tracker.SetMQTTConnected(t.conn.IsConnected())
	}
	return t.tracker.SnapshotAt(t.Now())
}

func (t *Telemetry) publishSystem(ev mqtt.SystemEvent) {
	err := t.pub.PublishSystem(ev)
	switch {
	case err == nil:
		t.Logger().Debug("published system event", "event", ev.Event)
	case errors.Is(err, mqtt.ErrNotConnected):
		t.Logger().Info("system event buffered", "event", ev.Event)
	default:
		t.Logger().Warn("publish system event", "event", ev.Event, "error", err)
	}
}
