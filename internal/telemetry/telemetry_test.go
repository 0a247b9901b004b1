package telemetry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/dishwasher/internal/component"
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/mqtt"
	"github.com/sweeney/dishwasher/internal/status"
	"github.com/sweeney/dishwasher/internal/timer"
)

var start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTelemetry(heartbeat time.Duration) (*Telemetry, *mqtt.FakePublisher, *status.Tracker, *timer.FakeClock) {
	clock := timer.NewFakeClock(start)
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(start, status.Config{Broker: "tcp://localhost:1883"})
	tel := New(pub, tracker, heartbeat, component.Options{Clock: clock})
	return tel, pub, tracker, clock
}

func TestPublishesEvents(t *testing.T) {
	tel, pub, _, _ := newTelemetry(0)

	tel.Enqueue(event.NewProgram(event.ProgramFast))
	tel.Enqueue(event.New(event.KeyPressed, 'f'))
	tel.Enqueue(event.NewMachineState(event.StateDrain))
	tel.RunOnce()

	got := pub.Published()
	want := []event.Event{event.NewProgram(event.ProgramFast), event.NewMachineState(event.StateDrain)}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPublishErrorIsNotFatal(t *testing.T) {
	tel, pub, _, _ := newTelemetry(0)
	pub.PublishError = errors.New("broker gone")

	tel.Enqueue(event.NewDoor(event.DoorOpen))
	tel.RunOnce()

	if tel.Faults() != event.FaultNone {
		t.Errorf("publish failure must not raise a fault, got %v", tel.Faults().Flags())
	}

	pub.PublishError = nil
	tel.Enqueue(event.NewDoor(event.DoorClosed))
	tel.RunOnce()
	if got := pub.Published(); len(got) != 1 || got[0] != event.NewDoor(event.DoorClosed) {
		t.Errorf("expected publishing to continue, got %v", got)
	}
}

func TestFaultsStillPublished(t *testing.T) {
	tel, pub, _, _ := newTelemetry(0)

	tel.Enqueue(event.NewError(event.FaultLeak))
	tel.Enqueue(event.New(event.MeasuredWaterLevel, 10))
	tel.RunOnce()

	got := pub.Published()
	if len(got) != 1 || got[0] != event.NewError(event.FaultLeak) {
		t.Errorf("expected only the fault after it is known, got %v", got)
	}
	if tel.Halted() {
		t.Error("telemetry must not halt")
	}
}

func TestHeartbeat(t *testing.T) {
	tel, pub, tracker, clock := newTelemetry(time.Minute)
	pub.Connected = true
	tracker.Apply(event.NewMachineState(event.StateWash), start)

	clock.Advance(59 * time.Second)
	tel.RunOnce()
	if len(pub.System()) != 0 {
		t.Fatal("heartbeat sent early")
	}

	clock.Advance(time.Second)
	tel.RunOnce()
	clock.Advance(time.Minute)
	tel.RunOnce()

	sys := pub.System()
	if len(sys) != 2 {
		t.Fatalf("expected 2 heartbeats, got %d", len(sys))
	}
	if sys[0].Event != "HEARTBEAT" || sys[0].Retained {
		t.Errorf("unexpected heartbeat %+v", sys[0])
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(sys[1].RawPayload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "HEARTBEAT" || parsed.Status.State != "Wash" {
		t.Errorf("unexpected status %+v", parsed.Status)
	}
	if parsed.Status.UptimeSeconds != 120 {
		t.Errorf("UptimeSeconds: got %d, want 120", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT connected in heartbeat")
	}
}

func TestStartupAndShutdown(t *testing.T) {
	tel, pub, _, _ := newTelemetry(0)

	tel.PublishStartup()
	tel.PublishShutdown("SIGTERM")

	sys := pub.System()
	if len(sys) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(sys))
	}
	if sys[0].Event != "STARTUP" || !sys[0].Retained {
		t.Errorf("unexpected startup %+v", sys[0])
	}
	if sys[1].Event != "SHUTDOWN" || sys[1].Reason != "SIGTERM" || !sys[1].Retained {
		t.Errorf("unexpected shutdown %+v", sys[1])
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(sys[1].RawPayload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}
