package automat

import (
	"testing"
	"time"

	"github.com/sweeney/dishwasher/internal/component"
	"github.com/sweeney/dishwasher/internal/config"
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/timer"
)

var start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t      *testing.T
	a      *Automat
	clock  *timer.FakeClock
	rec    *component.Recorder
	faults []event.Fault
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	cfg := config.Default()
	cfg.Current.Supervise = false
	if mutate != nil {
		mutate(cfg)
	}
	clock := timer.NewFakeClock(start)
	a := New(cfg, component.Options{Clock: clock})
	rec := component.NewRecorder()
	a.Attach(rec)
	return &harness{t: t, a: a, clock: clock, rec: rec}
}

// send delivers ev and returns the actuator commands it produced.
func (h *harness) send(ev event.Event) []event.Actuate {
	h.a.Enqueue(ev)
	h.a.RunOnce()
	return h.take()
}

// advance moves time forward and returns the commands produced by timers.
func (h *harness) advance(d time.Duration) []event.Actuate {
	h.clock.Advance(d)
	h.a.RunOnce()
	return h.take()
}

// take drains the recorder, keeping faults aside for errors.
func (h *harness) take() []event.Actuate {
	var out []event.Actuate
	for _, ev := range h.rec.Take() {
		switch ev.Type() {
		case event.ActuateCommand:
			out = append(out, ev.Actuate())
		case event.Error:
			h.faults = append(h.faults, ev.Fault())
		}
	}
	return out
}

func (h *harness) contact(c event.OnOff) []event.Actuate {
	return h.send(event.NewOnOff(event.MeasuredSprayContact, c))
}

func (h *harness) errors() []event.Fault {
	h.take()
	return h.faults
}

func expectCommands(t *testing.T, step string, got []event.Actuate, want ...event.Actuate) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: expected %v, got %v", step, want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s: command %d is %s, want %s (all: %v)", step, i, got[i], want[i], got)
		}
	}
}

func level(v int32) event.Event { return event.New(event.MeasuredWaterLevel, v) }
func temp(v int32) event.Event  { return event.New(event.MeasuredTemperature, v) }

func TestWaterLevelHysteresis(t *testing.T) {
	h := newHarness(t, nil)

	h.send(event.New(event.DesiredWaterLevel, 100))

	expectCommands(t, "level 80", h.send(level(80)), event.Drain0, event.Fill1)
	expectCommands(t, "level 95", h.send(level(95)))
	expectCommands(t, "level 100", h.send(level(100)))
	expectCommands(t, "level 108", h.send(level(108)), event.Drain1, event.Fill0)

	if errs := h.errors(); len(errs) != 0 {
		t.Errorf("unexpected faults %v", errs)
	}
}

func TestDesiredLevelDrivesImmediately(t *testing.T) {
	h := newHarness(t, nil)
	h.send(level(30))

	expectCommands(t, "desired 100", h.send(event.New(event.DesiredWaterLevel, 100)), event.Drain0, event.Fill1)
	expectCommands(t, "desired 0", h.send(event.New(event.DesiredWaterLevel, 0)), event.Drain1, event.Fill0)
	expectCommands(t, "desired 30", h.send(event.New(event.DesiredWaterLevel, 30)), event.Fill0, event.Drain0)
}

func TestDrainStopsAtTarget(t *testing.T) {
	h := newHarness(t, nil)
	h.send(level(60))
	expectCommands(t, "drain", h.send(event.New(event.DesiredWaterLevel, 0)), event.Drain1, event.Fill0)

	expectCommands(t, "level 3", h.send(level(3)))
	expectCommands(t, "empty", h.send(level(0)), event.Drain0)
	expectCommands(t, "stays off", h.send(level(0)))
	expectCommands(t, "request when empty", h.send(event.New(event.DesiredWaterLevel, 0)), event.Fill0, event.Drain0)
}

func TestCirculationAbandonsLevelCorrection(t *testing.T) {
	h := newHarness(t, nil)
	h.send(level(60))
	h.send(event.New(event.DesiredWaterLevel, 100))

	expectCommands(t, "circulation on", h.send(event.NewOnOff(event.DesiredCirc, event.On)),
		event.Fill0, event.Drain0, event.Circ1)
	expectCommands(t, "level drops while circulating", h.send(level(40)))
	expectCommands(t, "circulation off", h.send(event.NewOnOff(event.DesiredCirc, event.Off)), event.Circ0)
	expectCommands(t, "level regulated again", h.send(level(40)), event.Drain0, event.Fill1)
}

func TestDesiredLevelWhileCirculatingIsFault(t *testing.T) {
	h := newHarness(t, nil)
	h.send(event.NewOnOff(event.DesiredCirc, event.On))

	expectCommands(t, "desired level", h.send(event.New(event.DesiredWaterLevel, 50)))
	if errs := h.errors(); len(errs) != 1 || errs[0] != event.FaultProgrammer {
		t.Fatalf("expected Programmer fault, got %v", errs)
	}

	// Halted: no further regulation.
	if got := h.send(event.NewOnOff(event.DesiredCirc, event.Off)); len(got) != 0 {
		t.Errorf("halted automat issued %v", got)
	}
}

func TestTemperatureHysteresis(t *testing.T) {
	h := newHarness(t, nil)
	h.send(temp(20))

	expectCommands(t, "desired 50", h.send(event.New(event.DesiredTemperature, 50)), event.Heat1)
	expectCommands(t, "49", h.send(temp(49)))
	expectCommands(t, "52", h.send(temp(52)))
	expectCommands(t, "53", h.send(temp(53)), event.Heat0)
	expectCommands(t, "48", h.send(temp(48)))
	expectCommands(t, "47", h.send(temp(47)), event.Heat1)
}

func TestResinWashCalibration(t *testing.T) {
	h := newHarness(t, nil)

	expectCommands(t, "resin on", h.send(event.NewOnOff(event.DesiredResinWash, event.On)),
		event.Heat0, event.Circ0, event.Spray1, event.Fill1, event.Drain1)

	expectCommands(t, "below half", h.send(level(40)), event.Fill1)
	expectCommands(t, "between", h.send(level(70)))
	expectCommands(t, "full", h.send(level(100)), event.Fill0)

	// Desired values are ignored while the resin wash runs.
	expectCommands(t, "desired temperature", h.send(event.New(event.DesiredTemperature, 60)))

	elapsed := time.Duration(0)
	step := func(d time.Duration, c event.OnOff) {
		h.clock.Advance(d)
		elapsed += d
		if got := h.contact(c); len(got) != 0 {
			t.Fatalf("contact sampling issued %v", got)
		}
	}

	// Motor starts half way through DownOff, then three turns and the
	// next UpOn and UpOff: the contact closes on the Lower window.
	for i, d := range lead {
		step(d, event.OnOff(1-i%2))
	}
	for n := 0; n < 3; n++ {
		for i, d := range turn {
			step(d, event.OnOff(i%2))
		}
	}
	step(time.Second, event.Off)
	step(6500*time.Millisecond, event.On)

	expectCommands(t, "search done", h.advance(90*time.Second-elapsed))
	if h.a.Position() != PositionInvalid {
		t.Fatal("position resolved before deceleration")
	}
	expectCommands(t, "decelerated", h.advance(time.Second))
	if h.a.Position() != PositionLower {
		t.Fatalf("expected Lower after calibration, got %s", h.a.Position())
	}

	// Two seconds into the Lower window already: stop at its centre.
	expectCommands(t, "early", h.advance(749*time.Millisecond))
	expectCommands(t, "stop at window centre", h.advance(time.Millisecond), event.Spray0)

	expectCommands(t, "resin off", h.send(event.NewOnOff(event.DesiredResinWash, event.Off)),
		event.Fill0, event.Drain0)

	if errs := h.errors(); len(errs) != 0 {
		t.Errorf("unexpected faults %v", errs)
	}
}

func TestResinWashCalibratedAfterWindowCentreStopsMotor(t *testing.T) {
	h := newHarness(t, nil)
	h.send(event.NewOnOff(event.DesiredResinWash, event.On))

	// Three turns after the lead: the last transition enters the Upper
	// window nearly ten seconds before calibration.
	for i, d := range lead {
		h.clock.Advance(d)
		h.contact(event.OnOff(1 - i%2))
	}
	for n := 0; n < 3; n++ {
		for i, d := range turn {
			h.clock.Advance(d)
			h.contact(event.OnOff(i % 2))
		}
	}

	h.advance(90 * time.Second)
	expectCommands(t, "calibrated", h.advance(time.Second), event.Spray0)
	if h.a.Position() != PositionUpper {
		t.Fatalf("expected Upper, got %s", h.a.Position())
	}
}

func TestResinWashContinuesAfterCalibration(t *testing.T) {
	h := newHarness(t, nil)
	h.send(event.NewOnOff(event.DesiredResinWash, event.On))

	// Ends just after the Both window: the motor runs on to Upper.
	for i, d := range lead {
		h.clock.Advance(d)
		h.contact(event.OnOff(1 - i%2))
	}
	for n := 0; n < 2; n++ {
		for i, d := range turn {
			h.clock.Advance(d)
			h.contact(event.OnOff(i % 2))
		}
	}
	for i, d := range turn[:5] {
		h.clock.Advance(d)
		h.contact(event.OnOff(i % 2))
	}

	h.advance(90 * time.Second)
	expectCommands(t, "decelerated", h.advance(time.Second))
	if h.a.Position() != PositionBoth {
		t.Fatalf("expected Both, got %s", h.a.Position())
	}

	expectCommands(t, "upper contact", h.contact(event.On))
	if h.a.Position() != PositionUpper {
		t.Fatalf("expected Upper, got %s", h.a.Position())
	}
	expectCommands(t, "stop at window centre", h.advance(500*time.Millisecond), event.Spray0)
	if errs := h.errors(); len(errs) != 0 {
		t.Errorf("unexpected faults %v", errs)
	}
}

func TestResinWashOffWithoutCalibrationIsFault(t *testing.T) {
	h := newHarness(t, nil)
	h.send(event.NewOnOff(event.DesiredResinWash, event.On))

	expectCommands(t, "resin off", h.send(event.NewOnOff(event.DesiredResinWash, event.Off)),
		event.Fill0, event.Drain0)
	if errs := h.errors(); len(errs) != 1 || errs[0] != event.FaultSpraySelect {
		t.Errorf("expected SpraySelect fault, got %v", errs)
	}
}

func TestCalibrationWithTooFewSamplesIsFault(t *testing.T) {
	h := newHarness(t, nil)
	h.send(event.NewOnOff(event.DesiredResinWash, event.On))

	for i := 0; i < 4; i++ {
		h.clock.Advance(3 * time.Second)
		h.contact(event.OnOff(i % 2))
	}
	h.advance(90 * time.Second)
	h.advance(time.Second)

	if errs := h.errors(); len(errs) != 1 || errs[0] != event.FaultSpraySelect {
		t.Errorf("expected SpraySelect fault, got %v", errs)
	}
	if h.a.Position() != PositionInvalid {
		t.Errorf("expected Invalid position, got %s", h.a.Position())
	}
}

func TestRepeatedContactStateIsFault(t *testing.T) {
	h := newHarness(t, nil)
	h.send(event.NewOnOff(event.DesiredResinWash, event.On))

	h.contact(event.On)
	h.contact(event.On)

	if errs := h.errors(); len(errs) != 1 || errs[0] != event.FaultSpraySelect {
		t.Errorf("expected SpraySelect fault, got %v", errs)
	}
}

func TestSprayChangeCycle(t *testing.T) {
	h := newHarness(t, nil)
	h.a.position = PositionUpper
	h.a.contact = event.On

	expectCommands(t, "circulation on", h.send(event.NewOnOff(event.DesiredCirc, event.On)),
		event.Fill0, event.Drain0, event.Circ1)
	expectCommands(t, "spray on", h.send(event.NewOnOff(event.DesiredSpray, event.On)),
		event.Spray1, event.Circ0)

	// Circulation stays suppressed during the transition.
	expectCommands(t, "circulation repeated", h.send(event.NewOnOff(event.DesiredCirc, event.On)),
		event.Fill0, event.Drain0)

	expectCommands(t, "leaving upper", h.contact(event.Off))
	expectCommands(t, "reaching lower", h.contact(event.On))
	if h.a.Position() != PositionLower {
		t.Fatalf("expected Lower, got %s", h.a.Position())
	}
	expectCommands(t, "early", h.advance(2749*time.Millisecond))
	expectCommands(t, "stop", h.advance(time.Millisecond), event.Spray0, event.Circ1)

	expectCommands(t, "keep position", h.advance(20*time.Second), event.Spray1, event.Circ0)

	h.send(event.NewOnOff(event.DesiredSpray, event.Off))
	h.contact(event.Off)
	h.contact(event.On)
	if h.a.Position() != PositionBoth {
		t.Fatalf("expected Both, got %s", h.a.Position())
	}
	expectCommands(t, "final stop", h.advance(1500*time.Millisecond), event.Spray0, event.Circ1)
	expectCommands(t, "no further transition", h.advance(time.Minute))

	if errs := h.errors(); len(errs) != 0 {
		t.Errorf("unexpected faults %v", errs)
	}
}

func TestSprayChangeNeedsKnownPosition(t *testing.T) {
	h := newHarness(t, nil)
	h.send(event.NewOnOff(event.MeasuredSprayContact, event.On))

	expectCommands(t, "spray on", h.send(event.NewOnOff(event.DesiredSpray, event.On)))
	if errs := h.errors(); len(errs) != 1 || errs[0] != event.FaultSpraySelect {
		t.Errorf("expected SpraySelect fault, got %v", errs)
	}
}

func TestCurrentSupervision(t *testing.T) {
	supervise := func(c *config.Config) { c.Current.Supervise = true }

	t.Run("connector", func(t *testing.T) {
		h := newHarness(t, supervise)
		h.send(event.New(event.MeasuredCircCurrent, 20))
		h.send(event.NewOnOff(event.DesiredCirc, event.On))
		h.advance(time.Second)

		if errs := h.errors(); len(errs) != 1 || errs[0] != event.FaultCircConnector {
			t.Errorf("expected CircConnector, got %v", errs)
		}
	})

	t.Run("relay stuck", func(t *testing.T) {
		h := newHarness(t, supervise)
		h.send(event.New(event.MeasuredCircCurrent, 250))
		h.send(event.NewOnOff(event.DesiredCirc, event.On))
		h.advance(time.Second)
		if errs := h.errors(); len(errs) != 0 {
			t.Fatalf("healthy pump raised %v", errs)
		}

		h.send(event.NewOnOff(event.DesiredCirc, event.Off))
		h.advance(time.Second)
		if errs := h.errors(); len(errs) != 1 || errs[0] != event.FaultCircRelayStuck {
			t.Errorf("expected CircRelayStuck, got %v", errs)
		}
	})

	t.Run("drain connector", func(t *testing.T) {
		h := newHarness(t, supervise)
		h.send(level(80))
		h.send(event.New(event.DesiredWaterLevel, 0))
		h.advance(time.Second)

		if errs := h.errors(); len(errs) != 1 || errs[0] != event.FaultDrainConnector {
			t.Errorf("expected DrainConnector, got %v", errs)
		}
	})

	t.Run("door open", func(t *testing.T) {
		h := newHarness(t, supervise)
		h.send(event.New(event.MeasuredCircCurrent, 250))
		h.send(event.NewOnOff(event.DesiredCirc, event.On))
		h.advance(500 * time.Millisecond)

		// The interlock cuts the pump; the check waits for the door.
		h.send(event.NewDoor(event.DoorOpen))
		h.send(event.New(event.MeasuredCircCurrent, 0))
		h.advance(10 * time.Second)
		h.send(event.NewDoor(event.DoorClosed))
		h.send(event.New(event.MeasuredCircCurrent, 250))
		h.advance(time.Second)

		if errs := h.errors(); len(errs) != 0 {
			t.Errorf("expected no fault across the door pause, got %v", errs)
		}
	})
}

func TestDoorOpenHoldsRegulation(t *testing.T) {
	h := newHarness(t, nil)
	h.send(level(30))
	expectCommands(t, "desired", h.send(event.New(event.DesiredWaterLevel, 100)), event.Drain0, event.Fill1)

	expectCommands(t, "door open", h.send(event.NewDoor(event.DoorOpen)))
	expectCommands(t, "level while open", h.send(level(40)))
	expectCommands(t, "temperature while open", h.send(temp(10)))
	expectCommands(t, "door open again", h.send(event.NewDoor(event.DoorOpen)))

	expectCommands(t, "door closed", h.send(event.NewDoor(event.DoorClosed)),
		event.Drain0, event.Fill1, event.Heat0)
	expectCommands(t, "regulating again", h.send(level(108)), event.Drain1, event.Fill0)
}

func TestDoorOpenHoldsSprayTimers(t *testing.T) {
	h := newHarness(t, nil)
	h.a.position = PositionUpper
	h.a.contact = event.On

	expectCommands(t, "spray on", h.send(event.NewOnOff(event.DesiredSpray, event.On)),
		event.Spray1, event.Circ0)
	h.contact(event.Off)
	h.contact(event.On)
	expectCommands(t, "moving", h.advance(time.Second))

	expectCommands(t, "door open", h.send(event.NewDoor(event.DoorOpen)))
	expectCommands(t, "held", h.advance(time.Minute))
	expectCommands(t, "door closed", h.send(event.NewDoor(event.DoorClosed)))

	expectCommands(t, "remaining window", h.advance(1749*time.Millisecond))
	expectCommands(t, "stop", h.advance(time.Millisecond), event.Spray0)

	if errs := h.errors(); len(errs) != 0 {
		t.Errorf("unexpected faults %v", errs)
	}
}
