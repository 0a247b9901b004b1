package internal

import (
	"testing"
	"time"

	"github.com/sweeney/dishwasher/internal/automat"
	"github.com/sweeney/dishwasher/internal/component"
	"github.com/sweeney/dishwasher/internal/config"
	"github.com/sweeney/dishwasher/internal/dishwasher"
	"github.com/sweeney/dishwasher/internal/display"
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/gpio"
	"github.com/sweeney/dishwasher/internal/input"
	"github.com/sweeney/dishwasher/internal/logic"
	"github.com/sweeney/dishwasher/internal/mqtt"
	"github.com/sweeney/dishwasher/internal/output"
	"github.com/sweeney/dishwasher/internal/staticerror"
	"github.com/sweeney/dishwasher/internal/status"
	"github.com/sweeney/dishwasher/internal/telemetry"
	"github.com/sweeney/dishwasher/internal/timer"
)

var start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type member interface {
	dishwasher.Member
	RunOnce()
	Faults() event.Fault
	Halted() bool
}

// rig is a complete simulated controller driven synchronously by a fake
// clock. Components are never started; pump runs their loops in turn.
type rig struct {
	hub     *dishwasher.Hub
	clock   *timer.FakeClock
	tracker *status.Tracker
	writer  *gpio.FakeWriter
	pub     *mqtt.FakePublisher
	automat *automat.Automat
	members map[string]member
	order   []member
}

func newRig(t *testing.T) *rig {
	t.Helper()
	cfg := config.Default()
	clock := timer.NewFakeClock(start)
	opts := component.Options{Clock: clock}

	r := &rig{
		hub:     dishwasher.New(nil),
		clock:   clock,
		tracker: status.NewTracker(start, status.Config{Simulated: true}),
		writer:  gpio.NewFakeWriter(),
		pub:     mqtt.NewFakePublisher(),
		members: make(map[string]member),
		automat: automat.New(cfg, opts),
	}
	for _, m := range []member{
		input.New(cfg, nil, opts),
		logic.New(cfg, opts),
		r.automat,
		output.New(r.writer, opts),
		staticerror.New(cfg, opts),
		display.New(r.tracker, nil, opts),
		telemetry.New(r.pub, r.tracker, 0, opts),
	} {
		if err := r.hub.Add(m); err != nil {
			t.Fatalf("Add %s: %v", m.Name(), err)
		}
		r.members[m.Name()] = m
		r.order = append(r.order, m)
	}
	return r
}

// pump advances the clock by d in 100ms steps, letting events settle
// after every step.
func (r *rig) pump(d time.Duration) {
	const step = 100 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		r.clock.Advance(step)
		r.settle()
	}
}

func (r *rig) settle() {
	for round := 0; round < 5; round++ {
		for _, m := range r.order {
			m.RunOnce()
		}
	}
}

func (r *rig) key(k rune) {
	r.hub.Inject(event.New(event.KeyPressed, k))
	r.settle()
}

func (r *rig) relay(a event.Actuator) bool {
	last := r.writer.Last()
	return last != nil && last[a]
}

func (r *rig) published(want event.Event) bool {
	for _, ev := range r.pub.Published() {
		if ev == want {
			return true
		}
	}
	return false
}

// publishedSince returns the events published after the first n.
func (r *rig) publishedSince(n int) []event.Event {
	return r.pub.Published()[n:]
}

func (r *rig) expectAllOff(t *testing.T, when string) {
	t.Helper()
	for a, on := range r.writer.Last() {
		if on {
			t.Errorf("%s on %s", event.Actuator(a), when)
		}
	}
}

func TestIntegrationStartupReportsSensors(t *testing.T) {
	r := newRig(t)
	r.pump(time.Second)

	snap := r.tracker.Snapshot()
	if snap.Door != event.DoorClosed || snap.Salt != event.On || snap.Leak != event.Off {
		t.Errorf("unexpected digital inputs: door=%s salt=%s leak=%s", snap.Door, snap.Salt, snap.Leak)
	}
	if snap.WaterLevel != 0 || snap.Temperature != 20 {
		t.Errorf("unexpected analog inputs: level=%d temperature=%d", snap.WaterLevel, snap.Temperature)
	}
	if snap.State != event.StateIdle || snap.Faults != event.FaultNone {
		t.Errorf("expected idle without faults, got %s %v", snap.State, snap.Faults.Flags())
	}
	if !r.published(event.NewDoor(event.DoorClosed)) {
		t.Error("expected door state published")
	}
	if r.writer.Last() == nil {
		t.Error("expected initial relay write")
	}
}

func TestIntegrationProgramFillsAndDoorInterlocks(t *testing.T) {
	r := newRig(t)
	r.pump(time.Second)

	r.key('r')
	if got := r.tracker.Snapshot().State; got != event.StateDrain {
		t.Fatalf("expected Drain right after selection, got %s", got)
	}
	if !r.published(event.New(event.RemainingTime, 900)) {
		t.Error("expected remaining time published")
	}

	r.pump(15 * time.Second)
	if got := r.tracker.Snapshot().State; got != event.StateRinse1 {
		t.Fatalf("expected Rinse1, got %s", got)
	}
	if !r.relay(event.ActuatorFill) {
		t.Fatalf("expected fill valve open, lines %v", r.writer.Last())
	}

	before := len(r.pub.Published())
	r.key(input.KeyDoor)
	r.pump(30 * time.Second)
	r.expectAllOff(t, "while door open")
	for _, ev := range r.publishedSince(before) {
		if ev.Type() == event.ActuateCommand || ev.Type() == event.MachineStateChanged {
			t.Errorf("%s emitted while door open", ev)
		}
	}
	if got := r.tracker.Snapshot().State; got != event.StateRinse1 {
		t.Errorf("sequence moved while door open: %s", got)
	}
	level := r.tracker.Snapshot().WaterLevel

	r.key(input.KeyDoor)
	r.pump(2 * time.Second)
	if !r.relay(event.ActuatorFill) {
		t.Errorf("expected filling to resume, lines %v", r.writer.Last())
	}
	if r.tracker.Snapshot().WaterLevel <= level {
		t.Errorf("expected water level to rise after closing the door")
	}
}

func TestIntegrationLeakFaultPropagates(t *testing.T) {
	r := newRig(t)
	r.pump(time.Second)
	r.key('r')
	r.pump(time.Second)

	r.key(input.KeyLeak)
	r.pump(time.Second)

	for name, m := range r.members {
		if !m.Faults().Has(event.FaultLeak) {
			t.Errorf("%s: expected Leak in faults, got %v", name, m.Faults().Flags())
		}
	}
	for _, name := range []string{input.Name, logic.Name, automat.Name} {
		if !r.members[name].Halted() {
			t.Errorf("%s: expected halted", name)
		}
	}
	for _, name := range []string{output.Name, staticerror.Name, display.Name, telemetry.Name} {
		if r.members[name].Halted() {
			t.Errorf("%s: must keep running", name)
		}
	}

	// Water has to leave the machine, nothing else may run.
	for a, on := range r.writer.Last() {
		if want := event.Actuator(a) == event.ActuatorDrain; on != want {
			t.Errorf("%s: got %v, want %v", event.Actuator(a), on, want)
		}
	}
	if !r.tracker.Snapshot().Faults.Has(event.FaultLeak) {
		t.Error("expected fault shown")
	}
	if !r.published(event.NewError(event.FaultLeak)) {
		t.Error("expected fault published")
	}

	// A halted sequencer ignores further selections.
	r.key('s')
	r.pump(time.Second)
	if got := r.tracker.Snapshot().State; got != event.StateDrain {
		t.Errorf("state changed after fault: %s", got)
	}
}

func TestIntegrationStopReturnsToIdle(t *testing.T) {
	r := newRig(t)
	r.pump(time.Second)
	r.key('f')
	r.pump(3 * time.Second)

	r.key('s')
	r.pump(time.Second)

	snap := r.tracker.Snapshot()
	if snap.State != event.StateIdle || snap.Program != event.ProgramNone {
		t.Errorf("expected Idle/None after stop, got %s/%s", snap.State, snap.Program)
	}
	if snap.Remaining() != 0 {
		t.Errorf("expected no remaining time, got %v", snap.Remaining())
	}
	r.expectAllOff(t, "after stop")
}

func TestIntegrationProgramEndsWithAllLinesOff(t *testing.T) {
	r := newRig(t)
	r.pump(time.Second)
	r.key('r')

	// Drain, Rinse1 with fill, ten minutes hold and drain.
	r.pump(15 * time.Minute)
	snap := r.tracker.Snapshot()
	if snap.State != event.StateIdle || snap.Faults != event.FaultNone {
		t.Fatalf("expected Idle without faults, got %s %v", snap.State, snap.Faults.Flags())
	}
	if snap.WaterLevel > 5 {
		t.Errorf("expected an empty tub, got %d", snap.WaterLevel)
	}
	r.expectAllOff(t, "after the program")

	r.pump(time.Minute)
	r.expectAllOff(t, "a minute after the program")
}

func TestIntegrationResinProgramCalibratesSpraySelector(t *testing.T) {
	r := newRig(t)
	r.pump(time.Second)
	r.key('f')

	// Drain, Resin with the selector search, then Wash fills and starts
	// changing spray arms every keep-position interval.
	r.pump(6 * time.Minute)
	snap := r.tracker.Snapshot()
	if snap.Faults != event.FaultNone {
		t.Fatalf("fault in %s: %v", snap.State, snap.Faults.Flags())
	}
	if snap.State != event.StateWash {
		t.Fatalf("expected Wash, got %s", snap.State)
	}
	if r.automat.Position() == automat.PositionInvalid {
		t.Fatal("expected a calibrated selector")
	}

	evs := r.pub.Published()
	wash := -1
	for i, ev := range evs {
		if ev == event.NewMachineState(event.StateWash) {
			wash = i
		}
	}
	if wash < 0 {
		t.Fatal("expected Wash published")
	}
	stops := 0
	for _, ev := range evs[wash:] {
		if ev == event.NewActuate(event.Spray0) {
			stops++
		}
	}
	if stops < 2 {
		t.Errorf("expected at least two spray changes in Wash, got %d", stops)
	}
}
