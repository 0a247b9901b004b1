// Package display renders the controller state for the operator.
//
// Display is a passive sink: it folds every event into a status.Tracker
// and, when given a writer, prints a one-line summary whenever something
// visible changed or the remaining time ticks down.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sweeney/dishwasher/internal/component"
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/status"
	"github.com/sweeney/dishwasher/internal/timer"
)

// Name is the component name used on the hub.
const Name = "display"

const actionRefresh timer.Action = 0

// RefreshInterval is the redraw period of the summary line.
const RefreshInterval = time.Second

// Display is the presentation component.
type Display struct {
	*component.Runtime

	tracker      *status.Tracker
	out          io.Writer
	needsRefresh bool
}

// New creates a Display feeding tracker. A nil out disables rendering.
func New(tracker *status.Tracker, out io.Writer, opts component.Options) *Display {
	d := &Display{
		tracker:      tracker,
		out:          out,
		needsRefresh: true,
	}
	d.Runtime = component.New(Name, d, opts)
	d.ScheduleRealtime(RefreshInterval, actionRefresh)
	return d
}

// Tracker returns the tracker the display feeds.
func (d *Display) Tracker() *status.Tracker { return d.tracker }

// HaltOnError implements component.Handler.
func (d *Display) HaltOnError() bool { return false }

// ShouldBeQueued implements component.Handler.
func (d *Display) ShouldBeQueued(event.Event) bool { return true }

// HandleEvent implements component.Handler.
func (d *Display) HandleEvent(ev event.Event) {
	if !d.tracker.Apply(ev, d.Now()) {
		return
	}
	d.needsRefresh = true

	log := d.Logger()
	switch ev.Type() {
	case event.MachineStateChanged:
		log.Info("machine state", "state", ev.MachineState().String())
	case event.ProgramSelected:
		log.Info("program selected", "program", ev.Program().String())
	case event.MeasuredDoor:
		log.Info("door", "state", ev.Door().String())
	case event.Error:
		log.Warn("fault shown", "fault", strings.TrimSpace(FaultText(ev.Fault())))
	}
}

// HandleTimer implements component.Handler.
func (d *Display) HandleTimer(action timer.Action) {
	if action != actionRefresh {
		return
	}
	d.ScheduleRealtime(RefreshInterval, actionRefresh)

	snap := d.tracker.SnapshotAt(d.Now())
	if !d.needsRefresh && snap.Remaining() == 0 {
		return
	}
	d.needsRefresh = false
	if d.out != nil {
		fmt.Fprintln(d.out, Line(snap))
	}
}

// Line formats snap as a single fixed-layout summary.
func Line(snap status.Snapshot) string {
	var relays strings.Builder
	for a := event.Actuator(0); a < event.ActuatorCount; a++ {
		if snap.Relay(a) {
			relays.WriteByte(relayLetters[a])
		} else {
			relays.WriteByte('.')
		}
	}

	door := "shut"
	if snap.Door != event.DoorClosed {
		door = "open"
	}

	rem := snap.Remaining()
	return fmt.Sprintf("%s %s %3d:%02d %4dmm %3dC %s door:%s x%-4d %s",
		ProgramText(snap.Program),
		StateText(snap.State),
		int(rem/time.Minute), int(rem%time.Minute/time.Second),
		snap.WaterLevel,
		snap.Temperature,
		relays.String(),
		door,
		snap.TimeFactor,
		FaultText(snap.Faults),
	)
}
