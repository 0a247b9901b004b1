// Package output maps actuator commands onto the relay lines.
//
// Output keeps the last commanded state of every actuator and writes the
// effective state through a gpio.Writer: everything is off while the door
// is open, and once a fault is known only the drain pump may run, and only
// when water has to leave the machine.
package output

import (
	"github.com/sweeney/dishwasher/internal/component"
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/gpio"
	"github.com/sweeney/dishwasher/internal/timer"
)

// Name is the component name used on the hub.
const Name = "output"

// Faults that leave water where it must not stay.
const drainFaults = event.FaultOverFill | event.FaultLeak

// Output is the relay driver component.
type Output struct {
	*component.Runtime

	writer gpio.Writer

	commanded [event.ActuatorCount]bool
	lines     []bool
	written   bool
	doorOpen  bool
	faults    event.Fault
}

// New creates an Output writing through w. A nil writer only logs.
func New(w gpio.Writer, opts component.Options) *Output {
	o := &Output{
		writer: w,
		lines:  make([]bool, event.ActuatorCount),
	}
	o.Runtime = component.New(Name, o, opts)
	return o
}

// Lines returns the relay states last written.
func (o *Output) Lines() []bool {
	return append([]bool(nil), o.lines...)
}

// HaltOnError implements component.Handler.
func (o *Output) HaltOnError() bool { return false }

// ShouldBeQueued implements component.Handler.
func (o *Output) ShouldBeQueued(ev event.Event) bool {
	switch ev.Type() {
	case event.ActuateCommand, event.MeasuredDoor:
		return true
	}
	return false
}

// HandleEvent implements component.Handler.
func (o *Output) HandleEvent(ev event.Event) {
	switch ev.Type() {
	case event.Error:
		o.faults |= ev.Fault()
	case event.MeasuredDoor:
		o.doorOpen = ev.Door() != event.DoorClosed
	case event.ActuateCommand:
		a := ev.Actuate()
		if !o.Ensure(a.Actuator() >= 0, event.FaultProgrammer) {
			return
		}
		o.commanded[a.Actuator()] = a.On()
	default:
		return
	}
	o.apply()
}

// HandleTimer implements component.Handler.
func (o *Output) HandleTimer(timer.Action) {}

// effective is the relay state allowed by door and fault state.
func (o *Output) effective(a event.Actuator) bool {
	switch {
	case o.doorOpen:
		return false
	case o.faults != event.FaultNone:
		return a == event.ActuatorDrain && o.faults&drainFaults != 0
	}
	return o.commanded[a]
}

func (o *Output) apply() {
	changed := !o.written
	for a := event.Actuator(0); a < event.ActuatorCount; a++ {
		on := o.effective(a)
		if o.lines[a] != on {
			o.lines[a] = on
			changed = true
			o.Logger().Debug("relay", "actuator", a.String(), "on", on)
		}
	}
	if !changed || o.writer == nil {
		return
	}
	if err := o.writer.Write(o.lines); err != nil {
		o.Logger().Error("write relay lines", "error", err)
		if !o.Faults().Has(event.FaultComm) {
			o.faults |= event.FaultComm
			o.Raise(event.FaultComm)
		}
		return
	}
	o.written = true
}
