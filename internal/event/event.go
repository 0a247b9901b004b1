// Package event defines the tagged value exchanged between controller
// components: measurements, desired values, actuator commands, program
// selections, state changes and faults.
//
// An Event is immutable and copied by value. Constructors validate that the
// payload matches the type; a mismatch yields an Error event carrying
// FaultProgrammer instead of an event with bad data. Accessors for the
// wrong payload kind return the corresponding Invalid sentinel.
package event

import (
	"math"
	"strconv"
)

// InvalidInt is returned by Int for events without an integer payload.
const InvalidInt int32 = math.MinInt32

// Event is one message of the broadcast protocol.
type Event struct {
	typ   Type
	value int32
}

type payloadKind int

const (
	kindNone payloadKind = iota
	kindDoor
	kindOnOff
	kindInt
	kindFault
	kindActuate
	kindProgram
	kindMachineState
)

func kindOf(t Type) payloadKind {
	switch t {
	case MeasuredDoor:
		return kindDoor
	case MeasuredSalt, MeasuredSprayContact, MeasuredLeak, DesiredSpray, DesiredCirc, DesiredResinWash:
		return kindOnOff
	case MeasuredCircCurrent, MeasuredDrainCurrent, MeasuredWaterLevel, MeasuredTemperature,
		DesiredWaterLevel, DesiredTemperature, RemainingTime, TimeFactorChanged, KeyPressed:
		return kindInt
	case Error:
		return kindFault
	case ActuateCommand:
		return kindActuate
	case ProgramSelected:
		return kindProgram
	case MachineStateChanged:
		return kindMachineState
	}
	return kindNone
}

func programmerError() Event {
	return Event{typ: Error, value: int32(FaultProgrammer)}
}

// New builds an event with an integer payload (levels, temperatures,
// currents, remaining time, time factor, key codes).
func New(t Type, v int32) Event {
	if kindOf(t) != kindInt {
		return programmerError()
	}
	return Event{typ: t, value: v}
}

// NewOnOff builds a binary measurement or desired-value event.
func NewOnOff(t Type, v OnOff) Event {
	if kindOf(t) != kindOnOff || (v != Off && v != On) {
		return programmerError()
	}
	return Event{typ: t, value: int32(v)}
}

// NewDoor builds a MeasuredDoor event.
func NewDoor(d DoorState) Event {
	if d != DoorOpen && d != DoorClosed {
		return programmerError()
	}
	return Event{typ: MeasuredDoor, value: int32(d)}
}

// NewError builds an Error event. Unknown bits are a programming error.
func NewError(f Fault) Event {
	if !f.valid() {
		return programmerError()
	}
	return Event{typ: Error, value: int32(f)}
}

// NewActuate builds an actuator command.
func NewActuate(a Actuate) Event {
	if a < 0 || a >= actuateCount {
		return programmerError()
	}
	return Event{typ: ActuateCommand, value: int32(a)}
}

// NewProgram builds a program selection.
func NewProgram(p Program) Event {
	if p < ProgramNone || p >= ProgramCount {
		return programmerError()
	}
	return Event{typ: ProgramSelected, value: int32(p)}
}

// NewMachineState announces a sequencer state change.
func NewMachineState(s MachineState) Event {
	if s < StateIdle || s >= StateCount {
		return programmerError()
	}
	return Event{typ: MachineStateChanged, value: int32(s)}
}

// Type returns the event tag.
func (e Event) Type() Type { return e.typ }

// Int returns the integer payload or InvalidInt.
func (e Event) Int() int32 {
	if kindOf(e.typ) != kindInt {
		return InvalidInt
	}
	return e.value
}

// OnOff returns the binary payload or OnOffInvalid.
func (e Event) OnOff() OnOff {
	if kindOf(e.typ) != kindOnOff {
		return OnOffInvalid
	}
	return OnOff(e.value)
}

// Door returns the door payload or DoorInvalid.
func (e Event) Door() DoorState {
	if e.typ != MeasuredDoor {
		return DoorInvalid
	}
	return DoorState(e.value)
}

// Fault returns the fault mask or FaultInvalid.
func (e Event) Fault() Fault {
	if e.typ != Error {
		return FaultInvalid
	}
	return Fault(e.value)
}

// Actuate returns the actuator command or ActuateInvalid.
func (e Event) Actuate() Actuate {
	if e.typ != ActuateCommand {
		return ActuateInvalid
	}
	return Actuate(e.value)
}

// Program returns the selected program or ProgramInvalid.
func (e Event) Program() Program {
	if e.typ != ProgramSelected {
		return ProgramInvalid
	}
	return Program(e.value)
}

// MachineState returns the announced state or StateInvalid.
func (e Event) MachineState() MachineState {
	if e.typ != MachineStateChanged {
		return StateInvalid
	}
	return MachineState(e.value)
}

// IsError reports whether e carries a fault.
func (e Event) IsError() bool { return e.typ == Error }

// TypeName is the canonical name of the event type.
func (e Event) TypeName() string { return e.typ.String() }

// ValueText is the canonical text of the payload. Integers print in
// decimal and key presses as the pressed character.
func (e Event) ValueText() string {
	switch kindOf(e.typ) {
	case kindDoor:
		return DoorState(e.value).String()
	case kindOnOff:
		return OnOff(e.value).String()
	case kindFault:
		return Fault(e.value).String()
	case kindActuate:
		return Actuate(e.value).String()
	case kindProgram:
		return Program(e.value).String()
	case kindMachineState:
		return MachineState(e.value).String()
	case kindInt:
		if e.typ == KeyPressed {
			return string(rune(e.value))
		}
		return strconv.FormatInt(int64(e.value), 10)
	}
	return "Invalid"
}

func (e Event) String() string {
	return e.TypeName() + " " + e.ValueText()
}
