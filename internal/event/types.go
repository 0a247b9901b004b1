package event

// Type tags an Event and selects which payload accessor is valid.
type Type int32

const (
	TypeInvalid Type = iota
	MeasuredDoor
	MeasuredSalt
	MeasuredSprayContact
	MeasuredLeak
	MeasuredCircCurrent
	MeasuredDrainCurrent
	MeasuredWaterLevel
	MeasuredTemperature
	Error
	DesiredSpray
	DesiredCirc
	DesiredWaterLevel
	DesiredTemperature
	DesiredResinWash
	ActuateCommand
	ProgramSelected
	MachineStateChanged
	RemainingTime
	TimeFactorChanged
	KeyPressed
	typeCount
)

var typeNames = [typeCount]string{
	"Invalid", "MeasuredDoor", "MeasuredSalt", "MeasuredSpray", "MeasuredLeak",
	"MeasuredCrcCurr", "MeasuredDrnCurr", "MeasuredWtrLvl", "MeasuredTemp", "Error",
	"DesiredSpray", "DesiredCirc", "DesiredWaterLvl", "DesiredTemp", "DesiredResinWsh",
	"Actuate", "Program", "MachineState", "RemainingTime", "TimeFactChanged", "KeyPressed",
}

func (t Type) String() string {
	if t < 0 || t >= typeCount {
		return typeNames[TypeInvalid]
	}
	return typeNames[t]
}

// OnOff is the payload of binary measurements and desired values.
type OnOff int32

const (
	OnOffInvalid OnOff = -1
	Off          OnOff = 0
	On           OnOff = 1
)

var onOffNames = [...]string{"Invalid", "Off", "On"}

func (o OnOff) String() string { return lookup(onOffNames[:], int32(o)) }

// OnOffOf converts a boolean into its OnOff value.
func OnOffOf(on bool) OnOff {
	if on {
		return On
	}
	return Off
}

// DoorState is the payload of MeasuredDoor.
type DoorState int32

const (
	DoorInvalid DoorState = -1
	DoorOpen    DoorState = 0
	DoorClosed  DoorState = 1
)

var doorNames = [...]string{"Invalid", "Open", "Closed"}

func (d DoorState) String() string { return lookup(doorNames[:], int32(d)) }

// Actuator names one physical output. Every Actuate command addresses
// exactly one Actuator.
type Actuator int32

const (
	ActuatorShutdown Actuator = iota
	ActuatorHeat
	ActuatorDrain
	ActuatorFill
	ActuatorRegenerate
	ActuatorDetergent
	ActuatorCirc
	ActuatorSpray
	ActuatorCount
)

var actuatorNames = [ActuatorCount]string{
	"Shutdown", "Heat", "Drain", "Fill", "Regenerate", "Detergent", "Circ", "Spray",
}

func (a Actuator) String() string {
	if a < 0 || a >= ActuatorCount {
		return "Invalid"
	}
	return actuatorNames[a]
}

// Actuate is the payload of an actuator command: an Actuator paired with
// its requested level.
type Actuate int32

const (
	ActuateInvalid Actuate = -1
	Shutdown0      Actuate = 0
	Shutdown1      Actuate = 1
	Heat0          Actuate = 2
	Heat1          Actuate = 3
	Drain0         Actuate = 4
	Drain1         Actuate = 5
	Fill0          Actuate = 6
	Fill1          Actuate = 7
	Regenerate0    Actuate = 8
	Regenerate1    Actuate = 9
	Detergent0     Actuate = 10
	Detergent1     Actuate = 11
	Circ0          Actuate = 12
	Circ1          Actuate = 13
	Spray0         Actuate = 14
	Spray1         Actuate = 15
	actuateCount   Actuate = 16
)

var actuateNames = [...]string{
	"Invalid", "Shutdown0", "Shutdown1", "Heat0", "Heat1", "Drain0", "Drain1", "Fill0", "Fill1",
	"Regenerate0", "Regenerate1", "Detergent0", "Detergent1", "Circ0", "Circ1", "Spray0", "Spray1",
}

func (a Actuate) String() string { return lookup(actuateNames[:], int32(a)) }

// Command builds the Actuate value switching actuator on or off.
func Command(actuator Actuator, on bool) Actuate {
	if actuator < 0 || actuator >= ActuatorCount {
		return ActuateInvalid
	}
	a := Actuate(actuator) * 2
	if on {
		a++
	}
	return a
}

// Actuator returns the addressed output.
func (a Actuate) Actuator() Actuator {
	if a < 0 || a >= actuateCount {
		return -1
	}
	return Actuator(a / 2)
}

// On reports whether the command switches its actuator on.
func (a Actuate) On() bool { return a >= 0 && a < actuateCount && a%2 == 1 }

// Program is the wash program selected by the operator.
type Program int32

const (
	ProgramInvalid Program = -1
	ProgramNone    Program = iota - 1
	ProgramStop
	ProgramDrain
	ProgramRinse
	ProgramFast
	ProgramFastDry
	ProgramMiddle
	ProgramAll
	ProgramHot
	ProgramIntensive
	ProgramCook
	ProgramCount
)

var programNames = [...]string{
	"Invalid", "None", "Stop", "Drain", "Rinse", "Fast", "FastDry", "Middle", "All", "Hot", "Intensive", "Cook",
}

func (p Program) String() string { return lookup(programNames[:], int32(p)) }

// ParseProgram returns the program with the given name.
func ParseProgram(name string) (Program, bool) {
	for p := ProgramNone; p < ProgramCount; p++ {
		if p.String() == name {
			return p, true
		}
	}
	return ProgramInvalid, false
}

// MachineState is a step of the wash program sequencer.
type MachineState int32

const (
	StateInvalid  MachineState = -1
	StateIdle     MachineState = iota - 1
	StateDrain
	StateResin
	StatePreWash
	StateWash
	StateRinse1
	StateRinse2
	StateRinse3
	StateDry
	StateShutdown
	StateCount
)

var stateNames = [...]string{
	"Invalid", "Idle", "Drain", "Resin", "PreWash", "Wash", "Rinse1", "Rinse2", "Rinse3", "Dry", "Shutdown",
}

func (s MachineState) String() string { return lookup(stateNames[:], int32(s)) }

// lookup indexes a table whose first entry names the -1 Invalid value.
func lookup(table []string, v int32) string {
	i := int(v) + 1
	if i < 0 || i >= len(table) {
		return table[0]
	}
	return table[i]
}
