package event

import "math/bits"

// Fault is a bitmask of controller faults. Flags accumulate with bitwise OR
// and are never cleared while the process runs.
type Fault int32

const (
	FaultInvalid         Fault = -1
	FaultNone            Fault = 0
	FaultComm            Fault = 1 << 0
	FaultProgrammer      Fault = 1 << 1
	FaultQueue           Fault = 1 << 2
	FaultNoWater         Fault = 1 << 3
	FaultOverFill        Fault = 1 << 4
	FaultNoDrain         Fault = 1 << 5
	FaultLeak            Fault = 1 << 6
	FaultNoSignal        Fault = 1 << 7
	FaultInvalidSignal   Fault = 1 << 8
	FaultUnstableSignal  Fault = 1 << 9
	FaultCircOverload    Fault = 1 << 10
	FaultCircConnector   Fault = 1 << 11
	FaultCircRelayStuck  Fault = 1 << 12
	FaultDrainOverload   Fault = 1 << 13
	FaultDrainConnector  Fault = 1 << 14
	FaultDrainRelayStuck Fault = 1 << 15
	FaultNoHeat          Fault = 1 << 16
	FaultOverheat        Fault = 1 << 17
	FaultInvalidTemp     Fault = 1 << 18
	FaultSpraySelect     Fault = 1 << 19

	faultBits = 20
	faultMask = Fault(1<<faultBits - 1)
)

// faultNames is indexed by bit position.
var faultNames = [faultBits]string{
	"I2C", "Programmer", "Queue", "NoWater", "OverFill", "NoDrain", "Leak", "NoSignal",
	"InvalidSignal", "UnstableSignal", "CircOverload", "CircConnector", "CircRelayStuck",
	"DrainOverload", "DrainConnector", "DrainRelayStuck", "NoHeat", "Overheat", "InvalidTemp",
	"SpraySelect",
}

// String names the lowest set flag. A combined mask therefore prints as
// its least significant fault; use Flags to list all of them.
func (f Fault) String() string {
	switch {
	case f == FaultNone:
		return "None"
	case f < 0 || f&^faultMask != 0:
		return "Invalid"
	}
	return faultNames[bits.TrailingZeros32(uint32(f))]
}

// Has reports whether every flag of other is set in f.
func (f Fault) Has(other Fault) bool {
	return f >= 0 && other > 0 && f&other == other
}

// Flags splits the mask into its individual faults, lowest bit first.
func (f Fault) Flags() []Fault {
	if f <= 0 {
		return nil
	}
	var out []Fault
	for rest := uint32(f & faultMask); rest != 0; rest &= rest - 1 {
		out = append(out, Fault(1)<<bits.TrailingZeros32(rest))
	}
	return out
}

func (f Fault) valid() bool {
	return f >= 0 && f&^faultMask == 0
}
