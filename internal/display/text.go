package display

import (
	"math/bits"

	"github.com/sweeney/dishwasher/internal/event"
)

// Fixed-width captions for a character display. Faults take 11 columns,
// programs and machine states 5. The first entry of each table is the
// Invalid caption.
var (
	faultTexts = [...]string{
		"  Invalid  ", "    OK     ",
		"    I2C    ", "Programmer ", "   Queue   ", " No water  ", " Overfill  ",
		"Drain fail ", "   Leak    ", " No signal ", "Bad signal ", "Unst signal",
		"Circ ovload", " Circ conn ", "Circ stuck ", "Drain oload", "Drain conn ",
		"Drain stuck", "  No heat  ", " Overheat  ", " Bad temp  ", " Spray sel ",
	}
	programTexts = [...]string{
		"Inval", "None ", "Stop ", "Drain", "Rinse", "Fast ", "FastD", "Middl", " All ", " Hot ", "Inten", "Cook ",
	}
	stateTexts = [...]string{
		"Inval", "Idle ", "Drain", "Resin", " Pre ", "Wash ", "Rins1", "Rins2", "Rins3", " Dry ", "Shutd",
	}
)

// FaultText returns the caption of the lowest fault set in f.
func FaultText(f event.Fault) string {
	switch {
	case f == event.FaultNone:
		return faultTexts[1]
	case f < 0 || f.String() == "Invalid":
		return faultTexts[0]
	}
	return faultTexts[2+bits.TrailingZeros32(uint32(f))]
}

// ProgramText returns the caption of p.
func ProgramText(p event.Program) string { return caption(programTexts[:], int32(p)) }

// StateText returns the caption of s.
func StateText(s event.MachineState) string { return caption(stateTexts[:], int32(s)) }

func caption(table []string, v int32) string {
	i := int(v) + 1
	if i < 0 || i >= len(table) {
		return table[0]
	}
	return table[i]
}

// relayLetters marks each commanded actuator, indexed by event.Actuator.
const relayLetters = "XHDFRTCS"
