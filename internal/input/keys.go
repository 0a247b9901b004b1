package input

import "github.com/sweeney/dishwasher/internal/event"

// Keys understood by the Input component. KeyQuit is handled by the
// process itself.
const (
	KeyDoor = 'o'
	KeyLeak = 'l'
	KeySalt = 'n'
	KeyQuit = 'Q'
)

var programKeys = map[rune]event.Program{
	's': event.ProgramStop,
	'd': event.ProgramDrain,
	'r': event.ProgramRinse,
	'f': event.ProgramFast,
	'F': event.ProgramFastDry,
	'm': event.ProgramMiddle,
	'a': event.ProgramAll,
	'h': event.ProgramHot,
	'i': event.ProgramIntensive,
	'c': event.ProgramCook,
}

const timeFactorKeys = "1234567890"

var timeFactors = [len(timeFactorKeys)]int32{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000}

// ProgramForKey returns the program selected by key.
func ProgramForKey(key rune) (event.Program, bool) {
	p, ok := programKeys[key]
	return p, ok
}

// TimeFactorForKey returns the time factor selected by a digit key.
func TimeFactorForKey(key rune) (int32, bool) {
	for i, k := range timeFactorKeys {
		if k == key {
			return timeFactors[i], true
		}
	}
	return 0, false
}
