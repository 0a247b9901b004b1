package logic

import (
	"time"

	"github.com/sweeney/dishwasher/internal/config"
	"github.com/sweeney/dishwasher/internal/event"
)

// Table cell values. Anything above performed is a target temperature in
// degrees or a duration in minutes.
const (
	skipped   int32 = 0
	performed int32 = 1
)

// Table holds one value per program and machine state.
type Table [event.ProgramCount][event.StateCount]int32

// Tables is the program definition the sequencer runs.
type Tables struct {
	Temperatures Table
	Minutes      Table
}

//                     Idle, Drain, Resin, PreWash, Wash, Rinse1, Rinse2, Rinse3, Dry, Shutdown
var defaultTemperatures = Table{
	event.ProgramNone:      {0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	event.ProgramStop:      {0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	event.ProgramDrain:     {0, 1, 0, 0, 0, 0, 0, 0, 0, 0},
	event.ProgramRinse:     {0, 1, 0, 0, 0, 1, 0, 0, 0, 0},
	event.ProgramFast:      {0, 1, 1, 0, 40, 1, 0, 1, 0, 1},
	event.ProgramFastDry:   {0, 1, 1, 0, 40, 1, 0, 55, 1, 1},
	event.ProgramMiddle:    {0, 1, 1, 1, 50, 1, 0, 65, 1, 1},
	event.ProgramAll:       {0, 1, 1, 1, 50, 1, 1, 65, 1, 1},
	event.ProgramHot:       {0, 1, 1, 1, 65, 1, 1, 65, 1, 1},
	event.ProgramIntensive: {0, 1, 1, 40, 65, 1, 1, 65, 1, 1},
	event.ProgramCook:      {0, 1, 0, 65, 0, 0, 0, 0, 1, 0},
}

var defaultMinutes = Table{
	event.ProgramNone:      {0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	event.ProgramStop:      {0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	event.ProgramDrain:     {0, 1, 0, 0, 0, 0, 0, 0, 0, 0},
	event.ProgramRinse:     {0, 1, 0, 0, 0, 10, 0, 0, 0, 0},
	event.ProgramFast:      {0, 1, 5, 0, 30, 10, 0, 10, 0, 1},
	event.ProgramFastDry:   {0, 1, 5, 0, 30, 10, 0, 20, 50, 1},
	event.ProgramMiddle:    {0, 1, 5, 10, 60, 10, 0, 30, 50, 1},
	event.ProgramAll:       {0, 1, 5, 10, 60, 10, 10, 30, 50, 1},
	event.ProgramHot:       {0, 1, 5, 10, 60, 10, 10, 30, 50, 1},
	event.ProgramIntensive: {0, 1, 5, 10, 60, 10, 10, 30, 50, 1},
	event.ProgramCook:      {0, 1, 0, 60, 0, 0, 0, 0, 50, 0},
}

// DefaultTables returns the built-in program definition.
func DefaultTables() Tables {
	return Tables{Temperatures: defaultTemperatures, Minutes: defaultMinutes}
}

// TablesFromConfig returns the built-in tables with the configured program
// rows replaced. Rows are expected to have passed config validation.
func TablesFromConfig(cfg config.ProgramConfig) Tables {
	t := DefaultTables()
	for name, row := range cfg.Tables {
		p, ok := event.ParseProgram(name)
		if !ok || p == event.ProgramNone || p == event.ProgramStop {
			continue
		}
		copy(t.Temperatures[p][:], row.Temperatures)
		copy(t.Minutes[p][:], row.Minutes)
	}
	return t
}

// Performed reports whether program p runs state s.
func (t *Tables) Performed(p event.Program, s event.MachineState) bool {
	return t.Temperatures[p][s] != skipped
}

// Next returns the state after s for program p, skipping states p does not
// perform. It returns StateIdle once the end of the table is reached.
func (t *Tables) Next(p event.Program, s event.MachineState) event.MachineState {
	for s++; s < event.StateCount; s++ {
		if t.Performed(p, s) {
			return s
		}
	}
	return event.StateIdle
}

// Estimate returns the expected running time of program p: the table
// minutes of every timed state before Shutdown plus an average fill and
// drain for each of them except Dry.
func (t *Tables) Estimate(p event.Program, fillDrain time.Duration) time.Duration {
	var total time.Duration
	for s := event.StateDrain; s < event.StateShutdown; s++ {
		minutes := t.Minutes[p][s]
		if minutes == skipped {
			continue
		}
		total += time.Duration(minutes) * time.Minute
		if s != event.StateDry {
			total += fillDrain
		}
	}
	return total
}
