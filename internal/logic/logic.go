// Package logic sequences wash programs.
//
// Logic walks the machine states of the selected program one at a time,
// asking the Automat for water, temperature, circulation and spray targets
// and driving the detergent, regeneration and shutdown relays directly.
// Opening the door freezes the sequence until it is closed again.
package logic

import (
	"time"

	"github.com/sweeney/dishwasher/internal/component"
	"github.com/sweeney/dishwasher/internal/config"
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/timer"
)

// Name is the component name used on the hub.
const Name = "logic"

const (
	actionStartStep timer.Action = iota
	actionResinReady
	actionDetergentClose
	actionWashDone
	actionRegenerateClose
	actionDryDone
	actionShutdownDone
)

// Logic is the program sequencer component.
type Logic struct {
	*component.Runtime

	tables  Tables
	program config.ProgramConfig
	water   config.WaterConfig

	state   event.MachineState
	current event.Program

	targetTemperature int32
	targetTime        time.Duration

	doorOpen    bool
	stepStarted bool

	resinReady       bool
	resinStopPending bool
	washFill         bool
	washDrain        bool
}

// New creates a Logic component with the configured program tables.
func New(cfg *config.Config, opts component.Options) *Logic {
	l := &Logic{
		tables:  TablesFromConfig(cfg.Program),
		program: cfg.Program,
		water:   cfg.Water,
		state:   event.StateIdle,
		current: event.ProgramNone,
	}
	l.Runtime = component.New(Name, l, opts)
	return l
}

// State returns the current machine state.
func (l *Logic) State() event.MachineState { return l.state }

// Program returns the running program, ProgramNone when idle.
func (l *Logic) Program() event.Program { return l.current }

// HaltOnError implements component.Handler.
func (l *Logic) HaltOnError() bool { return true }

// ShouldBeQueued implements component.Handler.
func (l *Logic) ShouldBeQueued(ev event.Event) bool {
	switch ev.Type() {
	case event.MeasuredWaterLevel, event.MeasuredDoor, event.ProgramSelected:
		return true
	}
	return false
}

// HandleEvent implements component.Handler.
func (l *Logic) HandleEvent(ev event.Event) {
	if ev.IsError() {
		// The sequence is abandoned where it stands so the fault shows
		// against the state it happened in.
		return
	}
	if l.handleDoor(ev) || l.doorOpen {
		return
	}

	if ev.Type() == event.ProgramSelected {
		l.selectProgram(ev.Program())
		return
	}
	if ev.Type() != event.MeasuredWaterLevel || !l.stepStarted {
		return
	}

	level := ev.Int()
	switch l.state {
	case event.StateDrain:
		if level <= l.water.Hysteresis {
			l.nextState()
		}
	case event.StateResin:
		if l.resinReady && level <= 0 {
			l.nextState()
		}
	case event.StatePreWash, event.StateWash, event.StateRinse1, event.StateRinse2, event.StateRinse3:
		l.washLevel(level)
	}
}

// HandleTimer implements component.Handler.
func (l *Logic) HandleTimer(action timer.Action) {
	if action == actionStartStep {
		l.stepStarted = true
	}

	switch l.state {
	case event.StateDrain:
		if action == actionStartStep {
			l.Send(event.New(event.DesiredWaterLevel, 0))
		}
	case event.StateResin:
		l.resinTimer(action)
	case event.StatePreWash, event.StateWash, event.StateRinse1, event.StateRinse2, event.StateRinse3:
		l.washTimer(action)
	case event.StateDry:
		l.dryTimer(action)
	case event.StateShutdown:
		l.shutdownTimer(action)
	default:
		l.Ensure(false, event.FaultProgrammer)
	}
}

func (l *Logic) handleDoor(ev event.Event) bool {
	if ev.Type() != event.MeasuredDoor {
		return false
	}
	switch ev.Door() {
	case event.DoorOpen:
		if !l.doorOpen {
			l.PauseTimers()
		}
		l.doorOpen = true
	case event.DoorClosed:
		if l.doorOpen {
			l.ResumeTimers()
		}
		l.doorOpen = false
	}
	return true
}

func (l *Logic) selectProgram(p event.Program) {
	switch {
	case l.state == event.StateIdle:
		if p == event.ProgramNone || p == event.ProgramStop {
			return
		}
		l.current = p
		remaining := l.tables.Estimate(p, l.program.AverageFillDrain)
		l.Send(event.New(event.RemainingTime, int32(remaining/time.Second)))
		l.Logger().Info("program started", "program", p.String(), "estimate", remaining)
		l.nextState()
	case p != event.ProgramStop:
	case l.state == event.StateResin && !l.resinReady:
		// Salty water must not stay in the tub.
		l.resinStopPending = true
	default:
		l.stop()
	}
}

func (l *Logic) stop() {
	l.Logger().Info("program stopped", "program", l.current.String(), "state", l.state.String())
	l.CancelTimers()
	l.turnOffAll()
	l.state = event.StateIdle
	l.current = event.ProgramNone
	l.stepStarted = false
	l.Send(event.NewMachineState(l.state))
}

// nextState moves to the following performed state of the program. Every
// output is switched off before the new step is scheduled.
func (l *Logic) nextState() {
	l.state = l.tables.Next(l.current, l.state)
	if l.state == event.StateIdle {
		l.current = event.ProgramNone
	}
	l.targetTemperature = l.tables.Temperatures[l.current][l.state]
	l.targetTime = time.Duration(l.tables.Minutes[l.current][l.state]) * time.Minute
	l.stepStarted = false

	l.CancelTimers()
	l.turnOffAll()
	l.Send(event.NewMachineState(l.state))
	l.Logger().Debug("state changed", "program", l.current.String(), "state", l.state.String())
	if l.state != event.StateIdle {
		l.Schedule(l.program.StepDelay, actionStartStep)
	}
}

func (l *Logic) turnOffAll() {
	l.Send(event.NewOnOff(event.DesiredResinWash, event.Off))
	l.Send(event.NewOnOff(event.DesiredCirc, event.Off))
	l.Send(event.New(event.DesiredWaterLevel, 0))
	l.Send(event.New(event.DesiredTemperature, 0))
	l.Send(event.NewOnOff(event.DesiredSpray, event.Off))
	l.Send(event.NewActuate(event.Detergent0))
	l.Send(event.NewActuate(event.Regenerate0))
	l.Send(event.NewActuate(event.Shutdown0))
}

func (l *Logic) resinTimer(action timer.Action) {
	switch action {
	case actionStartStep:
		l.resinReady = false
		l.resinStopPending = false
		l.Send(event.NewOnOff(event.DesiredResinWash, event.On))
		l.Schedule(l.program.ResinWash, actionResinReady)
	case actionResinReady:
		l.Send(event.NewOnOff(event.DesiredResinWash, event.Off))
		l.resinReady = true
		if l.resinStopPending {
			l.stop()
		}
	}
}

func (l *Logic) washTimer(action timer.Action) {
	switch action {
	case actionStartStep:
		l.washFill = true
		l.washDrain = false
		l.Send(event.New(event.DesiredWaterLevel, l.water.Full))
	case actionDetergentClose:
		l.Send(event.NewActuate(event.Detergent0))
	case actionWashDone:
		l.Send(event.NewOnOff(event.DesiredCirc, event.Off))
		l.Send(event.NewOnOff(event.DesiredSpray, event.Off))
		l.Send(event.New(event.DesiredTemperature, 0))
		l.Send(event.New(event.DesiredWaterLevel, 0))
		l.washDrain = true
	}
}

func (l *Logic) washLevel(level int32) {
	if l.washFill && level >= l.water.Full {
		l.washFill = false
		l.Send(event.New(event.DesiredTemperature, l.targetTemperature))
		l.Send(event.NewOnOff(event.DesiredCirc, event.On))
		// The selector position is only known to programs that calibrate it.
		if l.tables.Performed(l.current, event.StateResin) {
			l.Send(event.NewOnOff(event.DesiredSpray, event.On))
		}
		if l.state == event.StateWash {
			l.Send(event.NewActuate(event.Detergent1))
			l.ScheduleRealtime(l.program.DetergentOpen, actionDetergentClose)
		}
		l.Schedule(l.targetTime, actionWashDone)
		return
	}
	if l.washDrain && level <= l.water.Hysteresis {
		l.washDrain = false
		l.nextState()
	}
}

func (l *Logic) dryTimer(action timer.Action) {
	switch action {
	case actionStartStep:
		l.Schedule(l.targetTime, actionDryDone)
		l.Schedule(l.program.RegenerateValve, actionRegenerateClose)
		l.Send(event.NewActuate(event.Regenerate1))
	case actionRegenerateClose:
		l.Send(event.NewActuate(event.Regenerate0))
	case actionDryDone:
		l.nextState()
	}
}

func (l *Logic) shutdownTimer(action timer.Action) {
	switch action {
	case actionStartStep:
		l.Send(event.NewActuate(event.Shutdown1))
		l.ScheduleRealtime(l.program.ShutdownPulse, actionShutdownDone)
	case actionShutdownDone:
		l.nextState()
	}
}
