// Package input turns sensor readings and key presses into measurement
// and program selection events.
//
// With a gpio.Reader attached the digital sensor lines are polled and
// debounced. Without one a Plant model driven by the broadcast relay
// commands stands in for the appliance.
package input

import (
	"time"

	"github.com/sweeney/dishwasher/internal/component"
	"github.com/sweeney/dishwasher/internal/config"
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/gpio"
	"github.com/sweeney/dishwasher/internal/timer"
)

// Name is the component name used on the hub.
const Name = "input"

const (
	actionPoll timer.Action = iota
	actionSimulate
)

// Simulation granularity. Analog readings are reported every
// reportEvery steps, digital ones as soon as they change.
const (
	simStep     = 100 * time.Millisecond
	reportEvery = 10
)

// Debounced line order.
const (
	lineDoor = iota
	lineSalt
	lineSprayContact
	lineLeak
	lineCount
)

// Input is the sensor and keyboard component.
type Input struct {
	*component.Runtime

	poll   time.Duration
	reader gpio.Reader
	lines  *Debouncer
	sample []bool

	plant    *Plant
	steps    int
	reported Readings
	seeded   bool
}

// New creates an Input. A nil reader selects the simulated plant.
func New(cfg *config.Config, reader gpio.Reader, opts component.Options) *Input {
	in := &Input{
		poll:   cfg.Input.Poll,
		reader: reader,
	}
	if reader == nil {
		in.plant = NewPlant(cfg.Spray)
	} else {
		in.lines = NewDebouncer(cfg.Input.Debounce, lineCount)
		in.sample = make([]bool, lineCount)
	}
	in.Runtime = component.New(Name, in, opts)

	if in.plant != nil {
		in.Schedule(simStep, actionSimulate)
	} else {
		in.ScheduleRealtime(in.poll, actionPoll)
	}
	return in
}

// Simulated reports whether the plant model stands in for hardware.
func (in *Input) Simulated() bool { return in.plant != nil }

// HaltOnError implements component.Handler.
func (in *Input) HaltOnError() bool { return true }

// ShouldBeQueued implements component.Handler.
func (in *Input) ShouldBeQueued(ev event.Event) bool {
	switch ev.Type() {
	case event.KeyPressed:
		return true
	case event.ActuateCommand:
		return in.plant != nil
	}
	return false
}

// HandleEvent implements component.Handler.
func (in *Input) HandleEvent(ev event.Event) {
	switch ev.Type() {
	case event.KeyPressed:
		in.handleKey(rune(ev.Int()))
	case event.ActuateCommand:
		in.plant.Set(ev.Actuate())
		switch ev.Actuate().Actuator() {
		case event.ActuatorCirc, event.ActuatorDrain:
			// Pump current follows the relay without delay.
			in.reportCurrents(in.plant.Readings())
		}
	}
}

// HandleTimer implements component.Handler.
func (in *Input) HandleTimer(action timer.Action) {
	switch action {
	case actionPoll:
		in.ScheduleRealtime(in.poll, actionPoll)
		in.pollLines()
	case actionSimulate:
		in.Schedule(simStep, actionSimulate)
		in.simulate()
	}
}

func (in *Input) handleKey(key rune) {
	if p, ok := ProgramForKey(key); ok {
		in.Send(event.NewProgram(p))
		return
	}
	if f, ok := TimeFactorForKey(key); ok {
		ev := event.New(event.TimeFactorChanged, f)
		in.Enqueue(ev)
		in.Send(ev)
		return
	}
	if in.plant == nil {
		return
	}
	switch key {
	case KeyDoor:
		in.plant.ToggleDoor()
	case KeyLeak:
		in.plant.ToggleLeak()
	case KeySalt:
		in.plant.ToggleSalt()
	default:
		return
	}
	in.reportDigital(in.plant.Readings())
	if key == KeyDoor {
		// The interlock switches the pumps with the door.
		in.reportCurrents(in.plant.Readings())
	}
}

func (in *Input) pollLines() {
	s, err := in.reader.Read()
	if err != nil {
		in.Logger().Error("read sensor lines", "error", err)
		in.Raise(event.FaultNoSignal)
		return
	}
	in.sample[lineDoor] = s.DoorClosed
	in.sample[lineSalt] = s.Salt
	in.sample[lineSprayContact] = s.SprayContact
	in.sample[lineLeak] = s.Leak

	for _, c := range in.lines.Process(in.sample, in.Now()) {
		in.Send(lineEvent(c.Line, c.Value))
	}
}

func lineEvent(line int, value bool) event.Event {
	switch line {
	case lineDoor:
		return doorEvent(value)
	case lineSalt:
		return event.NewOnOff(event.MeasuredSalt, event.OnOffOf(value))
	case lineSprayContact:
		return event.NewOnOff(event.MeasuredSprayContact, event.OnOffOf(value))
	case lineLeak:
		return event.NewOnOff(event.MeasuredLeak, event.OnOffOf(value))
	}
	return event.NewError(event.FaultProgrammer)
}

func doorEvent(closed bool) event.Event {
	if closed {
		return event.NewDoor(event.DoorClosed)
	}
	return event.NewDoor(event.DoorOpen)
}

func (in *Input) simulate() {
	in.plant.Step(simStep)
	in.steps++

	r := in.plant.Readings()
	in.reportDigital(r)
	if in.steps%reportEvery == 0 {
		in.Send(event.New(event.MeasuredWaterLevel, r.Level))
		in.Send(event.New(event.MeasuredTemperature, r.Temperature))
		in.reportCurrents(r)
	}
}

// reportDigital sends the digital readings that changed since the last
// report, or all of them the first time.
func (in *Input) reportDigital(r Readings) {
	first := !in.seeded
	in.seeded = true
	if first || r.DoorClosed != in.reported.DoorClosed {
		in.Send(doorEvent(r.DoorClosed))
	}
	if first || r.Salt != in.reported.Salt {
		in.Send(event.NewOnOff(event.MeasuredSalt, event.OnOffOf(r.Salt)))
	}
	if first || r.Leak != in.reported.Leak {
		in.Send(event.NewOnOff(event.MeasuredLeak, event.OnOffOf(r.Leak)))
	}
	if first || r.SprayContact != in.reported.SprayContact {
		in.Send(event.NewOnOff(event.MeasuredSprayContact, event.OnOffOf(r.SprayContact)))
	}
	in.reported.DoorClosed = r.DoorClosed
	in.reported.Salt = r.Salt
	in.reported.Leak = r.Leak
	in.reported.SprayContact = r.SprayContact
}

func (in *Input) reportCurrents(r Readings) {
	in.Send(event.New(event.MeasuredCircCurrent, r.CircCurrent))
	in.Send(event.New(event.MeasuredDrainCurrent, r.DrainCurrent))
}
