// Package automat regulates water level, temperature and circulation and
// keeps track of the spray selector position.
//
// The Automat runs in one of two modes selected by DesiredResinWash. In
// regular mode it applies hysteresis control and steps the spray selector
// on request. In resin wash mode it flushes the softener while the
// selector motor turns freely, and calibrates the selector position from
// the timing of its contact transitions.
package automat

import (
	"time"

	"github.com/sweeney/dishwasher/internal/component"
	"github.com/sweeney/dishwasher/internal/config"
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/timer"
)

// Name is the component name used on the hub.
const Name = "automat"

const (
	actionSearchDone timer.Action = iota
	actionDecelerated
	actionSprayStop
	actionSprayPause
	actionCheckCirc
	actionCheckDrain
)

// Automat is the regulation and calibration component.
type Automat struct {
	*component.Runtime

	water   config.WaterConfig
	temp    config.TemperatureConfig
	current config.CurrentConfig
	spray   config.SprayConfig

	desiredResinWash bool
	desiredLevel     int32
	desiredTemp      int32
	desiredCirc      bool
	desiredSpray     bool

	level        int32
	temperature  int32
	circCurrent  int32
	drainCurrent int32
	doorOpen     bool
	openedAt     time.Time

	contact       event.OnOff
	position      Position
	transitioning bool

	samples     []time.Duration
	lastContact time.Time

	commanded [event.ActuatorCount]event.OnOff
}

// New creates an Automat.
func New(cfg *config.Config, opts component.Options) *Automat {
	a := &Automat{
		water:    cfg.Water,
		temp:     cfg.Temperature,
		current:  cfg.Current,
		spray:    cfg.Spray,
		contact:  event.OnOffInvalid,
		position: PositionInvalid,
		samples:  make([]time.Duration, 0, cfg.Spray.SampleCapacity),
	}
	for i := range a.commanded {
		a.commanded[i] = event.OnOffInvalid
	}
	a.Runtime = component.New(Name, a, opts)
	return a
}

// Position returns the tracked selector position.
func (a *Automat) Position() Position { return a.position }

// HaltOnError implements component.Handler.
func (a *Automat) HaltOnError() bool { return true }

// ShouldBeQueued implements component.Handler.
func (a *Automat) ShouldBeQueued(ev event.Event) bool {
	switch ev.Type() {
	case event.MeasuredDoor,
		event.MeasuredSprayContact,
		event.MeasuredWaterLevel,
		event.MeasuredTemperature,
		event.MeasuredCircCurrent,
		event.MeasuredDrainCurrent,
		event.DesiredSpray,
		event.DesiredCirc,
		event.DesiredWaterLevel,
		event.DesiredTemperature,
		event.DesiredResinWash:
		return true
	}
	return false
}

// HandleEvent implements component.Handler.
func (a *Automat) HandleEvent(ev event.Event) {
	switch ev.Type() {
	case event.Error:
		return
	case event.MeasuredDoor:
		a.door(ev.Door() == event.DoorOpen)
		return
	case event.MeasuredCircCurrent:
		a.circCurrent = ev.Int()
		return
	case event.MeasuredDrainCurrent:
		a.drainCurrent = ev.Int()
		return
	case event.MeasuredWaterLevel:
		a.level = ev.Int()
	case event.MeasuredTemperature:
		a.temperature = ev.Int()
	}
	if a.doorOpen {
		return
	}

	if ev.Type() == event.DesiredResinWash || a.desiredResinWash {
		a.handleResinWash(ev)
		return
	}
	a.handleRegular(ev)
}

// HandleTimer implements component.Handler.
func (a *Automat) HandleTimer(action timer.Action) {
	switch action {
	case actionSearchDone:
		a.Schedule(a.spray.Deceleration, actionDecelerated)
	case actionDecelerated:
		a.calibrate()
	case actionSprayStop:
		a.sprayStop()
	case actionSprayPause:
		if a.desiredSpray {
			a.startTransition()
		}
	case actionCheckCirc, actionCheckDrain:
		a.checkCurrent(action)
	}
}

func (a *Automat) handleResinWash(ev event.Event) {
	switch ev.Type() {
	case event.DesiredResinWash:
		on := ev.OnOff() == event.On
		switch {
		case on && !a.desiredResinWash:
			a.resinWashOn()
		case !on && a.desiredResinWash:
			a.resinWashOff()
		}
	case event.MeasuredWaterLevel:
		a.resinLevel()
	case event.MeasuredSprayContact:
		a.resinWashContact(ev.OnOff())
	}
}

func (a *Automat) resinLevel() {
	if a.level < a.water.Half {
		a.actuate(event.Fill1)
	}
	if a.level >= a.water.Full {
		a.actuate(event.Fill0)
	}
}

func (a *Automat) resinWashOn() {
	a.Logger().Info("resin wash on, searching spray selector position")
	a.CancelTimers()
	a.desiredResinWash = true
	a.desiredLevel = 0
	a.desiredTemp = 0
	a.desiredCirc = false
	a.desiredSpray = false
	a.actuate(event.Heat0)
	a.actuate(event.Circ0)

	a.position = PositionInvalid
	a.samples = a.samples[:0]
	a.transitioning = true
	a.Schedule(a.spray.Search, actionSearchDone)
	a.actuate(event.Spray1)
	a.lastContact = a.Now()

	if a.level < a.water.Full {
		a.actuate(event.Fill1)
	}
	a.actuate(event.Drain1)
}

func (a *Automat) resinWashOff() {
	a.Logger().Info("resin wash off", "position", a.position.String())
	a.desiredResinWash = false
	a.desiredLevel = 0
	a.desiredTemp = 0
	a.desiredCirc = false
	a.desiredSpray = false
	a.actuate(event.Fill0)
	a.actuate(event.Drain0)
	a.Ensure(a.position != PositionInvalid, event.FaultSpraySelect)
}

func (a *Automat) resinWashContact(contact event.OnOff) {
	if a.position != PositionInvalid {
		a.trackContact(contact)
		return
	}
	if !a.Ensure(len(a.samples) < cap(a.samples) && contact != a.contact, event.FaultSpraySelect) {
		return
	}
	now := a.Now()
	a.samples = append(a.samples, now.Sub(a.lastContact))
	a.lastContact = now
	a.contact = contact
}

func (a *Automat) calibrate() {
	res, err := Calibrate(a.samples, a.contact, a.spray)
	if err != nil {
		a.Logger().Error("spray selector calibration failed",
			"error", err, "samples", len(a.samples), "contact", a.contact.String())
		a.Raise(event.FaultSpraySelect)
		return
	}
	a.Logger().Info("spray selector calibrated",
		"position", res.Position.String(), "index", res.RawIndex, "samples", res.Samples, "cycle", res.Cycle)

	a.position = res.Position
	if a.contact == event.On {
		// Inside the contact window already: stop at its centre.
		stop := onDuration(a.spray, a.position)/2 - a.Now().Sub(a.lastContact)
		a.Schedule(max(stop, 0), actionSprayStop)
	}
	// Otherwise the motor keeps turning and the next contact-on stops it.
}

func (a *Automat) handleRegular(ev event.Event) {
	switch ev.Type() {
	case event.DesiredWaterLevel:
		// Level is driven once per request; circulation would shrink it.
		if !a.Ensure(!a.desiredCirc, event.FaultProgrammer) {
			return
		}
		a.desiredLevel = ev.Int()
		if a.inBand() {
			// Already there: end whatever the previous request started.
			a.actuate(event.Fill0)
			a.actuate(event.Drain0)
			return
		}
		a.regulateLevel()
	case event.MeasuredWaterLevel:
		if !a.desiredCirc {
			a.regulateLevel()
		}
	case event.DesiredTemperature:
		a.desiredTemp = ev.Int()
		a.regulateTemperature()
	case event.MeasuredTemperature:
		a.regulateTemperature()
	case event.DesiredCirc:
		a.desiredCirc = ev.OnOff() == event.On
		if !a.desiredCirc {
			a.actuate(event.Circ0)
			return
		}
		a.actuate(event.Fill0)
		a.actuate(event.Drain0)
		if !a.transitioning {
			a.actuate(event.Circ1)
		}
	case event.DesiredSpray:
		a.desiredSpray = ev.OnOff() == event.On
		if a.desiredSpray {
			a.startTransition()
		}
	case event.MeasuredSprayContact:
		a.trackContact(ev.OnOff())
	}
}

func (a *Automat) inBand() bool {
	diff := a.level - a.desiredLevel
	return diff >= -a.water.Hysteresis && diff <= a.water.Hysteresis
}

func (a *Automat) regulateLevel() {
	band := a.water.Hysteresis
	switch {
	case a.level < a.desiredLevel-band:
		a.actuate(event.Drain0)
		a.actuate(event.Fill1)
	case a.level > a.desiredLevel+band:
		a.actuate(event.Drain1)
		a.actuate(event.Fill0)
	case a.level <= a.desiredLevel && a.commanded[event.ActuatorDrain] == event.On:
		// Drained down to the target; the pump must not run dry.
		a.actuate(event.Drain0)
	}
}

func (a *Automat) regulateTemperature() {
	band := a.temp.Hysteresis
	switch {
	case a.temperature < a.desiredTemp-band:
		a.actuate(event.Heat1)
	case a.temperature > a.desiredTemp+band:
		a.actuate(event.Heat0)
	}
}

// door holds regulation and the selector timers while the door is open.
// The interlock has cut every line, so nothing is commanded until it
// closes again.
func (a *Automat) door(open bool) {
	if open == a.doorOpen {
		return
	}
	a.doorOpen = open
	if open {
		a.PauseTimers()
		a.openedAt = a.Now()
		return
	}
	a.ResumeTimers()
	// The selector stood still, so the pause is not part of the interval.
	a.lastContact = a.lastContact.Add(a.Now().Sub(a.openedAt))

	if a.desiredResinWash {
		a.resinLevel()
		return
	}
	if !a.desiredCirc {
		a.regulateLevel()
	}
	a.regulateTemperature()
}

// startTransition turns the selector towards its next position. It needs a
// known position with the contact engaged.
func (a *Automat) startTransition() {
	if !a.Ensure(a.position != PositionInvalid && a.contact == event.On, event.FaultSpraySelect) {
		return
	}
	a.actuate(event.Spray1)
	a.actuate(event.Circ0)
	a.transitioning = true
}

// trackContact advances the position on every contact-on and schedules the
// motor stop at the centre of the new contact window.
func (a *Automat) trackContact(contact event.OnOff) {
	a.contact = contact
	if contact != event.On || a.position == PositionInvalid {
		return
	}
	a.position = next(a.position)
	a.Schedule(onDuration(a.spray, a.position)/2, actionSprayStop)
}

func (a *Automat) sprayStop() {
	a.transitioning = false
	a.actuate(event.Spray0)
	if a.desiredCirc {
		a.actuate(event.Circ1)
	}
	if a.desiredSpray {
		a.Schedule(a.spray.KeepPosition, actionSprayPause)
	}
}

func next(p Position) Position {
	switch p {
	case PositionUpper:
		return PositionLower
	case PositionLower:
		return PositionBoth
	case PositionBoth:
		return PositionUpper
	}
	return PositionInvalid
}

func onDuration(cfg config.SprayConfig, p Position) time.Duration {
	switch p {
	case PositionUpper:
		return cfg.UpOn
	case PositionLower:
		return cfg.DownOn
	case PositionBoth:
		return cfg.BothOn
	}
	return 0
}

// actuate sends a command and, for the pumps, arms a current check when
// the commanded state changes.
func (a *Automat) actuate(cmd event.Actuate) {
	a.Send(event.NewActuate(cmd))

	act := cmd.Actuator()
	level := event.OnOffOf(cmd.On())
	if a.commanded[act] == level {
		return
	}
	a.commanded[act] = level
	if !a.current.Supervise {
		return
	}
	switch act {
	case event.ActuatorCirc:
		a.Schedule(a.current.Settle, actionCheckCirc)
	case event.ActuatorDrain:
		a.Schedule(a.current.Settle, actionCheckDrain)
	}
}

// checkCurrent compares the settled pump current with the commanded state.
func (a *Automat) checkCurrent(action timer.Action) {
	switch action {
	case actionCheckCirc:
		on := a.commanded[event.ActuatorCirc] == event.On
		switch {
		case on && a.circCurrent < a.current.CircMin:
			a.Raise(event.FaultCircConnector)
		case !on && a.circCurrent >= a.current.CircMin:
			a.Raise(event.FaultCircRelayStuck)
		}
	case actionCheckDrain:
		on := a.commanded[event.ActuatorDrain] == event.On
		switch {
		case on && a.drainCurrent < a.current.DrainMin:
			a.Raise(event.FaultDrainConnector)
		case !on && a.drainCurrent >= a.current.DrainMin:
			a.Raise(event.FaultDrainRelayStuck)
		}
	}
}
