// Package staticerror raises faults for measurements outside fixed limits.
package staticerror

import (
	"github.com/sweeney/dishwasher/internal/component"
	"github.com/sweeney/dishwasher/internal/config"
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/timer"
)

// Name is the component name used on the hub.
const Name = "staticerror"

// Limit maps a measurement range onto a fault. A reading is faulty when it
// falls below Min or above Max.
type Limit struct {
	Type  event.Type
	Min   int32
	Max   int32
	Fault event.Fault
}

// Limits builds the range table from the configuration. Several limits
// may watch the same measurement.
func Limits(cfg *config.Config) []Limit {
	const none = event.InvalidInt
	return []Limit{
		{event.MeasuredWaterLevel, cfg.Water.RangeMin, cfg.Water.RangeMax, event.FaultInvalidSignal},
		{event.MeasuredWaterLevel, none, cfg.Water.Max, event.FaultOverFill},
		{event.MeasuredTemperature, cfg.Temperature.RangeMin, cfg.Temperature.RangeMax, event.FaultInvalidTemp},
		{event.MeasuredTemperature, none, cfg.Temperature.Max, event.FaultOverheat},
		{event.MeasuredCircCurrent, 0, cfg.Current.CircMax, event.FaultCircOverload},
		{event.MeasuredDrainCurrent, 0, cfg.Current.DrainMax, event.FaultDrainOverload},
	}
}

// StaticError is the range checking component.
type StaticError struct {
	*component.Runtime

	limits []Limit
	raised event.Fault
}

// New creates a StaticError checking the configured limits.
func New(cfg *config.Config, opts component.Options) *StaticError {
	s := &StaticError{limits: Limits(cfg)}
	s.Runtime = component.New(Name, s, opts)
	return s
}

// HaltOnError implements component.Handler.
func (s *StaticError) HaltOnError() bool { return false }

// ShouldBeQueued implements component.Handler.
func (s *StaticError) ShouldBeQueued(ev event.Event) bool {
	switch ev.Type() {
	case event.MeasuredLeak,
		event.MeasuredCircCurrent,
		event.MeasuredDrainCurrent,
		event.MeasuredWaterLevel,
		event.MeasuredTemperature:
		return true
	}
	return false
}

// HandleEvent implements component.Handler.
func (s *StaticError) HandleEvent(ev event.Event) {
	if ev.Type() == event.MeasuredLeak {
		if ev.OnOff() == event.On {
			s.raise(event.FaultLeak, ev)
		}
		return
	}
	for _, l := range s.limits {
		if l.Type != ev.Type() {
			continue
		}
		if v := ev.Int(); v < l.Min || v > l.Max {
			s.raise(l.Fault, ev)
		}
	}
}

// HandleTimer implements component.Handler.
func (s *StaticError) HandleTimer(timer.Action) {}

func (s *StaticError) raise(f event.Fault, cause event.Event) {
	if s.raised.Has(f) {
		return
	}
	s.raised |= f
	s.Logger().Warn("measurement out of range", "event", cause.String(), "fault", f.String())
	s.Raise(f)
}
