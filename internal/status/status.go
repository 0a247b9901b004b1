// Package status provides a thread-safe status tracker for the dishwasher
// controller. It is fed from the event stream and read by the display,
// telemetry and status reporting.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/dishwasher/internal/event"
)

// Config contains controller configuration for display.
type Config struct {
	PollMs      int64
	DebounceMs  int64
	HeartbeatMs int64
	Broker      string
	Simulated   bool
}

// Snapshot is a point-in-time view of controller state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Door         event.DoorState
	Salt         event.OnOff
	SprayContact event.OnOff
	Leak         event.OnOff
	CircCurrent  int32
	DrainCurrent int32
	WaterLevel   int32
	Temperature  int32

	// Relays has bit n set while actuator n is commanded on.
	Relays uint8

	Program event.Program
	State   event.MachineState
	// Estimate is the last reported remaining time, received at EstimateAt.
	Estimate   time.Duration
	EstimateAt time.Time
	TimeFactor int32

	Faults     event.Fault
	EventCount int

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Relay reports whether actuator a is commanded on.
func (s Snapshot) Relay(a event.Actuator) bool {
	return a >= 0 && a < event.ActuatorCount && s.Relays&(1<<a) != 0
}

// Remaining counts the last estimate down by the time elapsed since it
// arrived, sped up by the time factor. It is zero while idle.
func (s Snapshot) Remaining() time.Duration {
	if s.State == event.StateIdle || s.State == event.StateInvalid {
		return 0
	}
	factor := time.Duration(max(s.TimeFactor, 1))
	return max(s.Estimate-s.Now.Sub(s.EstimateAt)*factor, 0)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Door:         event.DoorInvalid,
			Salt:         event.OnOffInvalid,
			SprayContact: event.OnOffInvalid,
			Leak:         event.OnOffInvalid,
			Program:      event.ProgramNone,
			State:        event.StateIdle,
			TimeFactor:   1,
			StartTime:    startTime,
			Config:       cfg,
		},
	}
}

// Apply folds one event into the state. It reports whether anything a
// display shows has changed.
func (t *Tracker) Apply(ev event.Event, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.snap
	before := *s
	s.EventCount++

	switch ev.Type() {
	case event.MeasuredDoor:
		s.Door = ev.Door()
	case event.MeasuredSalt:
		s.Salt = ev.OnOff()
	case event.MeasuredSprayContact:
		s.SprayContact = ev.OnOff()
	case event.MeasuredLeak:
		s.Leak = ev.OnOff()
	case event.MeasuredCircCurrent:
		s.CircCurrent = ev.Int()
	case event.MeasuredDrainCurrent:
		s.DrainCurrent = ev.Int()
	case event.MeasuredWaterLevel:
		s.WaterLevel = ev.Int()
	case event.MeasuredTemperature:
		s.Temperature = ev.Int()
	case event.ActuateCommand:
		a := ev.Actuate()
		if act := a.Actuator(); act >= 0 {
			if a.On() {
				s.Relays |= 1 << act
			} else {
				s.Relays &^= 1 << act
			}
		}
	case event.ProgramSelected:
		// A running program ignores other selections.
		if p := ev.Program(); s.State == event.StateIdle && p != event.ProgramStop {
			s.Program = p
		}
	case event.MachineStateChanged:
		s.State = ev.MachineState()
		if s.State == event.StateIdle {
			s.Program = event.ProgramNone
		}
	case event.RemainingTime:
		s.Estimate = time.Duration(ev.Int()) * time.Second
		s.EstimateAt = at
	case event.TimeFactorChanged:
		s.TimeFactor = ev.Int()
	case event.Error:
		s.Faults |= ev.Fault()
	default:
		return false
	}

	before.EventCount = s.EventCount
	return before != *s
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	return t.SnapshotAt(time.Now())
}

// SnapshotAt returns a copy of the controller state with Now set to now.
func (t *Tracker) SnapshotAt(now time.Time) Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = now
	return s
}
