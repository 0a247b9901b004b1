package input

import (
	"math"
	"time"

	"github.com/sweeney/dishwasher/internal/config"
	"github.com/sweeney/dishwasher/internal/event"
)

// Plant model rates, per second of simulated time.
const (
	fillRate     = 1.0   // mm
	drainRate    = 1.5   // mm
	heatRate     = 0.2   // degrees, with the element covered
	coolingRatio = 0.002 // of the difference to ambient
	ambient      = 20.0

	circRunning  = 250 // mA
	drainRunning = 90  // mA
)

// Readings is what the plant's sensors show.
type Readings struct {
	DoorClosed   bool
	Salt         bool
	Leak         bool
	SprayContact bool
	Level        int32
	Temperature  int32
	CircCurrent  int32
	DrainCurrent int32
}

// Plant is a simple physical model of the appliance used when no sensor
// hardware is attached. It follows the relay commands it is given and
// integrates water level, temperature and the spray selector rotation.
type Plant struct {
	relays [event.ActuatorCount]bool

	doorClosed bool
	salt       bool
	leak       bool

	level       float64
	temperature float64

	// Selector rotation as a phase index into phases and the time spent in it.
	phases  [cycleLength]time.Duration
	phase   int
	inPhase time.Duration
}

const cycleLength = 6

// NewPlant returns a plant with a closed, empty, cold machine. The spray
// selector rests half way through its lower off interval.
func NewPlant(spray config.SprayConfig) *Plant {
	p := &Plant{
		doorClosed:  true,
		salt:        true,
		temperature: ambient,
		phases: [cycleLength]time.Duration{
			spray.UpOn, spray.UpOff,
			spray.DownOn, spray.DownOff,
			spray.BothOn, spray.BothOff,
		},
		phase: 3,
	}
	p.inPhase = p.phases[p.phase] / 2
	return p
}

// Set applies a relay command.
func (p *Plant) Set(a event.Actuate) {
	if act := a.Actuator(); act >= 0 && act < event.ActuatorCount {
		p.relays[act] = a.On()
	}
}

// Relay reports whether actuator a is energised and the door lets it run.
func (p *Plant) Relay(a event.Actuator) bool {
	return p.relays[a] && p.doorClosed
}

// ToggleDoor opens or closes the door.
func (p *Plant) ToggleDoor() { p.doorClosed = !p.doorClosed }

// ToggleLeak floods or dries the base tray.
func (p *Plant) ToggleLeak() { p.leak = !p.leak }

// ToggleSalt empties or refills the salt container.
func (p *Plant) ToggleSalt() { p.salt = !p.salt }

// Step advances the model by dt of simulated time.
func (p *Plant) Step(dt time.Duration) {
	sec := dt.Seconds()

	if p.Relay(event.ActuatorFill) {
		p.level += fillRate * sec
	}
	if p.Relay(event.ActuatorDrain) {
		p.level = math.Max(p.level-drainRate*sec, 0)
	}

	if p.Relay(event.ActuatorHeat) && p.level >= 50 {
		p.temperature += heatRate * sec
	}
	p.temperature -= (p.temperature - ambient) * coolingRatio * sec

	if p.Relay(event.ActuatorSpray) {
		p.inPhase += dt
		for p.inPhase >= p.phases[p.phase] {
			p.inPhase -= p.phases[p.phase]
			p.phase = (p.phase + 1) % cycleLength
		}
	}
}

// Readings returns the current sensor values.
func (p *Plant) Readings() Readings {
	r := Readings{
		DoorClosed:   p.doorClosed,
		Salt:         p.salt,
		Leak:         p.leak,
		SprayContact: p.phase%2 == 0,
		Level:        int32(math.Round(p.level)),
		Temperature:  int32(math.Round(p.temperature)),
	}
	if p.Relay(event.ActuatorCirc) {
		r.CircCurrent = circRunning
	}
	if p.Relay(event.ActuatorDrain) {
		r.DrainCurrent = drainRunning
	}
	return r
}
