package automat

import (
	"errors"
	"time"

	"github.com/sweeney/dishwasher/internal/config"
	"github.com/sweeney/dishwasher/internal/event"
)

// cycleLength is the number of contact intervals in one full turn of the
// selector: an on and an off interval for each of the three positions.
const cycleLength = 6

var (
	// ErrTooFewSamples means the search saw too few contact transitions.
	ErrTooFewSamples = errors.New("automat: too few spray selector samples")

	// ErrNoUpWindow means no interval as short as the up-on window was seen,
	// so the samples cannot be lined up with the selector cycle.
	ErrNoUpWindow = errors.New("automat: spray selector up window not found")

	// ErrParity means the sample count and the current contact state
	// disagree about where the selector is.
	ErrParity = errors.New("automat: spray selector parity mismatch")
)

// Position is the spray selector's rotational position.
type Position int32

const (
	PositionInvalid Position = iota - 1
	PositionUpper
	PositionLower
	PositionBoth
)

var positionNames = [...]string{"Invalid", "Upper", "Lower", "Both"}

func (p Position) String() string {
	if p < PositionInvalid || p > PositionBoth {
		return positionNames[0]
	}
	return positionNames[p+1]
}

// Calibration is the outcome of a spray selector search.
type Calibration struct {
	Position Position
	// RawIndex is the interval the selector is in: 0 up-on, 1 up-off,
	// 2 down-on, 3 down-off, 4 both-on, 5 both-off.
	RawIndex int
	// Samples is the count from the first up-on interval onwards.
	Samples int
	// Cycle holds the six intervals averaged over two turns, in RawIndex
	// order, or nil when fewer than two turns were observed.
	Cycle []time.Duration
}

// Calibrate infers the selector position from the contact intervals
// recorded while the motor turned freely. Each sample is the length of the
// interval that ended at a contact transition; contact is the state after
// the last transition.
//
// The first sample runs from motor start and is always partial, so it is
// never used. The count is anchored on the first later sample shorter than
// the up-on interval plus tolerance, which is the only window that short.
// With n samples from that anchor on the selector is in interval n mod 6.
// Even intervals have the contact engaged, odd ones do not.
func Calibrate(samples []time.Duration, contact event.OnOff, cfg config.SprayConfig) (Calibration, error) {
	if len(samples) < cfg.MinSamples {
		return Calibration{}, ErrTooFewSamples
	}

	short := cfg.UpOn + cfg.Tolerance
	anchor := 1
	for anchor < len(samples) && samples[anchor] >= short {
		anchor++
	}
	if anchor >= len(samples) {
		return Calibration{}, ErrNoUpWindow
	}
	kept := append([]time.Duration(nil), samples[anchor:]...)

	res := Calibration{Samples: len(kept)}
	if len(kept) >= 2*cycleLength {
		for i := 0; i < cycleLength; i++ {
			kept[i] = (kept[i] + kept[i+cycleLength]) / 2
		}
		res.Cycle = kept[:cycleLength:cycleLength]
	}

	res.RawIndex = len(kept) % cycleLength
	if contact != event.On && contact != event.Off {
		return res, ErrParity
	}
	if 1-res.RawIndex%2 != int(contact) {
		return res, ErrParity
	}

	switch res.RawIndex {
	case 0, 1:
		res.Position = PositionUpper
	case 2, 3:
		res.Position = PositionLower
	default:
		res.Position = PositionBoth
	}
	return res, nil
}
