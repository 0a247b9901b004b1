// Package gpio provides digital sensor and relay access with hardware
// abstraction. The real implementation uses the Linux GPIO character
// device. The fake implementations allow testing without hardware.
package gpio

// Inputs is one sample of the appliance's digital sensor lines, already
// in logical form.
type Inputs struct {
	DoorClosed   bool
	Salt         bool // true = salt present
	SprayContact bool
	Leak         bool
}

// Reader reads the sensor lines.
type Reader interface {
	// Read returns the logical states of every sensor line.
	// The raw values are inverted: raw active = logical OFF.
	Read() (Inputs, error)

	// Close releases GPIO resources.
	Close() error
}

// Writer drives the actuator relay lines.
type Writer interface {
	// Write sets every relay line at once. values is indexed like the
	// line offsets the writer was created with; true energises the relay.
	Write(values []bool) error

	// Close switches every relay off and releases GPIO resources.
	Close() error
}
