//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/dishwasher/internal/config"
)

const consumer = "dishwasher"

// RealReader reads the sensor lines from hardware using the Linux GPIO
// character device.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
	raw   []int
}

// NewRealReader requests the sensor lines on the named chip.
func NewRealReader(chipName string, pins config.InputPins) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	// Request lines as input with pull-down to match Pi boot defaults.
	// This ensures consistent behavior with external optocoupler modules.
	offsets := []int{pins.Door, pins.Salt, pins.SprayContact, pins.Leak}
	lines, err := chip.RequestLines(offsets, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request input pins %v: %w", offsets, err)
	}

	return &RealReader{
		chip:  chip,
		lines: lines,
		raw:   make([]int, len(offsets)),
	}, nil
}

// Read returns the logical states of every sensor line.
// Inverts raw GPIO: raw active (1) = logical OFF, raw inactive (0) = logical ON.
func (r *RealReader) Read() (Inputs, error) {
	if err := r.lines.Values(r.raw); err != nil {
		return Inputs{}, fmt.Errorf("read input pins: %w", err)
	}
	return Inputs{
		DoorClosed:   r.raw[0] == 0,
		Salt:         r.raw[1] == 0,
		SprayContact: r.raw[2] == 0,
		Leak:         r.raw[3] == 0,
	}, nil
}

// Close releases GPIO resources.
// Reconfigures pins to input with pull-down (matching Pi boot defaults) before
// closing to ensure clean state for system shutdown/reboot.
func (r *RealReader) Close() error {
	var errs []error
	if r.lines != nil {
		if err := r.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure input pins: %w", err))
		}
		if err := r.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input pins: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealWriter drives the relay lines on hardware.
type RealWriter struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
	raw   []int
}

// NewRealWriter requests the relay lines on the named chip, all initially off.
func NewRealWriter(chipName string, offsets []int) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	raw := make([]int, len(offsets))
	lines, err := chip.RequestLines(offsets, gpiocdev.AsOutput(raw...))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request output pins %v: %w", offsets, err)
	}

	return &RealWriter{chip: chip, lines: lines, raw: raw}, nil
}

// Write sets every relay line at once.
func (w *RealWriter) Write(values []bool) error {
	if len(values) != len(w.raw) {
		return fmt.Errorf("write output pins: got %d values for %d lines", len(values), len(w.raw))
	}
	for i, on := range values {
		w.raw[i] = 0
		if on {
			w.raw[i] = 1
		}
	}
	if err := w.lines.SetValues(w.raw); err != nil {
		return fmt.Errorf("write output pins: %w", err)
	}
	return nil
}

// Close switches every relay off and returns the lines to inputs with
// pull-down, the Pi boot default.
func (w *RealWriter) Close() error {
	var errs []error
	if w.lines != nil {
		clear(w.raw)
		if err := w.lines.SetValues(w.raw); err != nil {
			errs = append(errs, fmt.Errorf("switch off output pins: %w", err))
		}
		if err := w.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure output pins: %w", err))
		}
		if err := w.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output pins: %w", err))
		}
	}
	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
