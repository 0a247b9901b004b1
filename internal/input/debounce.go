package input

import "time"

// Change is a debounced transition of one line.
type Change struct {
	Line  int
	Value bool
}

type lineState struct {
	// Current stable (debounced) value
	stable bool
	// Pending value during debounce
	pending    bool
	hasPending bool
	// Time when pending value was first observed
	pendingSince time.Time
	// Whether we have established a baseline
	baselined bool
}

// Debouncer tracks a fixed set of digital lines and detects debounced
// transitions. A value must be observed unchanged for the debounce period
// before it is accepted.
type Debouncer struct {
	debounce  time.Duration
	lines     []lineState
	baselined bool
}

// NewDebouncer creates a debouncer for n lines.
func NewDebouncer(debounce time.Duration, n int) *Debouncer {
	return &Debouncer{
		debounce: debounce,
		lines:    make([]lineState, n),
	}
}

// Process takes a sample of every line and returns the changes to report.
// Nothing is returned until every line has a baseline; the sample that
// completes the baseline reports every line once.
func (d *Debouncer) Process(values []bool, now time.Time) []Change {
	var changes []Change
	for i := range d.lines {
		if d.processLine(&d.lines[i], values[i], now) {
			changes = append(changes, Change{Line: i, Value: d.lines[i].stable})
		}
	}

	if d.baselined {
		return changes
	}
	for i := range d.lines {
		if !d.lines[i].baselined {
			return nil
		}
	}
	d.baselined = true
	changes = changes[:0]
	for i := range d.lines {
		changes = append(changes, Change{Line: i, Value: d.lines[i].stable})
	}
	return changes
}

// processLine handles debounce logic for a single line and reports
// whether its stable value changed after the baseline.
func (d *Debouncer) processLine(l *lineState, value bool, now time.Time) bool {
	// First time seeing this line
	if !l.baselined {
		if !l.hasPending || l.pending != value {
			// Start observing, or restart after a change during baseline
			l.pending = value
			l.hasPending = true
			l.pendingSince = now
		}
		if now.Sub(l.pendingSince) >= d.debounce {
			l.stable = value
			l.baselined = true
			l.hasPending = false
		}
		return false
	}

	// Already baselined - detect transitions
	if value == l.stable {
		// No change from stable value, clear any pending
		l.hasPending = false
		return false
	}

	if !l.hasPending || l.pending != value {
		// New pending value
		l.pending = value
		l.hasPending = true
		l.pendingSince = now
		return false
	}

	// Same pending value, check debounce
	if now.Sub(l.pendingSince) >= d.debounce {
		l.stable = value
		l.hasPending = false
		return true
	}
	return false
}

// Baselined reports whether every line has a stable value.
func (d *Debouncer) Baselined() bool {
	return d.baselined
}

// Stable returns the debounced value of line i.
func (d *Debouncer) Stable(i int) bool {
	return d.lines[i].stable
}
