// Package timer provides a bounded set of delayed actions owned by one
// component, plus a separate watchdog deadline.
//
// Entries live in a fixed slot arena; a binary heap of slot indices keeps
// them ordered by deadline, with scheduling order breaking ties. The arena
// is allocated once so the control loop never grows it.
//
// A Manager is not safe for concurrent use. Only the owning component's
// loop may call it.
package timer

import (
	"container/heap"
	"errors"
	"time"
)

// Action is an opaque token meaningful only to the component that
// scheduled it.
type Action int32

var (
	// ErrCapacity is returned by Schedule when every slot is in use.
	ErrCapacity = errors.New("timer: capacity exhausted")

	// ErrInvalidFactor is returned by SetDilationFactor for factors below 1.
	ErrInvalidFactor = errors.New("timer: dilation factor must be at least 1")
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

type entry struct {
	deadline time.Time
	action   Action
	exempt   bool
	seq      uint64
}

// Manager holds the pending actions of one component.
type Manager struct {
	clock  Clock
	slots  []entry
	free   []int32
	order  slotHeap
	seq    uint64
	factor float64

	paused     bool
	pauseStart time.Time

	watchdog time.Duration
	lastPat  time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, typically with a FakeClock in tests.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// New creates a Manager with room for capacity pending actions. A watchdog
// of zero disables the watchdog deadline.
func New(capacity int, watchdog time.Duration, opts ...Option) *Manager {
	if capacity < 1 {
		capacity = 1
	}
	m := &Manager{
		clock:    systemClock{},
		slots:    make([]entry, capacity),
		free:     make([]int32, 0, capacity),
		factor:   1,
		watchdog: watchdog,
	}
	for _, opt := range opts {
		opt(m)
	}
	for i := capacity - 1; i >= 0; i-- {
		m.free = append(m.free, int32(i))
	}
	m.order = slotHeap{slots: m.slots, idx: make([]int32, 0, capacity)}
	m.lastPat = m.clock.Now()
	return m
}

// Now returns the manager's notion of the current time.
func (m *Manager) Now() time.Time { return m.clock.Now() }

// Schedule registers action to fire after length, shortened by the current
// dilation factor.
func (m *Manager) Schedule(length time.Duration, action Action) error {
	return m.schedule(length, action, false)
}

// ScheduleRealtime registers action to fire after length regardless of the
// dilation factor.
func (m *Manager) ScheduleRealtime(length time.Duration, action Action) error {
	return m.schedule(length, action, true)
}

func (m *Manager) schedule(length time.Duration, action Action, exempt bool) error {
	if len(m.free) == 0 {
		return ErrCapacity
	}
	if length < 0 {
		length = 0
	}
	if !exempt {
		length = time.Duration(float64(length) / m.factor)
	}

	// While paused, remaining time starts counting at resume.
	base := m.clock.Now()
	if m.paused {
		base = m.pauseStart
	}

	slot := m.free[len(m.free)-1]
	m.free = m.free[:len(m.free)-1]
	m.seq++
	m.slots[slot] = entry{
		deadline: base.Add(length),
		action:   action,
		exempt:   exempt,
		seq:      m.seq,
	}
	heap.Push(&m.order, slot)
	return nil
}

// Pop removes and returns one expired action. It returns false while paused
// or when the earliest entry has not yet expired; callers loop until false.
func (m *Manager) Pop() (Action, bool) {
	if m.paused || m.order.Len() == 0 {
		return 0, false
	}
	top := m.slots[m.order.idx[0]]
	if top.deadline.After(m.clock.Now()) {
		return 0, false
	}
	slot := heap.Pop(&m.order).(int32)
	m.free = append(m.free, slot)
	return top.action, true
}

// NextTimeout returns how long the owner may block: the sooner of the
// earliest regular deadline and the watchdog deadline. Regular entries are
// ignored while paused. It returns false when there is nothing to wait for.
func (m *Manager) NextTimeout() (time.Duration, bool) {
	now := m.clock.Now()
	var (
		best  time.Duration
		found bool
	)
	if m.watchdog > 0 {
		best = m.lastPat.Add(m.watchdog).Sub(now)
		found = true
	}
	if !m.paused && m.order.Len() > 0 {
		d := m.slots[m.order.idx[0]].deadline.Sub(now)
		if !found || d < best {
			best = d
		}
		found = true
	}
	if !found {
		return 0, false
	}
	if best < 0 {
		best = 0
	}
	return best, true
}

// SetDilationFactor rescales the remaining time of every pending
// non-exempt entry and of all future ones.
func (m *Manager) SetDilationFactor(f float64) error {
	if f < 1 {
		return ErrInvalidFactor
	}
	if f == m.factor {
		return nil
	}
	now := m.clock.Now()
	if m.paused {
		now = m.pauseStart
	}
	ratio := m.factor / f
	for _, slot := range m.order.idx {
		e := &m.slots[slot]
		if e.exempt {
			continue
		}
		if remaining := e.deadline.Sub(now); remaining > 0 {
			e.deadline = now.Add(time.Duration(float64(remaining) * ratio))
		}
	}
	m.factor = f
	heap.Init(&m.order)
	return nil
}

// DilationFactor returns the current factor.
func (m *Manager) DilationFactor() float64 { return m.factor }

// Pause freezes every regular entry. The watchdog keeps running.
func (m *Manager) Pause() {
	if m.paused {
		return
	}
	m.paused = true
	m.pauseStart = m.clock.Now()
}

// Resume shifts every entry forward by the paused duration so that
// remaining times are as they were at Pause.
func (m *Manager) Resume() {
	if !m.paused {
		return
	}
	shift := m.clock.Now().Sub(m.pauseStart)
	for _, slot := range m.order.idx {
		m.slots[slot].deadline = m.slots[slot].deadline.Add(shift)
	}
	m.paused = false
}

// Paused reports whether the manager is paused.
func (m *Manager) Paused() bool { return m.paused }

// CancelAll discards every regular entry. The watchdog is left alone.
func (m *Manager) CancelAll() {
	for _, slot := range m.order.idx {
		m.free = append(m.free, slot)
	}
	m.order.idx = m.order.idx[:0]
}

// Len returns the number of pending regular entries.
func (m *Manager) Len() int { return m.order.Len() }

// PatWatchdog re-arms the watchdog and returns the time elapsed since the
// previous pat.
func (m *Manager) PatWatchdog() time.Duration {
	now := m.clock.Now()
	since := now.Sub(m.lastPat)
	m.lastPat = now
	return since
}

// WatchdogRemaining returns the time left before the watchdog deadline.
// It is negative once the deadline has passed.
func (m *Manager) WatchdogRemaining() time.Duration {
	return m.lastPat.Add(m.watchdog).Sub(m.clock.Now())
}

// Watchdog returns the configured watchdog interval.
func (m *Manager) Watchdog() time.Duration { return m.watchdog }

// slotHeap orders arena slot indices by deadline, then by sequence number.
type slotHeap struct {
	slots []entry
	idx   []int32
}

func (h slotHeap) Len() int { return len(h.idx) }

func (h slotHeap) Less(i, j int) bool {
	a, b := &h.slots[h.idx[i]], &h.slots[h.idx[j]]
	if a.deadline.Equal(b.deadline) {
		return a.seq < b.seq
	}
	return a.deadline.Before(b.deadline)
}

func (h slotHeap) Swap(i, j int) { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }

func (h *slotHeap) Push(x any) { h.idx = append(h.idx, x.(int32)) }

func (h *slotHeap) Pop() any {
	n := len(h.idx) - 1
	slot := h.idx[n]
	h.idx = h.idx[:n]
	return slot
}
