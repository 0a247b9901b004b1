// Package component provides the runtime shared by every controller
// component: a bounded inbound event queue, a private timer set with a
// watchdog, a sticky fault mask and a single worker goroutine that
// dispatches expired timers and queued events to a Handler.
package component

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/logging"
	"github.com/sweeney/dishwasher/internal/timer"
)

// Handler is implemented by each concrete component.
type Handler interface {
	// ShouldBeQueued selects the non-error events the component wants.
	// It is called from other components' goroutines and must depend only
	// on the event itself.
	ShouldBeQueued(ev event.Event) bool

	// HandleEvent processes one dequeued event.
	HandleEvent(ev event.Event)

	// HandleTimer processes one expired timer action.
	HandleTimer(action timer.Action)

	// HaltOnError reports whether ordinary processing stops after the
	// first fault.
	HaltOnError() bool
}

// Broadcaster delivers an event to every component except origin.
type Broadcaster interface {
	Broadcast(origin string, ev event.Event)
}

// Options configures a Runtime.
type Options struct {
	QueueSize     int
	TimerCapacity int
	Watchdog      time.Duration
	Clock         timer.Clock
	Logger        *logging.Logger
}

// DefaultOptions returns the sizes used by the controller.
func DefaultOptions() Options {
	return Options{
		QueueSize:     128,
		TimerCapacity: 16,
		Watchdog:      100 * time.Millisecond,
	}
}

// Runtime runs one component.
//
// Enqueue, Faults and Halted are safe for concurrent use. Every other
// method must be called from the component's own goroutine, which in
// practice means from inside Handler callbacks.
type Runtime struct {
	name    string
	handler Handler
	queue   chan event.Event
	timers  *timer.Manager
	log     *logging.Logger

	faults atomic.Int32
	hub    atomic.Pointer[hubRef]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type hubRef struct{ b Broadcaster }

// New creates a Runtime for handler. Nothing runs until Start.
func New(name string, handler Handler, opts Options) *Runtime {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.TimerCapacity <= 0 {
		opts.TimerCapacity = def.TimerCapacity
	}
	if opts.Watchdog <= 0 {
		opts.Watchdog = def.Watchdog
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	var topts []timer.Option
	if opts.Clock != nil {
		topts = append(topts, timer.WithClock(opts.Clock))
	}
	return &Runtime{
		name:    name,
		handler: handler,
		queue:   make(chan event.Event, opts.QueueSize),
		timers:  timer.New(opts.TimerCapacity, opts.Watchdog, topts...),
		log:     opts.Logger.With("component", name),
	}
}

// Name returns the unique component name.
func (r *Runtime) Name() string { return r.name }

// Logger returns the component's logger.
func (r *Runtime) Logger() *logging.Logger { return r.log }

// Attach connects the runtime to the hub used by Send and Raise.
func (r *Runtime) Attach(b Broadcaster) { r.hub.Store(&hubRef{b: b}) }

// Enqueue offers an event to the component. Error events always enter the
// queue and are folded into the fault mask immediately. Other events enter
// only when the handler wants them and no fault has been recorded. A full
// queue raises FaultQueue.
func (r *Runtime) Enqueue(ev event.Event) {
	switch {
	case ev.IsError():
		r.faults.Or(int32(ev.Fault()))
	case ev.Type() == event.TimeFactorChanged:
		// Timer dilation applies to every component regardless of filter.
	case r.faults.Load() != 0 || !r.handler.ShouldBeQueued(ev):
		return
	}

	select {
	case r.queue <- ev:
	default:
		r.queueFull(ev)
	}
}

func (r *Runtime) queueFull(dropped event.Event) {
	old := event.Fault(r.faults.Or(int32(event.FaultQueue)))
	if old.Has(event.FaultQueue) {
		// Already reported; raising again would loop through the hub.
		r.log.Debug("queue full, dropping event", "event", dropped.String())
		return
	}
	r.log.Error("queue full", "event", dropped.String())
	r.broadcast(event.NewError(event.FaultQueue))
}

// Send publishes an event to every other component. Error events are
// routed through Raise.
func (r *Runtime) Send(ev event.Event) {
	if ev.IsError() {
		r.Raise(ev.Fault())
		return
	}
	r.broadcast(ev)
}

// Raise records fault in the sticky mask and broadcasts it.
func (r *Runtime) Raise(fault event.Fault) {
	if fault == event.FaultNone {
		return
	}
	r.faults.Or(int32(fault))
	r.log.Error("fault raised", "fault", fault.String())
	r.broadcast(event.NewError(fault))
}

// Ensure raises fault when ok is false and returns ok.
func (r *Runtime) Ensure(ok bool, fault event.Fault) bool {
	if !ok {
		r.Raise(fault)
	}
	return ok
}

func (r *Runtime) broadcast(ev event.Event) {
	if ref := r.hub.Load(); ref != nil {
		ref.b.Broadcast(r.name, ev)
	}
}

// Faults returns the accumulated fault mask.
func (r *Runtime) Faults() event.Fault { return event.Fault(r.faults.Load()) }

// Halted reports whether ordinary processing has stopped.
func (r *Runtime) Halted() bool {
	return r.handler.HaltOnError() && r.faults.Load() != 0
}

// Now returns the runtime's clock reading.
func (r *Runtime) Now() time.Time { return r.timers.Now() }

// Schedule arms a dilatable timer. Capacity exhaustion raises FaultQueue.
func (r *Runtime) Schedule(length time.Duration, action timer.Action) bool {
	if err := r.timers.Schedule(length, action); err != nil {
		r.log.Error("schedule timer", "action", int32(action), "error", err)
		r.Raise(event.FaultQueue)
		return false
	}
	return true
}

// ScheduleRealtime arms a timer that ignores the dilation factor, for
// physical pulses whose length must not shrink in simulation.
func (r *Runtime) ScheduleRealtime(length time.Duration, action timer.Action) bool {
	if err := r.timers.ScheduleRealtime(length, action); err != nil {
		r.log.Error("schedule realtime timer", "action", int32(action), "error", err)
		r.Raise(event.FaultQueue)
		return false
	}
	return true
}

// CancelTimers discards every pending timer.
func (r *Runtime) CancelTimers() { r.timers.CancelAll() }

// PauseTimers freezes pending timers.
func (r *Runtime) PauseTimers() { r.timers.Pause() }

// ResumeTimers continues pending timers with their remaining time intact.
func (r *Runtime) ResumeTimers() { r.timers.Resume() }

// PendingTimers returns the number of armed timers.
func (r *Runtime) PendingTimers() int { return r.timers.Len() }

// Start launches the worker goroutine. It stops when ctx is cancelled or
// Stop is called.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
}

// Stop cancels the worker and waits for it to exit.
func (r *Runtime) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Runtime) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	r.log.Debug("started")
	defer r.log.Debug("stopped")

	wait := time.NewTimer(time.Hour)
	defer wait.Stop()

	for {
		d, ok := r.timers.NextTimeout()
		if !ok {
			d = time.Hour
		}
		wait.Reset(d)

		select {
		case <-ctx.Done():
			return
		case ev := <-r.queue:
			wait.Stop()
			r.iterate(&ev)
		case <-wait.C:
			r.iterate(nil)
		}
	}
}

// RunOnce performs one loop iteration without blocking: expired timers
// first, then every queued event. Intended for deterministic tests driven
// by a fake clock.
func (r *Runtime) RunOnce() {
	r.iterate(nil)
}

func (r *Runtime) iterate(first *event.Event) {
	for {
		action, ok := r.timers.Pop()
		if !ok {
			break
		}
		if r.Halted() {
			continue
		}
		r.dispatchTimer(action)
	}

	if stall := r.timers.PatWatchdog(); stall > 2*r.timers.Watchdog() {
		r.log.Warn("watchdog overrun", "stalled", stall)
	}

	if first != nil {
		r.dispatch(*first)
	}
	for n := len(r.queue); n > 0; n-- {
		r.dispatch(<-r.queue)
	}
}

func (r *Runtime) dispatch(ev event.Event) {
	if ev.Type() == event.TimeFactorChanged {
		if err := r.timers.SetDilationFactor(float64(ev.Int())); err != nil {
			r.log.Warn("ignoring time factor", "factor", ev.Int(), "error", err)
		}
		if !r.handler.ShouldBeQueued(ev) {
			return
		}
	}
	if !ev.IsError() && r.Halted() {
		return
	}

	defer r.recoverPanic(ev.String())
	r.handler.HandleEvent(ev)
}

func (r *Runtime) dispatchTimer(action timer.Action) {
	defer r.recoverPanic(fmt.Sprintf("timer %d", action))
	r.handler.HandleTimer(action)
}

func (r *Runtime) recoverPanic(what string) {
	if p := recover(); p != nil {
		r.log.Error("handler panic", "input", what, "panic", fmt.Sprint(p))
		r.Raise(event.FaultProgrammer)
	}
}
