// Package timer provides the cancellable one-shot timers used for the
// decommission fallback shutdown and the boot suicide deadline.
package timer

import (
	"sync"
	"time"

	"github.com/bft-labs/lifeline/internal/clock"
	"github.com/bft-labs/lifeline/internal/ports"
)

// Timer runs an action once after a delay unless cancelled first.
// The action runs through dispatch, normally the reactor.
type Timer struct {
	name     string
	clock    clock.Clock
	dispatch func(func())
	logger   ports.Logger

	mu       sync.Mutex
	armed    bool
	fired    bool
	deadline time.Time
	gen      uint64
	pending  *clock.Timer
}

// New creates a disarmed timer. A nil dispatch runs the action on the clock's
// goroutine.
func New(name string, clk clock.Clock, dispatch func(func()), logger ports.Logger) *Timer {
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	return &Timer{name: name, clock: clk, dispatch: dispatch, logger: logger}
}

// Arm schedules action after delay. Returns false without changing anything
// if the timer is already armed.
func (t *Timer) Arm(delay time.Duration, action func()) bool {
	t.mu.Lock()
	if t.armed {
		t.mu.Unlock()
		return false
	}
	t.armed = true
	t.fired = false
	t.gen++
	gen := t.gen
	t.deadline = t.clock.Now().Add(delay)
	t.mu.Unlock()

	t.logger.Info("timer armed",
		ports.String("timer", t.name),
		ports.Duration("delay", delay),
	)

	pending := t.clock.AfterFunc(delay, func() {
		t.dispatch(func() { t.fire(gen, action) })
	})

	t.mu.Lock()
	if t.gen == gen {
		t.pending = pending
	}
	t.mu.Unlock()
	return true
}

// Cancel disarms the timer. Safe to call any number of times, before or after
// the timer fired. Returns true if a pending action was prevented.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	if !t.armed {
		t.mu.Unlock()
		return false
	}
	t.armed = false
	t.gen++
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	if pending != nil {
		pending.Stop()
	}
	t.logger.Info("timer cancelled", ports.String("timer", t.name))
	return true
}

// Armed reports whether the action is still pending.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Fired reports whether the action ran since the last Arm.
func (t *Timer) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Deadline returns when the last armed action is due.
func (t *Timer) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

func (t *Timer) fire(gen uint64, action func()) {
	t.mu.Lock()
	if !t.armed || t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.armed = false
	t.fired = true
	t.pending = nil
	t.mu.Unlock()

	t.logger.Warn("timer fired", ports.String("timer", t.name))
	action()
}
