// Package reactor implements the single-threaded event loop that owns
// control flow: control requests, timer actions, request continuations and
// lifecycle transitions all run here, one at a time, in posting order.
//
// Blocking work (bundle convergence) never runs on the loop.
package reactor

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/lifeline/internal/ports"
)

// Loop is a FIFO of closures executed by one goroutine.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	stopped bool
	notify  chan struct{}
	done    chan struct{}
	logger  ports.Logger
}

// New creates a loop. Post may be called before Run; posted functions wait
// until Run starts.
func New(logger ports.Logger) *Loop {
	return &Loop{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Post schedules fn on the loop. Returns false if the loop was stopped.
// Safe to call from any goroutine, including from the loop itself.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
	return true
}

// Dispatch is Post without the result, usable as a plain func(func()).
func (l *Loop) Dispatch(fn func()) {
	if !l.Post(fn) {
		l.logger.Debug("dropped event posted after stop")
	}
}

// Run executes posted functions until ctx is cancelled or Stop is called.
// Functions already queued when Stop is called still run.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		batch, stopped := l.take()
		for _, fn := range batch {
			l.invoke(fn)
		}
		if stopped && len(batch) == 0 {
			return nil
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.notify:
		}
	}
}

// Stop makes Run return once the already posted functions have executed.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) take() ([]func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.pending
	l.pending = nil
	return batch, l.stopped
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event handler panicked",
				ports.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn()
}
