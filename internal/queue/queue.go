// Package queue implements the bundle queue: an ordered, closeable FIFO of
// operation contexts consumed by exactly one worker goroutine.
//
// Submission never blocks. Convergence runs on the worker, one context at a
// time, so at most one bundle touches the host at any moment.
package queue

import (
	"context"
	"sync"

	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

// State of the queue.
type State int

const (
	StateInactive State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Runner executes one operation context. It is called on the worker goroutine
// and must not panic.
type Runner interface {
	Run(ctx context.Context, op *domain.OperationContext)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, op *domain.OperationContext)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, op *domain.OperationContext) { f(ctx, op) }

// shutdownNow is the sentinel that stops the worker.
var shutdownNow = &domain.OperationContext{}

type options struct {
	ctx      context.Context
	dispatch func(func())
}

// Option configures a Queue.
type Option func(*options)

// WithContext sets the context handed to the runner.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithDispatch sets where the idle and closing callbacks run. By default they
// run on the worker goroutine.
func WithDispatch(fn func(func())) Option {
	return func(o *options) { o.dispatch = fn }
}

// Queue is the bundle queue.
type Queue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	items     []*domain.OperationContext
	activated bool
	closed    bool
	running   bool
	taken     bool
	onClosing func()
	onIdle    func()

	done   chan struct{}
	runner Runner
	logger ports.Logger
	opts   options
}

// New creates an inactive queue.
func New(runner Runner, logger ports.Logger, opts ...Option) *Queue {
	o := options{
		ctx:      context.Background(),
		dispatch: func(fn func()) { fn() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	q := &Queue{
		done:   make(chan struct{}),
		runner: runner,
		logger: logger,
		opts:   o,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends op. Returns false and drops op if the queue is closed.
func (q *Queue) Push(op *domain.OperationContext) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("bundle dropped, queue closed", ports.String("title", op.Title()))
		return false
	}
	q.items = append(q.items, op)
	q.cond.Signal()
	return true
}

// Clear removes every context not yet taken by the worker and returns how
// many were removed. A pending close is kept.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	removed := 0
	for _, it := range q.items {
		if it == shutdownNow {
			kept = append(kept, it)
			continue
		}
		removed++
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept

	if removed > 0 {
		q.logger.Info("cleared pending bundles", ports.Int("count", removed))
	}
	return removed
}

// Close stops accepting work. The worker finishes what is already queued,
// then fires the closing callback once and exits. Closing twice is a no-op.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.items = append(q.items, shutdownNow)
	q.cond.Signal()
}

// Activate starts the worker. Later calls are no-ops.
func (q *Queue) Activate() {
	q.mu.Lock()
	if q.activated {
		q.mu.Unlock()
		return
	}
	q.activated = true
	q.mu.Unlock()

	q.logger.Info("bundle queue activated")
	go q.work()
}

// SetClosingCallback sets the function fired once the worker observed the
// close. The callback in place at that moment is the one that fires.
// Returns false, leaving fn unset, once the worker already took its callback.
func (q *Queue) SetClosingCallback(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.taken {
		return false
	}
	q.onClosing = fn
	return true
}

// SetIdleCallback sets the function fired each time the worker finishes a
// context and nothing else is queued.
func (q *Queue) SetIdleCallback(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onIdle = fn
}

// State returns the queue state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.closed:
		return StateClosed
	case q.activated:
		return StateActive
	default:
		return StateInactive
	}
}

// Active reports whether the worker was started.
func (q *Queue) Active() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activated
}

// Busy reports whether a context is running or waiting to run.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return true
	}
	for _, it := range q.items {
		if it != shutdownNow {
			return true
		}
	}
	return false
}

// Len returns the number of contexts waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		if it != shutdownNow {
			n++
		}
	}
	return n
}

// Done is closed after the worker stopped and the closing callback was handed
// to dispatch.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) work() {
	for {
		op := q.next()
		if op == shutdownNow {
			break
		}

		q.logger.Debug("running queued context", ports.String("title", op.Title()))
		q.runner.Run(q.opts.ctx, op)

		q.mu.Lock()
		q.running = false
		idle := len(q.items) == 0
		onIdle := q.onIdle
		q.mu.Unlock()

		if idle && onIdle != nil {
			q.opts.dispatch(onIdle)
		}
	}

	q.mu.Lock()
	onClosing := q.onClosing
	q.taken = true
	q.mu.Unlock()

	q.logger.Info("bundle queue closed")
	if onClosing != nil {
		q.opts.dispatch(onClosing)
	}
	close(q.done)
}

func (q *Queue) next() *domain.OperationContext {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	op := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if op != shutdownNow {
		q.running = true
	}
	return op
}
