// Package retry wraps coordinator calls with a retry policy and a single-fire
// completion.
//
// A Request is built once, continuations are registered once, and Run sends
// it. Retries are invisible to the caller: exactly one of OnSuccess or
// OnError fires, exactly once.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	logAdapter "github.com/bft-labs/lifeline/internal/adapters/log"
	"github.com/bft-labs/lifeline/internal/clock"
	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

type options struct {
	policy     Policy
	persistent bool
	timeout    time.Duration
	clock      clock.Clock
	dispatch   func(func())
	logger     ports.Logger
}

// Option configures a Request.
type Option func(*options)

// WithPolicy sets the retry policy. The default is NoRetry.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// Persistent marks the request as non-idempotent. It is never retried and any
// failure is reported immediately.
func Persistent() Option {
	return func(o *options) { o.persistent = true }
}

// WithTimeout bounds each attempt. A timed-out attempt counts as transient.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithClock sets the clock used to wait between attempts.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithDispatch sets where continuations run, usually the reactor's Dispatch.
// By default they run on the request goroutine.
func WithDispatch(fn func(func())) Option {
	return func(o *options) { o.dispatch = fn }
}

// WithLogger sets the logger for retry messages.
func WithLogger(l ports.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Request is one logical coordinator call with result type T.
type Request[T any] struct {
	coordinator ports.Coordinator
	target      string
	payload     any
	id          string
	opts        options

	mu        sync.Mutex
	onSuccess func(T)
	onError   func(error)

	start  sync.Once
	done   chan struct{}
	result T
	err    error
}

// New builds a request for target. payload is sent unchanged on every attempt.
func New[T any](c ports.Coordinator, target string, payload any, opts ...Option) *Request[T] {
	o := options{
		policy:   NoRetry(),
		clock:    clock.Real(),
		dispatch: func(fn func()) { fn() },
		logger:   logAdapter.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Request[T]{
		coordinator: c,
		target:      target,
		payload:     payload,
		id:          uuid.NewString(),
		opts:        o,
		done:        make(chan struct{}),
	}
}

// ID returns the request identity sent with every attempt.
func (r *Request[T]) ID() string { return r.id }

// Target returns the coordinator target.
func (r *Request[T]) Target() string { return r.target }

// OnSuccess registers the success continuation. Must be called before Run.
func (r *Request[T]) OnSuccess(fn func(T)) *Request[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSuccess = fn
	return r
}

// OnError registers the failure continuation. Must be called before Run.
func (r *Request[T]) OnError(fn func(error)) *Request[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
	return r
}

// Run sends the request in the background. Calling Run more than once has no
// further effect. Cancelling ctx abandons pending retries and reports ctx.Err().
func (r *Request[T]) Run(ctx context.Context) {
	r.start.Do(func() {
		go r.execute(ctx)
	})
}

// Result runs the request if needed and waits for its outcome.
func (r *Request[T]) Result(ctx context.Context) (T, error) {
	r.Run(ctx)
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the outcome is known.
func (r *Request[T]) Done() <-chan struct{} {
	return r.done
}

func (r *Request[T]) execute(ctx context.Context) {
	r.result, r.err = r.attemptAll(ctx)
	close(r.done)

	r.mu.Lock()
	onSuccess, onError := r.onSuccess, r.onError
	r.mu.Unlock()

	result, err := r.result, r.err
	switch {
	case err == nil && onSuccess != nil:
		r.opts.dispatch(func() { onSuccess(result) })
	case err != nil && onError != nil:
		r.opts.dispatch(func() { onError(err) })
	}
}

func (r *Request[T]) attemptAll(ctx context.Context) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		out, err := r.attempt(ctx)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if r.opts.persistent || !IsTransient(err) || r.opts.policy.exhausted(attempt) {
			return zero, fmt.Errorf("%s: %w", r.target, err)
		}

		r.opts.logger.Warn("request failed, retrying",
			ports.String("target", r.target),
			ports.String("request_id", r.id),
			ports.Int("attempt", attempt),
			ports.Duration("delay", r.opts.policy.Delay),
			ports.Err(err),
		)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-r.opts.clock.After(r.opts.policy.Delay):
		}
	}
}

func (r *Request[T]) attempt(ctx context.Context) (T, error) {
	var out T
	actx := ctx
	if r.opts.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, r.opts.timeout)
		defer cancel()
	}
	err := r.coordinator.Call(actx, r.id, r.target, r.payload, &out)
	return out, err
}

// IsTransient reports whether err is a failure a retry may fix: a coordinator
// "not ready" answer, a transport error or an attempt timeout.
func IsTransient(err error) bool {
	if domain.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
