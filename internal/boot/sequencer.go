// Package boot drives the instance boot sequence:
//
//	declare → enable_managed_login → prepare_volumes → fetch_repositories →
//	prepare_boot_bundle → run_boot_bundle → operational
//
// Each step starts only after the previous one succeeded. A failed step
// strands the instance and halts the sequence, except for the managed login
// and individual repository failures, which are logged and skipped.
package boot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/lifeline/internal/clock"
	"github.com/bft-labs/lifeline/internal/converge"
	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/lifecycle"
	"github.com/bft-labs/lifeline/internal/ports"
	"github.com/bft-labs/lifeline/internal/retry"
)

// Step names, as written to logs and audits.
const (
	StepDeclare            = "declare"
	StepEnableManagedLogin = "enable_managed_login"
	StepPrepareVolumes     = "prepare_volumes"
	StepFetchRepositories  = "fetch_repositories"
	StepPrepareBootBundle  = "prepare_boot_bundle"
	StepRunBootBundle      = "run_boot_bundle"
)

// Config holds the boot sequence settings.
type Config struct {
	InstanceID           string
	ManagesVolumes       bool
	RetryDelay           time.Duration
	RetryAttempts        int
	RequestTimeout       time.Duration
	InputsPollInterval   time.Duration
	WaitingAuditInterval time.Duration
}

// ShutdownGate exposes the pending shutdown request to the final boot step.
// Both methods are called on the event loop.
type ShutdownGate interface {
	// PendingImmediate reports whether an immediate shutdown was requested.
	PendingImmediate() bool

	// ProcessFromBoot handles the pending request while still booting.
	ProcessFromBoot()
}

// Deps are the collaborators of the sequencer.
type Deps struct {
	State        *lifecycle.State
	Coordinator  ports.Coordinator
	Login        ports.LoginApplier
	Repositories ports.RepositoryConfigurator
	Volumes      ports.VolumeManager
	Runner       *converge.Runner
	Audits       ports.AuditSink
	Shutdown     ShutdownGate
	Clock        clock.Clock
	Logger       ports.Logger

	// Dispatch runs a function on the event loop.
	Dispatch func(func())

	// OnBootBundle is called once the boot bundle definition was fetched.
	OnBootBundle func()
}

// Sequencer runs the boot steps once.
type Sequencer struct {
	cfg  Config
	deps Deps

	audit domain.Audit
}

// New creates a sequencer.
func New(cfg Config, deps Deps) *Sequencer {
	if deps.Dispatch == nil {
		deps.Dispatch = func(fn func()) { fn() }
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	return &Sequencer{cfg: cfg, deps: deps}
}

// errAbandoned stops the sequence when the status left booting underneath it.
var errAbandoned = errors.New("boot abandoned")

// Run executes the sequence. It blocks and is meant to run on its own
// goroutine. Returns an error wrapping domain.ErrStranded when a step failed,
// ctx.Err() when cancelled, nil otherwise.
func (s *Sequencer) Run(ctx context.Context) error {
	s.audit = s.deps.Audits.Open("boot")
	s.audit.Status("booting")

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StepDeclare, s.declare},
		{StepEnableManagedLogin, s.enableManagedLogin},
		{StepPrepareVolumes, s.prepareVolumes},
		{StepFetchRepositories, s.fetchRepositories},
	}

	for _, st := range steps {
		if err := s.step(ctx, st.name, st.fn); err != nil {
			return s.halt(ctx, st.name, err)
		}
	}

	var bundle domain.Bundle
	err := s.step(ctx, StepPrepareBootBundle, func(ctx context.Context) error {
		var err error
		bundle, err = s.prepareBootBundle(ctx)
		return err
	})
	if err != nil {
		return s.halt(ctx, StepPrepareBootBundle, err)
	}

	if err := s.step(ctx, StepRunBootBundle, func(ctx context.Context) error {
		return s.runBootBundle(ctx, bundle)
	}); err != nil {
		return s.halt(ctx, StepRunBootBundle, err)
	}

	s.onLoop(ctx, s.finish)
	return nil
}

func (s *Sequencer) step(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st := s.deps.State.Status(); st != domain.StatusBooting {
		s.deps.Logger.Info("boot sequence abandoned",
			ports.String("step", name),
			ports.String("status", st.String()),
		)
		return errAbandoned
	}

	s.deps.Logger.Info("boot step", ports.String("step", name))
	s.audit.Status(name)
	return fn(ctx)
}

// halt decides what a failed step means: cancellation and abandonment end
// the sequence quietly, anything else strands the instance.
func (s *Sequencer) halt(ctx context.Context, step string, err error) error {
	if errors.Is(err, errAbandoned) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.deps.Logger.Error("boot step failed, stranding instance",
		ports.String("step", step),
		ports.Err(err),
	)
	s.audit.Error("boot failed during "+step, err)
	s.audit.Status("stranded")

	s.onLoop(ctx, func() {
		if err := s.deps.State.Set(domain.StatusStranded, step+" failed"); err != nil {
			s.deps.Logger.Error("failed to strand instance", ports.Err(err))
		}
	})
	return fmt.Errorf("%w: %s: %v", domain.ErrStranded, step, err)
}

// finish is the terminal transition, run on the event loop.
func (s *Sequencer) finish() {
	if st := s.deps.State.Status(); st != domain.StatusBooting {
		s.deps.Logger.Info("boot finished after status changed", ports.String("status", st.String()))
		return
	}

	if s.deps.Shutdown != nil && s.deps.Shutdown.PendingImmediate() {
		s.deps.Logger.Info("immediate shutdown pending, skipping operational")
		s.audit.Status("boot completed, shutting down")
		s.deps.Shutdown.ProcessFromBoot()
		return
	}

	if err := s.deps.State.Set(domain.StatusOperational, "boot completed"); err != nil {
		s.deps.Logger.Error("failed to go operational", ports.Err(err))
		return
	}
	s.audit.Status("operational")
}

// onLoop runs fn on the event loop and waits for it, or for ctx.
func (s *Sequencer) onLoop(ctx context.Context, fn func()) {
	done := make(chan struct{})
	s.deps.Dispatch(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// request builds a coordinator request with the sequencer's retry settings.
func request[T any](s *Sequencer, target string, payload any, policy retry.Policy) *retry.Request[T] {
	return retry.New[T](s.deps.Coordinator, target, payload,
		retry.WithPolicy(policy),
		retry.WithTimeout(s.cfg.RequestTimeout),
		retry.WithClock(s.deps.Clock),
		retry.WithLogger(s.deps.Logger),
		retry.WithDispatch(s.deps.Dispatch),
	)
}

func (s *Sequencer) bounded() retry.Policy {
	return retry.UpTo(s.cfg.RetryAttempts, s.cfg.RetryDelay)
}
