// Package app composes the lifecycle core with its adapters and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/lifeline/internal/boot"
	"github.com/bft-labs/lifeline/internal/clock"
	"github.com/bft-labs/lifeline/internal/control"
	"github.com/bft-labs/lifeline/internal/converge"
	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/lifecycle"
	"github.com/bft-labs/lifeline/internal/ports"
	"github.com/bft-labs/lifeline/internal/queue"
	"github.com/bft-labs/lifeline/internal/reactor"
	"github.com/bft-labs/lifeline/internal/retry"
	"github.com/bft-labs/lifeline/internal/scheduler"
	"github.com/bft-labs/lifeline/internal/timer"
)

// Config contains configuration for the agent.
type Config struct {
	InstanceID string
	BootID     string
	SpoolDir   string

	ManagesVolumes bool
	AutoLaunchTag  string

	RetryDelay           time.Duration
	RetryAttempts        int
	RequestTimeout       time.Duration
	ShutdownDelay        time.Duration
	SuicideDelay         time.Duration
	InputsPollInterval   time.Duration
	WaitingAuditInterval time.Duration
}

// Notifier reports service readiness to the init system.
type Notifier interface {
	Ready()
	Stopping()
	Status(line string)
}

// Service runs alongside the agent until its context is done.
type Service interface {
	Run(ctx context.Context) error
}

// Deps are the adapters the agent is built from.
type Deps struct {
	StateRepo    ports.StateRepository
	Coordinator  ports.Coordinator
	Engine       ports.ConvergenceEngine
	Audits       ports.AuditSink
	Host         ports.HostControl
	Tags         ports.TagSource
	Login        ports.LoginApplier
	Repositories ports.RepositoryConfigurator
	Volumes      ports.VolumeManager
	Notifier     Notifier
	Clock        clock.Clock
	Logger       ports.Logger

	// Services are extra background jobs such as audit cleanup.
	Services []Service
}

// Agent owns the event loop, the lifecycle state, the bundle queue and the
// scheduler, and drives boot or crash recovery on start.
type Agent struct {
	cfg    Config
	deps   Deps
	phases *phaseTracker

	once  sync.Once
	ready chan struct{}

	state       *lifecycle.State
	loop        *reactor.Loop
	queue       *queue.Queue
	queueRunner *converge.Runner
	sched       *scheduler.Scheduler
	suicide     *timer.Timer
}

// New creates an agent.
func New(cfg Config, deps Deps) *Agent {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	return &Agent{
		cfg:    cfg,
		deps:   deps,
		phases: &phaseTracker{logger: deps.Logger},
		ready:  make(chan struct{}),
	}
}

// Phase returns the run phase of the agent.
func (a *Agent) Phase() Phase {
	return a.phases.get()
}

// Ready is closed once the event loop processed its first event.
func (a *Agent) Ready() <-chan struct{} {
	return a.ready
}

// State returns the lifecycle state. It is nil until Run loaded it.
func (a *Agent) State() *lifecycle.State {
	return a.state
}

// Run loads the lifecycle record and runs the agent until ctx is done or a
// terminate request stopped the event loop. It can be called once.
func (a *Agent) Run(ctx context.Context) error {
	err := errors.New("agent already ran")
	a.once.Do(func() { err = a.run(ctx) })
	return err
}

func (a *Agent) run(ctx context.Context) error {
	if err := a.phases.transition(PhaseStarting, "run"); err != nil {
		return err
	}
	if err := a.build(ctx); err != nil {
		_ = a.phases.transition(PhaseCrashed, err.Error())
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return a.loop.Run(gctx)
	})
	a.loop.Post(func() {
		a.deps.Notifier.Ready()
		close(a.ready)
	})

	switch {
	case a.state.RecoveringDecommission():
		a.loop.Post(a.sched.ResumeDecommission)

	case a.state.Status() == domain.StatusOperational:
		a.deps.Logger.Info("agent restarted while operational, resuming bundle queue")
		a.loop.Post(a.queue.Activate)

	case a.state.Status() == domain.StatusBooting:
		a.armSuicide()
		seq := a.sequencer()
		g.Go(func() error {
			err := seq.Run(gctx)
			if errors.Is(err, domain.ErrStranded) {
				a.deps.Logger.Error("boot failed, waiting for operator", ports.Err(err))
				return nil
			}
			return err
		})

	default:
		a.deps.Logger.Warn("nothing to resume", ports.String("status", a.state.Status().String()))
	}

	if a.cfg.SpoolDir != "" {
		w := control.NewWatcher(a.cfg.SpoolDir, a.loop.Dispatch, a.handle, a.deps.Logger)
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				a.deps.Logger.Error("control channel unavailable", ports.Err(err))
			}
			return nil
		})
	}
	for _, svc := range a.deps.Services {
		svc := svc
		g.Go(func() error { return svc.Run(gctx) })
	}

	_ = a.phases.transition(PhaseRunning, "event loop started")

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		_ = a.phases.transition(PhaseCrashed, err.Error())
		return err
	}

	a.deps.Notifier.Stopping()
	_ = a.phases.transition(PhaseStopping, "event loop stopped")
	_ = a.phases.transition(PhaseStopped, "done")
	return nil
}

// build loads the lifecycle record and wires the core components.
func (a *Agent) build(ctx context.Context) error {
	tags, err := a.deps.Tags.Tags(ctx)
	if err != nil {
		a.deps.Logger.Warn("startup tags unavailable", ports.Err(err))
		tags = nil
	}

	state, err := lifecycle.Load(ctx, a.deps.StateRepo, a.deps.Clock, a.deps.Logger, a.cfg.BootID, tags)
	if err != nil {
		return fmt.Errorf("load lifecycle state: %w", err)
	}
	a.state = state

	a.loop = reactor.New(a.deps.Logger)

	runner := converge.New(a.deps.Engine, a.deps.Logger)
	runner.SetPatchHandler(func(op *domain.OperationContext, patch domain.InputsPatch) {
		a.sendPatch(ctx, op, patch)
	})
	a.queue = queue.New(runner, a.deps.Logger,
		queue.WithContext(ctx),
		queue.WithDispatch(a.loop.Dispatch),
	)

	a.sched = scheduler.New(scheduler.Config{
		InstanceID:     a.cfg.InstanceID,
		ShutdownDelay:  a.cfg.ShutdownDelay,
		RetryDelay:     a.cfg.RetryDelay,
		RetryAttempts:  a.cfg.RetryAttempts,
		RequestTimeout: a.cfg.RequestTimeout,
	}, scheduler.Deps{
		Context:     ctx,
		State:       state,
		Queue:       a.queue,
		Coordinator: a.deps.Coordinator,
		Host:        a.deps.Host,
		Audits:      a.deps.Audits,
		Clock:       a.deps.Clock,
		Logger:      a.deps.Logger,
		Dispatch:    a.loop.Dispatch,
		Stop:        a.loop.Stop,
	})

	a.suicide = timer.New("suicide", a.deps.Clock, a.loop.Dispatch, a.deps.Logger)
	a.queueRunner = runner
	return nil
}

func (a *Agent) sequencer() *boot.Sequencer {
	return boot.New(boot.Config{
		InstanceID:           a.cfg.InstanceID,
		ManagesVolumes:       a.cfg.ManagesVolumes,
		RetryDelay:           a.cfg.RetryDelay,
		RetryAttempts:        a.cfg.RetryAttempts,
		RequestTimeout:       a.cfg.RequestTimeout,
		InputsPollInterval:   a.cfg.InputsPollInterval,
		WaitingAuditInterval: a.cfg.WaitingAuditInterval,
	}, boot.Deps{
		State:        a.state,
		Coordinator:  a.deps.Coordinator,
		Login:        a.deps.Login,
		Repositories: a.deps.Repositories,
		Volumes:      a.deps.Volumes,
		Runner:       a.queueRunner,
		Audits:       a.deps.Audits,
		Shutdown:     a.sched.Shutdowns(),
		Clock:        a.deps.Clock,
		Logger:       a.deps.Logger,
		Dispatch:     a.loop.Dispatch,
		OnBootBundle: func() { a.suicide.Cancel() },
	})
}

// armSuicide arms the suicide timer on the very first boot of an
// auto-launched instance.
func (a *Agent) armSuicide() {
	if !a.state.IsInitialBoot() || a.cfg.AutoLaunchTag == "" || !a.state.HasBootTag(a.cfg.AutoLaunchTag) {
		return
	}
	a.deps.Logger.Info("suicide timer armed", ports.Duration("delay", a.cfg.SuicideDelay))
	a.suicide.Arm(a.cfg.SuicideDelay, func() {
		a.deps.Logger.Error("boot bundle not obtained in time, forcing shutdown")
		if err := a.state.Set(domain.StatusStranded, "suicide timer fired"); err != nil {
			a.deps.Logger.Error("failed to strand instance", ports.Err(err))
		}
		go func() {
			if err := a.deps.Host.ForceShutdown(context.Background()); err != nil {
				a.deps.Logger.Error("forced shutdown failed", ports.Err(err))
			}
		}()
	})
}

// sendPatch pushes the inputs patch of a queued bundle upstream. Failures
// are logged only.
func (a *Agent) sendPatch(ctx context.Context, op *domain.OperationContext, patch domain.InputsPatch) {
	req := retry.New[struct{}](a.deps.Coordinator, ports.TargetPatchInputs, domain.PatchUpload{
		InstanceID: a.cfg.InstanceID,
		AuditID:    op.Audit.ID(),
		Patch:      patch,
	},
		retry.WithPolicy(retry.UpTo(a.cfg.RetryAttempts, a.cfg.RetryDelay)),
		retry.WithTimeout(a.cfg.RequestTimeout),
		retry.WithClock(a.deps.Clock),
		retry.WithDispatch(a.loop.Dispatch),
		retry.WithLogger(a.deps.Logger),
	)
	req.OnError(func(err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		a.deps.Logger.Warn("failed to send inputs patch", ports.String("audit_id", op.Audit.ID()), ports.Err(err))
		op.Audit.Error("inputs patch not delivered", err)
	})
	req.Run(ctx)
}

type nopNotifier struct{}

func (nopNotifier) Ready()        {}
func (nopNotifier) Stopping()     {}
func (nopNotifier) Status(string) {}
