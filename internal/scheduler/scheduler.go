// Package scheduler is the public operation surface of the agent: it
// schedules bundles and the decommission bundle onto the bundle queue,
// drives the lifecycle status through decommissioning, and owns the
// fallback shutdown timer and the post-decommission continuation.
//
// Operations are meant to be called from the event loop.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/lifeline/internal/clock"
	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/lifecycle"
	"github.com/bft-labs/lifeline/internal/ports"
	"github.com/bft-labs/lifeline/internal/queue"
	"github.com/bft-labs/lifeline/internal/retry"
	"github.com/bft-labs/lifeline/internal/timer"
)

// Config holds the scheduler settings.
type Config struct {
	InstanceID     string
	ShutdownDelay  time.Duration
	RetryDelay     time.Duration
	RetryAttempts  int
	RequestTimeout time.Duration
}

// Deps are the collaborators of the scheduler.
type Deps struct {
	Context     context.Context
	State       *lifecycle.State
	Queue       *queue.Queue
	Coordinator ports.Coordinator
	Host        ports.HostControl
	Audits      ports.AuditSink
	Clock       clock.Clock
	Logger      ports.Logger

	// Dispatch runs a function on the event loop.
	Dispatch func(func())

	// Stop ends the agent process.
	Stop func()
}

// Scheduler composes the bundle queue, the lifecycle state and the
// decommission bookkeeping.
type Scheduler struct {
	cfg      Config
	deps     Deps
	fallback *timer.Timer

	mu           sync.Mutex
	continuation func()
	continued    bool

	shutdowns *ShutdownRequests
}

// New creates a scheduler, installs the default queue callbacks and the
// observer that activates the queue once boot is over.
func New(cfg Config, deps Deps) *Scheduler {
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	if deps.Dispatch == nil {
		deps.Dispatch = func(fn func()) { fn() }
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Stop == nil {
		deps.Stop = func() {}
	}

	s := &Scheduler{
		cfg:      cfg,
		deps:     deps,
		fallback: timer.New("decommission fallback", deps.Clock, deps.Dispatch, deps.Logger),
	}
	s.shutdowns = &ShutdownRequests{s: s}

	deps.Queue.SetClosingCallback(s.onQueueClosed)
	deps.Queue.SetIdleCallback(s.shutdowns.onIdle)
	deps.State.Observe(s.onStatusChange)
	return s
}

// Shutdowns returns the pending shutdown request tracker.
func (s *Scheduler) Shutdowns() *ShutdownRequests {
	return s.shutdowns
}

// FallbackArmed reports whether the fallback shutdown timer is pending.
func (s *Scheduler) FallbackArmed() bool {
	return s.fallback.Armed()
}

func (s *Scheduler) onStatusChange(previous, current domain.Status) {
	if previous == domain.StatusBooting &&
		(current == domain.StatusOperational || current == domain.StatusDecommissioning) {
		s.deps.Queue.Activate()
	}
	if current == domain.StatusOperational {
		s.shutdowns.onOperational()
	}
}

// ScheduleBundle queues bundle for the worker. An empty bundle is audited as
// scheduled but not queued. Returns ErrQueueClosed if the queue no longer
// accepts work.
func (s *Scheduler) ScheduleBundle(bundle domain.Bundle) error {
	audit := s.auditFor(bundle, "bundle")
	audit.Info(fmt.Sprintf("bundle scheduled with %d executables", len(bundle.Executables)))

	if bundle.Empty() {
		return nil
	}
	if !s.deps.Queue.Push(domain.NewOperationContext(bundle, audit, false)) {
		audit.Error("bundle not scheduled", domain.ErrQueueClosed)
		return domain.ErrQueueClosed
	}
	s.deps.Logger.Info("bundle scheduled",
		ports.String("audit_id", audit.ID()),
		ports.Int("executables", len(bundle.Executables)),
	)
	return nil
}

// ScheduleDecommission preempts queued work with the decommission bundle and
// closes the queue behind it.
//
// When no post-decommission continuation is installed yet, the default one
// shuts the host down with userID, skipDBUpdate and kind, and the fallback
// timer is armed to do the same after ShutdownDelay should the bundle never
// finish. A non-empty kind is recorded on the lifecycle state.
func (s *Scheduler) ScheduleDecommission(bundle domain.Bundle, userID int, kind domain.DecommissionKind, skipDBUpdate bool) error {
	switch s.deps.State.Status() {
	case domain.StatusDecommissioning, domain.StatusDecommissioned:
		return domain.ErrAlreadyDecommissioning
	}

	s.deps.Logger.Info("scheduling decommission",
		ports.String("kind", string(kind)),
		ports.Int("user_id", userID),
		ports.Int("executables", len(bundle.Executables)),
	)

	if n := s.deps.Queue.Clear(); n > 0 {
		s.deps.Logger.Info("pending bundles dropped for decommission", ports.Int("count", n))
	}

	s.mu.Lock()
	installDefault := s.continuation == nil
	if installDefault {
		s.continuation = func() { s.shutdownHost(userID, skipDBUpdate, kind) }
	}
	s.mu.Unlock()

	if installDefault {
		s.fallback.Arm(s.cfg.ShutdownDelay, func() {
			s.deps.Logger.Warn("decommission did not finish in time, shutting down")
			s.mu.Lock()
			s.continued = true
			s.mu.Unlock()
			s.markDecommissioned("fallback timer fired")
			s.shutdownHost(userID, skipDBUpdate, kind)
		})
	}

	audit := s.auditFor(bundle, "decommission")
	if !bundle.Empty() {
		s.deps.Queue.Push(domain.NewOperationContext(bundle, audit, true))
	}
	s.deps.Queue.Close()
	audit.Info("decommission scheduled")

	if kind != domain.KindNone {
		if err := s.deps.State.SetDecommissionKind(kind); err != nil {
			s.deps.Logger.Error("failed to record decommission kind", ports.Err(err))
		}
	}
	if err := s.deps.State.Set(domain.StatusDecommissioning, "decommission scheduled"); err != nil {
		s.deps.Logger.Error("failed to enter decommissioning", ports.Err(err))
	}
	return nil
}

// RunDecommission installs continuation as the post-decommission hook,
// replacing any default. If decommissioning has not started, the
// decommission bundle is fetched and scheduled first. If the instance is
// already decommissioned, continuation runs immediately.
func (s *Scheduler) RunDecommission(continuation func()) {
	status := s.deps.State.Status()
	if status == domain.StatusDecommissioned {
		continuation()
		return
	}

	s.mu.Lock()
	s.continuation = continuation
	s.mu.Unlock()

	if status == domain.StatusDecommissioning {
		return
	}
	s.fetchDecommissionBundle(func(bundle domain.Bundle) {
		if err := s.ScheduleDecommission(bundle, 0, domain.KindNone, false); err != nil {
			s.deps.Logger.Warn("decommission not scheduled", ports.Err(err))
		}
	})
}

// Terminate abandons queued work without running decommission scripts and
// stops the agent. An active queue is cleared and closed first and the agent
// stops once the worker observed the close. If the worker already took its
// closing callback, the agent stops at once.
func (s *Scheduler) Terminate() {
	s.deps.Logger.Info("terminating agent")
	s.fallback.Cancel()

	q := s.deps.Queue
	if !q.Active() || !q.SetClosingCallback(s.deps.Stop) {
		s.deps.Stop()
		return
	}
	q.Clear()
	q.Close()
}

// ResumeDecommission carries out the shutdown of a decommission interrupted
// by a previous process, without running the decommission bundle again.
func (s *Scheduler) ResumeDecommission() {
	kind := s.deps.State.DecommissionKind()
	s.deps.Logger.Warn("resuming interrupted decommission", ports.String("kind", string(kind)))
	audit := s.deps.Audits.Open("decommission")
	audit.Info("resuming interrupted decommission: " + string(kind))
	s.markDecommissioned("interrupted decommission resumed")
	s.shutdownHost(0, false, kind)
}

// onQueueClosed is the default closing callback.
func (s *Scheduler) onQueueClosed() {
	s.fallback.Cancel()
	s.markDecommissioned("decommission bundle finished")

	s.mu.Lock()
	fn := s.continuation
	fire := fn != nil && !s.continued
	if fire {
		s.continued = true
	}
	s.mu.Unlock()

	if fire {
		fn()
	}
}

// markDecommissioned records the end of decommissioning so a later start does
// not resume it again.
func (s *Scheduler) markDecommissioned(reason string) {
	if s.deps.State.Status() != domain.StatusDecommissioning {
		return
	}
	if err := s.deps.State.Set(domain.StatusDecommissioned, reason); err != nil {
		s.deps.Logger.Error("failed to enter decommissioned", ports.Err(err))
	}
}

// shutdownHost asks the host to shut down off the event loop.
func (s *Scheduler) shutdownHost(userID int, skipDBUpdate bool, kind domain.DecommissionKind) {
	ctx := s.deps.Context
	go func() {
		if err := s.deps.Host.Shutdown(ctx, userID, skipDBUpdate, kind); err != nil {
			s.deps.Logger.Error("host shutdown failed",
				ports.String("kind", string(kind)),
				ports.Err(err),
			)
		}
	}()
}

// fetchDecommissionBundle fetches the decommission bundle and hands it to
// then on the event loop. A failed fetch yields an empty bundle so the
// decommission still proceeds.
func (s *Scheduler) fetchDecommissionBundle(then func(domain.Bundle)) {
	req := retry.New[domain.Bundle](s.deps.Coordinator, ports.TargetDecommissionBundle,
		struct {
			InstanceID string `json:"instance_id"`
		}{s.cfg.InstanceID},
		retry.WithPolicy(retry.UpTo(s.cfg.RetryAttempts, s.cfg.RetryDelay)),
		retry.WithTimeout(s.cfg.RequestTimeout),
		retry.WithClock(s.deps.Clock),
		retry.WithDispatch(s.deps.Dispatch),
		retry.WithLogger(s.deps.Logger),
	)
	req.OnSuccess(then)
	req.OnError(func(err error) {
		s.deps.Logger.Error("failed to fetch decommission bundle, continuing without it", ports.Err(err))
		then(domain.Bundle{})
	})
	req.Run(s.deps.Context)
}

func (s *Scheduler) auditFor(bundle domain.Bundle, title string) domain.Audit {
	if bundle.AuditID != "" {
		return s.deps.Audits.Attach(bundle.AuditID)
	}
	return s.deps.Audits.Open(title)
}
