package scheduler

import (
	"sync"

	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

// ShutdownRequests tracks the strongest shutdown asked for so far.
//
// Levels only escalate (continue < reboot < stop < terminate) and
// "immediately" is sticky. A deferred request waits until the bundle queue is
// idle while operational; an immediate one is processed as soon as the
// instance is operational, or by the boot sequence right after the boot
// bundle.
type ShutdownRequests struct {
	s *Scheduler

	mu          sync.Mutex
	level       domain.ShutdownLevel
	immediately bool
	processing  bool
}

// Request records a shutdown request and processes it if the instance is in
// a state to do so.
func (r *ShutdownRequests) Request(level domain.ShutdownLevel, immediately bool) {
	r.mu.Lock()
	if level > r.level {
		r.level = level
	}
	if immediately {
		r.immediately = true
	}
	level, immediately = r.level, r.immediately
	r.mu.Unlock()

	r.s.deps.Logger.Info("shutdown requested",
		ports.String("level", level.String()),
		ports.Bool("immediately", immediately),
	)
	if level == domain.LevelContinue {
		return
	}

	switch r.s.deps.State.Status() {
	case domain.StatusOperational:
		if immediately || !r.s.deps.Queue.Busy() {
			r.process()
		}
	case domain.StatusBooting:
		r.s.deps.Logger.Info("shutdown deferred until boot completes")
	default:
		r.s.deps.Logger.Info("shutdown request ignored",
			ports.String("status", r.s.deps.State.Status().String()),
		)
	}
}

// Level returns the current shutdown level.
func (r *ShutdownRequests) Level() domain.ShutdownLevel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level
}

// PendingImmediate reports whether an immediate shutdown waits to be processed.
func (r *ShutdownRequests) PendingImmediate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level > domain.LevelContinue && r.immediately && !r.processing
}

// ProcessFromBoot processes the pending request while the status is still
// booting.
func (r *ShutdownRequests) ProcessFromBoot() {
	r.process()
}

func (r *ShutdownRequests) pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level > domain.LevelContinue && !r.processing
}

func (r *ShutdownRequests) onIdle() {
	if r.pending() && r.s.deps.State.Status() == domain.StatusOperational {
		r.process()
	}
}

func (r *ShutdownRequests) onOperational() {
	if !r.pending() {
		return
	}
	r.mu.Lock()
	immediately := r.immediately
	r.mu.Unlock()
	if immediately || !r.s.deps.Queue.Busy() {
		r.process()
	}
}

// process fetches the decommission bundle and schedules the decommission for
// the requested level. It runs at most once.
func (r *ShutdownRequests) process() {
	r.mu.Lock()
	if r.processing || r.level == domain.LevelContinue {
		r.mu.Unlock()
		return
	}
	r.processing = true
	level := r.level
	r.mu.Unlock()

	r.s.deps.Logger.Info("processing shutdown request", ports.String("level", level.String()))
	r.s.fetchDecommissionBundle(func(bundle domain.Bundle) {
		if err := r.s.ScheduleDecommission(bundle, 0, level.Kind(), false); err != nil {
			r.s.deps.Logger.Warn("shutdown not scheduled", ports.Err(err))
		}
	})
}
