package app

import (
	"github.com/bft-labs/lifeline/internal/control"
	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

// Submit hands a control request to the event loop. It must be called after
// Ready is closed and reports false once the loop stopped.
func (a *Agent) Submit(req control.Request) bool {
	if err := req.Validate(); err != nil {
		a.deps.Logger.Warn("control request rejected", ports.Err(err))
		return false
	}
	return a.loop.Post(func() { a.handle(req) })
}

// handle runs on the event loop.
func (a *Agent) handle(req control.Request) {
	log := a.deps.Logger
	switch req.Kind {
	case control.KindBundle:
		if err := a.sched.ScheduleBundle(req.Bundle); err != nil {
			log.Warn("bundle rejected", ports.String("id", req.ID), ports.Err(err))
		}

	case control.KindDecommission:
		kind, err := domain.ParseDecommissionKind(req.DecommissionKind)
		if err != nil {
			log.Warn("decommission rejected", ports.String("id", req.ID), ports.Err(err))
			return
		}
		if err := a.sched.ScheduleDecommission(req.Bundle, req.UserID, kind, req.SkipDBUpdate); err != nil {
			log.Warn("decommission rejected", ports.String("id", req.ID), ports.Err(err))
		}

	case control.KindRunDecommission:
		a.sched.RunDecommission(func() {
			log.Info("decommission finished, host left running", ports.String("id", req.ID))
			a.deps.Notifier.Status("decommissioned")
		})

	case control.KindTerminate:
		a.suicide.Cancel()
		a.deps.Notifier.Stopping()
		a.sched.Terminate()

	case control.KindShutdown:
		level, err := domain.ParseShutdownLevel(req.Level)
		if err != nil {
			log.Warn("shutdown rejected", ports.String("id", req.ID), ports.Err(err))
			return
		}
		a.sched.Shutdowns().Request(level, req.Immediately)

	default:
		log.Warn("unknown control request", ports.String("kind", req.Kind))
	}
}
