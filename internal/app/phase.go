package app

import (
	"fmt"
	"sync"

	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

// Phase is the run phase of the agent process, as opposed to the lifecycle
// status of the instance it manages.
type Phase int

const (
	PhaseStopped Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseStopping
	PhaseCrashed
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseStopped:
		return "Stopped"
	case PhaseStarting:
		return "Starting"
	case PhaseRunning:
		return "Running"
	case PhaseStopping:
		return "Stopping"
	case PhaseCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// phaseTracker guards the agent run phase.
type phaseTracker struct {
	mu     sync.RWMutex
	phase  Phase
	logger ports.Logger
}

func (t *phaseTracker) get() Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.phase
}

// transition moves to next if allowed from the current phase.
func (t *phaseTracker) transition(next Phase, reason string) error {
	t.mu.Lock()
	prev := t.phase
	if !phaseAllowed(prev, next) {
		t.mu.Unlock()
		return fmt.Errorf("%w: agent %s -> %s", domain.ErrInvalidTransition, prev, next)
	}
	t.phase = next
	t.mu.Unlock()

	t.logger.Info("agent phase",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)
	return nil
}

func phaseAllowed(from, to Phase) bool {
	switch from {
	case PhaseStopped:
		return to == PhaseStarting
	case PhaseStarting:
		return to == PhaseRunning || to == PhaseStopping || to == PhaseCrashed
	case PhaseRunning:
		return to == PhaseStopping || to == PhaseCrashed
	case PhaseStopping:
		return to == PhaseStopped || to == PhaseCrashed
	default:
		return false
	}
}
