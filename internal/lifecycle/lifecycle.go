// Package lifecycle holds the process-wide, persisted instance status.
//
// Status changes are validated against the per-episode transition table,
// persisted before Set returns, and reported synchronously to observers.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/lifeline/internal/clock"
	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

// Observer is called after every status change with the previous and new status.
type Observer func(previous, current domain.Status)

// State is the lifecycle status of the instance for one agent process.
type State struct {
	// persistMu serializes mutate+save so records hit the disk in order.
	persistMu sync.Mutex

	mu        sync.RWMutex
	status    domain.Status
	kind      domain.DecommissionKind
	lastKind  domain.DecommissionKind
	tags      []string
	bootID    string
	episodes  int
	mode      ResumeMode
	observers []Observer

	repo   ports.StateRepository
	clock  clock.Clock
	logger ports.Logger
}

// New creates a fresh state for an initial boot. Nothing is read from repo.
func New(repo ports.StateRepository, clk clock.Clock, logger ports.Logger) *State {
	return &State{
		status:   domain.StatusBooting,
		mode:     ResumeInitialBoot,
		episodes: 1,
		repo:     repo,
		clock:    clk,
		logger:   logger,
	}
}

// Load restores the state from repo and starts the episode for this process.
//
// bootID is the kernel boot id of the running host and tags the startup tags
// discovered now. A decommission interrupted on this same kernel boot keeps
// its record untouched and is recovered; any other start except a same-boot
// restart of an operational instance begins a new episode at booting.
func Load(ctx context.Context, repo ports.StateRepository, clk clock.Clock, logger ports.Logger, bootID string, tags []string) (*State, error) {
	rec, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load lifecycle state: %w", err)
	}

	s := New(repo, clk, logger)
	s.bootID = bootID
	s.tags = append([]string(nil), tags...)

	switch {
	case rec.IsEmpty():
		s.mode = ResumeInitialBoot

	case rec.RecoveringDecommission() && rec.BootID != "" && rec.BootID == bootID:
		s.status = rec.Status
		s.kind = rec.DecommissionKind
		s.lastKind = rec.LastKind
		s.tags = append([]string(nil), rec.BootTags...)
		s.episodes = rec.Episodes
		s.mode = modeAfter(rec)
		logger.Warn("recovering interrupted decommission",
			ports.String("kind", string(rec.DecommissionKind)),
		)
		return s, nil

	case rec.BootID != "" && rec.BootID == bootID && rec.Status == domain.StatusOperational:
		s.status = domain.StatusOperational
		s.lastKind = rec.LastKind
		s.tags = append([]string(nil), rec.BootTags...)
		s.episodes = rec.Episodes
		s.mode = ResumeRestart

	default:
		s.mode = modeAfter(rec)
		s.lastKind = rec.DecommissionKind
		if s.lastKind == domain.KindNone {
			s.lastKind = rec.LastKind
		}
		s.episodes = rec.Episodes + 1
	}

	if err := s.repo.Save(ctx, s.snapshotLocked()); err != nil {
		return nil, fmt.Errorf("save lifecycle state: %w", err)
	}

	logger.Info("lifecycle state loaded",
		ports.String("status", s.status.String()),
		ports.String("resume_mode", s.mode.String()),
		ports.Int("episode", s.episodes),
	)
	return s, nil
}

func modeAfter(rec domain.State) ResumeMode {
	kind := rec.DecommissionKind
	if kind == domain.KindNone {
		kind = rec.LastKind
	}
	if kind == domain.KindStop {
		return ResumeAfterStop
	}
	return ResumeReboot
}

// Status returns the current status.
func (s *State) Status() domain.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// DecommissionKind returns the recorded decommission kind, if any.
func (s *State) DecommissionKind() domain.DecommissionKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kind
}

// BootTags returns a copy of the startup tags.
func (s *State) BootTags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tags...)
}

// HasBootTag reports whether tag was present at startup.
func (s *State) HasBootTag(tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// IsInitialBoot is true only during the first episode of the instance.
func (s *State) IsInitialBoot() bool {
	return s.ResumeMode() == ResumeInitialBoot
}

// ResumeMode returns how this episode started.
func (s *State) ResumeMode() ResumeMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// RecoveringDecommission reports whether the process started in the middle of
// a decommission that already had a kind.
func (s *State) RecoveringDecommission() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status == domain.StatusDecommissioning && s.kind != domain.KindNone
}

// Observe registers fn for every later status change. Observers run
// synchronously on the goroutine calling Set, in registration order.
func (s *State) Observe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Set changes the status. Setting the current status again is a no-op.
// Returns ErrInvalidTransition if the change is not allowed. If persisting
// fails the error is returned but the new status stays in effect.
func (s *State) Set(status domain.Status, reason string) error {
	s.persistMu.Lock()

	s.mu.Lock()
	previous := s.status
	if previous == status {
		s.mu.Unlock()
		s.persistMu.Unlock()
		return nil
	}
	if !CanTransition(previous, status) {
		s.mu.Unlock()
		s.persistMu.Unlock()
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, previous, status)
	}
	s.status = status
	rec := s.snapshotLocked()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	err := s.repo.Save(context.Background(), rec)
	s.persistMu.Unlock()

	s.logger.Info("state transition",
		ports.String("from", previous.String()),
		ports.String("to", status.String()),
		ports.String("reason", reason),
	)
	if err != nil {
		s.logger.Error("failed to persist lifecycle state", ports.Err(err))
	}

	// Notify outside of locks
	for _, fn := range observers {
		fn(previous, status)
	}

	if err != nil {
		return fmt.Errorf("persist status %s: %w", status, err)
	}
	return nil
}

// SetDecommissionKind records the kind of the requested decommission. It does
// not change the status.
func (s *State) SetDecommissionKind(kind domain.DecommissionKind) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if s.kind == kind {
		s.mu.Unlock()
		return nil
	}
	s.kind = kind
	rec := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("decommission kind recorded", ports.String("kind", string(kind)))

	if err := s.repo.Save(context.Background(), rec); err != nil {
		s.logger.Error("failed to persist lifecycle state", ports.Err(err))
		return fmt.Errorf("persist decommission kind: %w", err)
	}
	return nil
}

// Snapshot returns the record as it would be persisted now.
func (s *State) Snapshot() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() domain.State {
	return domain.State{
		Status:           s.status,
		DecommissionKind: s.kind,
		LastKind:         s.lastKind,
		BootTags:         append([]string(nil), s.tags...),
		BootID:           s.bootID,
		Episodes:         s.episodes,
		UpdatedAt:        s.clock.Now().UTC(),
	}
}

// CanTransition reports whether from -> to is allowed within one episode.
func CanTransition(from, to domain.Status) bool {
	switch from {
	case domain.StatusBooting:
		return to == domain.StatusOperational || to == domain.StatusDecommissioning || to == domain.StatusStranded
	case domain.StatusOperational:
		return to == domain.StatusDecommissioning || to == domain.StatusStranded
	case domain.StatusDecommissioning:
		return to == domain.StatusDecommissioned || to == domain.StatusStranded
	case domain.StatusDecommissioned:
		return to == domain.StatusStranded
	default:
		return false
	}
}
