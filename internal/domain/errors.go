package domain

import "errors"

// Domain errors represent error conditions in the lifeline domain.
// They are returned by the core services and can be checked with errors.Is.
var (
	// ErrInvalidTransition is returned when a status change would violate
	// the per-episode monotonicity rules.
	ErrInvalidTransition = errors.New("lifeline: invalid status transition")

	// ErrAlreadyDecommissioning is returned by ScheduleDecommission while a
	// decommission is already in progress.
	ErrAlreadyDecommissioning = errors.New("lifeline: instance is already decommissioning")

	// ErrQueueClosed is returned when work is pushed after the bundle queue closed.
	ErrQueueClosed = errors.New("lifeline: bundle queue closed")

	// ErrNotReady is returned by the coordinator when it cannot serve the
	// request yet. Retryable.
	ErrNotReady = errors.New("lifeline: coordinator not ready")

	// ErrTransient marks a transport-level failure. Retryable.
	ErrTransient = errors.New("lifeline: transient failure")

	// ErrStranded is returned when boot failed and the instance is stranded.
	ErrStranded = errors.New("lifeline: instance stranded")

	// ErrConvergence wraps failures reported by the convergence engine.
	ErrConvergence = errors.New("lifeline: convergence failed")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("lifeline: invalid configuration")

	// ErrUnknownKind is returned when parsing an unrecognized decommission kind.
	ErrUnknownKind = errors.New("lifeline: unknown decommission kind")
)

// IsRetryable reports whether err is a transient failure that a retry policy
// may repeat.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrTransient)
}
