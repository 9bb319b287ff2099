package ports

import (
	"context"

	"github.com/bft-labs/lifeline/internal/domain"
)

// ConvergenceEngine applies a bundle to the host. It is invoked synchronously
// from the bundle worker (or the boot sequence) and may block for a long time.
type ConvergenceEngine interface {
	// Execute runs every executable of the context's bundle in order.
	// On success it may return an inputs patch to push upstream.
	Execute(ctx context.Context, op *domain.OperationContext) (domain.InputsPatch, error)
}
