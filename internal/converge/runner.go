// Package converge serializes access to the convergence engine.
//
// Both the boot sequence and the bundle queue worker converge through one
// Runner, so at most one bundle mutates the host at a time. Engine panics
// are turned into audited errors and never escape the calling goroutine.
package converge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

// PatchHandler receives a non-empty inputs patch produced by a queued bundle.
type PatchHandler func(op *domain.OperationContext, patch domain.InputsPatch)

// Runner wraps a ports.ConvergenceEngine.
type Runner struct {
	mu      sync.Mutex
	engine  ports.ConvergenceEngine
	logger  ports.Logger
	onPatch PatchHandler
}

// New creates a runner around engine.
func New(engine ports.ConvergenceEngine, logger ports.Logger) *Runner {
	return &Runner{engine: engine, logger: logger}
}

// SetPatchHandler sets where inputs patches of queued bundles go.
func (r *Runner) SetPatchHandler(fn PatchHandler) {
	r.onPatch = fn
}

// Execute converges op and blocks until the engine returns. An empty bundle
// succeeds without calling the engine. Failures are written to the audit and
// returned wrapped in domain.ErrConvergence.
func (r *Runner) Execute(ctx context.Context, op *domain.OperationContext) (patch domain.InputsPatch, err error) {
	if op.Bundle.Empty() {
		audit(op, func(a domain.Audit) { a.Info("nothing to converge") })
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	r.logger.Info("convergence started",
		ports.String("title", op.Title()),
		ports.String("audit_id", op.Bundle.AuditID),
		ports.Int("executables", len(op.Bundle.Executables)),
	)
	audit(op, func(a domain.Audit) { a.Status("converging " + op.Title()) })

	defer func() {
		if rec := recover(); rec != nil {
			patch = nil
			err = fmt.Errorf("%w: engine panic: %v", domain.ErrConvergence, rec)
		}
		if err != nil {
			r.logger.Error("convergence failed",
				ports.String("title", op.Title()),
				ports.Duration("elapsed", time.Since(start)),
				ports.Err(err),
			)
			audit(op, func(a domain.Audit) { a.Error(op.Title()+" failed", err) })
			return
		}
		r.logger.Info("convergence finished",
			ports.String("title", op.Title()),
			ports.Duration("elapsed", time.Since(start)),
		)
		audit(op, func(a domain.Audit) { a.Status(op.Title() + " completed") })
	}()

	patch, err = r.engine.Execute(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConvergence, err)
	}
	return patch, nil
}

// Run implements queue.Runner. The outcome is already audited by Execute;
// a produced inputs patch goes to the patch handler.
func (r *Runner) Run(ctx context.Context, op *domain.OperationContext) {
	patch, err := r.Execute(ctx, op)
	if err != nil || patch.Empty() || r.onPatch == nil {
		return
	}
	r.onPatch(op, patch)
}

func audit(op *domain.OperationContext, fn func(domain.Audit)) {
	if op.Audit != nil {
		fn(op.Audit)
	}
}
