package boot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/lifecycle"
	"github.com/bft-labs/lifeline/internal/ports"
	"github.com/bft-labs/lifeline/internal/retry"
)

type instanceRef struct {
	InstanceID string `json:"instance_id"`
}

func (s *Sequencer) declare(ctx context.Context) error {
	decl := domain.Declaration{
		InstanceID: s.cfg.InstanceID,
		ResumeMode: s.deps.State.ResumeMode().String(),
		BootTags:   s.deps.State.BootTags(),
	}
	_, err := request[struct{}](s, ports.TargetDeclare, decl, retry.Forever(s.cfg.RetryDelay)).Result(ctx)
	if err != nil {
		return err
	}
	s.audit.Info("instance declared")
	return nil
}

// enableManagedLogin is best-effort: failures are audited, never returned.
func (s *Sequencer) enableManagedLogin(ctx context.Context) error {
	policy, err := request[domain.LoginPolicy](s, ports.TargetLoginPolicy, instanceRef{s.cfg.InstanceID}, s.bounded()).Result(ctx)
	if err == nil {
		err = s.deps.Login.Apply(ctx, policy)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.deps.Logger.Warn("managed login not enabled", ports.Err(err))
		s.audit.Error("failed to enable managed login", err)
		return nil
	}
	s.audit.Info(fmt.Sprintf("managed login enabled for %d users", len(policy.Users)))
	return nil
}

// prepareVolumes only runs when resuming after a stop on a host whose block
// storage is managed explicitly.
func (s *Sequencer) prepareVolumes(ctx context.Context) error {
	if !s.cfg.ManagesVolumes || s.deps.State.ResumeMode() != lifecycle.ResumeAfterStop {
		s.deps.Logger.Debug("volume preparation skipped")
		return nil
	}

	attachments, err := request[[]domain.VolumeAttachment](s, ports.TargetAttachVolumes, instanceRef{s.cfg.InstanceID}, s.bounded()).Result(ctx)
	if err != nil {
		return fmt.Errorf("attach volumes: %w", err)
	}
	if err := s.deps.Volumes.Prepare(ctx, attachments); err != nil {
		return fmt.Errorf("prepare volumes: %w", err)
	}
	s.audit.Info(fmt.Sprintf("%d volumes ready", len(attachments)))
	return nil
}

// fetchRepositories strands only if the definitions cannot be fetched. A
// repository that fails to configure is logged and skipped.
func (s *Sequencer) fetchRepositories(ctx context.Context) error {
	repos, err := request[[]domain.Repository](s, ports.TargetRepositories, instanceRef{s.cfg.InstanceID}, s.bounded()).Result(ctx)
	if err != nil {
		return fmt.Errorf("fetch repositories: %w", err)
	}

	configured := 0
	for _, repo := range repos {
		if err := s.deps.Repositories.Configure(ctx, repo); err != nil {
			s.deps.Logger.Warn("repository configuration failed, continuing",
				ports.String("repository", repo.Name),
				ports.Err(err),
			)
			s.audit.Error("failed to configure repository "+repo.Name, err)
			continue
		}
		configured++
	}
	s.audit.Info(fmt.Sprintf("%d of %d repositories configured", configured, len(repos)))
	return nil
}

func (s *Sequencer) prepareBootBundle(ctx context.Context) (domain.Bundle, error) {
	bundle, err := request[domain.Bundle](s, ports.TargetBootBundle, instanceRef{s.cfg.InstanceID}, s.bounded()).Result(ctx)
	if err != nil {
		return domain.Bundle{}, fmt.Errorf("fetch boot bundle: %w", err)
	}
	if s.deps.OnBootBundle != nil {
		s.deps.OnBootBundle()
	}
	s.audit.Info(fmt.Sprintf("boot bundle with %d executables received", len(bundle.Executables)))

	w := &inputsWaiter{
		seq:      s,
		audit:    s.audit,
		interval: s.cfg.InputsPollInterval,
		window:   s.cfg.WaitingAuditInterval,
	}
	if err := w.wait(ctx, &bundle); err != nil {
		return domain.Bundle{}, err
	}
	return bundle, nil
}

func (s *Sequencer) runBootBundle(ctx context.Context, bundle domain.Bundle) error {
	audit := s.audit
	if bundle.AuditID != "" {
		audit = s.deps.Audits.Attach(bundle.AuditID)
	}

	op := domain.NewOperationContext(bundle, audit, false)
	patch, err := s.deps.Runner.Execute(ctx, op)
	if err != nil {
		return err
	}
	if !patch.Empty() {
		s.sendPatch(ctx, bundle.AuditID, patch)
	}
	return nil
}

// sendPatch pushes an inputs patch upstream without waiting for the answer.
func (s *Sequencer) sendPatch(ctx context.Context, auditID string, patch domain.InputsPatch) {
	req := request[struct{}](s, ports.TargetPatchInputs, domain.PatchUpload{
		InstanceID: s.cfg.InstanceID,
		AuditID:    auditID,
		Patch:      patch,
	}, s.bounded())
	req.OnError(func(err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.deps.Logger.Warn("failed to send inputs patch", ports.Err(err))
	})
	req.Run(ctx)
}
