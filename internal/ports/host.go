package ports

import (
	"context"

	"github.com/bft-labs/lifeline/internal/domain"
)

// HostControl shuts the host down.
type HostControl interface {
	// Shutdown carries out the decommission kind on behalf of user.
	Shutdown(ctx context.Context, userID int, skipDBUpdate bool, kind domain.DecommissionKind) error

	// ForceShutdown powers the host off without further coordination.
	ForceShutdown(ctx context.Context) error
}

// TagSource returns the tags present when the instance started.
type TagSource interface {
	Tags(ctx context.Context) ([]string, error)
}

// LoginApplier installs a managed login policy locally.
type LoginApplier interface {
	Apply(ctx context.Context, policy domain.LoginPolicy) error
}

// RepositoryConfigurator configures one local package-manager mirror.
type RepositoryConfigurator interface {
	Configure(ctx context.Context, repo domain.Repository) error
}

// VolumeManager waits for block storage attached by the coordinator when the
// instance resumes from stop.
type VolumeManager interface {
	Prepare(ctx context.Context, attachments []domain.VolumeAttachment) error
}
