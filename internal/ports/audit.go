package ports

import "github.com/bft-labs/lifeline/internal/domain"

// AuditSink opens audits. Every audit is append-only and keyed by an opaque id.
type AuditSink interface {
	// Open creates a new audit with the given title.
	Open(title string) domain.Audit

	// Attach returns a handle on an existing audit id, creating it when unknown.
	Attach(id string) domain.Audit
}
