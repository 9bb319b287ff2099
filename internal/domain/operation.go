package domain

// Audit is an append-only, human readable progress stream owned by the
// caller that opened it. Operation contexts reference an Audit, they never
// close it.
type Audit interface {
	// ID returns the opaque audit identifier.
	ID() string

	// Info appends a progress line.
	Info(msg string)

	// Error appends a failure line.
	Error(msg string, err error)

	// Status updates the one-line summary of the audit.
	Status(summary string)
}

// OperationContext is one scheduled bundle travelling to the bundle worker.
type OperationContext struct {
	Bundle       Bundle
	Audit        Audit
	Decommission bool
}

// NewOperationContext wraps a bundle for scheduling.
func NewOperationContext(bundle Bundle, audit Audit, decommission bool) *OperationContext {
	return &OperationContext{Bundle: bundle, Audit: audit, Decommission: decommission}
}

// Title names the context in logs and audits.
func (c *OperationContext) Title() string {
	if c.Decommission {
		return "decommission bundle"
	}
	return "bundle"
}
