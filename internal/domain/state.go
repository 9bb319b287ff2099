package domain

import "time"

// State is the persisted lifecycle record used for crash recovery.
// It is saved after every status or decommission kind change.
type State struct {
	// Status is the last recorded lifecycle status.
	Status Status `json:"status"`

	// DecommissionKind is set only when decommissioning was requested with an
	// explicit kind.
	DecommissionKind DecommissionKind `json:"decommission_kind,omitempty"`

	// LastKind keeps the kind of the previous episode's decommission so the
	// next start can tell a resume-after-stop from a reboot.
	LastKind DecommissionKind `json:"last_kind,omitempty"`

	// BootTags are the startup tags discovered at boot.
	BootTags []string `json:"boot_tags,omitempty"`

	// BootID is the kernel boot id of the episode that wrote this record.
	BootID string `json:"boot_id,omitempty"`

	// Episodes counts process starts that began a new episode.
	Episodes int `json:"episodes"`

	// UpdatedAt is the time of the last write.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsEmpty returns true if the state has never been written.
func (s State) IsEmpty() bool {
	return s.Episodes == 0 && s.UpdatedAt.IsZero()
}

// RecoveringDecommission reports whether the record describes a decommission
// that was interrupted after its kind was chosen.
func (s State) RecoveringDecommission() bool {
	return s.Status == StatusDecommissioning && s.DecommissionKind != KindNone
}
