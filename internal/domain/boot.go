package domain

// Declaration announces the instance to the remote coordinator at boot.
type Declaration struct {
	InstanceID string   `json:"instance_id"`
	ResumeMode string   `json:"resume_mode"`
	BootTags   []string `json:"boot_tags,omitempty"`
}

// LoginPolicy lists the public keys allowed to log into the instance.
type LoginPolicy struct {
	Users []LoginUser `json:"users"`
}

// LoginUser is one entry of a managed login policy.
type LoginUser struct {
	Username   string   `json:"username"`
	PublicKeys []string `json:"public_keys"`
	Superuser  bool     `json:"superuser,omitempty"`
}

// Repository is one software repository definition to mirror locally.
type Repository struct {
	Name     string   `json:"name"`
	BaseURLs []string `json:"base_urls"`
	Frozen   string   `json:"frozen_date,omitempty"`
}

// VolumeAttachment is a block device the coordinator attaches on resume.
type VolumeAttachment struct {
	VolumeID string `json:"volume_id"`
	Device   string `json:"device"`
}

// ShutdownOrder is what the host asks the coordinator to carry out once
// decommissioning finished.
type ShutdownOrder struct {
	InstanceID   string           `json:"instance_id"`
	UserID       int              `json:"user_id,omitempty"`
	SkipDBUpdate bool             `json:"skip_db_update,omitempty"`
	Kind         DecommissionKind `json:"kind"`
}

// PatchUpload pushes an inputs patch produced by a bundle to the coordinator.
type PatchUpload struct {
	InstanceID string      `json:"instance_id"`
	AuditID    string      `json:"audit_id,omitempty"`
	Patch      InputsPatch `json:"patch"`
}
