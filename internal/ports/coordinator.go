package ports

import "context"

// Coordinator targets addressed by lifeline.
const (
	TargetDeclare            = "/booter/declare"
	TargetLoginPolicy        = "/booter/get_login_policy"
	TargetRepositories       = "/booter/get_repositories"
	TargetBootBundle         = "/booter/get_boot_bundle"
	TargetMissingInputs      = "/booter/get_missing_inputs"
	TargetDecommissionBundle = "/booter/get_decommission_bundle"
	TargetAttachVolumes      = "/storage/attach_volumes"
	TargetPatchInputs        = "/updater/patch_inputs"
	TargetShutdown           = "/instance/shutdown"
)

// Coordinator sends one request to the remote coordinator.
// Payload and result are opaque structured data; result may be nil when the
// caller does not need the response body.
type Coordinator interface {
	// Call delivers payload to target and decodes the response into result.
	// requestID identifies the logical request across retries so the
	// receiver can de-duplicate it.
	// Returns an error wrapping domain.ErrNotReady or domain.ErrTransient for
	// failures a retry may fix.
	Call(ctx context.Context, requestID, target string, payload, result any) error
}
