package lifecycle

// ResumeMode tells how the current episode started relative to the previous one.
type ResumeMode int

const (
	// ResumeInitialBoot is the very first start of the instance.
	ResumeInitialBoot ResumeMode = iota
	// ResumeReboot is a start after the host rebooted (or the previous
	// episode ended in any way other than a stop).
	ResumeReboot
	// ResumeRestart is an agent process restart on the same kernel boot while
	// the instance was operational. The episode continues.
	ResumeRestart
	// ResumeAfterStop is the first start after the instance was stopped.
	ResumeAfterStop
)

// String returns the wire name of the mode, as sent in the boot declaration.
func (m ResumeMode) String() string {
	switch m {
	case ResumeInitialBoot:
		return "initial_boot"
	case ResumeReboot:
		return "reboot"
	case ResumeRestart:
		return "restart"
	case ResumeAfterStop:
		return "resume"
	default:
		return "unknown"
	}
}
