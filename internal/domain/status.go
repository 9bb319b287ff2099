package domain

import "fmt"

// Status is the lifecycle status of the managed instance.
type Status int

const (
	StatusBooting Status = iota
	StatusOperational
	StatusDecommissioning
	StatusDecommissioned
	StatusStranded
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusBooting:
		return "booting"
	case StatusOperational:
		return "operational"
	case StatusDecommissioning:
		return "decommissioning"
	case StatusDecommissioned:
		return "decommissioned"
	case StatusStranded:
		return "stranded"
	default:
		return "unknown"
	}
}

// ParseStatus converts a wire name back into a Status.
func ParseStatus(name string) (Status, error) {
	for s := StatusBooting; s <= StatusStranded; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return StatusBooting, fmt.Errorf("unknown status %q", name)
}

// MarshalText implements encoding.TextMarshaler so persisted state stays readable.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// DecommissionKind is the shutdown action requested alongside a decommission.
// The empty kind means decommissioning was triggered without an explicit
// action (operator or local trigger).
type DecommissionKind string

const (
	KindNone      DecommissionKind = ""
	KindTerminate DecommissionKind = "terminate"
	KindStop      DecommissionKind = "stop"
	KindReboot    DecommissionKind = "reboot"
)

// ParseDecommissionKind validates a kind name. The empty string is accepted.
func ParseDecommissionKind(name string) (DecommissionKind, error) {
	switch k := DecommissionKind(name); k {
	case KindNone, KindTerminate, KindStop, KindReboot:
		return k, nil
	default:
		return KindNone, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
}

// ShutdownLevel orders shutdown requests so that they can only escalate.
type ShutdownLevel int

const (
	LevelContinue ShutdownLevel = iota
	LevelReboot
	LevelStop
	LevelTerminate
)

func (l ShutdownLevel) String() string {
	switch l {
	case LevelContinue:
		return "continue"
	case LevelReboot:
		return "reboot"
	case LevelStop:
		return "stop"
	case LevelTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Kind maps a shutdown level onto the decommission kind it triggers.
func (l ShutdownLevel) Kind() DecommissionKind {
	switch l {
	case LevelReboot:
		return KindReboot
	case LevelStop:
		return KindStop
	case LevelTerminate:
		return KindTerminate
	default:
		return KindNone
	}
}

// ParseShutdownLevel converts a level name into a ShutdownLevel.
func ParseShutdownLevel(name string) (ShutdownLevel, error) {
	for l := LevelContinue; l <= LevelTerminate; l++ {
		if l.String() == name {
			return l, nil
		}
	}
	return LevelContinue, fmt.Errorf("unknown shutdown level %q", name)
}
