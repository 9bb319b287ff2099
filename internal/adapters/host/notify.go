package host

import (
	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/bft-labs/lifeline/internal/ports"
)

// Notifier reports service state to systemd. Outside a notify unit it does
// nothing.
type Notifier struct {
	logger ports.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(logger ports.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// Ready sends READY=1.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping sends STOPPING=1.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sends a free-form status line.
func (n *Notifier) Status(line string) {
	n.send("STATUS=" + line)
}

func (n *Notifier) send(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.logger.Warn("sd_notify failed", ports.String("state", state), ports.Err(err))
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", ports.String("state", state))
	}
}
