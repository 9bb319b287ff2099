// Package host implements ports.HostControl: the coordinator is told about
// the shutdown, then the host is rebooted or powered off through
// systemd-logind.
package host

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/login1"

	"github.com/bft-labs/lifeline/internal/clock"
	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
	"github.com/bft-labs/lifeline/internal/retry"
)

// PowerSwitch is the part of the logind connection used to leave the host.
// *login1.Conn satisfies it.
type PowerSwitch interface {
	Reboot(askForAuth bool)
	PowerOff(askForAuth bool)
}

// Config holds the host control settings.
type Config struct {
	InstanceID     string
	RequestTimeout time.Duration

	// DryRun logs the power action instead of performing it.
	DryRun bool
}

// Control shuts the host down.
type Control struct {
	cfg         Config
	coordinator ports.Coordinator
	power       PowerSwitch
	clock       clock.Clock
	logger      ports.Logger
}

// New creates a Control using power for local actions.
func New(cfg Config, coordinator ports.Coordinator, power PowerSwitch, clk clock.Clock, logger ports.Logger) *Control {
	if clk == nil {
		clk = clock.Real()
	}
	return &Control{cfg: cfg, coordinator: coordinator, power: power, clock: clk, logger: logger}
}

// Logind connects to systemd-logind over the system bus.
func Logind() (*login1.Conn, error) {
	conn, err := login1.New()
	if err != nil {
		return nil, fmt.Errorf("connect to logind: %w", err)
	}
	return conn, nil
}

// Shutdown sends the shutdown order to the coordinator once, then reboots
// the host for KindReboot and powers it off otherwise. The local action runs
// even when the coordinator could not be reached; the coordinator error is
// returned afterwards.
func (c *Control) Shutdown(ctx context.Context, userID int, skipDBUpdate bool, kind domain.DecommissionKind) error {
	order := domain.ShutdownOrder{
		InstanceID:   c.cfg.InstanceID,
		UserID:       userID,
		SkipDBUpdate: skipDBUpdate,
		Kind:         kind,
	}
	req := retry.New[struct{}](c.coordinator, ports.TargetShutdown, order,
		retry.Persistent(),
		retry.WithTimeout(c.cfg.RequestTimeout),
		retry.WithClock(c.clock),
		retry.WithLogger(c.logger),
	)
	_, callErr := req.Result(ctx)
	if callErr != nil {
		c.logger.Error("coordinator shutdown request failed, acting locally",
			ports.String("kind", string(kind)),
			ports.Err(callErr),
		)
	}

	if kind == domain.KindReboot {
		c.act("reboot", func() { c.power.Reboot(false) })
	} else {
		c.act("poweroff", func() { c.power.PowerOff(false) })
	}

	if callErr != nil {
		return fmt.Errorf("shutdown order: %w", callErr)
	}
	return nil
}

// ForceShutdown powers the host off without telling the coordinator.
func (c *Control) ForceShutdown(ctx context.Context) error {
	c.logger.Warn("forcing host power off")
	c.act("poweroff", func() { c.power.PowerOff(false) })
	return nil
}

func (c *Control) act(action string, fn func()) {
	if c.cfg.DryRun {
		c.logger.Info("dry run: skipping host power action", ports.String("action", action))
		return
	}
	c.logger.Info("host power action", ports.String("action", action))
	fn()
}
