package fs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bft-labs/lifeline/internal/clock"
	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

// DeviceWaiter implements ports.VolumeManager by waiting for the block
// devices of the attachments to show up.
type DeviceWaiter struct {
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	logger   ports.Logger
}

// NewDeviceWaiter polls every interval and gives up after timeout.
func NewDeviceWaiter(clk clock.Clock, interval, timeout time.Duration, logger ports.Logger) *DeviceWaiter {
	return &DeviceWaiter{clock: clk, interval: interval, timeout: timeout, logger: logger}
}

// Prepare blocks until every device exists.
func (w *DeviceWaiter) Prepare(ctx context.Context, attachments []domain.VolumeAttachment) error {
	deadline := w.clock.Now().Add(w.timeout)
	for _, a := range attachments {
		for {
			if _, err := os.Stat(a.Device); err == nil {
				w.logger.Info("volume attached",
					ports.String("volume_id", a.VolumeID),
					ports.String("device", a.Device),
				)
				break
			}
			if !w.clock.Now().Before(deadline) {
				return fmt.Errorf("volume %s: device %s did not appear within %s", a.VolumeID, a.Device, w.timeout)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.clock.After(w.interval):
			}
		}
	}
	return nil
}
