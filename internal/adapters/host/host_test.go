package host

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bft-labs/lifeline/internal/adapters/log"
	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

type fakePower struct {
	mu       sync.Mutex
	reboots  int
	poweroff int
}

func (p *fakePower) Reboot(bool) {
	p.mu.Lock()
	p.reboots++
	p.mu.Unlock()
}

func (p *fakePower) PowerOff(bool) {
	p.mu.Lock()
	p.poweroff++
	p.mu.Unlock()
}

type recordingCoordinator struct {
	mu     sync.Mutex
	err    error
	calls  int
	target string
	order  domain.ShutdownOrder
}

func (c *recordingCoordinator) Call(ctx context.Context, requestID, target string, payload, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.target = target
	c.order, _ = payload.(domain.ShutdownOrder)
	return c.err
}

func TestControl_Shutdown(t *testing.T) {
	tests := []struct {
		name         string
		kind         domain.DecommissionKind
		wantReboots  int
		wantPowerOff int
	}{
		{"reboot", domain.KindReboot, 1, 0},
		{"stop", domain.KindStop, 0, 1},
		{"terminate", domain.KindTerminate, 0, 1},
		{"no kind", domain.KindNone, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			power := &fakePower{}
			coord := &recordingCoordinator{}
			c := New(Config{InstanceID: "i-1"}, coord, power, nil, log.NewNoopLogger())

			if err := c.Shutdown(context.Background(), 7, true, tt.kind); err != nil {
				t.Fatalf("Shutdown() error = %v", err)
			}
			if coord.target != ports.TargetShutdown {
				t.Errorf("target = %q", coord.target)
			}
			want := domain.ShutdownOrder{InstanceID: "i-1", UserID: 7, SkipDBUpdate: true, Kind: tt.kind}
			if coord.order != want {
				t.Errorf("order = %+v, want %+v", coord.order, want)
			}
			if power.reboots != tt.wantReboots || power.poweroff != tt.wantPowerOff {
				t.Errorf("reboots=%d poweroff=%d", power.reboots, power.poweroff)
			}
		})
	}
}

func TestControl_ShutdownActsLocallyWhenCoordinatorFails(t *testing.T) {
	power := &fakePower{}
	coord := &recordingCoordinator{err: domain.ErrNotReady}
	c := New(Config{InstanceID: "i-1"}, coord, power, nil, log.NewNoopLogger())

	err := c.Shutdown(context.Background(), 0, false, domain.KindStop)
	if !errors.Is(err, domain.ErrNotReady) {
		t.Errorf("Shutdown() error = %v, want ErrNotReady", err)
	}
	if coord.calls != 1 {
		t.Errorf("coordinator calls = %d, want 1 (persistent request)", coord.calls)
	}
	if power.poweroff != 1 {
		t.Errorf("poweroff = %d, want 1", power.poweroff)
	}
}

func TestControl_ForceShutdown(t *testing.T) {
	power := &fakePower{}
	coord := &recordingCoordinator{}
	c := New(Config{}, coord, power, nil, log.NewNoopLogger())

	if err := c.ForceShutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if power.poweroff != 1 || coord.calls != 0 {
		t.Errorf("poweroff=%d calls=%d", power.poweroff, coord.calls)
	}
}

func TestControl_DryRun(t *testing.T) {
	power := &fakePower{}
	c := New(Config{DryRun: true}, &recordingCoordinator{}, power, nil, log.NewNoopLogger())

	_ = c.Shutdown(context.Background(), 0, false, domain.KindReboot)
	_ = c.ForceShutdown(context.Background())
	if power.reboots != 0 || power.poweroff != 0 {
		t.Errorf("dry run performed power actions: reboots=%d poweroff=%d", power.reboots, power.poweroff)
	}
}
