package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/lifeline/internal/clock"
	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...ports.Field) {}
func (mockLogger) Info(msg string, fields ...ports.Field)  {}
func (mockLogger) Warn(msg string, fields ...ports.Field)  {}
func (mockLogger) Error(msg string, fields ...ports.Field) {}

// memRepo is an in-memory ports.StateRepository.
type memRepo struct {
	mu      sync.Mutex
	rec     domain.State
	saves   int
	saveErr error
}

func (m *memRepo) Load(ctx context.Context) (domain.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec, nil
}

func (m *memRepo) Save(ctx context.Context, s domain.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.rec = s
	return nil
}

func (m *memRepo) Record() domain.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec
}

func newState(t *testing.T) (*State, *memRepo) {
	t.Helper()
	repo := &memRepo{}
	return New(repo, clock.Fake(time.Unix(1000, 0)), mockLogger{}), repo
}

func TestNew(t *testing.T) {
	s, _ := newState(t)
	if s.Status() != domain.StatusBooting {
		t.Errorf("initial status = %v, want booting", s.Status())
	}
	if !s.IsInitialBoot() {
		t.Error("IsInitialBoot() = false for new state")
	}
}

func TestSet_ValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []domain.Status
	}{
		{"boot to operational", []domain.Status{domain.StatusOperational}},
		{"boot to stranded", []domain.Status{domain.StatusStranded}},
		{"decommission during boot", []domain.Status{domain.StatusDecommissioning, domain.StatusDecommissioned}},
		{"full life", []domain.Status{domain.StatusOperational, domain.StatusDecommissioning, domain.StatusDecommissioned}},
		{"strand after decommissioned", []domain.Status{domain.StatusOperational, domain.StatusDecommissioning, domain.StatusDecommissioned, domain.StatusStranded}},
		{"strand while decommissioning", []domain.Status{domain.StatusDecommissioning, domain.StatusStranded}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, repo := newState(t)
			for _, st := range tt.path {
				if err := s.Set(st, "test"); err != nil {
					t.Fatalf("Set(%v) error = %v", st, err)
				}
				if got := s.Status(); got != st {
					t.Fatalf("Status() = %v after Set(%v)", got, st)
				}
				if got := repo.Record().Status; got != st {
					t.Fatalf("persisted status = %v, want %v", got, st)
				}
			}
		})
	}
}

func TestSet_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []domain.Status
		to   domain.Status
	}{
		{"decommissioned to operational", []domain.Status{domain.StatusDecommissioning, domain.StatusDecommissioned}, domain.StatusOperational},
		{"operational to booting", []domain.Status{domain.StatusOperational}, domain.StatusBooting},
		{"decommissioning to operational", []domain.Status{domain.StatusDecommissioning}, domain.StatusOperational},
		{"booting to decommissioned", nil, domain.StatusDecommissioned},
		{"stranded to operational", []domain.Status{domain.StatusStranded}, domain.StatusOperational},
		{"stranded to decommissioning", []domain.Status{domain.StatusStranded}, domain.StatusDecommissioning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newState(t)
			for _, st := range tt.path {
				if err := s.Set(st, "setup"); err != nil {
					t.Fatalf("setup Set(%v) error = %v", st, err)
				}
			}
			before := s.Status()

			err := s.Set(tt.to, "test")
			if !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("Set(%v) error = %v, want ErrInvalidTransition", tt.to, err)
			}
			if s.Status() != before {
				t.Errorf("status changed to %v on invalid transition", s.Status())
			}
		})
	}
}

func TestSet_SameStatusIsNoop(t *testing.T) {
	s, repo := newState(t)
	calls := 0
	s.Observe(func(_, _ domain.Status) { calls++ })

	if err := s.Set(domain.StatusBooting, "again"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if calls != 0 || repo.saves != 0 {
		t.Errorf("no-op set: observers=%d saves=%d, want 0/0", calls, repo.saves)
	}
}

func TestObserve(t *testing.T) {
	s, _ := newState(t)

	type change struct{ prev, cur domain.Status }
	var got []change
	s.Observe(func(prev, cur domain.Status) { got = append(got, change{prev, cur}) })

	_ = s.Set(domain.StatusOperational, "boot done")
	_ = s.Set(domain.StatusDecommissioning, "decommission")

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0] != (change{domain.StatusBooting, domain.StatusOperational}) {
		t.Errorf("event 0 = %v", got[0])
	}
	if got[1] != (change{domain.StatusOperational, domain.StatusDecommissioning}) {
		t.Errorf("event 1 = %v", got[1])
	}
}

func TestObserve_CanSetFromCallback(t *testing.T) {
	s, _ := newState(t)
	s.Observe(func(_, cur domain.Status) {
		if cur == domain.StatusDecommissioning {
			_ = s.Set(domain.StatusDecommissioned, "chained")
		}
	})

	if err := s.Set(domain.StatusDecommissioning, "test"); err != nil {
		t.Fatal(err)
	}
	if s.Status() != domain.StatusDecommissioned {
		t.Errorf("Status() = %v, want decommissioned", s.Status())
	}
}

func TestSet_PersistFailureKeepsTransition(t *testing.T) {
	s, repo := newState(t)
	repo.saveErr = errors.New("disk full")

	err := s.Set(domain.StatusOperational, "test")
	if err == nil {
		t.Fatal("Set() error = nil, want persist error")
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("persist failure reported as invalid transition: %v", err)
	}
	if s.Status() != domain.StatusOperational {
		t.Errorf("Status() = %v, want operational", s.Status())
	}
}

func TestSetDecommissionKind_DoesNotChangeStatus(t *testing.T) {
	s, repo := newState(t)
	_ = s.Set(domain.StatusOperational, "test")

	if err := s.SetDecommissionKind(domain.KindStop); err != nil {
		t.Fatal(err)
	}
	if s.Status() != domain.StatusOperational {
		t.Errorf("Status() = %v, want operational", s.Status())
	}
	if s.DecommissionKind() != domain.KindStop {
		t.Errorf("DecommissionKind() = %q", s.DecommissionKind())
	}
	if repo.Record().DecommissionKind != domain.KindStop {
		t.Errorf("persisted kind = %q", repo.Record().DecommissionKind)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name       string
		rec        domain.State
		bootID     string
		wantStatus domain.Status
		wantMode   ResumeMode
		recovering bool
	}{
		{
			name:       "no record",
			bootID:     "b1",
			wantStatus: domain.StatusBooting,
			wantMode:   ResumeInitialBoot,
		},
		{
			name:       "agent restart on same boot",
			rec:        domain.State{Status: domain.StatusOperational, BootID: "b1", Episodes: 1},
			bootID:     "b1",
			wantStatus: domain.StatusOperational,
			wantMode:   ResumeRestart,
		},
		{
			name:       "reboot",
			rec:        domain.State{Status: domain.StatusOperational, BootID: "b1", Episodes: 1},
			bootID:     "b2",
			wantStatus: domain.StatusBooting,
			wantMode:   ResumeReboot,
		},
		{
			name:       "start after stop",
			rec:        domain.State{Status: domain.StatusDecommissioned, DecommissionKind: domain.KindStop, BootID: "b1", Episodes: 1},
			bootID:     "b2",
			wantStatus: domain.StatusBooting,
			wantMode:   ResumeAfterStop,
		},
		{
			name:       "interrupted decommission",
			rec:        domain.State{Status: domain.StatusDecommissioning, DecommissionKind: domain.KindStop, BootID: "b1", Episodes: 1},
			bootID:     "b1",
			wantStatus: domain.StatusDecommissioning,
			wantMode:   ResumeAfterStop,
			recovering: true,
		},
		{
			name:       "decommission cut short by a reboot starts over",
			rec:        domain.State{Status: domain.StatusDecommissioning, DecommissionKind: domain.KindReboot, BootID: "b1", Episodes: 1},
			bootID:     "b2",
			wantStatus: domain.StatusBooting,
			wantMode:   ResumeReboot,
		},
		{
			name:       "decommission cut short by a stop starts over",
			rec:        domain.State{Status: domain.StatusDecommissioning, DecommissionKind: domain.KindStop, BootID: "b1", Episodes: 1},
			bootID:     "b2",
			wantStatus: domain.StatusBooting,
			wantMode:   ResumeAfterStop,
		},
		{
			name:       "decommissioning without kind starts over",
			rec:        domain.State{Status: domain.StatusDecommissioning, BootID: "b1", Episodes: 1},
			bootID:     "b2",
			wantStatus: domain.StatusBooting,
			wantMode:   ResumeReboot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memRepo{rec: tt.rec}
			s, err := Load(context.Background(), repo, clock.Fake(time.Unix(0, 0)), mockLogger{}, tt.bootID, []string{"t"})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if s.Status() != tt.wantStatus {
				t.Errorf("Status() = %v, want %v", s.Status(), tt.wantStatus)
			}
			if s.ResumeMode() != tt.wantMode {
				t.Errorf("ResumeMode() = %v, want %v", s.ResumeMode(), tt.wantMode)
			}
			if s.RecoveringDecommission() != tt.recovering {
				t.Errorf("RecoveringDecommission() = %v, want %v", s.RecoveringDecommission(), tt.recovering)
			}
		})
	}
}

func TestLoad_RecoversDecommissionOnce(t *testing.T) {
	repo := &memRepo{rec: domain.State{
		Status:           domain.StatusDecommissioning,
		DecommissionKind: domain.KindReboot,
		BootID:           "b1",
		Episodes:         1,
	}}
	clk := clock.Fake(time.Unix(0, 0))

	s, err := Load(context.Background(), repo, clk, mockLogger{}, "b1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !s.RecoveringDecommission() {
		t.Fatal("interrupted decommission not recovered")
	}
	if err := s.Set(domain.StatusDecommissioned, "shutdown resumed"); err != nil {
		t.Fatalf("Set(decommissioned) error = %v", err)
	}

	for _, bootID := range []string{"b1", "b2", "b3"} {
		s, err := Load(context.Background(), repo, clk, mockLogger{}, bootID, nil)
		if err != nil {
			t.Fatal(err)
		}
		if s.RecoveringDecommission() {
			t.Errorf("boot %s: decommission recovered again", bootID)
		}
		if s.Status() != domain.StatusBooting {
			t.Errorf("boot %s: status = %v, want booting", bootID, s.Status())
		}
	}
}

func TestLoad_InterruptedDecommissionNotRecoveredOnLaterBoots(t *testing.T) {
	seed := domain.State{
		Status:           domain.StatusDecommissioning,
		DecommissionKind: domain.KindReboot,
		BootID:           "boot-a",
		Episodes:         1,
	}
	for _, bootID := range []string{"boot-b", "boot-c", "boot-d"} {
		repo := &memRepo{rec: seed}
		s, err := Load(context.Background(), repo, clock.Fake(time.Unix(0, 0)), mockLogger{}, bootID, nil)
		if err != nil {
			t.Fatal(err)
		}
		if s.RecoveringDecommission() || s.Status() != domain.StatusBooting {
			t.Errorf("boot %s: recovering = %v, status = %v", bootID, s.RecoveringDecommission(), s.Status())
		}
	}
}

func TestLoad_NewEpisodeClearsKind(t *testing.T) {
	repo := &memRepo{rec: domain.State{
		Status:           domain.StatusDecommissioned,
		DecommissionKind: domain.KindReboot,
		BootID:           "b1",
		Episodes:         3,
	}}
	s, err := Load(context.Background(), repo, clock.Fake(time.Unix(0, 0)), mockLogger{}, "b2", []string{"x"})
	if err != nil {
		t.Fatal(err)
	}

	rec := repo.Record()
	if rec.Episodes != 4 {
		t.Errorf("Episodes = %d, want 4", rec.Episodes)
	}
	if rec.DecommissionKind != domain.KindNone {
		t.Errorf("DecommissionKind = %q, want empty", rec.DecommissionKind)
	}
	if rec.LastKind != domain.KindReboot {
		t.Errorf("LastKind = %q, want reboot", rec.LastKind)
	}
	if !s.HasBootTag("x") {
		t.Error("boot tags not taken from this start")
	}
	if rec.BootID != "b2" {
		t.Errorf("BootID = %q", rec.BootID)
	}
}

func TestState_Concurrency(t *testing.T) {
	s, _ := newState(t)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Status()
				_ = s.BootTags()
				_ = s.DecommissionKind()
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Set(domain.StatusOperational, "test")
			_ = s.Set(domain.StatusDecommissioning, "test")
		}()
	}
	wg.Wait()

	if s.Status() != domain.StatusDecommissioning {
		t.Errorf("Status() = %v, want decommissioning", s.Status())
	}
}
