package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/lifeline/internal/adapters/log"
	"github.com/bft-labs/lifeline/internal/clock"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestFileSink_OpenWritesLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audits")
	s := NewFileSink(dir, log.NewNoopLogger())

	a := s.Open("boot")
	a.Info("instance declared")
	a.Error("repository failed", errors.New("bad url"))
	a.Status("operational")

	lines := readLines(t, s.Path(a.ID()))
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	if lines[0]["message"] != "opened: boot" {
		t.Errorf("first line = %v", lines[0])
	}
	if lines[2]["level"] != "error" || lines[2]["error"] != "bad url" {
		t.Errorf("error line = %v", lines[2])
	}
	if lines[3]["status"] != "operational" {
		t.Errorf("status line = %v", lines[3])
	}
	for _, l := range lines {
		if l["audit_id"] != a.ID() {
			t.Errorf("audit_id = %v, want %s", l["audit_id"], a.ID())
		}
	}
}

func TestFileSink_AttachAppends(t *testing.T) {
	s := NewFileSink(t.TempDir(), log.NewNoopLogger())
	s.Attach("a-1").Info("one")
	s.Attach("a-1").Info("two")

	if n := len(readLines(t, s.Path("a-1"))); n != 2 {
		t.Errorf("got %d lines, want 2", n)
	}
}

func TestFileSink_UnsafeIDStaysInDir(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, log.NewNoopLogger())
	a := s.Attach("../../etc/passwd")
	a.Info("x")

	if strings.Contains(a.ID(), "/") {
		t.Fatalf("ID() = %q contains a path separator", a.ID())
	}
	if _, err := os.Stat(filepath.Join(dir, a.ID()+fileSuffix)); err != nil {
		t.Errorf("audit file not in dir: %v", err)
	}
}

func writeAudit(t *testing.T, dir, name string, size int, mod time.Time) string {
	t.Helper()
	p := filepath.Join(dir, name+fileSuffix)
	if err := os.WriteFile(p, make([]byte, size), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(p, mod, mod); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCleaner_RemovesOldestUntilLowWatermark(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.Fake(now)

	oldest := writeAudit(t, dir, "a", 120, now.Add(-72*time.Hour))
	older := writeAudit(t, dir, "b", 120, now.Add(-48*time.Hour))
	recent := writeAudit(t, dir, "c", 120, now.Add(-30*time.Hour))

	c := NewCleaner(CleanupConfig{HighWatermark: 300, LowWatermark: 150, MinAge: 24 * time.Hour}, dir, clk, log.NewNoopLogger())
	if freed := c.CleanupOnce(context.Background()); freed != 240 {
		t.Errorf("CleanupOnce() freed %d, want 240", freed)
	}

	if _, err := os.Stat(oldest); !os.IsNotExist(err) {
		t.Error("oldest audit not removed")
	}
	if _, err := os.Stat(older); !os.IsNotExist(err) {
		t.Error("second oldest audit not removed")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Error("newest audit removed")
	}
}

func TestCleaner_KeepsRecentAudits(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.Fake(now)

	writeAudit(t, dir, "a", 200, now.Add(-time.Hour))
	writeAudit(t, dir, "b", 200, now.Add(-time.Minute))

	c := NewCleaner(CleanupConfig{HighWatermark: 300, LowWatermark: 100, MinAge: 24 * time.Hour}, dir, clk, log.NewNoopLogger())
	if freed := c.CleanupOnce(context.Background()); freed != 0 {
		t.Errorf("CleanupOnce() freed %d, want 0", freed)
	}
}

func TestCleaner_BelowHighWatermarkNoop(t *testing.T) {
	dir := t.TempDir()
	clk := clock.Fake(time.Now())
	p := writeAudit(t, dir, "a", 10, time.Unix(0, 0))

	c := NewCleaner(CleanupConfig{HighWatermark: 300, LowWatermark: 100}, dir, clk, log.NewNoopLogger())
	c.CleanupOnce(context.Background())
	if _, err := os.Stat(p); err != nil {
		t.Error("audit removed below high watermark")
	}
}
