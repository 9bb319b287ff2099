package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/lifeline/internal/adapters/log"
	"github.com/bft-labs/lifeline/internal/clock"
	"github.com/bft-labs/lifeline/internal/domain"
)

func TestTagFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.toml")
	content := `[tags]
"lifeline:auto_launched" = "true"
role = "web"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tags, err := NewTagFileSource(path).Tags(context.Background())
	if err != nil {
		t.Fatalf("Tags() error = %v", err)
	}
	want := []string{"lifeline:auto_launched=true", "role=web"}
	if strings.Join(tags, ",") != strings.Join(want, ",") {
		t.Errorf("Tags() = %v, want %v", tags, want)
	}
}

func TestTagFileSource_Missing(t *testing.T) {
	tags, err := NewTagFileSource(filepath.Join(t.TempDir(), "none.toml")).Tags(context.Background())
	if err != nil || len(tags) != 0 {
		t.Errorf("Tags() = %v, %v; want empty, nil", tags, err)
	}
}

func TestLoginKeysApplier(t *testing.T) {
	dir := t.TempDir()
	a := NewLoginKeysApplier(dir, log.NewNoopLogger())

	if err := os.WriteFile(filepath.Join(dir, "olduser.keys"), []byte("ssh-ed25519 AAA old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := a.Apply(context.Background(), domain.LoginPolicy{Users: []domain.LoginUser{
		{Username: "alice", PublicKeys: []string{"ssh-ed25519 AAA alice"}, Superuser: true},
		{Username: "bob", PublicKeys: []string{"ssh-rsa BBB bob", "ssh-ed25519 CCC bob"}},
	}})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "bob.keys"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ssh-rsa BBB bob\nssh-ed25519 CCC bob\n" {
		t.Errorf("bob.keys = %q", data)
	}
	su, _ := os.ReadFile(filepath.Join(dir, "superusers"))
	if string(su) != "alice\n" {
		t.Errorf("superusers = %q", su)
	}
	if _, err := os.Stat(filepath.Join(dir, "olduser.keys")); !os.IsNotExist(err) {
		t.Error("stale key file not removed")
	}
}

func TestLoginKeysApplier_RejectsBadUsername(t *testing.T) {
	a := NewLoginKeysApplier(t.TempDir(), log.NewNoopLogger())
	err := a.Apply(context.Background(), domain.LoginPolicy{Users: []domain.LoginUser{{Username: "../root"}}})
	if err == nil {
		t.Error("Apply() error = nil for path traversal username")
	}
}

func TestRepoFileConfigurator(t *testing.T) {
	tests := []struct {
		name    string
		repo    domain.Repository
		wantErr bool
	}{
		{"valid", domain.Repository{Name: "base", BaseURLs: []string{"https://mirror/a", "https://mirror/b"}}, false},
		{"no urls", domain.Repository{Name: "empty"}, true},
		{"bad scheme", domain.Repository{Name: "ftp", BaseURLs: []string{"ftp://mirror"}}, true},
		{"bad name", domain.Repository{Name: "../etc", BaseURLs: []string{"https://m"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			err := NewRepoFileConfigurator(dir).Configure(context.Background(), tt.repo)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Configure() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			data, err := os.ReadFile(filepath.Join(dir, tt.repo.Name+".repo"))
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), "baseurl=https://mirror/a\n        https://mirror/b\n") {
				t.Errorf("repo file = %q", data)
			}
		})
	}
}

func TestDeviceWaiter(t *testing.T) {
	dir := t.TempDir()
	dev := filepath.Join(dir, "xvdf")
	clk := clock.Fake(time.Unix(0, 0))
	w := NewDeviceWaiter(clk, time.Second, time.Minute, log.NewNoopLogger())

	errc := make(chan error, 1)
	go func() {
		errc <- w.Prepare(context.Background(), []domain.VolumeAttachment{{VolumeID: "vol-1", Device: dev}})
	}()

	clk.WaitForTimers(1)
	if err := os.WriteFile(dev, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Second)

	if err := <-errc; err != nil {
		t.Errorf("Prepare() error = %v", err)
	}
}

func TestDeviceWaiter_Timeout(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	w := NewDeviceWaiter(clk, 30*time.Second, time.Minute, log.NewNoopLogger())

	errc := make(chan error, 1)
	go func() {
		errc <- w.Prepare(context.Background(), []domain.VolumeAttachment{{VolumeID: "vol-1", Device: "/nonexistent/dev"}})
	}()
	for i := 0; i < 2; i++ {
		clk.WaitForTimers(1)
		clk.Advance(30 * time.Second)
	}

	if err := <-errc; err == nil {
		t.Error("Prepare() error = nil, want timeout")
	}
}
