package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

const (
	keysSuffix     = ".keys"
	superusersFile = "superusers"
)

// LoginKeysApplier implements ports.LoginApplier by maintaining one
// authorized-keys file per managed user in a directory consulted by sshd
// (AuthorizedKeysFile <dir>/%u.keys), plus a list of superusers.
type LoginKeysApplier struct {
	dir    string
	logger ports.Logger
}

// NewLoginKeysApplier creates an applier writing into dir.
func NewLoginKeysApplier(dir string, logger ports.Logger) *LoginKeysApplier {
	return &LoginKeysApplier{dir: dir, logger: logger}
}

// Apply replaces the managed key files with policy. Users no longer in the
// policy lose their key file.
func (a *LoginKeysApplier) Apply(ctx context.Context, policy domain.LoginPolicy) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create login keys dir: %w", err)
	}

	keep := make(map[string]bool, len(policy.Users))
	var superusers []string
	for _, u := range policy.Users {
		if u.Username == "" || strings.ContainsAny(u.Username, "/\\") || strings.HasPrefix(u.Username, ".") {
			return fmt.Errorf("invalid username %q", u.Username)
		}
		name := u.Username + keysSuffix
		keep[name] = true
		data := strings.Join(u.PublicKeys, "\n")
		if data != "" {
			data += "\n"
		}
		if err := writeFileAtomic(filepath.Join(a.dir, name), []byte(data), 0o644); err != nil {
			return fmt.Errorf("write keys for %s: %w", u.Username, err)
		}
		if u.Superuser {
			superusers = append(superusers, u.Username)
		}
	}

	sort.Strings(superusers)
	su := strings.Join(superusers, "\n")
	if su != "" {
		su += "\n"
	}
	if err := writeFileAtomic(filepath.Join(a.dir, superusersFile), []byte(su), 0o644); err != nil {
		return fmt.Errorf("write superusers: %w", err)
	}

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("list login keys dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), keysSuffix) || keep[e.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(a.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("failed to remove stale login keys", ports.String("file", e.Name()), ports.Err(err))
		}
	}

	a.logger.Info("managed login applied",
		ports.Int("users", len(policy.Users)),
		ports.Int("superusers", len(superusers)),
	)
	return nil
}
