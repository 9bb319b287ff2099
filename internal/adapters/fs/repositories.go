package fs

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bft-labs/lifeline/internal/domain"
)

var repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// RepoFileConfigurator implements ports.RepositoryConfigurator by writing one
// package-manager repository file per mirror into dir.
type RepoFileConfigurator struct {
	dir string
}

// NewRepoFileConfigurator creates a configurator writing into dir.
func NewRepoFileConfigurator(dir string) *RepoFileConfigurator {
	return &RepoFileConfigurator{dir: dir}
}

// Configure validates repo and writes <dir>/<name>.repo.
func (c *RepoFileConfigurator) Configure(ctx context.Context, repo domain.Repository) error {
	if !repoNamePattern.MatchString(repo.Name) {
		return fmt.Errorf("invalid repository name %q", repo.Name)
	}
	if len(repo.BaseURLs) == 0 {
		return fmt.Errorf("repository %s has no base url", repo.Name)
	}
	for _, raw := range repo.BaseURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("repository %s: %w", repo.Name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file" {
			return fmt.Errorf("repository %s: unsupported url scheme %q", repo.Name, u.Scheme)
		}
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create repos dir: %w", err)
	}
	return writeFileAtomic(filepath.Join(c.dir, repo.Name+".repo"), []byte(renderRepo(repo)), 0o644)
}

func renderRepo(repo domain.Repository) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", repo.Name)
	fmt.Fprintf(&b, "name=%s\n", repo.Name)
	for i, u := range repo.BaseURLs {
		if i == 0 {
			fmt.Fprintf(&b, "baseurl=%s\n", u)
			continue
		}
		fmt.Fprintf(&b, "        %s\n", u)
	}
	if repo.Frozen != "" {
		fmt.Fprintf(&b, "# frozen=%s\n", repo.Frozen)
	}
	b.WriteString("enabled=1\n")
	return b.String()
}
