// Package control is the local control channel of the agent. Requests are
// TOML files dropped into a spool directory; the agent watches the directory
// and hands each request to the event loop exactly once.
package control

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/lifeline/internal/domain"
)

// Request kinds.
const (
	KindBundle          = "bundle"
	KindDecommission    = "decommission"
	KindRunDecommission = "run_decommission"
	KindTerminate       = "terminate"
	KindShutdown        = "shutdown"
)

const requestSuffix = ".toml"

// Request is one control request.
type Request struct {
	ID   string `toml:"id"`
	Kind string `toml:"kind"`

	// bundle and decommission
	Bundle domain.Bundle `toml:"bundle"`

	// decommission
	UserID           int    `toml:"user_id,omitempty"`
	DecommissionKind string `toml:"decommission_kind,omitempty"`
	SkipDBUpdate     bool   `toml:"skip_db_update,omitempty"`

	// shutdown
	Level       string `toml:"level,omitempty"`
	Immediately bool   `toml:"immediately,omitempty"`
}

// Validate checks the kind and the kind-specific fields.
func (r Request) Validate() error {
	switch r.Kind {
	case KindBundle, KindTerminate, KindRunDecommission:
		return nil
	case KindDecommission:
		if _, err := domain.ParseDecommissionKind(r.DecommissionKind); err != nil {
			return err
		}
		return nil
	case KindShutdown:
		if _, err := domain.ParseShutdownLevel(r.Level); err != nil {
			return err
		}
		return nil
	case "":
		return fmt.Errorf("request kind is required")
	default:
		return fmt.Errorf("unknown request kind %q", r.Kind)
	}
}

// Parse decodes and validates a request file.
func Parse(data []byte) (Request, error) {
	var r Request
	if err := toml.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

// Submit writes r into the spool directory and returns its id. The file
// appears under its final name only once fully written.
func Submit(dir string, r Request) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	data, err := toml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create spool dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".request-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write request: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync request: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close request: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, r.ID+requestSuffix)); err != nil {
		return "", fmt.Errorf("publish request: %w", err)
	}
	return r.ID, nil
}

func isRequestFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, requestSuffix) && !strings.HasPrefix(name, ".")
}
