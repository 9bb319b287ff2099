// Package engine runs bundle executables as shell scripts.
//
// Each executable's Source is passed to the shell with its inputs in the
// environment as INPUT_<NAME>. A script can ask for values to be pushed
// upstream by appending KEY=VALUE lines to the file named by
// LIFELINE_INPUTS_PATCH.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

// Environment variables set for every script.
const (
	EnvInputsPatch  = "LIFELINE_INPUTS_PATCH"
	EnvExecutableID = "LIFELINE_EXECUTABLE_ID"
	EnvAuditID      = "LIFELINE_AUDIT_ID"
	inputPrefix     = "INPUT_"
)

// Config holds the exec engine settings.
type Config struct {
	// Shell runs the script source with "-c". Defaults to /bin/sh.
	Shell string

	// WorkDir is the working directory of scripts and holds the patch
	// files. Defaults to the system temp directory.
	WorkDir string

	// Timeout bounds one executable. Zero means no limit.
	Timeout time.Duration
}

// Exec implements ports.ConvergenceEngine with os/exec.
type Exec struct {
	cfg    Config
	logger ports.Logger
}

// NewExec creates an exec engine.
func NewExec(cfg Config, logger ports.Logger) *Exec {
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &Exec{cfg: cfg, logger: logger}
}

// Execute runs the executables of op in order and stops at the first failure.
func (e *Exec) Execute(ctx context.Context, op *domain.OperationContext) (domain.InputsPatch, error) {
	if err := os.MkdirAll(e.cfg.WorkDir, 0o750); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	patch := domain.InputsPatch{}
	for _, x := range op.Bundle.Executables {
		if strings.TrimSpace(x.Source) == "" {
			op.Audit.Info(fmt.Sprintf("%s: nothing to run", x.Name))
			continue
		}
		op.Audit.Info(fmt.Sprintf("%s: running", x.Name))
		start := time.Now()

		values, err := e.run(ctx, op, x)
		if err != nil {
			op.Audit.Error(fmt.Sprintf("%s: failed", x.Name), err)
			return nil, fmt.Errorf("executable %s: %w", x.ID, err)
		}
		for k, v := range values {
			patch[k] = v
		}
		op.Audit.Info(fmt.Sprintf("%s: done in %s", x.Name, time.Since(start).Round(time.Millisecond)))
	}
	return patch, nil
}

func (e *Exec) run(ctx context.Context, op *domain.OperationContext, x domain.Executable) (domain.InputsPatch, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	pf, err := os.CreateTemp(e.cfg.WorkDir, "patch-*.env")
	if err != nil {
		return nil, fmt.Errorf("create patch file: %w", err)
	}
	patchPath := pf.Name()
	pf.Close()
	defer os.Remove(patchPath)

	cmd := exec.CommandContext(ctx, e.cfg.Shell, "-c", x.Source)
	cmd.Dir = e.cfg.WorkDir
	cmd.Env = append(os.Environ(),
		EnvInputsPatch+"="+patchPath,
		EnvExecutableID+"="+x.ID,
		EnvAuditID+"="+op.Audit.ID(),
	)
	for name, value := range x.Inputs {
		cmd.Env = append(cmd.Env, inputPrefix+envName(name)+"="+value)
	}

	out, runErr := cmd.CombinedOutput()
	e.auditOutput(op.Audit, x.Name, out)
	if runErr != nil {
		e.logger.Warn("executable failed",
			ports.String("executable", x.ID),
			ports.String("audit_id", op.Audit.ID()),
			ports.Err(runErr),
		)
		return nil, runErr
	}

	data, err := os.ReadFile(patchPath)
	if err != nil {
		return nil, fmt.Errorf("read patch file: %w", err)
	}
	return ParsePatch(data)
}

func (e *Exec) auditOutput(audit domain.Audit, name string, out []byte) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), " \t\r"); line != "" {
			audit.Info(name + ": " + line)
		}
	}
}

// ParsePatch reads KEY=VALUE lines. Blank lines and lines starting with '#'
// are skipped; a later key wins.
func ParsePatch(data []byte) (domain.InputsPatch, error) {
	patch := domain.InputsPatch{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("patch line %d: expected KEY=VALUE", n)
		}
		patch[key] = value
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return patch, nil
}

// envName upper-cases name and replaces anything but letters, digits and
// underscores.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '_' || unicode.IsDigit(r) || (r < unicode.MaxASCII && unicode.IsLetter(r)):
			return unicode.ToUpper(r)
		default:
			return '_'
		}
	}, name)
}
