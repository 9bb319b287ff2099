// Package audit stores audits as JSON-lines files, one file per audit id,
// and prunes the audit directory between a high and a low watermark.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

const fileSuffix = ".jsonl"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// FileSink implements ports.AuditSink on a directory.
type FileSink struct {
	dir    string
	logger ports.Logger

	mu   sync.Mutex
	made bool
}

// NewFileSink creates a sink writing into dir. The directory is created on
// first use.
func NewFileSink(dir string, logger ports.Logger) *FileSink {
	return &FileSink{dir: dir, logger: logger}
}

// Open creates a new audit with a random id.
func (s *FileSink) Open(title string) domain.Audit {
	a := s.Attach(uuid.NewString())
	a.Info("opened: " + title)
	return a
}

// Attach returns the audit for id. Ids that are not safe file names are
// replaced by a derived uuid so that they cannot escape the directory.
func (s *FileSink) Attach(id string) domain.Audit {
	if !idPattern.MatchString(id) {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
	}
	w := &appendWriter{sink: s, path: filepath.Join(s.dir, id+fileSuffix)}
	return &fileAudit{
		id:     id,
		logger: zerolog.New(w).With().Timestamp().Str("audit_id", id).Logger(),
	}
}

// Path returns the file backing audit id.
func (s *FileSink) Path(id string) string {
	return filepath.Join(s.dir, id+fileSuffix)
}

func (s *FileSink) ensureDir() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.made {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return err
	}
	s.made = true
	return nil
}

// appendWriter opens, appends and closes the file on every write so audits
// hold no descriptors and pruning never races an open handle.
type appendWriter struct {
	sink *FileSink
	path string
}

func (w *appendWriter) Write(p []byte) (int, error) {
	if err := w.sink.ensureDir(); err != nil {
		w.sink.logger.Error("audit directory unavailable", ports.Err(err))
		return 0, err
	}
	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o640)
	if err != nil {
		w.sink.logger.Error("audit write failed", ports.String("path", w.path), ports.Err(err))
		return 0, err
	}
	n, err := f.Write(p)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("append audit: %w", err)
	}
	return n, nil
}

type fileAudit struct {
	id     string
	logger zerolog.Logger
}

func (a *fileAudit) ID() string { return a.id }

func (a *fileAudit) Info(msg string) {
	a.logger.Info().Msg(msg)
}

func (a *fileAudit) Error(msg string, err error) {
	a.logger.Error().Err(err).Msg(msg)
}

func (a *fileAudit) Status(summary string) {
	a.logger.Info().Str("status", summary).Msg("status changed")
}
