package audit

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bft-labs/lifeline/internal/clock"
	"github.com/bft-labs/lifeline/internal/ports"
)

// CleanupConfig holds the audit directory pruning settings.
type CleanupConfig struct {
	// CheckInterval is how often the directory size is checked.
	CheckInterval time.Duration

	// HighWatermark is the size in bytes above which pruning begins.
	HighWatermark int64

	// LowWatermark is the target size in bytes after pruning.
	LowWatermark int64

	// MinAge protects recently written audits from pruning.
	MinAge time.Duration
}

// DefaultCleanupConfig returns the defaults: check hourly, prune above
// 256 MiB down to 192 MiB, keep anything written in the last day.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		CheckInterval: time.Hour,
		HighWatermark: 256 << 20,
		LowWatermark:  192 << 20,
		MinAge:        24 * time.Hour,
	}
}

// Cleaner prunes the oldest audit files once the directory grows past the
// high watermark.
type Cleaner struct {
	cfg    CleanupConfig
	dir    string
	clock  clock.Clock
	logger ports.Logger
}

// NewCleaner creates a cleaner for dir. Zero config values take the defaults.
func NewCleaner(cfg CleanupConfig, dir string, clk clock.Clock, logger ports.Logger) *Cleaner {
	def := DefaultCleanupConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.HighWatermark <= 0 {
		cfg.HighWatermark = def.HighWatermark
	}
	if cfg.LowWatermark <= 0 || cfg.LowWatermark > cfg.HighWatermark {
		cfg.LowWatermark = cfg.HighWatermark * 3 / 4
	}
	return &Cleaner{cfg: cfg, dir: dir, clock: clk, logger: logger}
}

// Run prunes immediately, then every CheckInterval until ctx is done.
func (c *Cleaner) Run(ctx context.Context) error {
	c.logger.Info("audit cleanup enabled",
		ports.String("dir", c.dir),
		ports.Int64("high_watermark", c.cfg.HighWatermark),
	)
	for {
		c.CleanupOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(c.cfg.CheckInterval):
		}
	}
}

// CleanupOnce runs one pruning pass and returns the bytes freed.
func (c *Cleaner) CleanupOnce(ctx context.Context) int64 {
	files, total, err := c.scan()
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Error("audit cleanup: scan failed", ports.Err(err))
		}
		return 0
	}
	if total <= c.cfg.HighWatermark {
		return 0
	}

	cutoff := c.clock.Now().Add(-c.cfg.MinAge)
	var freed int64
	for _, f := range files {
		if ctx.Err() != nil || total <= c.cfg.LowWatermark {
			break
		}
		if f.modTime.After(cutoff) {
			break
		}
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			c.logger.Error("audit cleanup: remove failed", ports.String("path", f.path), ports.Err(err))
			continue
		}
		total -= f.size
		freed += f.size
	}

	if freed > 0 {
		c.logger.Info("audit cleanup completed", ports.Int64("bytes_freed", freed))
	}
	return freed
}

type auditFile struct {
	path    string
	size    int64
	modTime time.Time
}

// scan lists audit files oldest first and sums the directory size.
func (c *Cleaner) scan() ([]auditFile, int64, error) {
	var files []auditFile
	var total int64
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		if strings.HasSuffix(d.Name(), fileSuffix) {
			files = append(files, auditFile{path: path, size: info.Size(), modTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})
	return files, total, nil
}
