package control

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/lifeline/internal/ports"
)

// Watcher feeds spooled requests to a handler on the event loop.
type Watcher struct {
	dir      string
	dispatch func(func())
	handle   func(Request)
	logger   ports.Logger
}

// NewWatcher creates a watcher over dir. handle is always invoked through
// dispatch.
func NewWatcher(dir string, dispatch func(func()), handle func(Request), logger ports.Logger) *Watcher {
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	return &Watcher{dir: dir, dispatch: dispatch, handle: handle, logger: logger}
}

// Run processes requests already in the spool, then new ones as they
// appear, until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("control channel ready", ports.String("dir", w.dir))

	w.scan()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isRequestFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.process(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("control watcher error", ports.Err(err))
		}
	}
}

// scan processes existing request files, oldest first.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Error("control spool scan failed", ports.Err(err))
		return
	}

	type spooled struct {
		path string
		mod  int64
	}
	var files []spooled
	for _, e := range entries {
		if e.IsDir() || !isRequestFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, spooled{filepath.Join(w.dir, e.Name()), info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].mod == files[j].mod {
			return files[i].path < files[j].path
		}
		return files[i].mod < files[j].mod
	})
	for _, f := range files {
		w.process(f.path)
	}
}

// process reads, removes and dispatches one request file. A file that is
// gone was already handled; an empty one is still being written.
func (w *Watcher) process(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Error("control request unreadable", ports.String("path", path), ports.Err(err))
		}
		return
	}
	if len(data) == 0 {
		return
	}
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			w.logger.Error("control request not removed, skipping", ports.String("path", path), ports.Err(err))
		}
		return
	}

	req, err := Parse(data)
	if err != nil {
		w.logger.Warn("control request rejected", ports.String("path", path), ports.Err(err))
		return
	}
	w.logger.Info("control request received",
		ports.String("id", req.ID),
		ports.String("kind", req.Kind),
	)
	w.dispatch(func() { w.handle(req) })
}
