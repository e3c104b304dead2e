// Package watch reports debounced changes to supported source files.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jward/treehug/internal/discover"
	"github.com/jward/treehug/internal/lang"
	"github.com/jward/treehug/internal/slogutil"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 150 * time.Millisecond

// Op is the kind of change observed for a file.
type Op string

const (
	OpWrite  Op = "write"
	OpRemove Op = "remove"
)

// Event is a settled change to one file.
type Event struct {
	Path string // absolute
	Rel  string // slash-separated, relative to the root
	Op   Op
}

// Config configures a Watcher.
type Config struct {
	Root     string
	Debounce time.Duration
	Include  []string
	Exclude  []string
	Logger   *slog.Logger
}

// Watcher watches a directory tree and emits batches of events once
// changes have been quiet for the debounce interval.
type Watcher struct {
	root     string
	cfg      Config
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	events chan []Event
}

// New creates a watcher and registers every non-skipped directory under
// cfg.Root.
func New(cfg Config) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if err := discover.Validate(cfg.Include); err != nil {
		return nil, err
	}
	if err := discover.Validate(cfg.Exclude); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &Watcher{
		root:     root,
		cfg:      cfg,
		fsw:      fsw,
		logger:   cfg.Logger,
		debounce: cfg.Debounce,
		pending:  make(map[string]fsnotify.Op),
		events:   make(chan []Event, 16),
	}
	if w.logger == nil {
		w.logger = slogutil.NewDiscardLogger()
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Events delivers batches sorted by path. It is closed when Run returns.
func (w *Watcher) Events() <-chan []Event {
	return w.events
}

// Run processes filesystem notifications until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.fsw.Close()

	w.logger.Info("watching", "root", w.root, "debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)

		case <-timer.C:
			if batch := w.flush(); len(batch) > 0 {
				select {
				case w.events <- batch:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// handle records an fsnotify event; it reports whether anything is pending.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	path := ev.Name
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !discover.SkipDir(filepath.Base(path)) {
				if err := w.addRecursive(path); err != nil {
					w.logger.Warn("failed to watch new directory", "path", path, "error", err)
				}
			}
			return false
		}
	}
	if _, ok := w.relevant(path); !ok {
		return false
	}
	if ev.Op == fsnotify.Chmod {
		return false
	}

	w.pendingMu.Lock()
	w.pending[path] |= ev.Op
	w.pendingMu.Unlock()
	w.logger.Debug("change detected", "path", path, "op", ev.Op.String())
	return true
}

func (w *Watcher) relevant(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if !lang.Supported(path) {
		return "", false
	}
	return rel, discover.Match(rel, w.cfg.Include, w.cfg.Exclude)
}

// flush drains pending changes. A file that exists at flush time is a
// write regardless of the operations seen, which folds editor
// rename-and-replace saves into a single write.
func (w *Watcher) flush() []Event {
	w.pendingMu.Lock()
	pending := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	out := make([]Event, 0, len(pending))
	for path := range pending {
		rel, _ := w.relevant(path)
		op := OpWrite
		if _, err := os.Stat(path); err != nil {
			op = OpRemove
		}
		out = append(out, Event{Path: path, Rel: rel, Op: op})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rel < out[j].Rel })
	return out
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && discover.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		} else {
			w.logger.Debug("watching directory", "path", path)
		}
		return nil
	})
}
