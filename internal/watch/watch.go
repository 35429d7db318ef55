// Package watch observes a repository's working directory for external
// changes and signals invalidation, so a long-running caller (the
// dashboard, primarily) doesn't have to poll the filesystem on every
// status request. It is adapted from the teacher's
// internal/server/watcher.go, which watched a .git directory's refs
// namespace for branch/tag changes; this watcher instead watches the
// working tree itself, since §4.F's status cache goes stale on file
// edits, not ref changes (the facade invalidates its own cache directly
// on commit/checkout, without needing fsnotify for that).
package watch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher watches a working directory tree (excluding the repository
// metadata directory) and coalesces bursts of filesystem events into a
// single debounced signal on Invalidated.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	metaDir  string
	debounce time.Duration
	logger   *slog.Logger

	invalidate chan struct{}
	closeOnce  sync.Once
	done       chan struct{}
	wg         sync.WaitGroup
}

// New creates a Watcher rooted at root, ignoring the metaDirName subtree
// (the repository's own .caf directory). logger receives warnings for
// non-fatal watch setup failures (a subdirectory that can't be watched);
// a nil logger uses slog.Default().
func New(root, metaDirName string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		fsw:        fsw,
		root:       root,
		metaDir:    metaDirName,
		debounce:   defaultDebounce,
		logger:     logger,
		invalidate: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}, nil
}

// Start walks root, subscribes every directory (fsnotify does not recurse),
// and begins the background event loop.
func (w *Watcher) Start() error {
	if err := w.walkAndWatch(w.root); err != nil {
		return fmt.Errorf("watch: initial walk of %s: %w", w.root, err)
	}
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Invalidated fires (without blocking the sender) whenever a debounced
// burst of changes under the working directory has settled.
func (w *Watcher) Invalidated() <-chan struct{} {
	return w.invalidate
}

// Close stops the background loop and releases the underlying fsnotify
// watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	w.wg.Wait()
	return err
}

func (w *Watcher) walkAndWatch(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err == nil && w.metaDir != "" && (rel == w.metaDir || strings.HasPrefix(rel, w.metaDir+string(filepath.Separator))) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("watch: failed to watch directory", "dir", path, "err", err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var debounceTimer *time.Timer
	for {
		select {
		case <-w.done:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.shouldIgnore(event) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(event.Name); err != nil {
						w.logger.Warn("watch: failed to watch new directory", "dir", event.Name, "err", err)
					}
				}
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.signal)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch: watcher error", "err", err)
		}
	}
}

func (w *Watcher) signal() {
	select {
	case w.invalidate <- struct{}{}:
	default:
		// a pending invalidation already covers this one
	}
}

func (w *Watcher) shouldIgnore(event fsnotify.Event) bool {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return true
	}
	if w.metaDir != "" && (rel == w.metaDir || strings.HasPrefix(rel, w.metaDir+string(filepath.Separator))) {
		return true
	}
	if strings.HasSuffix(event.Name, ".tmp") || strings.Contains(filepath.Base(event.Name), ".tmp-") {
		return true
	}
	return false
}
