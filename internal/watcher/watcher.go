// Package watcher triggers re-indexing when files under a repository change.
//
// Events are debounced: a burst of writes (a checkout, a formatter run)
// produces a single callback once the tree has been quiet for the debounce
// interval. Callbacks never overlap.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/repoassist/internal/walker"
)

// DefaultDebounce is the quiet period before a change is acted on
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc is called after a debounced burst of changes
type ChangeFunc func(ctx context.Context) error

// Options configures a Watcher
type Options struct {
	Debounce time.Duration
	// Ignore filters events and directories; nil ignores nothing beyond
	// the VCS and index directories.
	Ignore walker.Predicate
	Logger *slog.Logger
}

// Watcher watches a repository tree recursively
type Watcher struct {
	root     string
	ignore   walker.Predicate
	debounce time.Duration
	onChange ChangeFunc
	logger   *slog.Logger
	ready    chan struct{}
}

// New creates a Watcher for root
func New(root string, onChange ChangeFunc, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Watcher{
		root:     root,
		ignore:   opts.Ignore,
		debounce: opts.Debounce,
		onChange: onChange,
		logger:   opts.Logger.With("component", "watcher"),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once the initial directory watches are in place
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is cancelled. Errors returned by the change callback
// are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	close(w.ready)
	w.logger.Info("watching for changes", "root", w.root, "debounce", w.debounce)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(fw, event) {
				continue
			}
			w.logger.Debug("change detected", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-pending:
			pending = nil
			if err := w.onChange(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("change handler failed", "error", err)
			}
		}
	}
}

// relevant reports whether an event should trigger a run. New directories
// are added to the watch set as a side effect.
func (w *Watcher) relevant(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if event.Has(fsnotify.Create) {
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			isDir = true
		}
	}
	if w.ignored(rel, isDir) {
		return false
	}

	if isDir {
		if err := w.addTree(fw, event.Name); err != nil {
			w.logger.Warn("failed to watch new directory", "path", rel, "error", err)
		}
	}
	return true
}

// addTree watches dir and every non-ignored directory below it. Symbolic
// links are not followed.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are not watched
			if path == dir {
				return err
			}
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		if rel != "." && w.ignored(filepath.ToSlash(rel), true) {
			return fs.SkipDir
		}

		if err := fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(rel string, isDir bool) bool {
	if rel == "." || rel == "" {
		return false
	}
	if walker.AlwaysIgnored(rel) {
		return true
	}
	return w.ignore != nil && w.ignore.Match(rel, isDir)
}
