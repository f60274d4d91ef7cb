package walker

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
)

// Walker enumerates non-ignored regular files under a root
type Walker struct {
	root   string
	ignore Predicate
}

// New creates a Walker. A nil predicate ignores nothing.
func New(root string, ignore Predicate) *Walker {
	return &Walker{root: root, ignore: ignore}
}

// Root returns the directory the walker enumerates
func (w *Walker) Root() string {
	return w.root
}

// Files returns a lazy sequence of repo-relative, slash separated paths.
// Each call starts a fresh traversal. Unreadable directories yield an error
// and are skipped; the traversal continues with their siblings. Context
// cancellation yields ctx.Err() and ends the sequence.
func (w *Walker) Files(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stopped := false

		walkErr := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			if err != nil {
				if path == w.root {
					return err
				}
				if !yield("", fmt.Errorf("walk %s: %w", path, err)) {
					stopped = true
					return filepath.SkipAll
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if path == w.root {
				return nil
			}

			rel, err := filepath.Rel(w.root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if w.ignore != nil && w.ignore.Match(rel, true) {
					return filepath.SkipDir
				}
				return nil
			}

			// Only regular files; symlinks are not followed
			if !d.Type().IsRegular() {
				return nil
			}

			if w.ignore != nil && w.ignore.Match(rel, false) {
				return nil
			}

			if !yield(rel, nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})

		if walkErr != nil && !stopped {
			yield("", walkErr)
		}
	}
}

// Collect drains the sequence into a slice, returning the first error
func (w *Walker) Collect(ctx context.Context) ([]string, error) {
	var files []string
	for path, err := range w.Files(ctx) {
		if err != nil {
			return files, err
		}
		files = append(files, path)
	}
	return files, nil
}
