package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/repoassist/internal/chunker"
	"github.com/dshills/repoassist/internal/storage"
	"github.com/dshills/repoassist/pkg/types"
)

// ModTimeTolerance absorbs filesystem timestamp jitter when comparing a
// file's mtime to the stored one.
const ModTimeTolerance = time.Millisecond

// ErrIndexingInProgress is returned when a run is started while another is active
var ErrIndexingInProgress = errors.New("indexing already in progress")

// FileSource enumerates the repo-relative, slash-separated paths of every
// file that passes the ignore rules.
type FileSource interface {
	Root() string
	Files(ctx context.Context) iter.Seq2[string, error]
}

// ProgressFunc is called after each file is applied
type ProgressFunc func(done, total int)

// Options configures an Indexer
type Options struct {
	Workers  int // Concurrent chunking workers (default: runtime.NumCPU())
	Logger   *slog.Logger
	Progress ProgressFunc
}

// Indexer maintains the persisted chunk table: walk -> chunk -> merge
type Indexer struct {
	chunker  *chunker.Chunker
	storage  storage.Storage
	workers  int
	logger   *slog.Logger
	progress ProgressFunc
	lock     IndexLock
}

// Statistics contains statistics about one index run
type Statistics struct {
	RunID            string
	FilesScanned     int
	FilesIndexed     int // re-chunked
	FilesUnchanged   int // mtime matched
	FilesTouched     int // mtime moved, content identical
	FilesSkipped     int // unsupported, unparsable, oversized or unreadable
	FilesPruned      int
	ChunksWritten    int
	EmbeddingsReused int
	WalkComplete     bool
	Warnings         []types.Warning
	Duration         time.Duration
}

// New creates a new Indexer instance
func New(ch *chunker.Chunker, store storage.Storage, opts Options) *Indexer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Indexer{
		chunker:  ch,
		storage:  store,
		workers:  opts.Workers,
		logger:   opts.Logger.With("component", "indexer"),
		progress: opts.Progress,
	}
}

// outcome classifies what a run decided for one file
type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeTouched
	outcomeChanged
	outcomeSkipped
)

// fileResult is produced concurrently and applied serially
type fileResult struct {
	path     string
	outcome  outcome
	modTime  time.Time
	file     *types.File
	chunks   []*types.Chunk
	warnings []types.Warning
}

// Index brings the persisted table in line with the files src yields.
//
// Unchanged files are skipped by mtime, then by whole-file hash. Changed
// files are re-chunked and their rows replaced in one transaction each,
// carrying over embeddings of rows whose content hash is unchanged. Rows of
// files that disappeared or became ignored are pruned, but only after a
// complete walk.
func (idx *Indexer) Index(ctx context.Context, src FileSource) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
	stats := &Statistics{RunID: uuid.New().String()}

	err := idx.run(ctx, src, stats)
	stats.Duration = time.Since(start)

	run := &storage.Run{
		ID:               stats.RunID,
		Kind:             storage.RunIndex,
		StartedAt:        start,
		FinishedAt:       start.Add(stats.Duration),
		FilesIndexed:     stats.FilesIndexed,
		FilesSkipped:     stats.FilesSkipped,
		FilesPruned:      stats.FilesPruned,
		ChunksWritten:    stats.ChunksWritten,
		EmbeddingsReused: stats.EmbeddingsReused,
		Warnings:         stats.Warnings,
	}
	if err != nil {
		run.Error = err.Error()
	}
	// A cancelled run is still recorded
	if recErr := idx.storage.RecordRun(context.WithoutCancel(ctx), run); recErr != nil {
		idx.logger.Warn("failed to record run", "run_id", stats.RunID, "error", recErr)
	}

	if err != nil {
		return stats, err
	}

	idx.logger.Info("index run complete",
		"run_id", stats.RunID,
		"scanned", stats.FilesScanned,
		"indexed", stats.FilesIndexed,
		"unchanged", stats.FilesUnchanged,
		"touched", stats.FilesTouched,
		"skipped", stats.FilesSkipped,
		"pruned", stats.FilesPruned,
		"chunks", stats.ChunksWritten,
		"reused_embeddings", stats.EmbeddingsReused,
		"warnings", len(stats.Warnings),
		"duration", stats.Duration)

	return stats, nil
}

func (idx *Indexer) run(ctx context.Context, src FileSource, stats *Statistics) error {
	existing, err := idx.storage.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}
	known := make(map[string]*types.File, len(existing))
	for _, f := range existing {
		known[f.Path] = f
	}

	paths, complete := idx.walk(ctx, src, stats)
	if err := ctx.Err(); err != nil {
		return err
	}
	stats.FilesScanned = len(paths)
	stats.WalkComplete = complete

	// Chunk in windows so memory stays bounded and finished windows are
	// durable before the next one starts.
	window := idx.workers * 8
	for lo := 0; lo < len(paths); lo += window {
		hi := min(lo+window, len(paths))
		results, err := idx.prepare(ctx, src.Root(), paths[lo:hi], known)
		if err != nil {
			return err
		}
		for i, res := range results {
			if err := idx.apply(ctx, res, known[res.path], stats); err != nil {
				return err
			}
			if idx.progress != nil {
				idx.progress(lo+i+1, len(paths))
			}
		}
	}

	if !complete {
		idx.logger.Warn("walk incomplete, not pruning", "warnings", types.CountKind(stats.Warnings, types.WarnWalk))
		return nil
	}

	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		seen[p] = struct{}{}
	}
	for _, f := range existing {
		if _, ok := seen[f.Path]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := idx.storage.DeleteFile(ctx, f.Path); err != nil {
			return fmt.Errorf("failed to prune %s: %w", f.Path, err)
		}
		idx.logger.Debug("pruned file", "path", f.Path)
		stats.FilesPruned++
	}

	return nil
}

// walk collects every path src yields. It reports whether the walk saw the
// whole tree, which is false after any walk error.
func (idx *Indexer) walk(ctx context.Context, src FileSource, stats *Statistics) ([]string, bool) {
	var paths []string
	complete := true
	for path, err := range src.Files(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return paths, false
			}
			complete = false
			stats.Warnings = append(stats.Warnings, types.Warning{
				Kind:     types.WarnWalk,
				FilePath: path,
				Message:  err.Error(),
			})
			continue
		}
		paths = append(paths, path)
	}
	return paths, complete
}

// prepare decides and chunks a window of files concurrently. Results keep
// the order of paths.
func (idx *Indexer) prepare(ctx context.Context, root string, paths []string, known map[string]*types.File) ([]*fileResult, error) {
	results := make([]*fileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for i, path := range paths {
		g.Go(func() error {
			res, err := idx.prepareFile(gctx, root, path, known[path])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (idx *Indexer) prepareFile(ctx context.Context, root, path string, prev *types.File) (*fileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &fileResult{path: path}
	maxTokens := idx.chunker.MaxTokens()
	tokName := idx.chunker.TokenizerName()
	// A record chunked under another budget or tokenizer is never reused
	sameBudget := prev != nil && prev.MaxTokens == maxTokens && prev.Tokenizer == tokName
	abs := filepath.Join(root, filepath.FromSlash(path))

	info, err := os.Stat(abs)
	if err != nil {
		// Vanished between walk and stat: drop its rows without a warning
		res.outcome = outcomeSkipped
		if !errors.Is(err, os.ErrNotExist) {
			res.warnings = append(res.warnings, types.Warning{Kind: types.WarnReadFailure, FilePath: path, Message: err.Error()})
		}
		return res, nil
	}
	res.modTime = info.ModTime()

	if sameBudget && prev.Size == info.Size() &&
		types.ModTimeEqual(prev.ModTime, info.ModTime(), ModTimeTolerance) {
		res.outcome = outcomeUnchanged
		return res, nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		res.outcome = outcomeSkipped
		if !errors.Is(err, os.ErrNotExist) {
			res.warnings = append(res.warnings, types.Warning{Kind: types.WarnReadFailure, FilePath: path, Message: err.Error()})
		}
		return res, nil
	}

	hash := sha256.Sum256(content)
	if sameBudget && prev.Hash == hash {
		res.outcome = outcomeTouched
		return res, nil
	}

	chunks, f, err := idx.chunker.Chunk(ctx, path, content)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		w, ok := chunker.WarningFor(path, err)
		if !ok {
			w = types.Warning{Kind: types.WarnParseFailure, FilePath: path, Message: err.Error()}
		}
		res.outcome = outcomeSkipped
		res.warnings = append(res.warnings, w)
		return res, nil
	}

	for _, c := range chunks {
		c.ModTime = info.ModTime()
	}
	res.outcome = outcomeChanged
	res.chunks = chunks
	res.warnings = f.Warnings
	res.file = &types.File{
		Path:         path,
		RelativePath: filepath.FromSlash(path),
		ModTime:      info.ModTime(),
		Size:         int64(len(content)),
		Hash:         hash,
		MaxTokens:    maxTokens,
		Tokenizer:    tokName,
	}
	return res, nil
}

// apply persists one prepared result. Only storage failures are returned.
func (idx *Indexer) apply(ctx context.Context, res *fileResult, prev *types.File, stats *Statistics) error {
	stats.Warnings = append(stats.Warnings, res.warnings...)
	for _, w := range res.warnings {
		idx.logger.Debug("warning", "kind", w.Kind, "path", w.FilePath, "message", w.Message)
	}

	switch res.outcome {
	case outcomeUnchanged:
		stats.FilesUnchanged++

	case outcomeTouched:
		if err := idx.storage.TouchFile(ctx, res.path, res.modTime); err != nil {
			return fmt.Errorf("failed to update %s: %w", res.path, err)
		}
		stats.FilesTouched++

	case outcomeSkipped:
		stats.FilesSkipped++
		// Rows describing content that can no longer be chunked are dropped
		if prev != nil {
			if err := idx.storage.DeleteFile(ctx, res.path); err != nil {
				return fmt.Errorf("failed to remove %s: %w", res.path, err)
			}
		}

	case outcomeChanged:
		if err := idx.storage.ReplaceFile(ctx, res.file, res.chunks); err != nil {
			return fmt.Errorf("failed to store %s: %w", res.path, err)
		}
		for _, c := range res.chunks {
			if c.HasEmbedding() {
				stats.EmbeddingsReused++
			}
		}
		stats.FilesIndexed++
		stats.ChunksWritten += len(res.chunks)
		idx.logger.Debug("indexed file", "path", res.path, "chunks", len(res.chunks))
	}

	return nil
}
