package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/dshills/repoassist/internal/chunker"
	"github.com/dshills/repoassist/internal/embedder"
	"github.com/dshills/repoassist/internal/storage"
	"github.com/dshills/repoassist/pkg/types"
)

const (
	// DefaultWorkers bounds concurrent embedding calls
	DefaultWorkers = 4

	// HeaderFormat is prepended to every span before embedding so that
	// near-identical snippets in different files embed differently.
	HeaderFormat = "File: %s | Lines: %d-%d\n"
)

// ErrUpdateInProgress is returned when an update is started while another is active
var ErrUpdateInProgress = errors.New("embedding update already in progress")

// ProgressFunc is called after each row is written or given up on
type ProgressFunc func(done, total int)

// Options configures an Updater
type Options struct {
	Workers           int
	RequestsPerSecond float64 // 0 means unlimited
	Logger            *slog.Logger
	Progress          ProgressFunc
}

// Updater fills missing embeddings of the chunk table
type Updater struct {
	storage  storage.Storage
	embedder embedder.Embedder
	root     string
	workers  int
	limiter  *rate.Limiter
	logger   *slog.Logger
	progress ProgressFunc
	mu       sync.Mutex
}

// Statistics contains statistics about one embedding run
type Statistics struct {
	RunID      string
	Candidates int
	Embedded   int
	Failed     int
	Stale      int
	Cleared    int64
	Warnings   []types.Warning
	Duration   time.Duration
}

// New creates an Updater. root is the repository root that chunk paths are
// relative to.
func New(store storage.Storage, emb embedder.Embedder, root string, opts Options) *Updater {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := max(1, int(math.Ceil(opts.RequestsPerSecond)))
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Updater{
		storage:  store,
		embedder: emb,
		root:     root,
		workers:  opts.Workers,
		limiter:  limiter,
		logger:   opts.Logger.With("component", "updater", "model", emb.Model()),
		progress: opts.Progress,
	}
}

// job is one row ready to embed
type job struct {
	chunk *types.Chunk
	text  string
}

// result is the outcome of one embedding call
type result struct {
	chunk *types.Chunk
	emb   *embedder.Embedding
	err   error
}

// Update embeds up to limit rows that have no embedding (all of them when
// limit is not positive).
//
// A row whose embedding call fails terminally keeps a null embedding and is
// reported as a warning; it is retried by the next run. Each successful row
// is written as soon as its embedding arrives, so progress survives later
// failures. Only storage errors and cancellation abort the run.
func (u *Updater) Update(ctx context.Context, limit int) (*Statistics, error) {
	if !u.mu.TryLock() {
		return nil, ErrUpdateInProgress
	}
	defer u.mu.Unlock()

	start := time.Now()
	stats := &Statistics{RunID: uuid.New().String()}

	err := u.run(ctx, limit, stats)
	stats.Duration = time.Since(start)

	run := &storage.Run{
		ID:                stats.RunID,
		Kind:              storage.RunEmbed,
		StartedAt:         start,
		FinishedAt:        start.Add(stats.Duration),
		EmbeddingsWritten: stats.Embedded,
		EmbeddingsFailed:  stats.Failed,
		Warnings:          stats.Warnings,
	}
	if err != nil {
		run.Error = err.Error()
	}
	if recErr := u.storage.RecordRun(context.WithoutCancel(ctx), run); recErr != nil {
		u.logger.Warn("failed to record run", "run_id", stats.RunID, "error", recErr)
	}

	if err != nil {
		return stats, err
	}

	u.logger.Info("embedding run complete",
		"run_id", stats.RunID,
		"candidates", stats.Candidates,
		"embedded", stats.Embedded,
		"failed", stats.Failed,
		"stale", stats.Stale,
		"cleared", stats.Cleared,
		"duration", stats.Duration)

	return stats, nil
}

func (u *Updater) run(ctx context.Context, limit int, stats *Statistics) error {
	// Never mix vector spaces: drop embeddings of any other model
	cleared, err := u.storage.ClearEmbeddings(ctx, u.embedder.Model(), u.embedder.Dimension())
	if err != nil {
		return err
	}
	stats.Cleared = cleared
	if cleared > 0 {
		u.logger.Info("cleared embeddings of a different model", "count", cleared)
	}

	rows, err := u.storage.ListChunksMissingEmbedding(ctx, limit)
	if err != nil {
		return err
	}
	stats.Candidates = len(rows)
	if len(rows) == 0 {
		return nil
	}

	jobs := u.prepare(rows, stats)
	done := len(rows) - len(jobs)
	u.report(done, len(rows))

	return u.embed(ctx, jobs, len(rows), done, stats)
}

// prepare reads the span of every row from disk. Rows whose span no longer
// hashes to the stored content hash are reported stale and dropped.
func (u *Updater) prepare(rows []*types.Chunk, stats *Statistics) []job {
	jobs := make([]job, 0, len(rows))
	var (
		curPath string
		lines   []string
		readErr error
	)

	// Rows arrive grouped by file, so each file is read once
	for _, c := range rows {
		if c.FilePath != curPath {
			curPath = c.FilePath
			var content []byte
			content, readErr = os.ReadFile(filepath.Join(u.root, filepath.FromSlash(c.FilePath)))
			lines = chunker.SplitLines(content)
		}

		if readErr != nil {
			u.stale(stats, c, fmt.Sprintf("file unreadable: %v", readErr))
			continue
		}

		span := chunker.SpanText(lines, c.StartLine, c.EndLine)
		if types.HashText(span) != c.ContentHash {
			u.stale(stats, c, "content changed since indexing, re-index to refresh")
			continue
		}

		jobs = append(jobs, job{chunk: c, text: FormatText(c, span)})
	}

	return jobs
}

// embed fans jobs out to the worker pool and writes results from the
// calling goroutine, the table's single writer.
func (u *Updater) embed(ctx context.Context, jobs []job, total, done int, stats *Statistics) error {
	if len(jobs) == 0 {
		return nil
	}

	pool, err := ants.NewPool(u.workers)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result, u.workers)
	var wg sync.WaitGroup

	go func() {
		defer close(results)
		for _, j := range jobs {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			err := pool.Submit(func() {
				defer wg.Done()
				results <- u.embedOne(ctx, j)
			})
			if err != nil {
				wg.Done()
				results <- result{chunk: j.chunk, err: err}
			}
		}
		wg.Wait()
	}()

	var writeErr error
	for res := range results {
		if writeErr != nil {
			continue // drain
		}
		if err := u.write(ctx, res, stats); err != nil {
			writeErr = err
			cancel()
			continue
		}
		done++
		u.report(done, total)
	}

	if writeErr != nil {
		return writeErr
	}
	return ctx.Err()
}

func (u *Updater) embedOne(ctx context.Context, j job) result {
	if u.limiter != nil {
		if err := u.limiter.Wait(ctx); err != nil {
			return result{chunk: j.chunk, err: err}
		}
	}
	emb, err := u.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: j.text})
	return result{chunk: j.chunk, emb: emb, err: err}
}

// write applies one result. Only storage failures are returned.
func (u *Updater) write(ctx context.Context, res result, stats *Statistics) error {
	c := res.chunk
	if res.err != nil {
		if ctx.Err() != nil {
			return nil
		}
		stats.Failed++
		w := types.Warning{
			Kind:      types.WarnEmbeddingFailure,
			FilePath:  c.FilePath,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Message:   res.err.Error(),
		}
		stats.Warnings = append(stats.Warnings, w)
		u.logger.Warn("embedding failed", "path", c.FilePath, "lines", c.Span(), "error", res.err)
		return nil
	}

	// Stored under the configured model name so ClearEmbeddings and search
	// filters see one identity
	err := u.storage.SetEmbedding(ctx, c.ID, c.ContentHash, res.emb.Vector, u.embedder.Model())
	switch {
	case err == nil:
		stats.Embedded++
		return nil
	case errors.Is(err, storage.ErrStaleChunk):
		// Re-indexed while the call was in flight
		u.stale(stats, c, "row replaced while embedding")
		return nil
	case ctx.Err() != nil:
		return nil
	default:
		return fmt.Errorf("failed to store embedding for %s:%s: %w", c.FilePath, c.Span(), err)
	}
}

func (u *Updater) stale(stats *Statistics, c *types.Chunk, msg string) {
	stats.Stale++
	stats.Warnings = append(stats.Warnings, types.Warning{
		Kind:      types.WarnStaleChunk,
		FilePath:  c.FilePath,
		StartLine: c.StartLine,
		EndLine:   c.EndLine,
		Message:   msg,
	})
	u.logger.Debug("stale chunk", "path", c.FilePath, "lines", c.Span(), "reason", msg)
}

func (u *Updater) report(done, total int) {
	if u.progress != nil {
		u.progress(done, total)
	}
}

// FormatText builds the text embedded for a chunk: a metadata header
// followed by the span.
func FormatText(c *types.Chunk, span string) string {
	return fmt.Sprintf(HeaderFormat, c.FilePath, c.StartLine, c.EndLine) + span
}
