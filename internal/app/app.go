// Package app assembles the pipeline components for one repository from its
// configuration. The CLI and the MCP server share this wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dshills/repoassist/internal/chunker"
	"github.com/dshills/repoassist/internal/config"
	"github.com/dshills/repoassist/internal/detect"
	"github.com/dshills/repoassist/internal/embedder"
	"github.com/dshills/repoassist/internal/indexer"
	"github.com/dshills/repoassist/internal/parser"
	"github.com/dshills/repoassist/internal/searcher"
	"github.com/dshills/repoassist/internal/storage"
	"github.com/dshills/repoassist/internal/tokenizer"
	"github.com/dshills/repoassist/internal/updater"
	"github.com/dshills/repoassist/internal/walker"
)

// Options customises assembly
type Options struct {
	Logger        *slog.Logger
	Confirm       chunker.ConfirmFunc // asked under the prompt oversized-file policy
	IndexProgress indexer.ProgressFunc
	EmbedProgress updater.ProgressFunc

	// Embedder replaces the configured provider, mainly for tests
	Embedder embedder.Embedder
}

// App holds the components of one repository
type App struct {
	Config   *config.Config
	Storage  *storage.SQLiteStorage
	Indexer  *indexer.Indexer
	Embedder embedder.Embedder // nil when the provider could not be set up
	Updater  *updater.Updater
	Searcher *searcher.Searcher

	embedErr error
	logger   *slog.Logger
}

// Open creates the index directory if needed, opens the index and builds
// every component. A misconfigured embedding provider does not fail Open:
// indexing still works, and Embed and Search return the provider error.
func Open(cfg *config.Config, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	tok, err := tokenizer.New(cfg.Tokenizer)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", cfg.Dir(), err)
	}
	store, err := storage.NewSQLiteStorage(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	ch := chunker.New(chunker.OptionsFromConfig(cfg, opts.Confirm), tok, detect.New(), parser.NewRegistry())

	a := &App{
		Config:  cfg,
		Storage: store,
		Indexer: indexer.New(ch, store, indexer.Options{
			Workers:  cfg.Index.Workers,
			Logger:   opts.Logger,
			Progress: opts.IndexProgress,
		}),
		logger: opts.Logger,
	}

	emb := opts.Embedder
	if emb == nil {
		emb, err = embedder.New(cfg.Embedding, opts.Logger)
	}
	if err != nil {
		a.embedErr = err
		opts.Logger.Debug("embedding provider unavailable", "provider", cfg.Embedding.Provider, "error", err)
		return a, nil
	}

	a.Embedder = emb
	a.Updater = updater.New(store, emb, cfg.Root, updater.Options{
		Workers:           cfg.Embedding.Workers,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Logger:            opts.Logger,
		Progress:          opts.EmbedProgress,
	})
	a.Searcher = searcher.NewSearcher(store, emb, cfg.Root, searcher.Options{
		DefaultLimit: cfg.Search.DefaultLimit,
		Logger:       opts.Logger,
	})
	return a, nil
}

// Source returns a fresh walker over the repository. Ignore files are read
// on every call so edits to .gitignore apply to the next run.
func (a *App) Source() (indexer.FileSource, error) {
	ignore, err := walker.NewIgnore(a.Config.Root, a.Config.IgnorePatterns)
	if err != nil {
		return nil, err
	}
	return walker.New(a.Config.Root, ignore), nil
}

// Index runs the index maintainer over the repository
func (a *App) Index(ctx context.Context) (*indexer.Statistics, error) {
	src, err := a.Source()
	if err != nil {
		return nil, err
	}
	return a.Indexer.Index(ctx, src)
}

// Embed fills up to limit missing embeddings (all when limit is not positive)
func (a *App) Embed(ctx context.Context, limit int) (*updater.Statistics, error) {
	if a.Updater == nil {
		return nil, a.EmbedderErr()
	}
	return a.Updater.Update(ctx, limit)
}

// Search answers a query against the index
func (a *App) Search(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error) {
	if a.Searcher == nil {
		return nil, a.EmbedderErr()
	}
	return a.Searcher.Search(ctx, req)
}

// EmbedderErr returns why no embedder is available, or nil
func (a *App) EmbedderErr() error {
	if a.Embedder != nil {
		return nil
	}
	if a.embedErr == nil {
		return embedder.ErrNoProviderEnabled
	}
	return fmt.Errorf("embedding provider %q unavailable: %w", a.Config.Embedding.Provider, a.embedErr)
}

// Close releases the embedder and the index
func (a *App) Close() error {
	var errs []error
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	errs = append(errs, a.Storage.Close())
	return errors.Join(errs...)
}
