package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dshills/repoassist/internal/app"
	"github.com/dshills/repoassist/internal/chunker"
	"github.com/dshills/repoassist/internal/config"
	"github.com/dshills/repoassist/internal/mcp"
	"github.com/dshills/repoassist/internal/searcher"
	"github.com/dshills/repoassist/internal/storage"
	"github.com/dshills/repoassist/internal/walker"
	"github.com/dshills/repoassist/internal/watcher"
	"github.com/dshills/repoassist/pkg/types"
)

// maxPrintedWarnings bounds the warnings listed after a run
const maxPrintedWarnings = 10

func runInit(_ *cobra.Command, _ []string) error {
	root, err := walker.ResolveRoot(rootPath)
	if err != nil {
		return err
	}

	cfg, created, err := config.Init(root)
	if err != nil {
		return err
	}
	if !created {
		fmt.Printf("Configuration already exists at %s\n", cfg.Path())
		return nil
	}
	fmt.Printf("Wrote %s\n", cfg.Path())
	fmt.Printf("Embedding provider: %s\n", cfg.Embedding.Provider)
	return nil
}

func runIndex(cmd *cobra.Command, _ []string) error {
	a, err := openApp(app.Options{
		Confirm:       terminalConfirm(),
		IndexProgress: barProgress("indexing files", "files"),
		EmbedProgress: barProgress("generating embeddings", "chunks"),
	})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.Index(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d files in %s\n", stats.FilesScanned, stats.Duration.Round(time.Millisecond))
	fmt.Printf("  indexed:   %d (%d chunks, %d embeddings reused)\n", stats.FilesIndexed, stats.ChunksWritten, stats.EmbeddingsReused)
	fmt.Printf("  unchanged: %d\n", stats.FilesUnchanged+stats.FilesTouched)
	fmt.Printf("  skipped:   %d\n", stats.FilesSkipped)
	fmt.Printf("  pruned:    %d\n", stats.FilesPruned)
	if !stats.WalkComplete {
		fmt.Println("  the walk was incomplete, stale files were not pruned")
	}
	printWarnings(stats.Warnings)

	if !embedAfterIndex {
		return nil
	}
	return embed(cmd.Context(), a, 0)
}

func runEmbed(cmd *cobra.Command, _ []string) error {
	if embedLimit < 0 {
		return fmt.Errorf("--limit cannot be negative")
	}

	a, err := openApp(app.Options{
		EmbedProgress: barProgress("generating embeddings", "chunks"),
	})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return embed(cmd.Context(), a, embedLimit)
}

func embed(ctx context.Context, a *app.App, limit int) error {
	stats, err := a.Embed(ctx, limit)
	if err != nil {
		return err
	}

	fmt.Printf("Embedded %d of %d chunks in %s\n", stats.Embedded, stats.Candidates, stats.Duration.Round(time.Millisecond))
	if stats.Failed > 0 {
		fmt.Printf("  failed: %d (retried on the next run)\n", stats.Failed)
	}
	if stats.Stale > 0 {
		fmt.Printf("  stale:  %d (re-index to refresh)\n", stats.Stale)
	}
	if stats.Cleared > 0 {
		fmt.Printf("  cleared %d embeddings from another model\n", stats.Cleared)
	}
	printWarnings(stats.Warnings)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp(app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resp, err := a.Search(cmd.Context(), searcher.SearchRequest{
		Query:       strings.Join(args, " "),
		Limit:       searchLimit,
		MinScore:    minScore,
		PathPattern: pathPattern,
	})
	if err != nil {
		return err
	}

	if resp.NoEmbeddings {
		fmt.Println("The index has no embeddings yet. Run `repoassist embed` first.")
		return nil
	}
	if len(resp.Results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for _, r := range resp.Results {
		stale := ""
		if r.Stale {
			stale = " (changed since indexed)"
		}
		fmt.Printf("%d. %s:%d-%d  score %.3f%s\n", r.Rank, r.FilePath, r.StartLine, r.EndLine, r.Score, stale)
		for line := range strings.SplitSeq(strings.TrimRight(r.Content, "\n"), "\n") {
			fmt.Printf("    %s\n", line)
		}
		fmt.Println()
	}
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := openApp(app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	status, err := a.Storage.GetStatus(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Repository:  %s\n", a.Config.Root)
	fmt.Printf("Schema:      %s\n", status.SchemaVersion)
	fmt.Printf("Files:       %d\n", status.FilesCount)
	fmt.Printf("Chunks:      %d (max %d tokens)\n", status.ChunksCount, a.Config.MaxTokens)
	fmt.Printf("Embeddings:  %d of %d\n", status.EmbeddingsCount, status.ChunksCount)
	if len(status.EmbeddingModels) > 0 {
		fmt.Printf("Models:      %s\n", strings.Join(status.EmbeddingModels, ", "))
	}
	fmt.Printf("Index size:  %.2f MB\n", status.IndexSizeMB)

	if a.Embedder != nil {
		fmt.Printf("Provider:    %s (%s)\n", a.Embedder.Provider(), a.Embedder.Model())
	} else {
		fmt.Printf("Provider:    unavailable: %v\n", a.EmbedderErr())
	}

	printRun("Last index:  ", status.LastIndex)
	printRun("Last embed:  ", status.LastEmbed)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	// No Confirm: stdin carries the protocol, so the prompt policy rejects
	a, err := openApp(app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := mcp.NewServer(a, logger).Serve(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	a, err := openApp(app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ignore, err := walker.NewIgnore(a.Config.Root, a.Config.IgnorePatterns)
	if err != nil {
		return err
	}

	reindex := func(ctx context.Context) error {
		stats, err := a.Index(ctx)
		if err != nil {
			return err
		}
		logger.Info("index updated",
			"indexed", stats.FilesIndexed,
			"pruned", stats.FilesPruned,
			"warnings", len(stats.Warnings))
		if a.Embedder == nil || stats.FilesIndexed == 0 {
			return nil
		}
		embedStats, err := a.Embed(ctx, 0)
		if err != nil {
			return err
		}
		logger.Info("embeddings updated", "embedded", embedStats.Embedded, "failed", embedStats.Failed)
		return nil
	}

	// Catch up with changes made while nothing was watching
	if err := reindex(cmd.Context()); err != nil {
		return err
	}

	w := watcher.New(a.Config.Root, reindex, watcher.Options{Ignore: ignore, Logger: logger})
	return w.Run(cmd.Context())
}

// openApp loads the repository configuration and assembles the pipeline
func openApp(opts app.Options) (*app.App, error) {
	if opts.Logger == nil {
		opts.Logger = newLogger()
	}

	root, err := walker.ResolveRoot(rootPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	return app.Open(cfg, opts)
}

// terminalConfirm asks on the terminal whether an oversized file should be
// indexed. It returns nil when stdin is not a terminal.
func terminalConfirm() chunker.ConfirmFunc {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}

	var mu sync.Mutex
	reader := bufio.NewReader(os.Stdin)
	return func(path string, tokens, limit int) bool {
		// Files are chunked concurrently; ask one question at a time
		mu.Lock()
		defer mu.Unlock()

		fmt.Fprintf(os.Stderr, "\n%s has %d tokens (limit %d). Index it anyway? [y/N] ", path, tokens, limit)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}
}

// barProgress renders run progress on stderr when it is a terminal
func barProgress(description, unit string) func(done, total int) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}

	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription(description),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString(unit),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(done)
		if done >= total {
			_ = bar.Finish()
			bar = nil
		}
	}
}

func printWarnings(warnings []types.Warning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Printf("%d warnings:\n", len(warnings))
	for _, w := range warnings[:min(len(warnings), maxPrintedWarnings)] {
		fmt.Printf("  %s\n", w)
	}
	if len(warnings) > maxPrintedWarnings {
		fmt.Printf("  ... and %d more\n", len(warnings)-maxPrintedWarnings)
	}
}

func printRun(label string, run *storage.Run) {
	if run == nil {
		fmt.Printf("%snever\n", label)
		return
	}
	summary := fmt.Sprintf("%s ago, took %s", time.Since(run.FinishedAt).Round(time.Second), run.Duration().Round(time.Millisecond))
	switch run.Kind {
	case storage.RunIndex:
		summary += fmt.Sprintf(", %d files indexed, %d pruned", run.FilesIndexed, run.FilesPruned)
	case storage.RunEmbed:
		summary += fmt.Sprintf(", %d embedded, %d failed", run.EmbeddingsWritten, run.EmbeddingsFailed)
	}
	if len(run.Warnings) > 0 {
		summary += fmt.Sprintf(", %d warnings", len(run.Warnings))
	}
	if run.Error != "" {
		summary += ", error: " + run.Error
	}
	fmt.Println(label + summary)
}
