package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/repoassist/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	// global flags
	rootPath string
	verbose  bool

	// index command flags
	embedAfterIndex bool

	// embed command flags
	embedLimit int

	// search command flags
	searchLimit int
	minScore    float64
	pathPattern string
)

var rootCmd = &cobra.Command{
	Use:   "repoassist",
	Short: "Incremental code chunking and semantic search for a repository",
	Long: `repoassist splits the files of a repository into syntax-aware chunks,
keeps an embedding index of them up to date and answers natural language
queries against it. Data lives in .ai_assistant/ at the repository root.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration for the repository",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Bring the chunk index in line with the working tree",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Generate embeddings for chunks that have none",
	Args:  cobra.NoArgs,
	RunE:  runEmbed,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the index with a natural language query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics and the last runs",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the index over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-index and embed whenever files change",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("repoassist %s (built %s, sqlite driver %s, %s)\n",
		version, buildTime, storage.DriverName, storage.BuildMode))

	rootCmd.PersistentFlags().StringVarP(&rootPath, "root", "C", ".", "directory inside the repository")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	indexCmd.Flags().BoolVar(&embedAfterIndex, "embed", false, "generate missing embeddings after indexing")

	embedCmd.Flags().IntVar(&embedLimit, "limit", 0, "maximum number of chunks to embed (0 embeds all)")

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "number of results (default from config)")
	searchCmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum cosine similarity")
	searchCmd.Flags().StringVar(&pathPattern, "path", "", "only search files matching this glob")

	rootCmd.AddCommand(initCmd, indexCmd, embedCmd, searchCmd, statusCmd, serveCmd, watchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger writes text logs to stderr; stdout is reserved for command
// output and, under serve, the MCP protocol.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
