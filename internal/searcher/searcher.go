package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/repoassist/internal/chunker"
	"github.com/dshills/repoassist/internal/embedder"
	"github.com/dshills/repoassist/internal/storage"
	"github.com/dshills/repoassist/pkg/types"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100

	// DefaultCacheSize bounds the number of cached query embeddings
	DefaultCacheSize = 1000
)

// ErrEmptyQuery is returned for a blank query
var ErrEmptyQuery = errors.New("query cannot be empty")

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query       string
	Limit       int     // default DefaultLimit, capped at MaxLimit
	MinScore    float64 // Minimum cosine similarity
	PathPattern string  // GLOB over repo-relative paths, e.g. "internal/*"
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int

	// NoEmbeddings is set when the index holds no embeddings at all. The
	// query is not sent to the embedding service in that case.
	NoEmbeddings bool
	Model        string
	Duration     time.Duration
}

// Options configures a Searcher
type Options struct {
	DefaultLimit int
	CacheSize    int
	Logger       *slog.Logger
}

// Searcher ranks indexed chunks by cosine similarity to a query
type Searcher struct {
	storage      storage.Storage
	embedder     embedder.Embedder
	root         string
	defaultLimit int
	logger       *slog.Logger
}

// NewSearcher creates a new Searcher. Query embeddings are cached in an LRU
// keyed by the query text. root is the repository root used to read result
// spans back from disk.
func NewSearcher(store storage.Storage, emb embedder.Embedder, root string, opts Options) *Searcher {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Searcher{
		storage:      store,
		embedder:     embedder.NewCached(emb, embedder.NewCache(opts.CacheSize)),
		root:         root,
		defaultLimit: min(opts.DefaultLimit, MaxLimit),
		logger:       opts.Logger.With("component", "searcher"),
	}
}

// Search embeds the query and returns the most similar chunks, best first.
// An index without embeddings yields an empty response with NoEmbeddings
// set rather than an error.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	response := &SearchResponse{
		Results: []types.SearchResult{},
		Model:   s.embedder.Model(),
	}

	// Only embeddings the query vector can be compared with count
	embedded, err := s.storage.CountEmbedded(ctx, s.embedder.Model(), s.embedder.Dimension())
	if err != nil {
		return nil, err
	}
	if embedded == 0 {
		response.NoEmbeddings = true
		response.Duration = time.Since(startTime)
		return response, nil
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	vectorResults, err := s.storage.SearchVector(ctx, embedding.Vector, req.Limit, &storage.SearchFilters{
		FilePattern: req.PathPattern,
		MinScore:    req.MinScore,
		Model:       s.embedder.Model(),
	})
	if err != nil {
		return nil, err
	}

	response.Results = s.fetchResults(vectorResults)
	response.TotalResults = len(response.Results)
	response.Duration = time.Since(startTime)

	s.logger.Debug("search complete",
		"query_len", len(req.Query),
		"results", response.TotalResults,
		"duration", response.Duration)

	return response, nil
}

// fetchResults reads each result's span back from disk. A span that no
// longer matches its content hash is returned with Stale set.
func (s *Searcher) fetchResults(ranked []storage.VectorResult) []types.SearchResult {
	results := make([]types.SearchResult, 0, len(ranked))
	files := make(map[string][]string)

	for i, vr := range ranked {
		c := vr.Chunk

		lines, ok := files[c.FilePath]
		if !ok {
			content, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(c.FilePath)))
			if err != nil {
				s.logger.Debug("result file unreadable", "path", c.FilePath, "error", err)
			}
			lines = chunker.SplitLines(content)
			files[c.FilePath] = lines
		}

		content := chunker.SpanText(lines, c.StartLine, c.EndLine)
		results = append(results, types.SearchResult{
			ChunkID:    c.ID,
			Rank:       i + 1,
			Score:      vr.SimilarityScore,
			FilePath:   c.FilePath,
			StartLine:  c.StartLine,
			EndLine:    c.EndLine,
			TokenCount: c.TokenCount,
			Content:    content,
			Stale:      types.HashText(content) != c.ContentHash,
		})
	}

	return results
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}

	if req.Limit <= 0 {
		req.Limit = s.defaultLimit
	}

	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	if req.MinScore < -1 || req.MinScore > 1 {
		return fmt.Errorf("min score must be between -1 and 1, got %g", req.MinScore)
	}

	return nil
}
