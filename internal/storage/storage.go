package storage

import (
	"context"
	"time"

	"github.com/dshills/repoassist/pkg/types"
)

// Storage defines the interface for persisting and querying the chunk index.
// The index maintainer is the only writer of file and chunk rows; the
// embedding updater only fills embeddings through SetEmbedding.
type Storage interface {
	// File operations
	ListFiles(ctx context.Context) ([]*types.File, error)
	TouchFile(ctx context.Context, path string, modTime time.Time) error
	DeleteFile(ctx context.Context, path string) error

	// ReplaceFile atomically replaces a file record and all of its chunk rows.
	// Rows whose content hash matches a current row keep its embedding, and
	// the chunks passed in are updated to carry it.
	ReplaceFile(ctx context.Context, file *types.File, chunks []*types.Chunk) error

	// Chunk operations
	ListChunksByFile(ctx context.Context, path string) ([]*types.Chunk, error)
	ListChunksMissingEmbedding(ctx context.Context, limit int) ([]*types.Chunk, error)
	CountChunks(ctx context.Context) (*ChunkCounts, error)
	CountEmbedded(ctx context.Context, model string, dimension int) (int, error)

	// Embedding operations
	SetEmbedding(ctx context.Context, chunkID int64, contentHash [32]byte, vector []float32, model string) error
	ClearEmbeddings(ctx context.Context, keepModel string, keepDimension int) (int64, error)

	// Search operations
	SearchVector(ctx context.Context, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)

	// Run operations
	RecordRun(ctx context.Context, run *Run) error
	LatestRun(ctx context.Context, kind RunKind) (*Run, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
}

// SearchFilters contains filters for narrowing search results
type SearchFilters struct {
	FilePattern string  // SQLite GLOB pattern over file_path
	MinScore    float64 // Minimum cosine similarity
	Model       string  // Only embeddings produced by this model
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	Chunk           *types.Chunk
	SimilarityScore float64
}

// ChunkCounts summarises embedding coverage
type ChunkCounts struct {
	Total    int
	Embedded int
}

// Missing returns the number of rows without an embedding
func (c *ChunkCounts) Missing() int {
	return c.Total - c.Embedded
}

// RunKind identifies the pipeline stage a run belongs to
type RunKind string

const (
	RunIndex RunKind = "index"
	RunEmbed RunKind = "embed"
)

// Run records the outcome of one pipeline invocation
type Run struct {
	ID         string
	Kind       RunKind
	StartedAt  time.Time
	FinishedAt time.Time

	FilesIndexed      int
	FilesSkipped      int
	FilesPruned       int
	ChunksWritten     int
	EmbeddingsReused  int
	EmbeddingsWritten int
	EmbeddingsFailed  int

	Warnings []types.Warning
	Error    string
}

// Duration returns how long the run took
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Status contains statistics about the index
type Status struct {
	SchemaVersion   string
	FilesCount      int
	ChunksCount     int
	EmbeddingsCount int
	EmbeddingModels []string
	IndexSizeMB     float64
	LastIndex       *Run
	LastEmbed       *Run
	Health          HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	EmbeddingsComplete  bool
}
