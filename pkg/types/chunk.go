package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ParentID is an opaque, language-agnostic identity for the syntax node
// whose children were grouped into atomic chunks.
type ParentID string

// FileRoot is the shared parent of every block produced by line-based chunking.
const FileRoot ParentID = "file_root"

// NodeParentID builds a ParentID from a node's depth and byte span.
// Depth keeps a node distinct from a single child covering the same bytes.
func NodeParentID(depth, startByte, endByte int) ParentID {
	return ParentID(fmt.Sprintf("%d:%d-%d", depth, startByte, endByte))
}

// AtomicChunk is a single chunk produced by the chunker, before agglomeration
type AtomicChunk struct {
	StartLine  int // 1-based, inclusive
	EndLine    int // 1-based, inclusive
	TokenCount int
	Parent     ParentID
	Oversized  bool // single leaf or line over the budget
}

// Chunk is one agglomerated row of the persisted index
type Chunk struct {
	// Identification
	ID           int64
	FilePath     string // repo-relative, slash separated
	RelativePath string // repo-relative, native separators

	// Location
	StartLine int
	EndLine   int

	// Content
	TokenCount  int
	ContentHash [32]byte // SHA-256 of the trimmed span text
	ModTime     time.Time

	// Embedding is nil until computed
	Embedding      []float32
	EmbeddingModel string

	// Agglomeration bookkeeping, not persisted
	Parent  ParentID
	Members int
}

// HashText computes the content hash of a chunk's text.
// Surrounding whitespace is trimmed so indentation-only drift at the span
// edges does not invalidate embeddings.
func HashText(text string) [32]byte {
	return sha256.Sum256([]byte(strings.TrimSpace(text)))
}

// HashHex returns the content hash as a hex string
func (c *Chunk) HashHex() string {
	return hex.EncodeToString(c.ContentHash[:])
}

// HasEmbedding reports whether an embedding has been computed for the chunk
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// Span returns the chunk's line span formatted as "start-end"
func (c *Chunk) Span() string {
	return fmt.Sprintf("%d-%d", c.StartLine, c.EndLine)
}

// Validate checks if the chunk row is well formed
func (c *Chunk) Validate() error {
	if c.FilePath == "" {
		return ErrMissingFilePath
	}

	if c.StartLine <= 0 || c.StartLine > c.EndLine {
		return ErrInvalidLineRange
	}

	if c.TokenCount < 0 {
		return ErrNegativeTokens
	}

	return nil
}

// File is the per-file record used to decide whether a file must be re-chunked
type File struct {
	Path         string // repo-relative, slash separated
	RelativePath string
	ModTime      time.Time
	Size         int64
	Hash         [32]byte // SHA-256 of the whole file
	MaxTokens    int      // budget the file was chunked with
	Tokenizer    string   // name of the tokenizer that counted the budget
	IndexedAt    time.Time
}

// ModTimeEqual reports whether two modification times are equal within
// tolerance, absorbing filesystem timestamp jitter.
func ModTimeEqual(a, b time.Time, tolerance time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}
