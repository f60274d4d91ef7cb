package types

// SearchResult represents a single search result with relevance information
type SearchResult struct {
	// Identification
	ChunkID int64
	Rank    int // Position in result set (1-based)

	// Scoring
	Score float64 // Cosine similarity

	// Location
	FilePath   string
	StartLine  int
	EndLine    int
	TokenCount int

	// Content is the span read from disk at query time. Stale is set when
	// the file changed since the chunk was indexed.
	Content string
	Stale   bool
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ChunkID == 0 {
		return ErrInvalidChunkID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.Score < -1 || sr.Score > 1 {
		return ErrInvalidScore
	}

	if sr.FilePath == "" {
		return ErrMissingFilePath
	}

	if sr.StartLine <= 0 || sr.StartLine > sr.EndLine {
		return ErrInvalidLineRange
	}

	return nil
}
