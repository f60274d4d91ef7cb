package storage

import (
	"cmp"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/dshills/repoassist/pkg/types"
)

// searchVector performs an exhaustive cosine similarity scan over every
// embedded chunk that passes the filters.
func searchVector(ctx context.Context, q querier, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	if limit <= 0 {
		return []VectorResult{}, nil
	}
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE embedding IS NOT NULL AND embedding_dim = ?`
	args := []interface{}{len(queryVector)}
	query, args = applyVectorFilters(query, args, filters)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var minScore float64
	if filters != nil {
		minScore = filters.MinScore
	}

	candidates := make([]candidate, 0, 256)
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		if len(chunk.Embedding) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		similarity := cosineSimilarity(queryVector, chunk.Embedding)
		if minScore > 0 && similarity < minScore {
			continue
		}

		chunk.Embedding = nil
		candidates = append(candidates, candidate{chunk: chunk, score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// applyVectorFilters adds filter conditions to a vector search query
func applyVectorFilters(query string, args []interface{}, filters *SearchFilters) (string, []interface{}) {
	if filters == nil {
		return query, args
	}
	if filters.FilePattern != "" {
		query += " AND (file_path GLOB ? OR relative_path GLOB ?)"
		args = append(args, filters.FilePattern, filters.FilePattern)
	}
	if filters.Model != "" {
		query += " AND embedding_model = ?"
		args = append(args, filters.Model)
	}
	return query, args
}

// candidate represents a chunk with its similarity score
type candidate struct {
	chunk *types.Chunk
	score float64
}

// sortCandidates orders by descending score. Ties fall back to file path and
// start line so that results are reproducible.
func sortCandidates(candidates []candidate) {
	slices.SortFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.chunk.FilePath, b.chunk.FilePath); c != 0 {
			return c
		}
		return cmp.Compare(a.chunk.StartLine, b.chunk.StartLine)
	})
}

func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	n := min(limit, len(candidates))
	results := make([]VectorResult, n)
	for i := range n {
		results[i] = VectorResult{Chunk: candidates[i].chunk, SimilarityScore: candidates[i].score}
	}
	return results
}

// serializeVector converts a float32 slice to a little-endian byte blob
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths and zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
