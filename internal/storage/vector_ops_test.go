package storage

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoassist/pkg/types"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSerializeVector(t *testing.T) {
	v := []float32{0, 1.5, -2.25, math.MaxFloat32}
	blob := SerializeVector(v)
	assert.Len(t, blob, 16)
	assert.Equal(t, v, DeserializeVector(blob))
}

// seedVectors stores one chunk per vector in path, in line order.
func seedVectors(t *testing.T, s *SQLiteStorage, path string, vectors ...[]float32) []*types.Chunk {
	t.Helper()
	ctx := context.Background()
	chunks := make([]*types.Chunk, len(vectors))
	for i := range vectors {
		chunks[i] = testChunk(path, i+1, i+1, fmt.Sprintf("%s-%d", path, i))
	}
	require.NoError(t, s.ReplaceFile(ctx, testFile(path), chunks))
	for i, v := range vectors {
		require.NoError(t, s.SetEmbedding(ctx, chunks[i].ID, chunks[i].ContentHash, v, "m"))
	}
	return chunks
}

func TestSearchVector(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	chunks := seedVectors(t, s, "a.go",
		[]float32{1, 0, 0},
		[]float32{0.7, 0.7, 0},
		[]float32{0, 1, 0},
		[]float32{-1, 0, 0},
	)

	results, err := s.SearchVector(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, chunks[0].ID, results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)
	assert.Equal(t, chunks[1].ID, results[1].Chunk.ID)
	assert.Equal(t, chunks[3].ID, results[3].Chunk.ID)
	assert.Nil(t, results[0].Chunk.Embedding, "results do not carry stored vectors")
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].SimilarityScore, results[i].SimilarityScore)
	}

	limited, err := s.SearchVector(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	filtered, err := s.SearchVector(ctx, []float32{1, 0, 0}, 10, &SearchFilters{MinScore: 0.5})
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}

func TestSearchVector_Filters(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	seedVectors(t, s, "internal/a.go", []float32{1, 0})
	seedVectors(t, s, "cmd/b.go", []float32{1, 0})

	results, err := s.SearchVector(ctx, []float32{1, 0}, 10, &SearchFilters{FilePattern: "internal/*"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "internal/a.go", results[0].Chunk.FilePath)

	results, err = s.SearchVector(ctx, []float32{1, 0}, 10, &SearchFilters{Model: "other"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchVector_EdgeCases(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	results, err := s.SearchVector(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "empty index")

	seedVectors(t, s, "a.go", []float32{1, 0})

	results, err = s.SearchVector(ctx, []float32{1, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.SearchVector(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "dimension mismatch is skipped")

	_, err = s.SearchVector(ctx, nil, 10, nil)
	assert.Error(t, err)
}

func TestSearchVector_TiesAreDeterministic(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	seedVectors(t, s, "b.go", []float32{1, 0}, []float32{1, 0})
	seedVectors(t, s, "a.go", []float32{1, 0})

	results, err := s.SearchVector(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a.go", results[0].Chunk.FilePath)
	assert.Equal(t, "b.go", results[1].Chunk.FilePath)
	assert.Equal(t, 1, results[1].Chunk.StartLine)
	assert.Equal(t, 2, results[2].Chunk.StartLine)
}

func BenchmarkSearchVector(b *testing.B) {
	s, err := NewSQLiteStorage(":memory:")
	require.NoError(b, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	const dim = 64
	chunks := make([]*types.Chunk, 1000)
	for i := range chunks {
		chunks[i] = testChunk("bench.go", i+1, i+1, fmt.Sprintf("chunk-%d", i))
	}
	require.NoError(b, s.ReplaceFile(ctx, testFile("bench.go"), chunks))
	for i, c := range chunks {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32((i*31+j*17)%97) / 97
		}
		require.NoError(b, s.SetEmbedding(ctx, c.ID, c.ContentHash, v, "m"))
	}

	query := make([]float32, dim)
	for j := range query {
		query[j] = float32(j) / dim
	}

	for b.Loop() {
		_, err := s.SearchVector(ctx, query, 10, nil)
		if err != nil {
			b.Fatal(err)
		}
	}
}
