package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoassist/internal/chunker"
	"github.com/dshills/repoassist/internal/embedder"
	"github.com/dshills/repoassist/internal/storage"
	"github.com/dshills/repoassist/pkg/types"
)

// mockEmbedder returns scripted results and records the texts it was sent
type mockEmbedder struct {
	mu    sync.Mutex
	texts []string
	model string
	fn    func(text string) (*embedder.Embedding, error)
}

func (m *mockEmbedder) GenerateEmbedding(_ context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.mu.Lock()
	m.texts = append(m.texts, req.Text)
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(req.Text)
	}
	return &embedder.Embedding{Vector: []float32{1, 0, 0}, Dimension: 3, Provider: "mock", Model: m.Model()}, nil
}

func (m *mockEmbedder) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func (m *mockEmbedder) Dimension() int   { return 3 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Close() error     { return nil }

func (m *mockEmbedder) Model() string {
	if m.model == "" {
		return "mock-model"
	}
	return m.model
}

type fixture struct {
	root  string
	store *storage.SQLiteStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &fixture{root: t.TempDir(), store: store}
}

// addFile writes content to disk and stores one row per span of two lines
func (f *fixture) addFile(t *testing.T, path, content string) []*types.Chunk {
	t.Helper()
	abs := filepath.Join(f.root, filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))

	lines := chunker.SplitLines([]byte(content))
	var rows []*types.Chunk
	for start := 1; start <= len(lines); start += 2 {
		end := min(start+1, len(lines))
		rows = append(rows, &types.Chunk{
			FilePath:     path,
			RelativePath: path,
			StartLine:    start,
			EndLine:      end,
			TokenCount:   end - start + 1,
			ContentHash:  types.HashText(chunker.SpanText(lines, start, end)),
		})
	}

	file := &types.File{
		Path:         path,
		RelativePath: path,
		ModTime:      time.Unix(1700000000, 0),
		Size:         int64(len(content)),
		Hash:         types.HashText(content),
		MaxTokens:    10,
	}
	require.NoError(t, f.store.ReplaceFile(context.Background(), file, rows))
	return rows
}

func (f *fixture) chunks(t *testing.T, path string) []*types.Chunk {
	t.Helper()
	rows, err := f.store.ListChunksByFile(context.Background(), path)
	require.NoError(t, err)
	return rows
}

func numberedLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

func TestFormatText(t *testing.T) {
	c := &types.Chunk{FilePath: "pkg/a.go", StartLine: 3, EndLine: 7}
	assert.Equal(t, "File: pkg/a.go | Lines: 3-7\nfunc a() {}", FormatText(c, "func a() {}"))
}

func TestUpdate_EmbedsMissingRows(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.txt", numberedLines(4))
	f.addFile(t, "b.txt", numberedLines(2))

	emb := &mockEmbedder{}
	u := New(f.store, emb, f.root, Options{Workers: 2})

	stats, err := u.Update(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Candidates)
	assert.Equal(t, 3, stats.Embedded)
	assert.Zero(t, stats.Failed)
	assert.Empty(t, stats.Warnings)

	for _, c := range append(f.chunks(t, "a.txt"), f.chunks(t, "b.txt")...) {
		assert.True(t, c.HasEmbedding())
		assert.Equal(t, "mock-model", c.EmbeddingModel)
	}

	assert.ElementsMatch(t, []string{
		"File: a.txt | Lines: 1-2\nline 1\nline 2",
		"File: a.txt | Lines: 3-4\nline 3\nline 4",
		"File: b.txt | Lines: 1-2\nline 1\nline 2",
	}, emb.Texts())

	// Nothing left to do
	stats, err = u.Update(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, stats.Candidates)
	assert.Len(t, emb.Texts(), 3)
}

func TestUpdate_TerminalFailureLeavesRowForNextRun(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.txt", numberedLines(10))

	failing := true
	emb := &mockEmbedder{fn: func(text string) (*embedder.Embedding, error) {
		if failing && strings.Contains(text, "Lines: 5-6") {
			return nil, fmt.Errorf("%w: %w", embedder.ErrProviderFailed, &embedder.APIError{Provider: "mock", StatusCode: 400, Message: "bad input"})
		}
		return &embedder.Embedding{Vector: []float32{0, 1, 0}, Dimension: 3}, nil
	}}
	u := New(f.store, emb, f.root, Options{Workers: 3})

	stats, err := u.Update(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Embedded)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.Warnings, 1)
	assert.Equal(t, types.WarnEmbeddingFailure, stats.Warnings[0].Kind)
	assert.Equal(t, 5, stats.Warnings[0].StartLine)

	rows := f.chunks(t, "a.txt")
	require.Len(t, rows, 5)
	for i, c := range rows {
		assert.Equal(t, i != 2, c.HasEmbedding(), "row %d", i+1)
	}

	run, err := f.store.LatestRun(context.Background(), storage.RunEmbed)
	require.NoError(t, err)
	assert.Equal(t, stats.RunID, run.ID)
	assert.Equal(t, 4, run.EmbeddingsWritten)
	assert.Equal(t, 1, run.EmbeddingsFailed)

	// The next run retries only the failed row
	failing = false
	stats, err = u.Update(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Candidates)
	assert.Equal(t, 1, stats.Embedded)
	assert.True(t, f.chunks(t, "a.txt")[2].HasEmbedding())
}

func TestUpdate_SkipsStaleRows(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.txt", numberedLines(4))

	// Edit the file after indexing without re-indexing
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "a.txt"), []byte("line 1\nline 2\nchanged\nline 4\n"), 0o644))

	emb := &mockEmbedder{}
	u := New(f.store, emb, f.root, Options{})

	stats, err := u.Update(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Embedded)
	assert.Equal(t, 1, stats.Stale)
	assert.Equal(t, 1, types.CountKind(stats.Warnings, types.WarnStaleChunk))
	assert.Len(t, emb.Texts(), 1)

	rows := f.chunks(t, "a.txt")
	assert.True(t, rows[0].HasEmbedding())
	assert.False(t, rows[1].HasEmbedding())
}

func TestUpdate_MissingFileIsStale(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.txt", numberedLines(2))
	require.NoError(t, os.Remove(filepath.Join(f.root, "a.txt")))

	emb := &mockEmbedder{}
	stats, err := New(f.store, emb, f.root, Options{}).Update(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stale)
	assert.Empty(t, emb.Texts())
}

func TestUpdate_RowReplacedInFlight(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.txt", numberedLines(2))

	var once sync.Once
	emb := &mockEmbedder{fn: func(string) (*embedder.Embedding, error) {
		// Re-index the file while its embedding is being computed
		once.Do(func() { f.addFile(t, "a.txt", "edited 1\nedited 2\n") })
		return &embedder.Embedding{Vector: []float32{1, 1, 0}}, nil
	}}

	stats, err := New(f.store, emb, f.root, Options{Workers: 1}).Update(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, stats.Embedded)
	assert.Equal(t, 1, types.CountKind(stats.Warnings, types.WarnStaleChunk))
	assert.False(t, f.chunks(t, "a.txt")[0].HasEmbedding())
}

func TestUpdate_Limit(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.txt", numberedLines(10))

	stats, err := New(f.store, &mockEmbedder{}, f.root, Options{}).Update(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Candidates)
	assert.Equal(t, 2, stats.Embedded)

	counts, err := f.store.CountChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Missing())
}

func TestUpdate_ClearsOtherModels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rows := f.addFile(t, "a.txt", numberedLines(4))
	require.NoError(t, f.store.SetEmbedding(ctx, rows[0].ID, rows[0].ContentHash, []float32{1, 2}, "old-model"))

	emb := &mockEmbedder{}
	stats, err := New(f.store, emb, f.root, Options{}).Update(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Cleared)
	assert.Equal(t, 2, stats.Embedded)

	for _, c := range f.chunks(t, "a.txt") {
		assert.Equal(t, "mock-model", c.EmbeddingModel)
		assert.Len(t, c.Embedding, 3)
	}
}

func TestUpdate_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.txt", numberedLines(20))

	ctx, cancel := context.WithCancel(context.Background())
	emb := &mockEmbedder{fn: func(string) (*embedder.Embedding, error) {
		cancel()
		return nil, context.Canceled
	}}

	stats, err := New(f.store, emb, f.root, Options{Workers: 1}).Update(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, types.CountKind(stats.Warnings, types.WarnEmbeddingFailure))
}

func TestUpdate_StorageFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.txt", numberedLines(2))

	emb := &mockEmbedder{fn: func(string) (*embedder.Embedding, error) {
		// An empty vector is rejected by storage, which is not a per-row failure
		return &embedder.Embedding{}, nil
	}}

	_, err := New(f.store, emb, f.root, Options{}).Update(context.Background(), 0)
	require.Error(t, err)
	assert.False(t, errors.Is(err, storage.ErrStaleChunk))
}

func TestUpdate_ConcurrentRunRejected(t *testing.T) {
	f := newFixture(t)
	u := New(f.store, &mockEmbedder{}, f.root, Options{})
	require.True(t, u.mu.TryLock())

	_, err := u.Update(context.Background(), 0)
	assert.ErrorIs(t, err, ErrUpdateInProgress)
	u.mu.Unlock()
}

func TestUpdate_ReportsProgress(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.txt", numberedLines(6))

	var last, total int
	u := New(f.store, &mockEmbedder{}, f.root, Options{Progress: func(d, n int) {
		last, total = d, n
	}})

	_, err := u.Update(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, last)
	assert.Equal(t, 3, total)
}

func TestUpdate_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.txt", numberedLines(6))

	u := New(f.store, &mockEmbedder{}, f.root, Options{Workers: 3, RequestsPerSecond: 1000})
	require.NotNil(t, u.limiter)

	stats, err := u.Update(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Embedded)
}
