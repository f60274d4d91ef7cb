package chunker

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoassist/internal/config"
	"github.com/dshills/repoassist/internal/detect"
	"github.com/dshills/repoassist/internal/parser"
	"github.com/dshills/repoassist/internal/tokenizer"
	"github.com/dshills/repoassist/pkg/types"
)

// words returns n whitespace-separated words
func words(n int) string {
	return strings.TrimSpace(strings.Repeat("a ", n))
}

// threeFunctions builds a Go file with three top-level functions of exactly
// 50 words each under the Words tokenizer.
func threeFunctions() string {
	var b strings.Builder
	b.WriteString("package p\n")
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(&b, "\nfunc f%d() {\n\tx := \"%s\"\n}\n", i, words(44))
	}
	return b.String()
}

const mixedSource = `// Package sample is used to exercise chunk boundaries.
package sample

import (
	"errors"
	"fmt"
)

// ErrEmpty is returned for empty input
var ErrEmpty = errors.New("empty input")

// Config holds settings
type Config struct {
	Name    string // display name
	Retries int
	Verbose bool
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrEmpty
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", c.Retries)
	}
	return nil
}

func helper(values []int) (sum int) {
	for _, v := range values {
		sum += v
	}
	return sum
}
`

// newTestChunker includes oversized files: the small budgets used here would
// otherwise put every fixture over the whole-file limit.
func newTestChunker(maxTokens int) *Chunker {
	return New(Options{MaxTokens: maxTokens, Policy: config.PolicyInclude}, tokenizer.Words{}, detect.New(), parser.NewRegistry())
}

func chunk(t *testing.T, c *Chunker, path, content string) ([]*types.Chunk, *File) {
	t.Helper()
	rows, f, err := c.Chunk(context.Background(), path, []byte(content))
	require.NoError(t, err)
	return rows, f
}

// assertRowInvariants checks ordering, non-overlap, budget and hashing
func assertRowInvariants(t *testing.T, rows []*types.Chunk, lines []string, maxTokens int) {
	t.Helper()
	for i, row := range rows {
		require.NoError(t, row.Validate())
		if i > 0 {
			assert.Greater(t, row.StartLine, rows[i-1].EndLine, "row %d overlaps previous", i)
		}
		if row.TokenCount > maxTokens {
			assert.Equal(t, 1, row.Members, "row %d exceeds budget with %d members", i, row.Members)
		}
		assert.Equal(t, types.HashText(SpanText(lines, row.StartLine, row.EndLine)), row.ContentHash)
	}
}

// assertCoversSource checks that every non-blank line belongs to a row
func assertCoversSource(t *testing.T, rows []*types.Chunk, lines []string) {
	t.Helper()
	covered := make(map[int]bool)
	for _, row := range rows {
		for ln := row.StartLine; ln <= row.EndLine; ln++ {
			covered[ln] = true
		}
	}
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			assert.True(t, covered[i+1], "line %d %q is not indexed", i+1, line)
		}
	}
}

func TestChunk_ScenarioA_MergesUnderBudget(t *testing.T) {
	src := threeFunctions()
	rows, f := chunk(t, newTestChunker(200), "p.go", src)

	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].StartLine)
	assert.Equal(t, len(f.Lines), rows[0].EndLine)
	assert.Equal(t, 152, rows[0].TokenCount)
	assert.Empty(t, f.Warnings)
}

func TestChunk_ScenarioB_SplitsOverBudget(t *testing.T) {
	src := threeFunctions()
	rows, f := chunk(t, newTestChunker(60), "p.go", src)

	require.GreaterOrEqual(t, len(rows), 2)
	for _, row := range rows {
		assert.LessOrEqual(t, row.TokenCount, 60)
	}
	assertRowInvariants(t, rows, f.Lines, 60)

	// package clause + f1, then f2, then f3
	require.Len(t, rows, 3)
	assert.Equal(t, [2]int{1, 5}, [2]int{rows[0].StartLine, rows[0].EndLine})
	assert.Equal(t, 51, rows[0].TokenCount)
	assert.Equal(t, [2]int{7, 9}, [2]int{rows[1].StartLine, rows[1].EndLine})
	assert.Equal(t, [2]int{11, 13}, [2]int{rows[2].StartLine, rows[2].EndLine})
}

func TestChunk_PartialMerge(t *testing.T) {
	rows, f := chunk(t, newTestChunker(120), "p.go", threeFunctions())

	require.Len(t, rows, 2)
	assert.Equal(t, 101, rows[0].TokenCount)
	assert.Equal(t, 3, rows[0].Members)
	assert.Equal(t, 50, rows[1].TokenCount)
	assertRowInvariants(t, rows, f.Lines, 120)
}

func TestChunk_ScenarioC_OversizedLeaf(t *testing.T) {
	src := "package p\n\nvar s = \"" + words(500) + "\"\n"
	rows, f := chunk(t, newTestChunker(1), "s.go", src)

	leafWarnings := 0
	for _, w := range f.Warnings {
		if w.Kind == types.WarnOversizedLeaf {
			leafWarnings++
			assert.Equal(t, 3, w.StartLine)
			assert.Equal(t, "s.go", w.FilePath)
		}
	}
	assert.Equal(t, 1, leafWarnings)

	var literalRow *types.Chunk
	for _, row := range rows {
		if row.StartLine == 3 {
			literalRow = row
		}
	}
	require.NotNil(t, literalRow, "literal line must be indexed, not dropped")
	assert.Equal(t, 3, literalRow.EndLine)
	assert.Equal(t, 501, literalRow.TokenCount)
	assert.Equal(t, 1, literalRow.Members)
	assertRowInvariants(t, rows, f.Lines, 1)

	// 505 tokens is over the 50 token whole-file limit, so inclusion is recorded too
	assert.Equal(t, 1, types.CountKind(f.Warnings, types.WarnOversizedFile))
}

func TestChunk_ScenarioC_RejectedByDefaultPolicy(t *testing.T) {
	src := "package p\n\nvar s = \"" + words(500) + "\"\n"
	c := New(Options{MaxTokens: 1}, tokenizer.Words{}, detect.New(), parser.NewRegistry())

	_, _, err := c.Chunk(context.Background(), "s.go", []byte(src))
	require.ErrorIs(t, err, types.ErrOversizedFile)
	assert.Contains(t, err.Error(), "505 tokens (limit 50)")
}

func TestChunk_InvariantsAcrossBudgets(t *testing.T) {
	for _, maxTokens := range []int{1, 2, 3, 5, 8, 13, 25, 50, 100, 1000} {
		t.Run(fmt.Sprintf("max=%d", maxTokens), func(t *testing.T) {
			c := newTestChunker(maxTokens)
			rows, f := chunk(t, c, "sample.go", mixedSource)

			require.NotEmpty(t, rows)
			assertRowInvariants(t, rows, f.Lines, maxTokens)
			assertCoversSource(t, rows, f.Lines)

			for i := 1; i < len(f.Atomic); i++ {
				assert.Greater(t, f.Atomic[i].StartLine, f.Atomic[i-1].EndLine)
			}
			for _, a := range f.Atomic {
				if a.TokenCount > maxTokens {
					assert.True(t, a.Oversized)
				}
			}
		})
	}
}

func TestChunk_SplitFunctionKeepsClosingBrace(t *testing.T) {
	src := "package p\n\nfunc f() {\n\ta := \"" + words(30) + "\"\n\tb := \"" + words(30) + "\"\n}\n"
	rows, f := chunk(t, newTestChunker(40), "f.go", src)

	assertRowInvariants(t, rows, f.Lines, 40)
	assertCoversSource(t, rows, f.Lines)

	last := rows[len(rows)-1]
	assert.Equal(t, 6, last.EndLine)
	assert.Equal(t, [2]int{5, 6}, [2]int{last.StartLine, last.EndLine}, "closing brace joins the last statement")
	assert.Equal(t, 33, last.TokenCount)
}

func TestChunk_Deterministic(t *testing.T) {
	c := newTestChunker(20)
	first, _ := chunk(t, c, "sample.go", mixedSource)
	second, _ := chunk(t, c, "sample.go", mixedSource)
	assert.Equal(t, first, second)
}

func TestChunk_LineFallback(t *testing.T) {
	content := "one two three\nfour five\n\nsix seven eight nine\n"
	rows, f := chunk(t, newTestChunker(5), "notes.txt", content)

	assert.True(t, f.LineBased)
	assert.Equal(t, "text", f.Tag)
	assert.Equal(t, []types.AtomicChunk{
		{StartLine: 1, EndLine: 3, TokenCount: 5, Parent: types.FileRoot},
		{StartLine: 4, EndLine: 4, TokenCount: 4, Parent: types.FileRoot},
	}, f.Atomic)

	require.Len(t, rows, 2)
	assert.Equal(t, types.FileRoot, rows[0].Parent)
	assertRowInvariants(t, rows, f.Lines, 5)
}

func TestChunk_LineFallbackMergesSmallBlocks(t *testing.T) {
	rows, _ := chunk(t, newTestChunker(50), "notes.txt", "a b\nc d\ne f\n")

	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].StartLine)
	assert.Equal(t, 3, rows[0].EndLine)
	assert.Equal(t, 6, rows[0].TokenCount)
}

func TestChunk_LineFallbackOversizedLine(t *testing.T) {
	rows, f := chunk(t, newTestChunker(5), "notes.txt", "x\na b c d e f g h\ny\n")

	require.Len(t, rows, 3)
	assert.Equal(t, 8, rows[1].TokenCount)
	assert.Equal(t, 1, types.CountKind(f.Warnings, types.WarnOversizedLeaf))
	assert.True(t, f.Atomic[1].Oversized)
	assertRowInvariants(t, rows, f.Lines, 5)
}

func TestChunkFile_Empty(t *testing.T) {
	for _, content := range []string{"", "  \n\n"} {
		f, err := newTestChunker(10).ChunkFile(context.Background(), "empty.go", []byte(content))
		require.NoError(t, err)
		assert.Empty(t, f.Atomic)
		assert.Empty(t, f.Warnings)
	}
}

func TestChunkFile_Unsupported(t *testing.T) {
	_, err := newTestChunker(10).ChunkFile(context.Background(), "blob.bin", []byte{0x00, 0x01, 0x02, 0xff, 0x00})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnsupportedFileType)

	w, ok := WarningFor("blob.bin", err)
	require.True(t, ok)
	assert.Equal(t, types.WarnUnsupportedFileType, w.Kind)
	assert.Equal(t, "blob.bin", w.FilePath)
}

func TestChunkFile_ParseFailure(t *testing.T) {
	_, err := newTestChunker(10).ChunkFile(context.Background(), "bad.go", []byte("package p\n\nfunc broken( {\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrParseFailure)

	w, ok := WarningFor("bad.go", err)
	require.True(t, ok)
	assert.Equal(t, types.WarnParseFailure, w.Kind)
}

func TestWarningFor_OtherErrors(t *testing.T) {
	_, ok := WarningFor("a.go", context.Canceled)
	assert.False(t, ok)
}

func TestChunkFile_OversizedFilePolicy(t *testing.T) {
	content := []byte(words(30) + "\n")

	newChunker := func(policy config.OversizedPolicy, confirm ConfirmFunc) *Chunker {
		return New(Options{
			MaxTokens:          5,
			OversizedFileLimit: 10,
			Policy:             policy,
			Confirm:            confirm,
		}, tokenizer.Words{}, detect.New(), parser.NewRegistry())
	}

	t.Run("reject", func(t *testing.T) {
		_, err := newChunker(config.PolicyReject, nil).ChunkFile(context.Background(), "big.txt", content)
		assert.ErrorIs(t, err, types.ErrOversizedFile)

		w, ok := WarningFor("big.txt", err)
		require.True(t, ok)
		assert.Equal(t, types.WarnOversizedFile, w.Kind)
	})

	t.Run("include", func(t *testing.T) {
		f, err := newChunker(config.PolicyInclude, nil).ChunkFile(context.Background(), "big.txt", content)
		require.NoError(t, err)
		assert.Equal(t, 30, f.TotalTokens)
		assert.Equal(t, 1, types.CountKind(f.Warnings, types.WarnOversizedFile))
		require.Len(t, f.Atomic, 1)
		assert.Equal(t, 30, f.Atomic[0].TokenCount, "content must not be truncated")
	})

	t.Run("prompt accepted", func(t *testing.T) {
		var asked []string
		confirm := func(path string, tokens, limit int) bool {
			asked = append(asked, fmt.Sprintf("%s:%d:%d", path, tokens, limit))
			return true
		}
		_, err := newChunker(config.PolicyPrompt, confirm).ChunkFile(context.Background(), "big.txt", content)
		require.NoError(t, err)
		assert.Equal(t, []string{"big.txt:30:10"}, asked)
	})

	t.Run("prompt declined", func(t *testing.T) {
		confirm := func(string, int, int) bool { return false }
		_, err := newChunker(config.PolicyPrompt, confirm).ChunkFile(context.Background(), "big.txt", content)
		assert.ErrorIs(t, err, types.ErrOversizedFile)
	})

	t.Run("prompt without terminal", func(t *testing.T) {
		_, err := newChunker(config.PolicyPrompt, nil).ChunkFile(context.Background(), "big.txt", content)
		assert.ErrorIs(t, err, types.ErrOversizedFile)
	})
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxTokens = 100

	opts := OptionsFromConfig(cfg, nil)
	assert.Equal(t, 100, opts.MaxTokens)
	assert.Equal(t, 5000, opts.OversizedFileLimit)
	assert.Equal(t, config.PolicyReject, opts.Policy)
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines(nil))
	assert.Equal(t, []string{"a", "b"}, SplitLines([]byte("a\nb\n")))
	assert.Equal(t, []string{"a", "b"}, SplitLines([]byte("a\nb")))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines([]byte("a\n\nb\n")))
}

func TestSpanText(t *testing.T) {
	lines := []string{"one", "two", "three"}
	assert.Equal(t, "two\nthree", SpanText(lines, 2, 3))
	assert.Equal(t, "one", SpanText(lines, 0, 1))
	assert.Equal(t, "three", SpanText(lines, 3, 10))
	assert.Equal(t, "", SpanText(lines, 4, 5))
}
