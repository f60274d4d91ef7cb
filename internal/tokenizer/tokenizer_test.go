package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Heuristic(t *testing.T) {
	for _, name := range []string{"", HeuristicName} {
		tok, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, HeuristicName, tok.Name())
		assert.Equal(t, 3, tok.Count("twelve chars"))
	}
}

func TestNew_UnknownEncoding(t *testing.T) {
	_, err := New("not-an-encoding")
	assert.Error(t, err)
}

func TestBPE_Deterministic(t *testing.T) {
	tok, err := New("r50k_base")
	require.NoError(t, err)
	assert.Equal(t, "r50k_base", tok.Name())

	text := "func Add(a, b int) int {\n\treturn a + b\n}\n"
	first := tok.Count(text)
	assert.Positive(t, first)
	assert.Equal(t, first, tok.Count(text))
	assert.Zero(t, tok.Count(""))

	// Special-token markers are plain text, not a panic
	assert.Positive(t, tok.Count("<|endoftext|>"))
}

func TestWords(t *testing.T) {
	var w Words
	assert.Equal(t, 0, w.Count("  \n\t"))
	assert.Equal(t, 4, w.Count("package main\nfunc main()"))
	assert.Equal(t, "words", w.Name())
}
