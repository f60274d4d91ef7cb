// Package tokenizer provides the reference token counter used for chunk
// budgets. Counts are deterministic for identical text.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// HeuristicName selects the chars/4 estimator instead of a BPE encoding
const HeuristicName = "heuristic"

// TokensPerChar is the heuristic for estimating tokens (chars/4)
const TokensPerChar = 4

// Tokenizer counts tokens in text
type Tokenizer interface {
	Count(text string) int
	Name() string
}

var loaderOnce sync.Once

// New returns the tokenizer named by encoding. Any tiktoken encoding name
// (r50k_base, p50k_base, cl100k_base, o200k_base) is accepted, as is
// HeuristicName. BPE ranks are embedded in the binary, so no network access
// is needed.
func New(encoding string) (Tokenizer, error) {
	if encoding == "" || encoding == HeuristicName {
		return Heuristic{}, nil
	}

	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("unknown tokenizer encoding %q: %w", encoding, err)
	}

	return &BPE{enc: enc, name: encoding}, nil
}

// BPE counts tokens with a tiktoken byte-pair encoding
type BPE struct {
	enc  *tiktoken.Tiktoken
	name string
}

// Count returns the number of BPE tokens in text. Special-token markers in
// source files are counted as ordinary text.
func (b *BPE) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(b.enc.Encode(text, nil, nil))
}

// Name returns the encoding name
func (b *BPE) Name() string {
	return b.name
}

// Heuristic estimates tokens as characters / 4
type Heuristic struct{}

// Count estimates the number of tokens in a string
func (Heuristic) Count(text string) int {
	return len(text) / TokensPerChar
}

// Name returns HeuristicName
func (Heuristic) Name() string {
	return HeuristicName
}

// Words counts whitespace-separated words. It is exact and trivially
// predictable, which makes it useful when budgets need to be reasoned about
// by hand.
type Words struct{}

// Count returns the number of whitespace-separated fields in text
func (Words) Count(text string) int {
	return len(strings.Fields(text))
}

// Name returns "words"
func (Words) Name() string {
	return "words"
}
