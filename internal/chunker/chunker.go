package chunker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/repoassist/internal/config"
	"github.com/dshills/repoassist/internal/tokenizer"
	"github.com/dshills/repoassist/pkg/types"
)

// Detector returns a content-based type tag for a file
type Detector interface {
	Detect(path string, content []byte) (string, bool)
}

// Parser provides syntax trees by type tag
type Parser interface {
	Parse(ctx context.Context, path, tag string, content []byte) types.ParseOutcome
}

// ConfirmFunc asks whether an oversized file should be indexed anyway
type ConfirmFunc func(path string, tokens, limit int) bool

// Options configures a Chunker
type Options struct {
	MaxTokens int

	// OversizedFileLimit defaults to config.DefaultOversizedFactor × MaxTokens
	OversizedFileLimit int
	Policy             config.OversizedPolicy
	Confirm            ConfirmFunc
}

// OptionsFromConfig derives chunker options from the repository config
func OptionsFromConfig(cfg *config.Config, confirm ConfirmFunc) Options {
	return Options{
		MaxTokens:          cfg.MaxTokens,
		OversizedFileLimit: cfg.OversizedFileLimit(),
		Policy:             cfg.OversizedFilePolicy,
		Confirm:            confirm,
	}
}

// Chunker turns files into atomic chunks
type Chunker struct {
	opts      Options
	tokenizer tokenizer.Tokenizer
	detector  Detector
	parser    Parser
}

// New creates a new Chunker instance
func New(opts Options, tok tokenizer.Tokenizer, det Detector, p Parser) *Chunker {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = config.DefaultMaxTokens
	}
	if opts.OversizedFileLimit <= 0 {
		opts.OversizedFileLimit = config.DefaultOversizedFactor * opts.MaxTokens
	}
	if opts.Policy == "" {
		opts.Policy = config.PolicyReject
	}
	return &Chunker{opts: opts, tokenizer: tok, detector: det, parser: p}
}

// MaxTokens returns the chunk budget
func (c *Chunker) MaxTokens() int {
	return c.opts.MaxTokens
}

// TokenizerName names the tokenizer budgets are counted with
func (c *Chunker) TokenizerName() string {
	return c.tokenizer.Name()
}

// File is the chunking result for one file
type File struct {
	Path        string
	Tag         string
	Lines       []string
	TotalTokens int
	LineBased   bool

	// Atomic chunks in source order, line-disjoint
	Atomic   []types.AtomicChunk
	Warnings []types.Warning
}

// ChunkFile produces the atomic chunks of one file.
//
// Files that cannot be chunked return an error wrapping
// types.ErrUnsupportedFileType, types.ErrParseFailure or
// types.ErrOversizedFile; WarningFor converts those into warnings.
func (c *Chunker) ChunkFile(ctx context.Context, path string, content []byte) (*File, error) {
	f := &File{Path: path, Lines: SplitLines(content)}

	if len(bytes.TrimSpace(content)) == 0 {
		return f, nil
	}

	tag, ok := c.detector.Detect(path, content)
	if !ok {
		return nil, fmt.Errorf("%w: %s: type could not be detected", types.ErrUnsupportedFileType, path)
	}
	f.Tag = tag

	f.TotalTokens = c.tokenizer.Count(string(content))
	if limit := c.opts.OversizedFileLimit; f.TotalTokens > limit {
		if !c.includeOversized(path, f.TotalTokens, limit) {
			return nil, fmt.Errorf("%w: %s has %d tokens (limit %d)", types.ErrOversizedFile, path, f.TotalTokens, limit)
		}
		f.Warnings = append(f.Warnings, types.Warning{
			Kind:     types.WarnOversizedFile,
			FilePath: path,
			Message:  fmt.Sprintf("included by policy with %d tokens (limit %d)", f.TotalTokens, limit),
		})
	}

	outcome := c.parser.Parse(ctx, path, tag, content)
	switch outcome.Status {
	case types.ParseParsed:
		d := &descent{chunker: c, file: f, content: content}
		d.visit(outcome.Root, types.FileRoot, 0)
	case types.ParseUnsupported:
		f.LineBased = true
		c.chunkLines(f)
	case types.ParseFailed:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, outcome.Err
	}

	return f, nil
}

// Chunk runs ChunkFile followed by Agglomerate
func (c *Chunker) Chunk(ctx context.Context, path string, content []byte) ([]*types.Chunk, *File, error) {
	f, err := c.ChunkFile(ctx, path, content)
	if err != nil {
		return nil, nil, err
	}
	return Agglomerate(path, f.Atomic, f.Lines, c.opts.MaxTokens), f, nil
}

func (c *Chunker) includeOversized(path string, tokens, limit int) bool {
	switch c.opts.Policy {
	case config.PolicyInclude:
		return true
	case config.PolicyPrompt:
		return c.opts.Confirm != nil && c.opts.Confirm(path, tokens, limit)
	default:
		return false
	}
}

// descent walks a parse tree emitting atomic chunks
type descent struct {
	chunker *Chunker
	file    *File
	content []byte
}

func (d *descent) visit(n types.Node, parent types.ParentID, depth int) {
	maxTokens := d.chunker.opts.MaxTokens
	tokens := d.chunker.tokenizer.Count(string(d.content[n.StartByte():n.EndByte()]))

	if tokens <= maxTokens {
		d.emit(types.AtomicChunk{
			StartLine:  n.StartLine(),
			EndLine:    n.EndLine(),
			TokenCount: tokens,
			Parent:     parent,
		})
		return
	}

	if children := n.Children(); len(children) > 0 {
		id := types.NodeParentID(depth, n.StartByte(), n.EndByte())
		for _, child := range children {
			d.visit(child, id, depth+1)
		}
		return
	}

	d.file.Warnings = append(d.file.Warnings, types.Warning{
		Kind:      types.WarnOversizedLeaf,
		FilePath:  d.file.Path,
		StartLine: n.StartLine(),
		EndLine:   n.EndLine(),
		Message:   fmt.Sprintf("leaf node has %d tokens (max %d), emitted whole", tokens, maxTokens),
	})
	d.emit(types.AtomicChunk{
		StartLine:  n.StartLine(),
		EndLine:    n.EndLine(),
		TokenCount: tokens,
		Parent:     parent,
		Oversized:  true,
	})
}

// emit appends a chunk, fusing it into the previous one when both touch
// the same source line.
func (d *descent) emit(a types.AtomicChunk) {
	atomic := d.file.Atomic
	if n := len(atomic); n > 0 && a.StartLine <= atomic[n-1].EndLine {
		last := &atomic[n-1]
		wasOversized := last.Oversized

		last.EndLine = max(last.EndLine, a.EndLine)
		last.TokenCount += a.TokenCount
		last.Oversized = last.Oversized || a.Oversized || last.TokenCount > d.chunker.opts.MaxTokens

		if last.Oversized && !wasOversized && !a.Oversized {
			d.file.Warnings = append(d.file.Warnings, types.Warning{
				Kind:      types.WarnOversizedLeaf,
				FilePath:  d.file.Path,
				StartLine: last.StartLine,
				EndLine:   last.EndLine,
				Message:   fmt.Sprintf("nodes sharing lines total %d tokens (max %d)", last.TokenCount, d.chunker.opts.MaxTokens),
			})
		}
		return
	}
	d.file.Atomic = append(atomic, a)
}

// chunkLines cuts a file into blocks of whole lines under the budget.
// Zero-token lines never close a block on their own.
func (c *Chunker) chunkLines(f *File) {
	maxTokens := c.opts.MaxTokens
	blockStart, blockTokens := 1, 0

	for i, line := range f.Lines {
		lineNo := i + 1
		tokens := c.tokenizer.Count(line)

		if blockTokens > 0 && blockTokens+tokens > maxTokens {
			c.addLineBlock(f, blockStart, lineNo-1, blockTokens)
			blockStart, blockTokens = lineNo, 0
		}
		blockTokens += tokens
	}

	if blockTokens > 0 {
		c.addLineBlock(f, blockStart, len(f.Lines), blockTokens)
	}
}

func (c *Chunker) addLineBlock(f *File, start, end, tokens int) {
	chunk := types.AtomicChunk{
		StartLine:  start,
		EndLine:    end,
		TokenCount: tokens,
		Parent:     types.FileRoot,
	}

	if tokens > c.opts.MaxTokens {
		chunk.Oversized = true
		f.Warnings = append(f.Warnings, types.Warning{
			Kind:      types.WarnOversizedLeaf,
			FilePath:  f.Path,
			StartLine: start,
			EndLine:   end,
			Message:   fmt.Sprintf("line has %d tokens (max %d), emitted whole", tokens, c.opts.MaxTokens),
		})
	}

	f.Atomic = append(f.Atomic, chunk)
}

// WarningFor converts a file-level chunking error into a warning.
// It returns false for errors that should abort the run.
func WarningFor(path string, err error) (types.Warning, bool) {
	w := types.Warning{FilePath: path, Message: err.Error()}

	switch {
	case errors.Is(err, types.ErrUnsupportedFileType):
		w.Kind = types.WarnUnsupportedFileType
	case errors.Is(err, types.ErrParseFailure):
		w.Kind = types.WarnParseFailure
	case errors.Is(err, types.ErrOversizedFile):
		w.Kind = types.WarnOversizedFile
	default:
		return types.Warning{}, false
	}

	return w, true
}

// SplitLines splits content into lines without their terminators.
// A trailing newline does not produce an empty final line.
func SplitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	text := strings.TrimSuffix(string(content), "\n")
	return strings.Split(text, "\n")
}

// SpanText joins lines start..end (1-based, inclusive). Out of range spans
// are clamped.
func SpanText(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
