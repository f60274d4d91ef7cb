//go:build treesitter

package parser

// This file is compiled when building with CGO and the treesitter tag.
// It registers tree-sitter grammars for languages without a standard
// library parser.
//
// Build command:
//   CGO_ENABLED=1 go build -tags treesitter ./...

import (
	"context"
	"fmt"
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_bash "github.com/tree-sitter/tree-sitter-bash/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/dshills/repoassist/pkg/types"
)

// TreeSitterEnabled reports whether tree-sitter grammars are compiled in
const TreeSitterEnabled = true

func registerTreeSitter(r *Registry) {
	grammars := map[string]unsafe.Pointer{
		"bash":       tree_sitter_bash.Language(),
		"java":       tree_sitter_java.Language(),
		"javascript": tree_sitter_javascript.Language(),
		"python":     tree_sitter_python.Language(),
		"rust":       tree_sitter_rust.Language(),
		"typescript": tree_sitter_typescript.LanguageTypescript(),
		"tsx":        tree_sitter_typescript.LanguageTSX(),
	}
	for tag, ptr := range grammars {
		r.Register(tag, &treeSitterParser{tag: tag, language: tree_sitter.NewLanguage(ptr)})
	}
}

// treeSitterParser parses one language with a tree-sitter grammar
type treeSitterParser struct {
	tag      string
	language *tree_sitter.Language
}

// Parse builds a tree and snapshots it into owned nodes. Tree-sitter
// recovers from syntax errors with ERROR nodes, so only a missing tree is
// reported as a failure.
func (p *treeSitterParser) Parse(ctx context.Context, path string, content []byte) types.ParseOutcome {
	if err := ctx.Err(); err != nil {
		return types.Failed(&types.ParseError{File: path, Message: err.Error()})
	}

	ts := tree_sitter.NewParser()
	defer ts.Close()

	if err := ts.SetLanguage(p.language); err != nil {
		return types.Failed(&types.ParseError{File: path, Message: fmt.Sprintf("load %s grammar: %v", p.tag, err)})
	}

	tree := ts.Parse(content, nil)
	if tree == nil {
		return types.Failed(&types.ParseError{File: path, Message: "parser returned no tree"})
	}
	defer tree.Close()

	root := snapshot(tree.RootNode())
	// Widen the root to the whole file so leading trivia stays indexed
	root.start = 0
	root.end = len(content)
	root.startLn = 1
	return types.Parsed(root)
}

func snapshot(n *tree_sitter.Node) *spanNode {
	s := &spanNode{
		start:   int(n.StartByte()),
		end:     int(n.EndByte()),
		startLn: int(n.StartPosition().Row) + 1,
		endLn:   int(n.EndPosition().Row) + 1,
	}

	// A node ending at column 0 stops before that line's first byte
	if n.EndPosition().Column == 0 && s.endLn > s.startLn {
		s.endLn--
	}

	count := n.ChildCount()
	if count == 0 {
		return s
	}

	s.children = make([]types.Node, 0, count)
	for i := uint(0); i < count; i++ {
		child := n.Child(i)
		if child == nil || child.EndByte() <= child.StartByte() {
			continue
		}
		s.children = append(s.children, snapshot(child))
	}
	return s
}
