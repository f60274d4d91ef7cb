//go:build !treesitter

package parser

// This file is compiled by default. Only the standard library Go parser is
// available; other languages fall back to line-based chunking.

// TreeSitterEnabled reports whether tree-sitter grammars are compiled in
const TreeSitterEnabled = false

func registerTreeSitter(*Registry) {}
