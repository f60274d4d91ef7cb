// Package parser provides syntax trees for the chunker.
//
// Trees are exposed through the language-agnostic types.Node interface, so
// the chunker only ever sees byte spans, line spans and children. Every
// parse returns a types.ParseOutcome tagged Parsed, Unsupported or Failed.
//
// # Basic Usage
//
//	reg := parser.NewRegistry()
//	outcome := reg.Parse(ctx, "main.go", "go", content)
//	switch outcome.Status {
//	case types.ParseParsed:
//	    // descend outcome.Root
//	case types.ParseUnsupported:
//	    // line-based fallback
//	case types.ParseFailed:
//	    // skip file, record outcome.Err
//	}
//
// # Languages
//
// Go is parsed with the standard library (go/parser, go/ast, go/token) and
// is always available. Building with the treesitter tag adds tree-sitter
// grammars for Python, JavaScript, TypeScript, Java, Rust and Bash:
//
//	CGO_ENABLED=1 go build -tags treesitter ./...
//
// Types without a registered parser (including plain text) report
// Unsupported and are chunked line by line.
package parser
