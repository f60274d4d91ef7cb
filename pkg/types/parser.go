package types

import "fmt"

// Node is a language-agnostic view of a syntax tree node.
// Lines are 1-based and inclusive; bytes are a half-open range.
type Node interface {
	StartByte() int
	EndByte() int
	StartLine() int
	EndLine() int
	Children() []Node
}

// ParseStatus tags the variant held by a ParseOutcome
type ParseStatus int

const (
	ParseParsed ParseStatus = iota
	ParseUnsupported
	ParseFailed
)

// String returns the status name
func (s ParseStatus) String() string {
	switch s {
	case ParseParsed:
		return "parsed"
	case ParseUnsupported:
		return "unsupported"
	case ParseFailed:
		return "parse_error"
	default:
		return fmt.Sprintf("ParseStatus(%d)", int(s))
	}
}

// ParseOutcome is the tagged result of asking a parser provider for a tree.
// Root is set only for ParseParsed and Err only for ParseFailed.
type ParseOutcome struct {
	Status ParseStatus
	Root   Node
	Err    *ParseError
}

// Parsed wraps a successfully parsed tree
func Parsed(root Node) ParseOutcome {
	return ParseOutcome{Status: ParseParsed, Root: root}
}

// Unsupported reports that no parser exists for the type tag
func Unsupported() ParseOutcome {
	return ParseOutcome{Status: ParseUnsupported}
}

// Failed reports a parser error
func Failed(err *ParseError) ParseOutcome {
	return ParseOutcome{Status: ParseFailed, Err: err}
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	if pe.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", pe.File, pe.Line, pe.Column, pe.Message)
	}
	return pe.Message
}

// Unwrap lets errors.Is match ErrParseFailure
func (pe *ParseError) Unwrap() error {
	return ErrParseFailure
}
