package parser

import "github.com/dshills/repoassist/pkg/types"

// spanNode is an owned syntax node. Trees backed by foreign memory are
// copied into spanNodes so they can be released right after parsing, and
// the Go adapter uses childless spanNodes for lines no AST node covers.
type spanNode struct {
	start, end     int
	startLn, endLn int
	children       []types.Node
}

func (s *spanNode) StartByte() int         { return s.start }
func (s *spanNode) EndByte() int           { return s.end }
func (s *spanNode) StartLine() int         { return s.startLn }
func (s *spanNode) EndLine() int           { return s.endLn }
func (s *spanNode) Children() []types.Node { return s.children }
