package parser

import (
	"bytes"
	"context"
	"errors"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"sort"

	"github.com/dshills/repoassist/pkg/types"
)

// Parser handles AST-based parsing of Go source files
type Parser struct{}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{}
}

// Parse parses Go source and returns its tree. Syntax errors produce a
// Failed outcome carrying the first error position.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) types.ParseOutcome {
	if err := ctx.Err(); err != nil {
		return types.Failed(&types.ParseError{File: path, Message: err.Error()})
	}

	// A FileSet per file keeps concurrent parses independent
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		pe := &types.ParseError{File: path, Message: err.Error()}
		var list scanner.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			pe.Line = list[0].Pos.Line
			pe.Column = list[0].Pos.Column
			pe.Message = list[0].Msg
		}
		return types.Failed(pe)
	}

	tf := fset.File(file.Package)
	if tf == nil {
		return types.Failed(&types.ParseError{File: path, Message: "missing position information"})
	}

	root := &goNode{
		file:    file,
		tf:      tf,
		src:     content,
		start:   0,
		end:     len(content),
		startLn: 1,
		endLn:   max(1, tf.LineCount()),
	}
	return types.Parsed(root)
}

// goNode adapts an ast.Node to types.Node. The root wraps the whole file
// rather than *ast.File, whose span begins at the package clause and would
// drop leading comments.
type goNode struct {
	node ast.Node // nil for the file root
	file *ast.File
	tf   *token.File
	src  []byte

	start, end       int
	startLn, endLn   int
	children         []types.Node
	childrenResolved bool
}

func (g *goNode) child(n ast.Node) *goNode {
	pos, end := span(n)
	return &goNode{
		node:    n,
		file:    g.file,
		tf:      g.tf,
		src:     g.src,
		start:   g.tf.Offset(pos),
		end:     g.tf.Offset(end),
		startLn: g.tf.Line(pos),
		endLn:   g.tf.Line(end),
	}
}

// span widens a node to include its doc comment and trailing line comment,
// which ast.Inspect reports as children but which lie outside Pos/End.
func span(n ast.Node) (token.Pos, token.Pos) {
	var doc, comment *ast.CommentGroup
	pos, end := n.Pos(), n.End()
	switch x := n.(type) {
	case *ast.FuncDecl:
		doc = x.Doc
	case *ast.GenDecl:
		doc = x.Doc
		// An unparenthesized declaration ends where its only spec does
		if !x.Lparen.IsValid() && len(x.Specs) == 1 {
			if _, specEnd := span(x.Specs[0]); specEnd > end {
				end = specEnd
			}
		}
	case *ast.Field:
		doc, comment = x.Doc, x.Comment
	case *ast.ValueSpec:
		doc, comment = x.Doc, x.Comment
	case *ast.TypeSpec:
		doc, comment = x.Doc, x.Comment
	case *ast.ImportSpec:
		doc, comment = x.Doc, x.Comment
	}

	if doc != nil && doc.Pos().IsValid() && doc.Pos() < pos {
		pos = doc.Pos()
	}
	if comment != nil && comment.End() > end {
		end = comment.End()
	}
	return pos, end
}

func (g *goNode) StartByte() int { return g.start }
func (g *goNode) EndByte() int   { return g.end }
func (g *goNode) StartLine() int { return g.startLn }
func (g *goNode) EndLine() int   { return g.endLn }

// Children returns the direct AST children in source order
func (g *goNode) Children() []types.Node {
	if g.childrenResolved {
		return g.children
	}
	g.childrenResolved = true

	var parent ast.Node = g.node
	if parent == nil {
		parent = g.file
	}

	var kids []ast.Node
	ast.Inspect(parent, func(c ast.Node) bool {
		if c == parent {
			return true
		}
		if c != nil && g.valid(c) {
			kids = append(kids, c)
		}
		return false
	})

	// Floating comments are not reachable through ast.Inspect
	if g.node == nil {
		for _, cg := range g.file.Comments {
			if !covered(cg, kids) {
				kids = append(kids, cg)
			}
		}
	}

	sort.SliceStable(kids, func(i, j int) bool {
		pi, _ := span(kids[i])
		pj, _ := span(kids[j])
		return pi < pj
	})

	nodes := make([]*goNode, 0, len(kids))
	for _, k := range kids {
		nodes = append(nodes, g.child(k))
	}
	g.children = g.fillGaps(nodes)
	return g.children
}

// fillGaps interleaves a node for each run of lines inside g that holds
// source text but no child: closing braces, the parentheses of grouped
// declarations and comments inside function bodies.
func (g *goNode) fillGaps(kids []*goNode) []types.Node {
	out := make([]types.Node, 0, len(kids)+2)
	prevLn := g.startLn - 1
	for _, k := range kids {
		out = g.appendGap(out, prevLn+1, k.startLn-1)
		out = append(out, k)
		prevLn = max(prevLn, k.endLn)
	}
	return g.appendGap(out, prevLn+1, g.endLn)
}

func (g *goNode) appendGap(out []types.Node, from, to int) []types.Node {
	to = min(to, g.tf.LineCount())
	for from <= to && g.blankLine(from) {
		from++
	}
	for to >= from && g.blankLine(to) {
		to--
	}
	if from > to {
		return out
	}
	start, _ := g.lineBytes(from)
	_, end := g.lineBytes(to)
	seg := g.src[start:end]
	start += len(seg) - len(bytes.TrimLeft(seg, " \t\r\n"))
	end -= len(seg) - len(bytes.TrimRight(seg, " \t\r\n"))
	return append(out, &spanNode{start: start, end: end, startLn: from, endLn: to})
}

// lineBytes returns the part of line ln that lies within g, excluding the
// newline.
func (g *goNode) lineBytes(ln int) (int, int) {
	start := g.tf.Offset(g.tf.LineStart(ln))
	end := len(g.src)
	if ln < g.tf.LineCount() {
		end = g.tf.Offset(g.tf.LineStart(ln+1)) - 1
	}
	return max(start, g.start), min(end, g.end)
}

func (g *goNode) blankLine(ln int) bool {
	start, end := g.lineBytes(ln)
	return start >= end || len(bytes.TrimSpace(g.src[start:end])) == 0
}

// valid filters implicit nodes that carry no source position
func (g *goNode) valid(n ast.Node) bool {
	pos, end := span(n)
	if !pos.IsValid() || !end.IsValid() || end < pos {
		return false
	}
	base := token.Pos(g.tf.Base())
	return pos >= base && int(end-base) <= g.tf.Size()
}

func covered(cg *ast.CommentGroup, nodes []ast.Node) bool {
	for _, n := range nodes {
		pos, end := span(n)
		if pos <= cg.Pos() && cg.End() <= end {
			return true
		}
	}
	return false
}
