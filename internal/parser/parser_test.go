package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoassist/pkg/types"
)

const sampleSource = `// Copyright header
// spans two lines

package testpkg

import "fmt"

// User represents a user in the system
type User struct {
	ID   int
	Name string
}

// Greet prints a greeting
func (u *User) Greet() {
	fmt.Println("hello", u.Name)
}
`

func parseSample(t *testing.T, src string) types.Node {
	t.Helper()
	outcome := New().Parse(context.Background(), "sample.go", []byte(src))
	require.Equal(t, types.ParseParsed, outcome.Status, "outcome error: %v", outcome.Err)
	require.NotNil(t, outcome.Root)
	return outcome.Root
}

func TestParse_RootSpansWholeFile(t *testing.T) {
	root := parseSample(t, sampleSource)

	assert.Equal(t, 0, root.StartByte())
	assert.Equal(t, len(sampleSource), root.EndByte())
	assert.Equal(t, 1, root.StartLine())
	assert.Equal(t, 17, root.EndLine())
}

func TestParse_ChildrenInSourceOrder(t *testing.T) {
	root := parseSample(t, sampleSource)
	children := root.Children()
	require.NotEmpty(t, children)

	// The floating header comment is kept as the first child
	assert.Equal(t, 1, children[0].StartLine())
	assert.Equal(t, 2, children[0].EndLine())

	for i := 1; i < len(children); i++ {
		assert.LessOrEqual(t, children[i-1].StartByte(), children[i].StartByte())
	}

	// Last child is the Greet method including its doc comment, lines 14-17
	last := children[len(children)-1]
	assert.Equal(t, 14, last.StartLine())
	assert.Equal(t, 17, last.EndLine())
}

func TestParse_SpansNestWithinParent(t *testing.T) {
	root := parseSample(t, sampleSource)

	var check func(n types.Node)
	check = func(n types.Node) {
		for _, c := range n.Children() {
			assert.GreaterOrEqual(t, c.StartByte(), n.StartByte())
			assert.LessOrEqual(t, c.EndByte(), n.EndByte())
			assert.LessOrEqual(t, c.StartLine(), c.EndLine())
			check(c)
		}
	}
	check(root)
}

const punctuationSource = `package p

import (
	"fmt"
	"os"
)

func f() {
	fmt.Println(os.Args)
	// trailing note
}
`

// coveredLines lists the distinct lines spanned by nodes
func coveredLines(nodes []types.Node) []int {
	var out []int
	for _, n := range nodes {
		for ln := n.StartLine(); ln <= n.EndLine(); ln++ {
			if len(out) == 0 || out[len(out)-1] < ln {
				out = append(out, ln)
			}
		}
	}
	return out
}

func TestParse_ChildrenCoverPunctuationLines(t *testing.T) {
	root := parseSample(t, punctuationSource)
	kids := root.Children()
	require.Len(t, kids, 3)

	imports := kids[1]
	assert.Equal(t, []int{3, 4, 5, 6}, coveredLines(imports.Children()))
	closing := imports.Children()[len(imports.Children())-1]
	assert.Equal(t, ")", punctuationSource[closing.StartByte():closing.EndByte()])

	fn := kids[2].Children()
	body := fn[len(fn)-1]
	assert.Equal(t, []int{8, 9, 10, 11}, coveredLines(body.Children()))

	stmts := body.Children()
	assert.Equal(t, "{", punctuationSource[stmts[0].StartByte():stmts[0].EndByte()])
	tail := stmts[len(stmts)-1]
	assert.Equal(t, 10, tail.StartLine())
	assert.Equal(t, 11, tail.EndLine())
	assert.Equal(t, "// trailing note\n}", punctuationSource[tail.StartByte():tail.EndByte()])
	assert.Empty(t, tail.Children())
}

func TestParse_LeavesHaveNoChildren(t *testing.T) {
	root := parseSample(t, "package p\n\nvar s = \"a b c\"\n")

	var leaves int
	var walk func(n types.Node)
	walk = func(n types.Node) {
		kids := n.Children()
		if len(kids) == 0 {
			leaves++
		}
		for _, c := range kids {
			walk(c)
		}
	}
	walk(root)

	// package name, variable name, string literal
	assert.Equal(t, 3, leaves)
}

func TestParse_SyntaxError(t *testing.T) {
	outcome := New().Parse(context.Background(), "bad.go", []byte("package p\n\nfunc incomplete( {\n"))

	assert.Equal(t, types.ParseFailed, outcome.Status)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, "bad.go", outcome.Err.File)
	assert.Equal(t, 3, outcome.Err.Line)
	assert.ErrorIs(t, outcome.Err, types.ErrParseFailure)
}

func TestParse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := New().Parse(ctx, "a.go", []byte("package a\n"))
	assert.Equal(t, types.ParseFailed, outcome.Status)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	assert.True(t, reg.Supports("go"))
	assert.False(t, reg.Supports("text"))
	assert.Contains(t, reg.Tags(), "go")
	assert.Equal(t, TreeSitterEnabled, reg.Supports("python"))

	outcome := reg.Parse(context.Background(), "notes.txt", "text", []byte("hello"))
	assert.Equal(t, types.ParseUnsupported, outcome.Status)
	assert.Nil(t, outcome.Root)

	outcome = reg.Parse(context.Background(), "a.go", "go", []byte("package a\n"))
	assert.Equal(t, types.ParseParsed, outcome.Status)
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	leaf := &spanNode{start: 0, end: 5, startLn: 1, endLn: 1}
	reg.Register("custom", fixedParser{root: leaf})

	outcome := reg.Parse(context.Background(), "x.custom", "custom", []byte("hello"))
	require.Equal(t, types.ParseParsed, outcome.Status)
	assert.Equal(t, 5, outcome.Root.EndByte())
	assert.Empty(t, outcome.Root.Children())
}

type fixedParser struct {
	root types.Node
}

func (f fixedParser) Parse(context.Context, string, []byte) types.ParseOutcome {
	return types.Parsed(f.root)
}
