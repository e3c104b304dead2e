package diag

import (
	"context"
	"strings"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/treehug/internal/capture"
	"github.com/jward/treehug/internal/lang"
	"github.com/jward/treehug/internal/model"
	"github.com/jward/treehug/internal/resolve"
)

type parsed struct {
	root  *sitter.Node
	src   []byte
	tree  *resolve.Tree
	lint  []capture.Capture
	asset *lang.Assets
}

func parse(t *testing.T, l lang.Language, src string) parsed {
	t.Helper()
	a := l.Assets()
	p := a.NewParser()
	defer p.Close()

	tree, err := p.ParseCtx(context.Background(), nil, []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	root := tree.RootNode()

	q, err := a.Query(lang.Locals)
	require.NoError(t, err)
	locals := capture.Run(root, q, []byte(src))

	var refs, lint []capture.Capture
	if rq, err := a.Query(lang.References); err == nil {
		refs = capture.Run(root, rq, []byte(src))
	}
	if lq, err := a.Query(lang.Lint); err == nil {
		lint = capture.Run(root, lq, []byte(src))
	}
	return parsed{
		root:  root,
		src:   []byte(src),
		tree:  resolve.Resolve(root, []byte(src), locals, refs, resolve.Options{Export: a.Export}),
		lint:  lint,
		asset: a,
	}
}

func TestSemantic_UndefinedCall(t *testing.T) {
	src := "fn main() {\n    foo();\n}\n"
	p := parse(t, lang.Rust, src)

	ds := Semantic(p.tree, p.asset.IsBuiltin, p.src, nil)
	require.Len(t, ds, 1)
	d := ds[0]
	assert.Equal(t, model.TierSemantic, d.Tier)
	assert.Equal(t, model.SeverityError, d.Severity)
	assert.Equal(t, RuleUndefinedSymbol, d.Rule)
	assert.Equal(t, "foo", src[d.Range.StartByte:d.Range.EndByte])
	assert.Equal(t, 2, d.Line)
	assert.Equal(t, "foo();", d.Snippet)
}

func TestSemantic_ParametersResolve(t *testing.T) {
	p := parse(t, lang.Rust, "fn add(a: i32, b: i32) -> i32 { a + b }\n")
	assert.Empty(t, Semantic(p.tree, p.asset.IsBuiltin, p.src, nil))
}

func TestSemantic_ImportsAndBuiltinsSatisfyLookup(t *testing.T) {
	src := `package main

import "fmt"

func main() {
	xs := make([]int, 0)
	fmt.Println(len(xs))
}
`
	p := parse(t, lang.Go, src)
	assert.Empty(t, Semantic(p.tree, p.asset.IsBuiltin, p.src, nil))
}

func TestSemantic_WildcardImportSatisfiesEverything(t *testing.T) {
	src := "from os.path import *\n\nprint(join(dirname(__file__), 'x'))\n"
	p := parse(t, lang.Python, src)
	assert.Empty(t, Semantic(p.tree, p.asset.IsBuiltin, p.src, nil))
}

func TestSemantic_DidYouMean(t *testing.T) {
	src := "fn main() {\n    let counter = 1;\n    let y = countr;\n}\n"
	p := parse(t, lang.Rust, src)

	ds := Semantic(p.tree, p.asset.IsBuiltin, p.src, nil)
	require.Len(t, ds, 1)
	assert.Contains(t, ds[0].Message, `did you mean "counter"?`)
}

func TestSemantic_Disabled(t *testing.T) {
	p := parse(t, lang.Rust, "fn main() { foo(); }\n")
	rs, err := NewRuleSet([]string{RuleUndefinedSymbol}, nil)
	require.NoError(t, err)
	assert.Empty(t, Semantic(p.tree, p.asset.IsBuiltin, p.src, rs))
}

func TestLint_DebugPrintOnLineTen(t *testing.T) {
	lines := make([]string, 0, 10)
	for i := 1; i < 10; i++ {
		lines = append(lines, "x = 1")
	}
	lines = append(lines, `print("debug")`)
	src := strings.Join(lines, "\n") + "\n"

	p := parse(t, lang.Python, src)
	ds := Lint(p.lint, p.src, nil)
	require.Len(t, ds, 1)
	assert.Equal(t, "debug-print", ds[0].Rule)
	assert.Equal(t, model.TierLint, ds[0].Tier)
	assert.Equal(t, model.SeverityWarning, ds[0].Severity)
	assert.Equal(t, 10, ds[0].Line)
	assert.Equal(t, 1, ds[0].Column)
}

func TestLint_SeverityOverrideAndDisable(t *testing.T) {
	src := "fn main() {\n    let v = Some(1).unwrap();\n    // TODO: tidy\n}\n"
	p := parse(t, lang.Rust, src)

	rs, err := NewRuleSet([]string{"todo-comment"}, map[string]string{"unwrap-call": "error"})
	require.NoError(t, err)

	ds := Lint(p.lint, p.src, rs)
	require.Len(t, ds, 1)
	assert.Equal(t, "unwrap-call", ds[0].Rule)
	assert.Equal(t, model.SeverityError, ds[0].Severity)
	assert.Equal(t, Message("unwrap-call"), ds[0].Message)
}

func TestSyntax_ReportsParseErrors(t *testing.T) {
	p := parse(t, lang.Rust, "fn main( {\n    let x = ;\n}\n")
	ds := Syntax(p.root, p.src)
	require.NotEmpty(t, ds)
	for _, d := range ds {
		assert.Equal(t, model.TierSyntax, d.Tier)
		assert.Equal(t, model.SeverityError, d.Severity)
		assert.Equal(t, RuleParseError, d.Rule)
	}
}

func TestSyntax_CleanTree(t *testing.T) {
	p := parse(t, lang.Go, "package main\n\nfunc main() {}\n")
	assert.Empty(t, Syntax(p.root, p.src))
}

func TestFromFindings(t *testing.T) {
	src := []byte("line one\nline two\n")
	ds := FromFindings([]Finding{
		{Rule: "custom-rule", Message: "custom message", Line: 2, Column: 6},
		{Rule: "out-of-range", Line: 40},
	}, src, nil)
	require.Len(t, ds, 1)
	assert.Equal(t, "custom-rule", ds[0].Rule)
	assert.Equal(t, "custom message", ds[0].Message)
	assert.Equal(t, uint32(14), ds[0].Range.StartByte)
	assert.Equal(t, "line two", ds[0].Snippet)
	assert.Equal(t, model.SeverityWarning, ds[0].Severity)
}

func TestFromFindings_ColumnPastLineEnd(t *testing.T) {
	src := []byte("short\nnext line\nlast")
	ds := FromFindings([]Finding{
		{Rule: "custom-rule", Line: 1, Column: 80},
		{Rule: "custom-rule", Line: 3, Column: 80},
	}, src, nil)
	require.Len(t, ds, 2)

	assert.Equal(t, uint32(5), ds[0].Range.StartByte, "clamped to the newline of line 1")
	assert.Equal(t, 1, ds[0].Line)
	assert.Equal(t, 6, ds[0].Column)
	assert.Equal(t, "short", ds[0].Snippet)

	assert.Equal(t, uint32(len(src)), ds[1].Range.StartByte)
	assert.Equal(t, 3, ds[1].Line)
	assert.Equal(t, 5, ds[1].Column)
	assert.Equal(t, "last", ds[1].Snippet)
}

func TestNewRuleSet_InvalidSeverity(t *testing.T) {
	_, err := NewRuleSet(nil, map[string]string{"debug-print": "fatal"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debug-print")
}

func TestMessage_UnknownRule(t *testing.T) {
	assert.Equal(t, "Lint rule: my-rule", Message("my-rule"))
	assert.Equal(t, "Reference to undefined symbol", Message(RuleUndefinedSymbol))
}

func TestSnippet(t *testing.T) {
	src := []byte("first\n   second line  \nthird")
	assert.Equal(t, "second line", Snippet(src, 9))
	assert.Equal(t, "third", Snippet(src, uint32(len(src))))
	assert.Equal(t, "", Snippet(src, 999))
}
