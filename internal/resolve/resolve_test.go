package resolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/treehug/internal/capture"
	"github.com/jward/treehug/internal/lang"
	"github.com/jward/treehug/internal/model"
)

func resolveSource(t *testing.T, l lang.Language, src string) *Tree {
	t.Helper()
	a := l.Assets()
	p := a.NewParser()
	defer p.Close()

	tree, err := p.ParseCtx(context.Background(), nil, []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)

	q, err := a.Query(lang.Locals)
	require.NoError(t, err)
	locals := capture.Run(tree.RootNode(), q, []byte(src))

	var refs []capture.Capture
	if rq, err := a.Query(lang.References); err == nil {
		refs = capture.Run(tree.RootNode(), rq, []byte(src))
	}
	return Resolve(tree.RootNode(), []byte(src), locals, refs, Options{Export: a.Export})
}

func findSymbol(t *testing.T, tree *Tree, name string) model.Symbol {
	t.Helper()
	for _, s := range tree.Symbols {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("symbol %q not found", name)
	return model.Symbol{}
}

func TestResolve_RustFunctionSignature(t *testing.T) {
	tree := resolveSource(t, lang.Rust, "fn add(a: i32, b: i32) -> i32 { a + b }\n")

	add := findSymbol(t, tree, "add")
	assert.Equal(t, model.KindFunction, add.Kind)
	assert.Equal(t, RootScope, add.Scope)
	require.NotNil(t, add.Signature)
	assert.Equal(t, []model.Parameter{{Name: "a", Type: "i32"}, {Name: "b", Type: "i32"}}, add.Signature.Parameters)
	assert.Equal(t, "i32", add.Signature.ReturnType)
	assert.False(t, add.Exported, "function without pub is private")

	locals := tree.Locals()
	require.Len(t, locals, 2)
	assert.Equal(t, "a", locals[0].Name)
	assert.Equal(t, model.KindParameter, locals[0].Kind)
	assert.Equal(t, "b", locals[1].Name)

	require.Len(t, tree.References, 2)
	for _, ref := range tree.References {
		idx, ok := tree.Lookup(ref.Scope, ref.Name)
		require.True(t, ok, "reference %s should resolve", ref.Name)
		assert.Equal(t, model.KindParameter, tree.Symbols[idx].Kind)
	}
}

func TestResolve_RustExportsAndMethods(t *testing.T) {
	src := `/// A point.
pub struct Point {
    pub x: i32,
    y: i32,
}

impl Point {
    pub fn new(x: i32, y: i32) -> Self { Point { x, y } }
    fn norm(&self) -> i32 { 0 }
}

enum Shape {
    Circle(f64),
    Square { side: f64 },
}
`
	tree := resolveSource(t, lang.Rust, src)

	point := findSymbol(t, tree, "Point")
	assert.Equal(t, model.KindType, point.Kind)
	assert.True(t, point.Exported)
	assert.Equal(t, "A point.", point.Doc)
	require.NotNil(t, point.TypeMetadata)
	assert.Equal(t, []model.Field{
		{Name: "x", Type: "i32", Visibility: "pub"},
		{Name: "y", Type: "i32"},
	}, point.TypeMetadata.Fields)

	newFn := findSymbol(t, tree, "new")
	assert.Equal(t, model.KindMethod, newFn.Kind)
	assert.True(t, newFn.Exported)
	require.NotNil(t, newFn.Signature)
	assert.Equal(t, "Self", newFn.Signature.ReturnType)
	assert.Equal(t, "pub", newFn.Signature.Visibility)

	norm := findSymbol(t, tree, "norm")
	assert.False(t, norm.Exported)

	shape := findSymbol(t, tree, "Shape")
	assert.Equal(t, model.KindEnum, shape.Kind)
	require.NotNil(t, shape.TypeMetadata)
	require.Len(t, shape.TypeMetadata.Variants, 2)
	assert.Equal(t, "Circle", shape.TypeMetadata.Variants[0].Name)
	assert.Equal(t, []model.Field{{Name: "0", Type: "f64"}}, shape.TypeMetadata.Variants[0].Fields)
	assert.Equal(t, "Square", shape.TypeMetadata.Variants[1].Name)
	assert.Equal(t, "side", shape.TypeMetadata.Variants[1].Fields[0].Name)
}

func TestResolve_GoImportsAndExports(t *testing.T) {
	src := `package demo

import (
	"fmt"
	str "strings"
	. "math"
	"gopkg.in/yaml.v3"
)

// Greeter greets.
type Greeter interface {
	Greet(name string) string
}

func Hello(a, b string) error {
	fmt.Println(str.ToUpper(a), b)
	return nil
}

func helper() {}
`
	tree := resolveSource(t, lang.Go, src)

	require.Len(t, tree.Imports, 4)
	assert.Equal(t, "fmt", tree.Imports[0].Name)
	assert.Equal(t, "fmt", tree.Imports[0].Source)
	assert.Equal(t, "str", tree.Imports[1].Name)
	assert.Equal(t, "strings", tree.Imports[1].Source)
	assert.True(t, tree.Imports[2].Wildcard)
	assert.Equal(t, "yaml", tree.Imports[3].Name)
	assert.True(t, tree.Scopes[RootScope].HasWildcard())

	greeter := findSymbol(t, tree, "Greeter")
	assert.Equal(t, model.KindInterface, greeter.Kind, "interface capture refines the type capture")
	assert.Equal(t, "Greeter greets.", greeter.Doc)
	require.NotNil(t, greeter.Members)
	require.Len(t, greeter.Members.InstanceMethods, 1)
	assert.Equal(t, "Greet", greeter.Members.InstanceMethods[0].Name)

	hello := findSymbol(t, tree, "Hello")
	require.NotNil(t, hello.Signature)
	assert.Equal(t, []model.Parameter{{Name: "a", Type: "string"}, {Name: "b", Type: "string"}}, hello.Signature.Parameters)
	assert.Equal(t, "error", hello.Signature.ReturnType)

	var exported []string
	for _, s := range tree.Exports() {
		exported = append(exported, s.Name)
	}
	assert.Equal(t, []string{"Greeter", "Hello"}, exported)
}

func TestResolve_GoDocComments(t *testing.T) {
	src := `package demo

// Hello says hi.
func Hello() {}

var x = 1 // not a doc

func After() {}

// Two says
// two lines.
func Two() {}

// detached

func Lonely() {}
`
	tree := resolveSource(t, lang.Go, src)
	assert.Equal(t, "Hello says hi.", findSymbol(t, tree, "Hello").Doc)
	assert.Empty(t, findSymbol(t, tree, "After").Doc)
	assert.Equal(t, "Two says\ntwo lines.", findSymbol(t, tree, "Two").Doc)
	assert.Empty(t, findSymbol(t, tree, "Lonely").Doc)
}

func TestResolve_PythonClassMembersAndImports(t *testing.T) {
	src := `from os import path as p
from typing import *

class Counter:
    """Counts things."""
    total = 0

    def __init__(self, start: int = 0):
        self.value = start

    @staticmethod
    def make():
        return Counter()

    def _bump(self):
        self.value += 1

def _private():
    pass
`
	tree := resolveSource(t, lang.Python, src)

	require.Len(t, tree.Imports, 2)
	assert.Equal(t, "p", tree.Imports[0].Name)
	assert.Equal(t, "path", tree.Imports[0].Imported)
	assert.Equal(t, "os", tree.Imports[0].Source)
	assert.True(t, tree.Imports[1].Wildcard)

	counter := findSymbol(t, tree, "Counter")
	assert.Equal(t, model.KindClass, counter.Kind)
	assert.True(t, counter.Exported)
	assert.Equal(t, "Counts things.", counter.Doc)
	require.NotNil(t, counter.Members)

	names := func(ms []model.Member) []string {
		var out []string
		for _, m := range ms {
			out = append(out, m.Name)
		}
		return out
	}
	assert.Equal(t, []string{"make"}, names(counter.Members.StaticMethods))
	assert.Equal(t, []string{"__init__", "_bump"}, names(counter.Members.InstanceMethods))
	assert.Equal(t, []string{"total"}, names(counter.Members.StaticFields))
	assert.Equal(t, []string{"value"}, names(counter.Members.InstanceFields))
	assert.Equal(t, "private", counter.Members.InstanceMethods[1].Visibility)

	init := findSymbol(t, tree, "__init__")
	assert.Equal(t, model.KindMethod, init.Kind)
	assert.NotEqual(t, RootScope, init.Scope)
	require.NotNil(t, init.Signature)
	assert.Equal(t, []model.Parameter{{Name: "self"}, {Name: "start", Type: "int"}}, init.Signature.Parameters)

	assert.False(t, findSymbol(t, tree, "_private").Exported)
}

func TestResolve_ScopeTreeIsNested(t *testing.T) {
	src := `fn outer(x: i32) -> i32 {
    let y = x;
    let f = |z: i32| z + y;
    { let w = 1; w }
}
`
	tree := resolveSource(t, lang.Rust, src)
	require.Greater(t, len(tree.Scopes), 1)
	for _, s := range tree.Scopes[1:] {
		parent := tree.Scopes[s.Parent]
		assert.True(t, parent.Range.Contains(s.Range), "scope %d escapes its parent", s.ID)
	}
	for _, sym := range tree.Symbols {
		assert.True(t, tree.Scopes[sym.Scope].Range.Contains(sym.Range), "symbol %s outside its scope", sym.Name)
	}
}

func TestResolve_ShadowingLastDefinitionWins(t *testing.T) {
	tree := resolveSource(t, lang.Rust, "fn f() { let a = 1; let a = 2; }\n")
	var defs []int
	for i, s := range tree.Symbols {
		if s.Name == "a" {
			defs = append(defs, i)
		}
	}
	require.Len(t, defs, 2)
	idx, ok := tree.Lookup(tree.Symbols[defs[0]].Scope, "a")
	require.True(t, ok)
	assert.Equal(t, defs[1], idx)
}

func TestLookup_UnknownNameFails(t *testing.T) {
	tree := resolveSource(t, lang.Go, "package p\n\nfunc f() {}\n")
	_, ok := tree.Lookup(RootScope, "nope")
	assert.False(t, ok)
}

func TestResolve_ContainmentAcrossLanguages(t *testing.T) {
	dir := filepath.Join("..", "..", "testdata", "langs")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	covered := map[lang.Language]bool{}
	for _, e := range entries {
		l, err := lang.FromPath(e.Name())
		if err != nil {
			continue
		}
		covered[l] = true
		t.Run(e.Name(), func(t *testing.T) {
			src, err := os.ReadFile(filepath.Join(dir, e.Name()))
			require.NoError(t, err)
			tree := resolveSource(t, l, string(src))

			for _, s := range tree.Scopes[1:] {
				parent := tree.Scopes[s.Parent]
				assert.True(t, parent.Range.Contains(s.Range), "scope %d in %d", s.ID, s.Parent)
				assert.Contains(t, parent.Children, s.ID)
			}
			for _, s := range tree.Symbols {
				assert.True(t, tree.Scopes[s.Scope].Range.Contains(s.Range), "%s in scope %d", s.Name, s.Scope)
			}
			for _, r := range tree.References {
				assert.True(t, tree.Scopes[r.Scope].Range.Contains(r.Range), "%s in scope %d", r.Name, r.Scope)
			}
		})
	}
	assert.Len(t, covered, len(lang.All()))
}
