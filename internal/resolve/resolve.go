// Package resolve turns the captures of a locals (and optional references)
// query into a scope tree, a flat symbol table and a list of use-sites.
//
// Captures are consumed in a single pass in source order. A stack of open
// scopes is maintained: before each capture, scopes that end at or before
// its start are popped, so the top of the stack is always the innermost
// scope containing the capture. Name lookup happens after the walk, which
// makes definitions visible to references that precede them.
package resolve

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/treehug/internal/capture"
	"github.com/jward/treehug/internal/lang"
	"github.com/jward/treehug/internal/model"
)

// Options controls policy that differs per language.
type Options struct {
	Export lang.ExportPolicy
}

type span struct{ start, end uint32 }

func spanOf(r model.Range) span { return span{r.StartByte, r.EndByte} }

type matchKey struct {
	stream int
	match  uint32
}

type region struct {
	rng   model.Range
	scope int
}

type resolver struct {
	t   *Tree
	src []byte

	byRange  map[span]int
	contexts map[matchKey]*sitter.Node
	sources  map[matchKey]*sitter.Node
	imported map[matchKey]*sitter.Node

	// per symbol: the context node and the captured name node
	ctxNode  map[int]*sitter.Node
	nameNode map[int]*sitter.Node

	regions []region
}

// Resolve builds the scope tree for one file. locals must come from the
// language's locals query; refs may be nil when the language has no
// references query.
func Resolve(root *sitter.Node, src []byte, locals, refs []capture.Capture, opts Options) *Tree {
	t := newTree(capture.RangeOf(root))
	r := &resolver{
		t:        t,
		src:      src,
		byRange:  make(map[span]int),
		contexts: make(map[matchKey]*sitter.Node),
		sources:  make(map[matchKey]*sitter.Node),
		imported: make(map[matchKey]*sitter.Node),
		ctxNode:  make(map[int]*sitter.Node),
		nameNode: make(map[int]*sitter.Node),
	}

	stream := capture.Merge(locals, refs)
	r.index(stream)

	stack := []int{RootScope}
	for _, c := range stream {
		for len(stack) > 1 && t.Scopes[stack[len(stack)-1]].Range.EndByte <= c.Range.StartByte {
			stack = stack[:len(stack)-1]
		}
		top := stack[len(stack)-1]

		switch c.Category() {
		case capture.CategoryScope:
			if spanOf(t.Scopes[top].Range) == spanOf(c.Range) {
				continue
			}
			stack = append(stack, t.addScope(top, c.Range))
		case capture.CategoryExport:
			s := top
			if spanOf(t.Scopes[top].Range) == spanOf(c.Range) {
				s = t.Parent(top)
			}
			r.regions = append(r.regions, region{rng: c.Range, scope: s})
		case capture.CategoryDefinition:
			r.define(c, top)
		case capture.CategoryReference:
			r.reference(c, top)
		case capture.CategoryUnknown:
			r.warn(c)
		}
	}

	r.attachMetadata()
	r.markExports(opts.Export)
	return t
}

// index records the context and import captures of every match so that
// definitions can pick them up regardless of capture order.
func (r *resolver) index(stream []capture.Capture) {
	for _, c := range stream {
		key := matchKey{c.Stream, c.Match}
		switch c.Category() {
		case capture.CategoryContext:
			if _, _, ok := parseDefinition(c.Name); !ok {
				r.warn(c)
				continue
			}
			r.contexts[key] = c.Node
		case capture.CategoryImport:
			switch c.Name {
			case "local.import.source":
				r.sources[key] = c.Node
			case "local.import.name":
				r.imported[key] = c.Node
			default:
				r.warn(c)
			}
		}
	}
}

func (r *resolver) warn(c capture.Capture) {
	r.t.Warnings = append(r.t.Warnings, fmt.Sprintf("%v: @%s at %d:%d",
		model.ErrMalformedCapture, c.Name, c.Range.StartLine, c.Range.StartColumn))
}

func (r *resolver) define(c capture.Capture, top int) {
	kind, _, ok := parseDefinition(c.Name)
	if !ok {
		r.warn(c)
		return
	}
	t := r.t
	key := matchKey{c.Stream, c.Match}

	if i, dup := r.byRange[spanOf(c.Range)]; dup {
		r.refine(i, kind, key)
		return
	}

	scope := top
	seg := strings.TrimPrefix(c.Name, "local.definition.")
	switch c.Metadata["definition."+seg+".scope"] {
	case "parent":
		scope = t.Parent(top)
	case "global":
		scope = RootScope
	}

	raw := c.Text(r.src)
	sym := model.Symbol{Name: raw, Kind: kind, Range: c.Range, Scope: scope}
	i := len(t.Symbols)
	wildcard := false

	if kind == model.KindImport {
		sym.Name, wildcard = ImportName(raw)
		imp := model.ImportSymbol{Name: sym.Name, Wildcard: wildcard, Range: c.Range}
		if n := r.sources[key]; n != nil {
			imp.Source = ImportSource(capture.NodeText(n, r.src))
		}
		if n := r.imported[key]; n != nil {
			imp.Imported, _ = ImportName(capture.NodeText(n, r.src))
		}
		t.importOf[i] = len(t.Imports)
		t.Imports = append(t.Imports, imp)
	}

	if ctx := r.contexts[key]; ctx != nil {
		cr := capture.RangeOf(ctx)
		sym.ContextRange = &cr
		r.ctxNode[i] = ctx
	}
	r.nameNode[i] = c.Node

	t.Symbols = append(t.Symbols, sym)
	r.byRange[spanOf(c.Range)] = i
	if wildcard {
		t.Scopes[scope].wildcard = true
		return
	}
	t.Scopes[scope].names[sym.Name] = i
}

// refine merges a second definition capture on the same name node into the
// existing symbol.
func (r *resolver) refine(i int, kind model.SymbolKind, key matchKey) {
	t := r.t
	sym := &t.Symbols[i]

	if sym.Kind == model.KindImport {
		j := t.importOf[i]
		if t.Imports[j].Source == "" {
			if n := r.sources[key]; n != nil {
				t.Imports[j].Source = ImportSource(capture.NodeText(n, r.src))
			}
		}
		return
	}
	if kind == model.KindImport {
		return
	}

	if kindRank[kind] > kindRank[sym.Kind] {
		sym.Kind = kind
		if ctx := r.contexts[key]; ctx != nil {
			cr := capture.RangeOf(ctx)
			sym.ContextRange = &cr
			r.ctxNode[i] = ctx
		}
	}
	if _, has := r.ctxNode[i]; !has {
		if ctx := r.contexts[key]; ctx != nil {
			cr := capture.RangeOf(ctx)
			sym.ContextRange = &cr
			r.ctxNode[i] = ctx
		}
	}
}

func (r *resolver) reference(c capture.Capture, top int) {
	if _, isDef := r.byRange[spanOf(c.Range)]; isDef {
		return
	}
	name := c.Text(r.src)
	if name == "" {
		return
	}
	r.t.References = append(r.t.References, model.Reference{
		Name:  name,
		Kind:  c.Metadata["reference.kind"],
		Range: c.Range,
		Scope: top,
	})
}

func (r *resolver) attachMetadata() {
	for i := range r.t.Symbols {
		sym := &r.t.Symbols[i]
		ctx := r.ctxNode[i]

		switch {
		case sym.Kind.IsCallable():
			if ctx == nil {
				if n := r.nameNode[i]; n != nil {
					ctx = n.Parent()
				}
			}
			if ctx != nil {
				sym.Signature = signatureOf(ctx, r.src)
			}
		case sym.Kind.IsTypeLike() && ctx != nil:
			sym.TypeMetadata = typeMetadataOf(ctx, sym.Kind, r.src)
			if sym.Kind != model.KindEnum {
				if m := membersOf(ctx, r.src); !m.Empty() {
					sym.Members = m
				}
			}
		}

		if ctx != nil {
			sym.Doc = docOf(ctx, r.src)
		}
	}
}

func (r *resolver) markExports(policy lang.ExportPolicy) {
	for i := range r.t.Symbols {
		sym := &r.t.Symbols[i]
		if sym.Kind == model.KindImport || sym.Kind == model.KindParameter {
			continue
		}
		switch policy {
		case lang.ExportMarked:
			for _, reg := range r.regions {
				if reg.scope == sym.Scope && reg.rng.Contains(sym.Range) {
					sym.Exported = true
					break
				}
			}
		case lang.ExportCapitalized:
			sym.Exported = sym.Scope == RootScope && isCapitalized(sym.Name)
		case lang.ExportNoUnderscore:
			sym.Exported = sym.Scope == RootScope && !strings.HasPrefix(sym.Name, "_")
		default:
			sym.Exported = sym.Scope == RootScope
		}
	}
}

// Definitions returns every non-import symbol in source order.
func (t *Tree) Definitions() []model.Symbol {
	out := make([]model.Symbol, 0, len(t.Symbols))
	for _, s := range t.Symbols {
		if s.Kind != model.KindImport {
			out = append(out, s)
		}
	}
	return out
}

// Exports returns the exported symbols in source order.
func (t *Tree) Exports() []model.Symbol {
	out := []model.Symbol{}
	for _, s := range t.Symbols {
		if s.Exported {
			out = append(out, s)
		}
	}
	return out
}

// Locals returns variables and parameters bound below the file scope.
func (t *Tree) Locals() []model.Symbol {
	out := []model.Symbol{}
	for _, s := range t.Symbols {
		if s.Scope == RootScope {
			continue
		}
		if s.Kind == model.KindVariable || s.Kind == model.KindParameter {
			out = append(out, s)
		}
	}
	return out
}
