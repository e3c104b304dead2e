package resolve

import (
	"github.com/jward/treehug/internal/model"
)

// RootScope is the ID of the file-level scope.
const RootScope = 0

// Scope is one node of the scope arena. Parent and Children hold arena
// indices; the root has Parent -1.
type Scope struct {
	ID       int
	Parent   int
	Range    model.Range
	Children []int

	names    map[string]int
	wildcard bool
}

// Names returns the name -> symbol index map of the scope. When a name is
// defined more than once in a scope, the last definition wins.
func (s *Scope) Names() map[string]int {
	return s.names
}

// HasWildcard reports whether a wildcard import was declared in the scope.
func (s *Scope) HasWildcard() bool {
	return s.wildcard
}

// Tree is the output of resolution for one file: a scope arena and a flat
// list of every definition in source order.
type Tree struct {
	Scopes     []Scope
	Symbols    []model.Symbol
	Imports    []model.ImportSymbol
	References []model.Reference
	Warnings   []string

	// symbol index -> index into Imports, for import symbols
	importOf map[int]int
}

func newTree(root model.Range) *Tree {
	return &Tree{
		Scopes:   []Scope{{ID: RootScope, Parent: -1, Range: root, names: make(map[string]int)}},
		importOf: make(map[int]int),
	}
}

func (t *Tree) addScope(parent int, r model.Range) int {
	id := len(t.Scopes)
	t.Scopes = append(t.Scopes, Scope{ID: id, Parent: parent, Range: r, names: make(map[string]int)})
	t.Scopes[parent].Children = append(t.Scopes[parent].Children, id)
	return id
}

// Parent returns the parent of scope id, or id itself for the root.
func (t *Tree) Parent(id int) int {
	if p := t.Scopes[id].Parent; p >= 0 {
		return p
	}
	return id
}

// Lookup resolves name from scope outward to the root. It returns the index
// of the visible definition, or -1 with ok=true when the name is only
// satisfied by a wildcard import.
func (t *Tree) Lookup(scope int, name string) (idx int, ok bool) {
	for s := scope; s >= 0; s = t.Scopes[s].Parent {
		if i, found := t.Scopes[s].names[name]; found {
			return i, true
		}
		if t.Scopes[s].wildcard {
			return -1, true
		}
	}
	return -1, false
}

// ScopeAt returns the innermost scope containing r.
func (t *Tree) ScopeAt(r model.Range) int {
	cur := RootScope
	for {
		next := -1
		for _, c := range t.Scopes[cur].Children {
			if t.Scopes[c].Range.Contains(r) {
				next = c
				break
			}
		}
		if next < 0 {
			return cur
		}
		cur = next
	}
}

// Depth returns the number of ancestors of scope id.
func (t *Tree) Depth(id int) int {
	d := 0
	for s := t.Scopes[id].Parent; s >= 0; s = t.Scopes[s].Parent {
		d++
	}
	return d
}

// ImportFor returns the import record backing symbol index i.
func (t *Tree) ImportFor(i int) (model.ImportSymbol, bool) {
	j, ok := t.importOf[i]
	if !ok {
		return model.ImportSymbol{}, false
	}
	return t.Imports[j], true
}
