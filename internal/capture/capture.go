// Package capture runs a compiled tree-sitter query over a tree and returns
// the resulting captures as a flat, deterministically ordered list.
package capture

import (
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/treehug/internal/model"
)

// Category groups capture names by the role they play in resolution.
type Category int

// Ordering of categories at identical ranges: scopes open before the
// definitions they contain, references come last.
const (
	CategoryScope Category = iota
	CategoryExport
	CategoryDefinition
	CategoryContext
	CategoryImport
	CategoryDiagnostic
	CategoryReference
	CategoryHelper
	CategoryUnknown
)

// Capture is one named node produced by a query match.
type Capture struct {
	Name     string
	Node     *sitter.Node
	Range    model.Range
	Match    uint32
	Pattern  uint16
	Index    int // position within the match
	Metadata map[string]string
	Stream   int // caller-assigned source document, used to keep matches apart
}

// Category classifies the capture name.
func (c Capture) Category() Category {
	return Categorize(c.Name)
}

// Categorize maps a capture name to its category.
func Categorize(name string) Category {
	switch {
	case strings.HasPrefix(name, "_"):
		return CategoryHelper
	case name == "local.scope":
		return CategoryScope
	case name == "local.export":
		return CategoryExport
	case name == "local.reference":
		return CategoryReference
	case strings.HasPrefix(name, "local.import."):
		return CategoryImport
	case strings.HasPrefix(name, "local.definition."):
		if strings.HasSuffix(name, ".context") {
			return CategoryContext
		}
		return CategoryDefinition
	case strings.HasPrefix(name, "diagnostic."):
		return CategoryDiagnostic
	}
	return CategoryUnknown
}

// Text returns the source text of the captured node.
func (c Capture) Text(src []byte) string {
	return NodeText(c.Node, src)
}

// Run executes q against root and returns every capture that survives the
// query's predicates, sorted by Sort. Run never mutates the tree.
func Run(root *sitter.Node, q *sitter.Query, src []byte) []Capture {
	if root == nil || q == nil {
		return nil
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	directives := make(map[uint16]map[string]string)
	var out []Capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, src)
		if len(m.Captures) == 0 {
			continue
		}

		meta, seen := directives[m.PatternIndex]
		if !seen {
			meta = setDirectives(q, m.PatternIndex)
			directives[m.PatternIndex] = meta
		}

		for i, c := range m.Captures {
			out = append(out, Capture{
				Name:     q.CaptureNameForId(c.Index),
				Node:     c.Node,
				Range:    RangeOf(c.Node),
				Match:    m.ID,
				Pattern:  m.PatternIndex,
				Index:    i,
				Metadata: meta,
			})
		}
	}
	Sort(out)
	return out
}

// setDirectives collects the key/value pairs of every #set! predicate in a
// pattern. Other predicates are evaluated by FilterPredicates.
func setDirectives(q *sitter.Query, pattern uint16) map[string]string {
	var meta map[string]string
	for _, steps := range q.PredicatesForPattern(uint32(pattern)) {
		if len(steps) < 3 || steps[0].Type != sitter.QueryPredicateStepTypeString {
			continue
		}
		if q.StringValueForId(steps[0].ValueId) != "set!" {
			continue
		}
		if steps[1].Type != sitter.QueryPredicateStepTypeString || steps[2].Type != sitter.QueryPredicateStepTypeString {
			continue
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		meta[q.StringValueForId(steps[1].ValueId)] = q.StringValueForId(steps[2].ValueId)
	}
	return meta
}

// Sort orders captures by start byte ascending, end byte descending (outer
// before inner), category, stream, pattern and finally position in match.
func Sort(cs []Capture) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Range.StartByte != b.Range.StartByte {
			return a.Range.StartByte < b.Range.StartByte
		}
		if a.Range.EndByte != b.Range.EndByte {
			return a.Range.EndByte > b.Range.EndByte
		}
		if ca, cb := a.Category(), b.Category(); ca != cb {
			return ca < cb
		}
		if a.Stream != b.Stream {
			return a.Stream < b.Stream
		}
		if a.Pattern != b.Pattern {
			return a.Pattern < b.Pattern
		}
		if a.Match != b.Match {
			return a.Match < b.Match
		}
		return a.Index < b.Index
	})
}

// Merge combines capture lists from several documents into one sorted
// stream, tagging each capture with the index of its source list.
func Merge(streams ...[]Capture) []Capture {
	var n int
	for _, s := range streams {
		n += len(s)
	}
	out := make([]Capture, 0, n)
	for i, s := range streams {
		for _, c := range s {
			c.Stream = i
			out = append(out, c)
		}
	}
	Sort(out)
	return out
}

// RangeOf converts a node's span into a model.Range with 1-based lines and
// columns.
func RangeOf(n *sitter.Node) model.Range {
	sp, ep := n.StartPoint(), n.EndPoint()
	return model.Range{
		StartByte:   n.StartByte(),
		EndByte:     n.EndByte(),
		StartLine:   int(sp.Row) + 1,
		StartColumn: int(sp.Column) + 1,
		EndLine:     int(ep.Row) + 1,
		EndColumn:   int(ep.Column) + 1,
	}
}

// NodeText returns the source text of a node, or "" for nil.
func NodeText(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if int(end) > len(src) || start > end {
		return ""
	}
	return string(src[start:end])
}
