// Package diag classifies findings into the three diagnostic tiers:
// syntax errors read from the parse tree, lint findings from diagnostic.*
// captures, and semantic undefined-symbol errors from resolved references.
package diag

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/treehug/internal/capture"
	"github.com/jward/treehug/internal/model"
	"github.com/jward/treehug/internal/resolve"
)

// Reference kinds that name members or labels rather than bindings in
// scope. They are never checked.
var unscopedKinds = map[string]bool{
	"field":     true,
	"method":    true,
	"property":  true,
	"attribute": true,
	"namespace": true,
	"label":     true,
}

const maxSnippet = 200

func newDiagnostic(tier model.Tier, sev model.Severity, rule, msg string, r model.Range, src []byte) model.Diagnostic {
	return model.Diagnostic{
		Tier:     tier,
		Severity: sev,
		Rule:     rule,
		Message:  msg,
		Range:    r,
		Line:     r.StartLine,
		Column:   r.StartColumn,
		Snippet:  Snippet(src, r.StartByte),
	}
}

// Snippet returns the trimmed source line containing offset.
func Snippet(src []byte, offset uint32) string {
	if int(offset) > len(src) {
		return ""
	}
	start := bytes.LastIndexByte(src[:offset], '\n') + 1
	end := bytes.IndexByte(src[offset:], '\n')
	if end < 0 {
		end = len(src)
	} else {
		end += int(offset)
	}
	line := strings.TrimSpace(string(src[start:end]))
	if len(line) > maxSnippet {
		line = line[:maxSnippet]
	}
	return line
}

// Syntax reports every ERROR and missing node of a parse tree. Children of
// an ERROR node are not reported separately.
func Syntax(root *sitter.Node, src []byte) []model.Diagnostic {
	if root == nil || !root.HasError() {
		return []model.Diagnostic{}
	}
	out := []model.Diagnostic{}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch {
		case n.IsMissing():
			msg := fmt.Sprintf("%s: missing %s", Message(RuleParseError), n.Type())
			out = append(out, newDiagnostic(model.TierSyntax, model.SeverityError, RuleParseError, msg, capture.RangeOf(n), src))
			return
		case n.Type() == "ERROR":
			msg := Message(RuleParseError)
			if t := strings.TrimSpace(capture.NodeText(n, src)); t != "" {
				if len(t) > 40 {
					t = t[:40] + "..."
				}
				msg = fmt.Sprintf("%s: unexpected %q", msg, strings.Join(strings.Fields(t), " "))
			}
			out = append(out, newDiagnostic(model.TierSyntax, model.SeverityError, RuleParseError, msg, capture.RangeOf(n), src))
			return
		}
		if !n.HasError() {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c != nil {
				walk(c)
			}
		}
	}
	walk(root)
	model.SortDiagnostics(out)
	return out
}

// Lint converts diagnostic.<rule> captures into lint diagnostics, dropping
// disabled rules and exact duplicates of rule and range.
func Lint(caps []capture.Capture, src []byte, rs *RuleSet) []model.Diagnostic {
	type key struct {
		rule       string
		start, end uint32
	}
	seen := make(map[key]bool)
	out := []model.Diagnostic{}
	for _, c := range caps {
		if c.Category() != capture.CategoryDiagnostic {
			continue
		}
		rule := strings.TrimPrefix(c.Name, "diagnostic.")
		if rule == "" || !rs.Enabled(rule) {
			continue
		}
		k := key{rule, c.Range.StartByte, c.Range.EndByte}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, newDiagnostic(model.TierLint, rs.Severity(rule), rule, Message(rule), c.Range, src))
	}
	model.SortDiagnostics(out)
	return out
}

// Finding is a lint result produced outside the query engine, such as by a
// rule script.
type Finding struct {
	Rule    string
	Message string
	Line    int
	Column  int
}

// FromFindings converts findings into lint diagnostics positioned on the
// given 1-based line.
func FromFindings(fs []Finding, src []byte, rs *RuleSet) []model.Diagnostic {
	var out []model.Diagnostic
	offsets := lineOffsets(src)
	for _, f := range fs {
		if f.Rule == "" || !rs.Enabled(f.Rule) || f.Line < 1 || f.Line > len(offsets) {
			continue
		}
		lineStart, lineEnd := offsets[f.Line-1], uint32(len(src))
		if f.Line < len(offsets) {
			lineEnd = offsets[f.Line] - 1
		}
		col := max(f.Column, 1)
		start := min(lineStart+uint32(col-1), lineEnd)
		col = int(start-lineStart) + 1
		r := model.Range{StartByte: start, EndByte: start, StartLine: f.Line, StartColumn: col, EndLine: f.Line, EndColumn: col}
		msg := f.Message
		if msg == "" {
			msg = Message(f.Rule)
		}
		out = append(out, newDiagnostic(model.TierLint, rs.Severity(f.Rule), f.Rule, msg, r, src))
	}
	return out
}

func lineOffsets(src []byte) []uint32 {
	offs := []uint32{0}
	for i, b := range src {
		if b == '\n' {
			offs = append(offs, uint32(i+1))
		}
	}
	return offs
}

// Semantic reports references that resolve to nothing along their scope
// chain. isBuiltin may be nil.
func Semantic(tree *resolve.Tree, isBuiltin func(string) bool, src []byte, rs *RuleSet) []model.Diagnostic {
	out := []model.Diagnostic{}
	if tree == nil || !rs.Enabled(RuleUndefinedSymbol) {
		return out
	}
	for _, ref := range tree.References {
		if unscopedKinds[ref.Kind] {
			continue
		}
		if isBuiltin != nil && isBuiltin(ref.Name) {
			continue
		}
		if _, ok := tree.Lookup(ref.Scope, ref.Name); ok {
			continue
		}
		msg := fmt.Sprintf("%s %q", Message(RuleUndefinedSymbol), ref.Name)
		if hint := suggest(tree, ref); hint != "" {
			msg += fmt.Sprintf("; did you mean %q?", hint)
		}
		out = append(out, newDiagnostic(model.TierSemantic, rs.Severity(RuleUndefinedSymbol), RuleUndefinedSymbol, msg, ref.Range, src))
	}
	model.SortDiagnostics(out)
	return out
}

// suggest returns the visible name closest to ref.Name, if any is within
// edit distance 2.
func suggest(tree *resolve.Tree, ref model.Reference) string {
	if len(ref.Name) < 3 {
		return ""
	}
	var candidates []string
	for s := ref.Scope; s >= 0; s = tree.Scopes[s].Parent {
		for name := range tree.Scopes[s].Names() {
			candidates = append(candidates, name)
		}
	}
	sort.Strings(candidates)

	best, bestDist := "", 3
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(ref.Name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
