package resolve

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/treehug/internal/capture"
	"github.com/jward/treehug/internal/model"
)

// Structural metadata is read off the definition's context node by node
// shape alone. The tables below list the node types that play each role
// across the bundled grammars.

var identTypes = set(
	"identifier", "field_identifier", "property_identifier", "type_identifier",
	"simple_identifier", "shorthand_property_identifier_pattern", "variable_name",
	"name", "word", "constant", "private_property_identifier", "package_identifier",
)

var methodTypes = set(
	"method_definition", "method_declaration", "function_definition", "function_item",
	"constructor_declaration", "method", "singleton_method", "function_declaration",
	"method_signature", "abstract_method_signature", "function_signature_item",
	"function_signature", "method_elem", "method_spec",
)

var fieldTypes = set(
	"field_definition", "public_field_definition", "field_declaration",
	"property_declaration", "property_signature",
)

var bodyTypes = set(
	"field_declaration_list", "ordered_field_declaration_list", "declaration_list",
	"class_body", "interface_body", "enum_body", "enum_variant_list", "enumerator_list",
	"enum_member_declaration_list", "object_type", "template_body", "enum_class_body",
	"body_statement", "block",
)

var variantTypes = set(
	"enum_variant", "enum_constant", "enum_member_declaration", "enumerator",
	"enum_assignment", "enum_entry",
)

// wrappers are nodes that sit between a declaration and the comments that
// document it.
var wrapperTypes = set(
	"decorated_definition", "export_statement", "type_declaration", "lexical_declaration",
	"variable_declaration", "const_declaration", "var_declaration", "template_declaration",
)

var attributeTypes = set("attribute_item", "decorator", "annotation", "marker_annotation", "attribute_list")

var visibilityWords = set("public", "private", "protected", "internal", "fileprivate", "open")

func set(vals ...string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

func isIdent(n *sitter.Node) bool { return n != nil && identTypes[n.Type()] }

func isComment(n *sitter.Node) bool { return n != nil && strings.Contains(n.Type(), "comment") }

func same(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	cnt := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, cnt)
	for i := 0; i < cnt; i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// identIn returns the first identifier at or below n, depth-first.
func identIn(n *sitter.Node, depth int) *sitter.Node {
	if n == nil || depth < 0 {
		return nil
	}
	if isIdent(n) {
		return n
	}
	for _, c := range namedChildren(n) {
		if id := identIn(c, depth-1); id != nil {
			return id
		}
	}
	return nil
}

// findField looks for a child field on n or its non-body descendants.
func findField(n *sitter.Node, field string, depth int) *sitter.Node {
	if n == nil || depth < 0 {
		return nil
	}
	if f := n.ChildByFieldName(field); f != nil {
		return f
	}
	body := n.ChildByFieldName("body")
	for _, c := range namedChildren(n) {
		if same(c, body) || isComment(c) || bodyTypes[c.Type()] || strings.HasSuffix(c.Type(), "block") {
			continue
		}
		if f := findField(c, field, depth-1); f != nil {
			return f
		}
	}
	return nil
}

func text(n *sitter.Node, src []byte) string {
	return strings.Join(strings.Fields(capture.NodeText(n, src)), " ")
}

// cleanType strips annotation punctuation from a type node's text.
func cleanType(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "->")
	s = strings.TrimPrefix(s, ":")
	return strings.TrimSpace(s)
}

func signatureOf(ctx *sitter.Node, src []byte) *model.Signature {
	sig := &model.Signature{Parameters: []model.Parameter{}}

	params := findField(ctx, "parameters", 3)
	if params != nil {
		sig.Parameters = parametersOf(params, src)
	} else if p := findField(ctx, "parameter", 2); p != nil {
		sig.Parameters = append(sig.Parameters, model.Parameter{Name: text(p, src)})
	}

	for _, f := range []string{"return_type", "result", "returns"} {
		if rt := findField(ctx, f, 2); rt != nil {
			sig.ReturnType = cleanType(text(rt, src))
			break
		}
	}
	if sig.ReturnType == "" && params != nil {
		owner := params.Parent()
		if owner != nil && owner.ChildByFieldName("type") != nil {
			sig.ReturnType = cleanType(text(owner.ChildByFieldName("type"), src))
		} else if ctx.ChildByFieldName("declarator") != nil && ctx.ChildByFieldName("type") != nil {
			sig.ReturnType = cleanType(text(ctx.ChildByFieldName("type"), src))
		}
	}

	sig.Visibility = visibilityOf(ctx, src)
	return sig
}

func parametersOf(list *sitter.Node, src []byte) []model.Parameter {
	out := []model.Parameter{}
	for _, c := range namedChildren(list) {
		if isComment(c) || attributeTypes[c.Type()] {
			continue
		}
		if isIdent(c) {
			out = append(out, model.Parameter{Name: text(c, src)})
			continue
		}
		typ := c.ChildByFieldName("type")
		names := paramNames(c, typ, src)
		if len(names) == 0 {
			names = []string{text(c, src)}
		}
		for _, name := range names {
			out = append(out, model.Parameter{Name: name, Type: cleanType(text(typ, src))})
		}
	}
	return out
}

func paramNames(c, typ *sitter.Node, src []byte) []string {
	value := c.ChildByFieldName("value")
	if name := c.ChildByFieldName("name"); name != nil {
		if value == nil {
			// a parameter declaration may list several names sharing one type
			var out []string
			for _, n := range namedChildren(c) {
				if isIdent(n) && !same(n, typ) {
					out = append(out, text(n, src))
				}
			}
			if len(out) > 0 {
				return out
			}
		}
		if id := identIn(name, 3); id != nil {
			return []string{text(id, src)}
		}
		return []string{text(name, src)}
	}
	for _, f := range []string{"pattern", "declarator"} {
		if n := c.ChildByFieldName(f); n != nil {
			if id := identIn(n, 4); id != nil {
				return []string{text(id, src)}
			}
		}
	}
	for _, n := range namedChildren(c) {
		if same(n, typ) || same(n, value) {
			continue
		}
		if id := identIn(n, 2); id != nil {
			return []string{text(id, src)}
		}
	}
	return nil
}

func visibilityOf(n *sitter.Node, src []byte) string {
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "visibility_modifier", "accessibility_modifier":
			return text(c, src)
		case "modifiers", "modifier", "member_modifier", "modifier_list":
			for _, w := range strings.Fields(capture.NodeText(c, src)) {
				if visibilityWords[w] {
					return w
				}
			}
		}
	}
	return ""
}

func memberVisibility(n *sitter.Node, name string, src []byte) string {
	if v := visibilityOf(n, src); v != "" {
		return v
	}
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return ""
	}
	if strings.HasPrefix(name, "_") {
		return "private"
	}
	return ""
}

func isStatic(n *sitter.Node, src []byte) bool {
	if n == nil {
		return false
	}
	if n.Type() == "singleton_method" {
		return true
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "static", "static_modifier":
			return true
		case "modifiers", "modifier", "member_modifier", "modifier_list":
			for _, w := range strings.Fields(capture.NodeText(c, src)) {
				if w == "static" {
					return true
				}
			}
		case "decorator":
			t := capture.NodeText(c, src)
			if strings.Contains(t, "staticmethod") || strings.Contains(t, "classmethod") {
				return true
			}
		}
	}
	return false
}

// declName returns the declared name of a member-like node.
func declName(n *sitter.Node, src []byte) string {
	for _, f := range []string{"name", "property", "declarator", "pattern", "left"} {
		if c := n.ChildByFieldName(f); c != nil {
			if id := identIn(c, 4); id != nil {
				return text(id, src)
			}
		}
	}
	return ""
}

// declNames returns every name declared by a field-like node.
func declNames(n *sitter.Node, src []byte) []string {
	typ := n.ChildByFieldName("type")
	value := n.ChildByFieldName("value")
	var out []string
	for _, c := range namedChildren(n) {
		if same(c, typ) || same(c, value) || isComment(c) {
			continue
		}
		switch {
		case isIdent(c):
			out = append(out, text(c, src))
		case strings.HasSuffix(c.Type(), "declarator"):
			if id := identIn(c, 3); id != nil {
				out = append(out, text(id, src))
			}
		}
	}
	if len(out) == 0 {
		if s := declName(n, src); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func bodyOf(ctx *sitter.Node) *sitter.Node {
	if b := ctx.ChildByFieldName("body"); b != nil {
		return b
	}
	if t := ctx.ChildByFieldName("type"); t != nil {
		if b := bodyIn(t); b != nil {
			return b
		}
		if t.NamedChildCount() > 0 && !isIdent(t) {
			return t
		}
	}
	return bodyIn(ctx)
}

func bodyIn(n *sitter.Node) *sitter.Node {
	for _, c := range namedChildren(n) {
		if bodyTypes[c.Type()] {
			return c
		}
	}
	return nil
}

func unwrapDecorated(n *sitter.Node) *sitter.Node {
	if n.Type() == "decorated_definition" {
		if d := n.ChildByFieldName("definition"); d != nil {
			return d
		}
	}
	return n
}

// classAssignment returns the target of a bare assignment statement in a
// class body.
func classAssignment(n *sitter.Node) (left, typ *sitter.Node) {
	if n.Type() != "expression_statement" {
		return nil, nil
	}
	a := n.NamedChild(0)
	if a == nil || a.Type() != "assignment" {
		return nil, nil
	}
	l := a.ChildByFieldName("left")
	if !isIdent(l) {
		return nil, nil
	}
	return l, a.ChildByFieldName("type")
}

func typeMetadataOf(ctx *sitter.Node, kind model.SymbolKind, src []byte) *model.TypeMetadata {
	body := bodyOf(ctx)
	if body == nil {
		return nil
	}
	md := &model.TypeMetadata{Fields: fieldsOf(body, src)}
	if kind == model.KindEnum {
		md.Variants = variantsOf(body, src)
	}
	if len(md.Fields) == 0 && len(md.Variants) == 0 {
		return nil
	}
	return md
}

func fieldsOf(body *sitter.Node, src []byte) []model.Field {
	var out []model.Field
	tuple := body.Type() == "ordered_field_declaration_list"
	idx := 0
	for _, c := range namedChildren(body) {
		if isComment(c) || attributeTypes[c.Type()] {
			continue
		}
		d := unwrapDecorated(c)
		switch {
		case tuple:
			if d.Type() == "visibility_modifier" {
				continue
			}
			out = append(out, model.Field{Name: strconv.Itoa(idx), Type: text(d, src)})
			idx++
		case fieldTypes[d.Type()]:
			typ := cleanType(text(d.ChildByFieldName("type"), src))
			vis := visibilityOf(d, src)
			for _, name := range declNames(d, src) {
				out = append(out, model.Field{Name: name, Type: typ, Visibility: vis})
			}
		default:
			if l, typ := classAssignment(d); l != nil {
				out = append(out, model.Field{Name: text(l, src), Type: cleanType(text(typ, src))})
			}
		}
	}
	return out
}

func variantsOf(body *sitter.Node, src []byte) []model.Variant {
	var out []model.Variant
	for _, c := range namedChildren(body) {
		var name string
		switch {
		case isIdent(c):
			name = text(c, src)
		case variantTypes[c.Type()]:
			name = declName(c, src)
		}
		if name == "" {
			continue
		}
		v := model.Variant{Name: name}
		if b := c.ChildByFieldName("body"); b != nil {
			v.Fields = fieldsOf(b, src)
		}
		out = append(out, v)
	}
	return out
}

func membersOf(ctx *sitter.Node, src []byte) *model.ClassMembers {
	m := &model.ClassMembers{
		StaticMethods:   []model.Member{},
		InstanceMethods: []model.Member{},
		StaticFields:    []model.Member{},
		InstanceFields:  []model.Member{},
	}
	body := bodyOf(ctx)
	if body == nil {
		return m
	}

	seen := make(map[string]bool)
	addField := func(name string, static bool, n *sitter.Node) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		mem := model.Member{Name: name, Kind: model.KindField, Visibility: memberVisibility(n, name, src), Line: int(n.StartPoint().Row) + 1}
		if static {
			m.StaticFields = append(m.StaticFields, mem)
		} else {
			m.InstanceFields = append(m.InstanceFields, mem)
		}
	}

	var methods []*sitter.Node
	for _, c := range namedChildren(body) {
		if isComment(c) {
			continue
		}
		d := unwrapDecorated(c)
		static := isStatic(d, src) || isStatic(c, src)
		switch {
		case methodTypes[d.Type()]:
			name := declName(d, src)
			if name == "" {
				continue
			}
			mem := model.Member{Name: name, Kind: model.KindMethod, Visibility: memberVisibility(d, name, src), Line: int(d.StartPoint().Row) + 1}
			if static {
				m.StaticMethods = append(m.StaticMethods, mem)
			} else {
				m.InstanceMethods = append(m.InstanceMethods, mem)
				methods = append(methods, d)
			}
		case fieldTypes[d.Type()]:
			for _, name := range declNames(d, src) {
				addField(name, static, d)
			}
		default:
			if l, _ := classAssignment(d); l != nil {
				addField(text(l, src), true, d)
			}
		}
	}

	for _, meth := range methods {
		for _, a := range receiverAssignments(meth.ChildByFieldName("body"), src) {
			addField(a.name, false, a.node)
		}
	}
	return m
}

type receiverField struct {
	name string
	node *sitter.Node
}

// receiverAssignments finds "self.x = ..." and "this.x = ..." inside a
// method body.
func receiverAssignments(body *sitter.Node, src []byte) []receiverField {
	if body == nil {
		return nil
	}
	var out []receiverField
	stack := []*sitter.Node{body}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if t := n.Type(); t == "assignment" || t == "assignment_expression" {
			left := n.ChildByFieldName("left")
			if left != nil && (left.Type() == "attribute" || left.Type() == "member_expression") {
				obj := capture.NodeText(left.ChildByFieldName("object"), src)
				prop := left.ChildByFieldName("attribute")
				if prop == nil {
					prop = left.ChildByFieldName("property")
				}
				if (obj == "self" || obj == "this") && prop != nil {
					out = append(out, receiverField{name: text(prop, src), node: n})
				}
			}
		}
		kids := namedChildren(n)
		for i := len(kids) - 1; i >= 0; i-- {
			// nested functions and classes have their own receiver
			if methodTypes[kids[i].Type()] || strings.Contains(kids[i].Type(), "class") {
				continue
			}
			stack = append(stack, kids[i])
		}
	}
	return out
}

func docOf(ctx *sitter.Node, src []byte) string {
	n := ctx
	for p := n.Parent(); p != nil && wrapperTypes[p.Type()]; p = p.Parent() {
		n = p
	}
	if doc := precedingComments(n, src); doc != "" {
		return doc
	}
	return docstring(ctx, src)
}

func precedingComments(n *sitter.Node, src []byte) string {
	var parts []string
	line := int(n.StartPoint().Row)
	for s := prevNamed(n); s != nil; s = prevNamed(s) {
		if attributeTypes[s.Type()] {
			line = int(s.StartPoint().Row)
			continue
		}
		if !isComment(s) || int(s.EndPoint().Row)+1 < line {
			break
		}
		// a trailing comment belongs to the statement it follows
		if p := prevNamed(s); p != nil && !isComment(p) && p.EndPoint().Row == s.StartPoint().Row {
			break
		}
		parts = append(parts, cleanComment(capture.NodeText(s, src)))
		line = int(s.StartPoint().Row)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// prevNamed skips anonymous siblings such as Go's "\n" terminators, whose
// span reaches the line of the following comment.
func prevNamed(n *sitter.Node) *sitter.Node {
	s := n.PrevSibling()
	for s != nil && !s.IsNamed() {
		s = s.PrevSibling()
	}
	return s
}

var commentPrefixes = []string{"///", "//!", "//", "/**", "/*", "#", "--[[", "--"}

func cleanComment(s string) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		for _, p := range commentPrefixes {
			if strings.HasPrefix(l, p) {
				l = strings.TrimPrefix(l, p)
				break
			}
		}
		l = strings.TrimSuffix(l, "*/")
		l = strings.TrimSuffix(l, "]]")
		l = strings.TrimPrefix(strings.TrimSpace(l), "* ")
		if l = strings.TrimSpace(l); l != "*" {
			lines = append(lines, l)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// docstring returns a leading string literal of the definition's body.
func docstring(ctx *sitter.Node, src []byte) string {
	body := ctx.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() != 1 {
		return ""
	}
	str := first.NamedChild(0)
	if str == nil || str.Type() != "string" {
		return ""
	}
	s := capture.NodeText(str, src)
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			s = s[len(q) : len(s)-len(q)]
			break
		}
	}
	return strings.TrimSpace(s)
}
