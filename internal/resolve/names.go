package resolve

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jward/treehug/internal/model"
)

// kindNames maps the <kind> segment of a definition capture to a SymbolKind.
var kindNames = map[string]model.SymbolKind{
	"function":  model.KindFunction,
	"method":    model.KindMethod,
	"type":      model.KindType,
	"class":     model.KindClass,
	"interface": model.KindInterface,
	"trait":     model.KindTrait,
	"enum":      model.KindEnum,
	"module":    model.KindModule,
	"namespace": model.KindNamespace,
	"import":    model.KindImport,
	"field":     model.KindField,
	"parameter": model.KindParameter,
	"var":       model.KindVariable,
	"variable":  model.KindVariable,
	"constant":  model.KindVariable,
	"macro":     model.KindFunction,
}

// kindRank orders kinds by specificity. When two definition captures land on
// the same name node, the more specific kind is kept.
var kindRank = map[model.SymbolKind]int{
	model.KindVariable:  0,
	model.KindImport:    0,
	model.KindFunction:  1,
	model.KindType:      1,
	model.KindModule:    1,
	model.KindMethod:    2,
	model.KindClass:     2,
	model.KindInterface: 2,
	model.KindEnum:      2,
	model.KindTrait:     2,
	model.KindNamespace: 2,
	model.KindParameter: 2,
	model.KindField:     2,
}

// parseDefinition splits "local.definition.<kind>[.context]".
func parseDefinition(name string) (kind model.SymbolKind, context bool, ok bool) {
	rest := strings.TrimPrefix(name, "local.definition.")
	if rest == name {
		return "", false, false
	}
	if strings.HasSuffix(rest, ".context") {
		rest = strings.TrimSuffix(rest, ".context")
		context = true
	}
	kind, ok = kindNames[rest]
	return kind, context, ok
}

var versionSegment = regexp.MustCompile(`^v[0-9]+$`)
var versionSuffix = regexp.MustCompile(`\.v[0-9]+$`)

// trimQuotes strips one layer of quoting or angle brackets.
func trimQuotes(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && last == first {
			return s[1 : len(s)-1], true
		}
		if first == '<' && last == '>' {
			return s[1 : len(s)-1], true
		}
	}
	return s, false
}

// ImportName derives the identifier an import binds from its captured text.
// Quoted module paths bind their last path segment, ignoring major-version
// suffixes; anything ending in "*" (or a bare ".") is a wildcard.
func ImportName(text string) (name string, wildcard bool) {
	s, quoted := trimQuotes(text)
	if s == "." || strings.HasSuffix(s, "*") {
		return "*", true
	}
	switch {
	case strings.Contains(s, "/"):
		segs := strings.Split(strings.TrimRight(s, "/"), "/")
		last := segs[len(segs)-1]
		if versionSegment.MatchString(last) && len(segs) > 1 {
			last = segs[len(segs)-2]
		}
		s = versionSuffix.ReplaceAllString(last, "")
	case strings.Contains(s, "::"):
		s = s[strings.LastIndex(s, "::")+2:]
	case !quoted && strings.Contains(s, "."):
		s = s[strings.LastIndex(s, ".")+1:]
	}
	return s, false
}

// ImportSource normalizes a captured module path for display.
func ImportSource(text string) string {
	s, _ := trimQuotes(text)
	s = strings.TrimSuffix(s, "::*")
	s = strings.TrimSuffix(s, ".*")
	return strings.Join(strings.Fields(s), "")
}

func isCapitalized(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
