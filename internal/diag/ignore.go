package diag

import (
	"strings"

	"github.com/jward/treehug/internal/model"
)

const (
	ignoreLine = "treehug-ignore"
	ignoreFile = "treehug-ignore-file"
)

// Directives holds the suppressions declared in a file's comments:
//
//	// treehug-ignore                 every rule on the next line
//	// treehug-ignore: r1, r2         the listed rules on the next line
//	// treehug-ignore-file[: r1, r2]  the whole file
type Directives struct {
	allFile   bool
	fileRules map[string]bool
	allLines  map[int]bool
	lineRules map[int]map[string]bool
}

// ParseDirectives scans src line by line for ignore comments.
func ParseDirectives(src []byte) *Directives {
	d := &Directives{
		fileRules: make(map[string]bool),
		allLines:  make(map[int]bool),
		lineRules: make(map[int]map[string]bool),
	}
	for i, line := range strings.Split(string(src), "\n") {
		comment := commentText(strings.TrimSpace(line))
		if comment == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(comment, ignoreFile); ok {
			rules := parseRuleList(rest)
			if len(rules) == 0 {
				d.allFile = true
			}
			for _, r := range rules {
				d.fileRules[r] = true
			}
			continue
		}
		if rest, ok := strings.CutPrefix(comment, ignoreLine); ok {
			next := i + 2
			rules := parseRuleList(rest)
			if len(rules) == 0 {
				d.allLines[next] = true
				continue
			}
			if d.lineRules[next] == nil {
				d.lineRules[next] = make(map[string]bool)
			}
			for _, r := range rules {
				d.lineRules[next][r] = true
			}
		}
	}
	return d
}

func parseRuleList(s string) []string {
	s = strings.TrimSpace(strings.TrimLeft(s, ":"))
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

var commentMarkers = []string{"//", "#", "--", ";;", ";"}

func commentText(line string) string {
	for _, p := range commentMarkers {
		if rest, ok := strings.CutPrefix(line, p); ok {
			return strings.TrimSpace(rest)
		}
	}
	if strings.HasPrefix(line, "/*") {
		line = strings.TrimPrefix(line, "/*")
		return strings.TrimSpace(strings.TrimSuffix(line, "*/"))
	}
	return ""
}

// Empty reports whether no directive was found.
func (d *Directives) Empty() bool {
	return d == nil || (!d.allFile && len(d.fileRules) == 0 && len(d.allLines) == 0 && len(d.lineRules) == 0)
}

// Suppressed reports whether rule is ignored at the 1-based line.
func (d *Directives) Suppressed(line int, rule string) bool {
	if d == nil {
		return false
	}
	return d.allFile || d.fileRules[rule] || d.allLines[line] || d.lineRules[line][rule]
}

// Filter drops suppressed diagnostics. Syntax errors are never suppressed.
func (d *Directives) Filter(ds []model.Diagnostic) []model.Diagnostic {
	if d.Empty() {
		return ds
	}
	out := ds[:0]
	for _, diag := range ds {
		if diag.Tier != model.TierSyntax && d.Suppressed(diag.Line, diag.Rule) {
			continue
		}
		out = append(out, diag)
	}
	return out
}
