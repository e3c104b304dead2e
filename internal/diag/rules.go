package diag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jward/treehug/internal/model"
)

// Rule ids produced by the engine itself rather than by a lint query.
const (
	RuleParseError      = "parse-error"
	RuleUndefinedSymbol = "undefined-symbol"
)

// Rule describes a diagnostic rule id.
type Rule struct {
	ID       string
	Severity model.Severity
	Message  string
}

// Rules is the built-in rule table. Rule ids are part of the output
// contract.
var Rules = map[string]Rule{
	RuleParseError:       {RuleParseError, model.SeverityError, "Syntax error"},
	RuleUndefinedSymbol:  {RuleUndefinedSymbol, model.SeverityError, "Reference to undefined symbol"},
	"unwrap-call":        {"unwrap-call", model.SeverityWarning, "Explicit unwrap() call"},
	"expect-call":        {"expect-call", model.SeverityWarning, "Explicit expect() call"},
	"dbg-macro":          {"dbg-macro", model.SeverityWarning, "Debug macro dbg!() call"},
	"todo-macro":         {"todo-macro", model.SeverityWarning, "Unfinished code macro"},
	"panic-call":         {"panic-call", model.SeverityWarning, "Explicit panic() call"},
	"eval-call":          {"eval-call", model.SeverityWarning, "Use of eval() is discouraged"},
	"exec-call":          {"exec-call", model.SeverityWarning, "Use of exec() is discouraged"},
	"debugger-statement": {"debugger-statement", model.SeverityWarning, "Debugger statement found"},
	"breakpoint-call":    {"breakpoint-call", model.SeverityWarning, "Breakpoint call found"},
	"debug-print":        {"debug-print", model.SeverityWarning, "Debug print statement"},
	"print-stack-trace":  {"print-stack-trace", model.SeverityWarning, "printStackTrace() call"},
	"unsafe-call":        {"unsafe-call", model.SeverityWarning, "Call to an unsafe C library function"},
	"todo-comment":       {"todo-comment", model.SeverityWarning, "Unresolved TODO comment"},
}

// RuleSet applies configuration on top of the rule table. The zero value
// and nil both mean "built-in defaults".
type RuleSet struct {
	disabled map[string]bool
	severity map[string]model.Severity
}

// NewRuleSet builds a RuleSet from disabled rule ids and severity
// overrides ("error" or "warning").
func NewRuleSet(disable []string, severity map[string]string) (*RuleSet, error) {
	rs := &RuleSet{
		disabled: make(map[string]bool, len(disable)),
		severity: make(map[string]model.Severity, len(severity)),
	}
	for _, id := range disable {
		rs.disabled[strings.TrimSpace(id)] = true
	}
	for id, s := range severity {
		switch sev := model.Severity(strings.ToLower(strings.TrimSpace(s))); sev {
		case model.SeverityError, model.SeverityWarning:
			rs.severity[id] = sev
		default:
			return nil, fmt.Errorf("diag: rule %q: invalid severity %q", id, s)
		}
	}
	return rs, nil
}

// Enabled reports whether diagnostics for id should be emitted.
func (rs *RuleSet) Enabled(id string) bool {
	return rs == nil || !rs.disabled[id]
}

// Severity returns the configured severity of id. Unknown rules are
// warnings.
func (rs *RuleSet) Severity(id string) model.Severity {
	if rs != nil {
		if s, ok := rs.severity[id]; ok {
			return s
		}
	}
	if r, ok := Rules[id]; ok {
		return r.Severity
	}
	return model.SeverityWarning
}

// Message returns the human readable message for id.
func Message(id string) string {
	if r, ok := Rules[id]; ok {
		return r.Message
	}
	return "Lint rule: " + id
}

// RuleIDs returns the built-in rule ids, sorted.
func RuleIDs() []string {
	ids := make([]string, 0, len(Rules))
	for id := range Rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
