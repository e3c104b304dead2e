package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/treehug/internal/diag"
	"github.com/jward/treehug/internal/model"
)

// reporter collects report() calls for one script run.
type reporter struct {
	script   string
	findings []diag.Finding
}

func (e *Engine) buildGlobals(in *Input, rep *reporter, label string) map[string]any {
	if in == nil {
		in = &Input{}
	}
	return map[string]any{
		"file": object.NewMap(map[string]object.Object{
			"path":     object.NewString(in.Path),
			"language": object.NewString(in.Language),
			"hash":     object.NewString(in.Hash),
		}),
		"source":  object.NewString(string(in.Source)),
		"symbols": symbolsToList(in.Symbols),
		"imports": importsToList(in.Imports),
		"report":  makeReportFn(rep),
		"query":   makeQueryFn(in),
		"log":     mustProxy(&logObject{logger: e.logger.With("script", label, "file", in.Path)}),
	}
}

// makeReportFn creates the "report" host function.
//
// report(rule, message, line[, column])
func makeReportFn(rep *reporter) *object.Builtin {
	return object.NewBuiltin("report", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 3 || len(args) > 4 {
			return object.Errorf("report: expected 3 or 4 arguments (rule, message, line[, column]), got %d", len(args))
		}
		rule, err := toString(args[0])
		if err != nil {
			return object.Errorf("report: rule %v", err)
		}
		if rule == "" {
			return object.Errorf("report: rule must not be empty")
		}
		msg, err := toString(args[1])
		if err != nil {
			return object.Errorf("report: message %v", err)
		}
		line, err := toInt(args[2])
		if err != nil {
			return object.Errorf("report: line %v", err)
		}
		col := 1
		if len(args) == 4 {
			if col, err = toInt(args[3]); err != nil {
				return object.Errorf("report: column %v", err)
			}
		}
		rep.findings = append(rep.findings, diag.Finding{Rule: rule, Message: msg, Line: line, Column: col})
		return object.Nil
	})
}

// makeQueryFn creates the "query" host function. It runs a tree-sitter
// pattern over the file and returns one map per match, keyed by capture
// name. Each capture is a map with text, type and 1-based positions.
//
// query(pattern) → []map[string]map
func makeQueryFn(in *Input) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("query", 1, len(args))
		}
		pattern, err := toString(args[0])
		if err != nil {
			return object.Errorf("query: pattern %v", err)
		}
		if in.Root == nil || in.Grammar == nil {
			return object.Errorf("query: no syntax tree for %s", in.Path)
		}

		q, err := sitter.NewQuery([]byte(pattern), in.Grammar)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, in.Root)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, in.Source)
			if len(match.Captures) == 0 {
				continue
			}
			m := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				m[q.CaptureNameForId(c.Index)] = nodeToMap(c.Node, in.Source)
			}
			results = append(results, object.NewMap(m))
		}
		return object.NewList(results)
	})
}

func nodeToMap(n *sitter.Node, src []byte) object.Object {
	sp, ep := n.StartPoint(), n.EndPoint()
	return object.NewMap(map[string]object.Object{
		"text":       object.NewString(n.Content(src)),
		"type":       object.NewString(n.Type()),
		"line":       object.NewInt(int64(sp.Row) + 1),
		"column":     object.NewInt(int64(sp.Column) + 1),
		"end_line":   object.NewInt(int64(ep.Row) + 1),
		"end_column": object.NewInt(int64(ep.Column) + 1),
	})
}

func symbolsToList(syms []model.Symbol) object.Object {
	results := make([]object.Object, 0, len(syms))
	for _, sym := range syms {
		m := map[string]object.Object{
			"name":     object.NewString(sym.Name),
			"kind":     object.NewString(string(sym.Kind)),
			"line":     object.NewInt(int64(sym.Range.StartLine)),
			"column":   object.NewInt(int64(sym.Range.StartColumn)),
			"scope":    object.NewInt(int64(sym.Scope)),
			"exported": object.NewBool(sym.Exported),
			"doc":      object.NewString(sym.Doc),
		}
		if sym.Signature != nil {
			params := make([]object.Object, 0, len(sym.Signature.Parameters))
			for _, p := range sym.Signature.Parameters {
				params = append(params, object.NewString(p.Name))
			}
			m["parameters"] = object.NewList(params)
			m["return_type"] = object.NewString(sym.Signature.ReturnType)
		}
		results = append(results, object.NewMap(m))
	}
	return object.NewList(results)
}

func importsToList(imps []model.ImportSymbol) object.Object {
	results := make([]object.Object, 0, len(imps))
	for _, imp := range imps {
		results = append(results, object.NewMap(map[string]object.Object{
			"name":     object.NewString(imp.Name),
			"source":   object.NewString(imp.Source),
			"imported": object.NewString(imp.Imported),
			"wildcard": object.NewBool(imp.Wildcard),
			"line":     object.NewInt(int64(imp.Range.StartLine)),
		}))
	}
	return object.NewList(results)
}

func toString(obj object.Object) (string, error) {
	s, ok := obj.(*object.String)
	if !ok {
		return "", fmt.Errorf("must be a string, got %s", obj.Type())
	}
	return s.Value(), nil
}

func toInt(obj object.Object) (int, error) {
	switch v := obj.(type) {
	case *object.Int:
		return int(v.Value()), nil
	case *object.Float:
		return int(v.Value()), nil
	default:
		return 0, fmt.Errorf("must be a number, got %s", obj.Type())
	}
}

// logObject provides log.debug/info/warn/error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Debug(msg string) { l.logger.Debug(msg) }
func (l *logObject) Info(msg string)  { l.logger.Info(msg) }
func (l *logObject) Warn(msg string)  { l.logger.Warn(msg) }
func (l *logObject) Error(msg string) { l.logger.Error(msg) }

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("rules: proxy error: %v", err))
	}
	return p
}
