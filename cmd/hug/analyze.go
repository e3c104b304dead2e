package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/treehug"
	"github.com/jward/treehug/internal/model"
)

// --- Analysis ---

// collect analyzes the target and returns the file summaries in path
// order. For a directory, per-file failures are returned alongside.
func (c *cli) collect(cmd *cobra.Command, args []string) ([]*treehug.FileSummary, *treehug.PackageSummary, error) {
	s, err := c.open(cmd, args)
	if err != nil {
		return nil, nil, err
	}
	defer s.Close()

	ctx := cmd.Context()
	if !s.isDir {
		sum, err := s.analyzer.AnalyzeFile(ctx, args[0])
		if err != nil {
			return nil, nil, err
		}
		return []*treehug.FileSummary{sum}, nil, nil
	}

	pkg, err := s.analyzer.AnalyzePackage(ctx, s.target, s.cfg.Include, s.cfg.Exclude)
	if err != nil {
		return nil, nil, err
	}
	for _, fe := range pkg.Errors {
		s.logger.Debug("skipped file", "file", fe.Path, "kind", fe.Kind)
	}
	return pkg.Files, pkg, nil
}

func (c *cli) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "analyze [path]",
		Aliases: []string{"scan"},
		Short:   "Print the full summary of a file or directory",
		Long: `Analyzes a file or a directory tree and prints its summary: symbols,
imports, exports, locals and lint/syntax diagnostics per file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, pkg, err := c.collect(cmd, args)
			if err != nil {
				return c.outputError("analyze", err)
			}
			var (
				v    any
				errs []*treehug.FileError
			)
			if pkg != nil {
				v, errs = pkg, pkg.Errors
			} else {
				v = files[0]
			}
			return c.output(v, func(w io.Writer) { formatSummaryText(w, files, errs) })
		},
	}
}

// --- Symbol listings ---

// listCmd builds a command that prints the symbols selected by pick.
func (c *cli) listCmd(use, short string, pick func(*treehug.FileSummary) []treehug.Symbol) *cobra.Command {
	name := strings.Fields(use)[0]
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, pkg, err := c.collect(cmd, args)
			if err != nil {
				return c.outputError(name, err)
			}
			rows := []SymbolRow{}
			for _, f := range files {
				for _, s := range pick(f) {
					rows = append(rows, symbolRow(f.File, s))
				}
			}
			return c.outputRows(name, rows, pkg, func(w io.Writer) { formatSymbolsText(w, rows) })
		},
	}
}

func (c *cli) symbolsCmd() *cobra.Command {
	var kinds []string
	cmd := c.listCmd("symbols [path]", "List every definition", func(f *treehug.FileSummary) []treehug.Symbol {
		if len(kinds) == 0 {
			return f.Symbols
		}
		ks := make([]treehug.SymbolKind, 0, len(kinds))
		for _, k := range kinds {
			ks = append(ks, treehug.SymbolKind(k))
		}
		return f.SymbolsOfKind(ks...)
	})
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "filter by kind (function, method, class, variable, ...)")
	return cmd
}

func (c *cli) functionsCmd() *cobra.Command {
	return c.listCmd("functions [path]", "List functions and methods", func(f *treehug.FileSummary) []treehug.Symbol {
		return f.SymbolsOfKind(model.KindFunction, model.KindMethod)
	})
}

func (c *cli) typesCmd() *cobra.Command {
	return c.listCmd("types [path]", "List types, classes, interfaces, traits and enums", func(f *treehug.FileSummary) []treehug.Symbol {
		return f.SymbolsOfKind(model.KindType, model.KindClass, model.KindInterface, model.KindTrait, model.KindEnum)
	})
}

func (c *cli) exportsCmd() *cobra.Command {
	return c.listCmd("exports [path]", "List exported definitions", func(f *treehug.FileSummary) []treehug.Symbol {
		return f.Exports
	})
}

func (c *cli) importsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "imports [path]",
		Short: "List imports",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, pkg, err := c.collect(cmd, args)
			if err != nil {
				return c.outputError("imports", err)
			}
			rows := []ImportRow{}
			for _, f := range files {
				for _, imp := range f.Imports {
					rows = append(rows, ImportRow{
						File:     f.File,
						Name:     imp.Name,
						Source:   imp.Source,
						Imported: imp.Imported,
						Wildcard: imp.Wildcard,
						Line:     imp.Range.StartLine,
					})
				}
			}
			return c.outputRows("imports", rows, pkg, func(w io.Writer) { formatImportsText(w, rows) })
		},
	}
}

func (c *cli) classesCmd() *cobra.Command {
	var (
		name         string
		staticOnly   bool
		instanceOnly bool
	)
	cmd := &cobra.Command{
		Use:   "classes [path]",
		Short: "List classes with static and instance members",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, pkg, err := c.collect(cmd, args)
			if err != nil {
				return c.outputError("classes", err)
			}
			rows := []ClassRow{}
			for _, f := range files {
				for _, s := range f.Symbols {
					if !s.Kind.IsTypeLike() || (name != "" && s.Name != name) {
						continue
					}
					if s.Members == nil && s.Kind != model.KindClass {
						continue
					}
					rows = append(rows, classRow(f.File, s, staticOnly, instanceOnly))
				}
			}
			return c.outputRows("classes", rows, pkg, func(w io.Writer) { formatClassesText(w, rows) })
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "only the class with this name")
	cmd.Flags().BoolVar(&staticOnly, "static-only", false, "show only static members")
	cmd.Flags().BoolVar(&instanceOnly, "instance-only", false, "show only instance members")
	cmd.MarkFlagsMutuallyExclusive("static-only", "instance-only")
	return cmd
}

// --- Diagnostics ---

func (c *cli) lintCmd() *cobra.Command {
	var lintOnly, syntaxOnly bool
	cmd := &cobra.Command{
		Use:   "lint [path]",
		Short: "Report syntax, lint and semantic diagnostics",
		Long: `Reports parse errors (syntax tier), pattern findings and rule script
findings (lint tier), and references to undefined names (semantic tier).

Findings can be suppressed in source with "treehug-ignore[: rules]" on the
line above, or "treehug-ignore-file[: rules]" anywhere in the file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, pkg, err := c.collect(cmd, args)
			if err != nil {
				return c.outputError("lint", err)
			}
			rows := []DiagnosticRow{}
			for _, f := range files {
				if !lintOnly {
					rows = appendDiagnostics(rows, f.File, f.Syntax)
				}
				if !syntaxOnly {
					rows = appendDiagnostics(rows, f.File, f.Lint)
				}
			}
			return c.outputRows("lint", rows, pkg, func(w io.Writer) { formatDiagnosticsText(w, rows) })
		},
	}
	cmd.Flags().BoolVar(&lintOnly, "lint-only", false, "only lint and semantic diagnostics")
	cmd.Flags().BoolVar(&syntaxOnly, "syntax-only", false, "only syntax diagnostics")
	cmd.MarkFlagsMutuallyExclusive("lint-only", "syntax-only")
	return cmd
}

// outputRows wraps rows in a CLIResult for json and yaml output.
func (c *cli) outputRows(command string, rows any, pkg *treehug.PackageSummary, text func(io.Writer)) error {
	result := CLIResult{Command: command, Results: rows}
	if pkg != nil {
		result.Errors = pkg.Errors
	}
	return c.output(result, text)
}

func appendDiagnostics(rows []DiagnosticRow, file string, ds []treehug.Diagnostic) []DiagnosticRow {
	for _, d := range ds {
		rows = append(rows, DiagnosticRow{
			File:     file,
			Tier:     string(d.Tier),
			Severity: string(d.Severity),
			Rule:     d.Rule,
			Message:  d.Message,
			Line:     d.Line,
			Column:   d.Column,
			Snippet:  d.Snippet,
		})
	}
	return rows
}

func symbolRow(file string, s treehug.Symbol) SymbolRow {
	return SymbolRow{
		File:      file,
		Name:      s.Name,
		Kind:      string(s.Kind),
		Line:      s.Range.StartLine,
		Column:    s.Range.StartColumn,
		Exported:  s.Exported,
		Signature: formatSignature(s),
		Doc:       s.Doc,
	}
}

// formatSignature renders "name(a: T, b) -> R" for callables.
func formatSignature(s treehug.Symbol) string {
	if s.Signature == nil {
		return ""
	}
	params := make([]string, 0, len(s.Signature.Parameters))
	for _, p := range s.Signature.Parameters {
		if p.Type != "" {
			params = append(params, p.Name+": "+p.Type)
		} else {
			params = append(params, p.Name)
		}
	}
	sig := fmt.Sprintf("%s(%s)", s.Name, strings.Join(params, ", "))
	if s.Signature.ReturnType != "" {
		sig += " -> " + s.Signature.ReturnType
	}
	return sig
}

func classRow(file string, s treehug.Symbol, staticOnly, instanceOnly bool) ClassRow {
	row := ClassRow{
		File:            file,
		Name:            s.Name,
		Kind:            string(s.Kind),
		Line:            s.Range.StartLine,
		StaticMethods:   []treehug.Member{},
		InstanceMethods: []treehug.Member{},
		StaticFields:    []treehug.Member{},
		InstanceFields:  []treehug.Member{},
	}
	if m := s.Members; m != nil {
		if !instanceOnly {
			row.StaticMethods = append(row.StaticMethods, m.StaticMethods...)
			row.StaticFields = append(row.StaticFields, m.StaticFields...)
		}
		if !staticOnly {
			row.InstanceMethods = append(row.InstanceMethods, m.InstanceMethods...)
			row.InstanceFields = append(row.InstanceFields, m.InstanceFields...)
		}
	}
	return row
}
