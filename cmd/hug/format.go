package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/jward/treehug"
)

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text", "yaml"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(validFormats, ", "))
}

// output writes v in the selected format. text is called for --format text.
func (c *cli) output(v any, text func(io.Writer)) error {
	switch c.flagFormat {
	case "text":
		text(c.stdout)
		return nil
	case "yaml":
		return writeYAML(c.stdout, v)
	default:
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON and YAML mode the error is written to
// stdout as a CLIResult envelope. In text mode it goes to stderr.
func (c *cli) outputError(command string, err error) error {
	c.errorHandled = true
	if c.flagFormat == "text" {
		fmt.Fprintf(c.stderr, "Error: %s\n", err)
		return err
	}
	_ = c.output(CLIResult{Command: command, Error: err.Error()}, nil)
	return err
}

// writeYAML renders v through its JSON form so the yaml output uses the
// same field names and order as json.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	blockStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle drops the flow and quoting styles inherited from JSON.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		blockStyle(child)
	}
}

// formatSymbolsText formats SymbolRow results as aligned columns.
func formatSymbolsText(w io.Writer, rows []SymbolRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tLINE\tKIND\tNAME\tEXPORTED\tSIGNATURE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%t\t%s\n",
			r.File, r.Line, r.Kind, r.Name, r.Exported, r.Signature)
	}
	tw.Flush()
}

// formatImportsText formats ImportRow results as aligned columns.
func formatImportsText(w io.Writer, rows []ImportRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tLINE\tNAME\tSOURCE\tWILDCARD")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%t\n", r.File, r.Line, r.Name, r.Source, r.Wildcard)
	}
	tw.Flush()
}

// formatClassesText lists each class with its partitioned members.
func formatClassesText(w io.Writer, rows []ClassRow) {
	for i, r := range rows {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s (%s:%d)\n", r.Kind, r.Name, r.File, r.Line)
		section := func(label string, ms []treehug.Member) {
			if len(ms) == 0 {
				return
			}
			fmt.Fprintf(w, "  %s:\n", label)
			for _, m := range ms {
				vis := ""
				if m.Visibility != "" {
					vis = " [" + m.Visibility + "]"
				}
				fmt.Fprintf(w, "    %s%s (line %d)\n", m.Name, vis, m.Line)
			}
		}
		section("static methods", r.StaticMethods)
		section("instance methods", r.InstanceMethods)
		section("static fields", r.StaticFields)
		section("instance fields", r.InstanceFields)
	}
}

// formatDiagnosticsText prints one "file:line:col: severity [tier] rule: message" line per finding.
func formatDiagnosticsText(w io.Writer, rows []DiagnosticRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(no diagnostics)")
		return
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s:%d:%d: %s [%s] %s: %s\n",
			r.File, r.Line, r.Column, r.Severity, r.Tier, r.Rule, r.Message)
		if r.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", r.Snippet)
		}
	}
}

// formatLanguagesText formats LanguageRow results as aligned columns.
func formatLanguagesText(w io.Writer, rows []LanguageRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LANGUAGE\tEXTENSIONS\tEXPORTS\tQUERIES")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			r.Name, strings.Join(r.Extensions, ","), r.Export, strings.Join(r.Queries, ","))
	}
	tw.Flush()
}

// formatSummaryText prints per-file counts for an analyze run.
func formatSummaryText(w io.Writer, files []*treehug.FileSummary, errs []*treehug.FileError) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tLANGUAGE\tSYMBOLS\tIMPORTS\tEXPORTS\tLINT\tSYNTAX\tNOT EVALUATED")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			f.File, f.Language, len(f.Symbols), len(f.Imports), len(f.Exports),
			len(f.Lint), len(f.Syntax), strings.Join(f.NotEvaluated, ","))
	}
	tw.Flush()
	if len(errs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, e := range errs {
			fmt.Fprintf(w, "  %s (%s): %v\n", e.Path, e.Kind, e.Err)
		}
	}
}
