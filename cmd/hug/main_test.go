package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/treehug"
)

var fixtureRoot = filepath.Join("..", "..", "testdata", "pkg")

// run executes hug with args and returns stdout, stderr and the error.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := newCLI(&stdout, &stderr)
	c.root.SetArgs(args)
	err := c.root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

type envelope[T any] struct {
	Command string `json:"command"`
	Results []T    `json:"results"`
	Error   string `json:"error"`
}

func decode[T any](t *testing.T, out string) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	return env
}

// =============================================================================
// analyze
// =============================================================================

func TestAnalyze_Directory(t *testing.T) {
	out, _, err := run(t, "analyze", fixtureRoot)
	require.NoError(t, err)

	var pkg treehug.PackageSummary
	require.NoError(t, json.Unmarshal([]byte(out), &pkg))
	assert.Equal(t, "go", pkg.Language)
	require.Len(t, pkg.Files, 5)
	assert.Equal(t, "lib/math.rs", pkg.Files[0].File)
}

func TestAnalyze_SingleFile(t *testing.T) {
	out, _, err := run(t, "analyze", filepath.Join(fixtureRoot, "main.go"))
	require.NoError(t, err)

	var sum treehug.FileSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, "go", sum.Language)
	assert.Len(t, sum.Lint, 1)
}

func TestAnalyze_YAMLAndText(t *testing.T) {
	out, _, err := run(t, "analyze", fixtureRoot, "--format", "yaml", "--include", "**/*.rs")
	require.NoError(t, err)
	assert.Contains(t, out, "root_dir: ")
	assert.Contains(t, out, "file: lib/math.rs")
	assert.NotContains(t, out, "{")

	out, _, err = run(t, "scan", fixtureRoot, "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "FILE")
	assert.Contains(t, out, "scripts/Build.scala")
	assert.Contains(t, out, "lint")
}

func TestAnalyze_Errors(t *testing.T) {
	_, _, err := run(t, "analyze", fixtureRoot, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")

	out, _, err := run(t, "analyze", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, decode[any](t, out).Error, "path not found")

	_, stderr, err := run(t, "analyze", fixtureRoot, "--language", "cobol", "--format", "text")
	require.Error(t, err)
	assert.Contains(t, stderr, "cobol")
}

// =============================================================================
// listings
// =============================================================================

func TestFunctions(t *testing.T) {
	out, _, err := run(t, "functions", fixtureRoot)
	require.NoError(t, err)

	env := decode[SymbolRow](t, out)
	assert.Equal(t, "functions", env.Command)
	sigs := map[string]string{}
	for _, r := range env.Results {
		sigs[r.Name] = r.Signature
	}
	assert.Equal(t, "add(a: i32, b: i32) -> i32", sigs["add"])
	assert.Contains(t, sigs, "Greet")
	assert.Contains(t, sigs, "helper")
}

func TestExportsAndImports(t *testing.T) {
	out, _, err := run(t, "exports", fixtureRoot, "--include", "*.go")
	require.NoError(t, err)
	env := decode[SymbolRow](t, out)
	require.Len(t, env.Results, 1)
	assert.Equal(t, "Greet", env.Results[0].Name)
	assert.Equal(t, "Greet returns a greeting for name.", env.Results[0].Doc)

	out, _, err = run(t, "imports", fixtureRoot)
	require.NoError(t, err)
	imports := decode[ImportRow](t, out)
	require.Len(t, imports.Results, 1)
	assert.Equal(t, ImportRow{File: "main.go", Name: "fmt", Source: "fmt", Line: 3}, imports.Results[0])
}

func TestSymbols_KindFilter(t *testing.T) {
	out, _, err := run(t, "symbols", fixtureRoot, "--kind", "module")
	require.NoError(t, err)
	env := decode[SymbolRow](t, out)
	require.Len(t, env.Results, 1)
	assert.Equal(t, "Build", env.Results[0].Name)
}

func TestClasses(t *testing.T) {
	dir := t.TempDir()
	src := `class Counter:
    total = 0

    def __init__(self, start):
        self.value = start

    @staticmethod
    def make():
        return Counter(0)
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counter.py"), []byte(src), 0o644))

	out, _, err := run(t, "classes", dir, "--name", "Counter", "--static-only")
	require.NoError(t, err)
	env := decode[ClassRow](t, out)
	require.Len(t, env.Results, 1)
	row := env.Results[0]
	require.Len(t, row.StaticMethods, 1)
	assert.Equal(t, "make", row.StaticMethods[0].Name)
	assert.Empty(t, row.InstanceMethods)
	assert.Empty(t, row.InstanceFields)

	_, _, err = run(t, "classes", dir, "--static-only", "--instance-only")
	require.Error(t, err)
}

// =============================================================================
// lint
// =============================================================================

func TestLint(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.rs"),
		[]byte("fn main() {\n    foo();\n}\nfn broken( {\n"), 0o644))

	out, _, err := run(t, "lint", dir)
	require.NoError(t, err)
	env := decode[DiagnosticRow](t, out)
	tiers := map[string]bool{}
	for _, r := range env.Results {
		tiers[r.Tier] = true
	}
	assert.True(t, tiers["syntax"])
	assert.True(t, tiers["semantic"])

	out, _, err = run(t, "lint", dir, "--syntax-only")
	require.NoError(t, err)
	for _, r := range decode[DiagnosticRow](t, out).Results {
		assert.Equal(t, "syntax", r.Tier)
	}

	out, _, err = run(t, "lint", dir, "--lint-only", "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "main.rs:2:5: error [semantic] undefined-symbol")
	assert.NotContains(t, out, "[syntax]")

	_, _, err = run(t, "lint", dir, "--lint-only", "--syntax-only")
	require.Error(t, err)
}

func TestLint_ConfigFileAndRules(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"),
		[]byte("import os\n\nprint(os.getcwd())\n# TODO: remove\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "no-os.risor"),
		[]byte(`for _, imp := range imports {
    if imp["source"] == "os" {
        report("no-os", "os is banned", imp["line"])
    }
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".treehug.yaml"), []byte(`scripts: [no-os.risor]
rules:
  disable: [todo-comment]
  severity:
    debug-print: error
`), 0o644))

	out, _, err := run(t, "lint", dir)
	require.NoError(t, err)
	got := map[string]string{}
	for _, r := range decode[DiagnosticRow](t, out).Results {
		got[r.Rule] = r.Severity
	}
	assert.Equal(t, map[string]string{"debug-print": "error", "no-os": "warning"}, got)
}

// =============================================================================
// languages / cache
// =============================================================================

func TestLanguages(t *testing.T) {
	out, _, err := run(t, "languages")
	require.NoError(t, err)
	rows := map[string]LanguageRow{}
	for _, r := range decode[LanguageRow](t, out).Results {
		rows[r.Name] = r
	}
	require.Contains(t, rows, "go")
	assert.Equal(t, []string{"locals", "lint", "references"}, rows["go"].Queries)
	assert.Equal(t, "capitalized", rows["go"].Export)
	assert.Equal(t, []string{"locals"}, rows["scala"].Queries)

	out, _, err = run(t, "languages", "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "LANGUAGE")
}

func TestCache(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sub", "cache.db")

	out, _, err := run(t, "cache", "stats", fixtureRoot)
	require.Error(t, err)
	assert.Contains(t, decode[any](t, out).Error, "no cache configured")

	_, _, err = run(t, "analyze", fixtureRoot, "--cache", db)
	require.NoError(t, err)

	out, _, err = run(t, "cache", "stats", fixtureRoot, "--cache", db)
	require.NoError(t, err)
	var st CacheStats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 5, st.Entries)
	assert.Equal(t, 1, st.EngineKeys)
	assert.NotEmpty(t, st.EngineKey)
	assert.Empty(t, st.PrunedAt)

	out, _, err = run(t, "cache", "prune", fixtureRoot, "--cache", db, "--exclude", "lib/**")
	require.NoError(t, err)
	var pr CachePrune
	require.NoError(t, json.Unmarshal([]byte(out), &pr))
	assert.Equal(t, int64(3), pr.Removed)
	assert.Equal(t, 2, pr.Kept)

	out, _, err = run(t, "cache", "stats", fixtureRoot, "--cache", db)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 2, st.Entries)
	assert.NotEmpty(t, st.PrunedAt)
}

// =============================================================================
// helpers
// =============================================================================

func TestValidateFormat(t *testing.T) {
	for _, f := range validFormats {
		assert.NoError(t, validateFormat(f))
	}
	assert.Error(t, validateFormat("csv"))
}

func TestFormatSignature(t *testing.T) {
	assert.Empty(t, formatSignature(treehug.Symbol{Name: "x"}))
	s := treehug.Symbol{Name: "f", Signature: &treehug.Signature{
		Parameters: []treehug.Parameter{{Name: "self"}, {Name: "n", Type: "int"}},
		ReturnType: "str",
	}}
	assert.Equal(t, "f(self, n: int) -> str", formatSignature(s))
}

func TestWriteYAML_PreservesOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, ImportRow{File: "a.py", Name: "os", Line: 1}))
	assert.Equal(t, "file: a.py\nname: os\nwildcard: false\nline: 1\n", buf.String())
}
