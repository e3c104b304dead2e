// Package treehug produces a normalized symbol inventory and a three-tier
// diagnostic report for source files in any of its supported languages,
// using tree-sitter grammars and per-language capture queries.
//
// # Pipeline
//
// Each file goes through the same language-agnostic stages:
//
//  1. Parse: tree-sitter builds a concrete syntax tree. Parse errors do not
//     stop analysis; their ranges become syntax-tier diagnostics and the
//     recovered tree is used for everything else.
//
//  2. Capture: the language's locals and references queries are executed
//     and their captures sorted into one stream.
//
//  3. Resolve: a stack machine walks the stream, building a scope tree and
//     the symbol table (functions, types, classes, imports, locals) with
//     signatures, fields, variants and class members.
//
//  4. Classify: the lint query and any Risor rule scripts produce
//     lint-tier findings; references that resolve to nothing in scope
//     become semantic-tier findings.
//
// A language without a lint query simply reports that tier as not
// evaluated.
//
// # Usage
//
//	a, err := treehug.New(treehug.WithLogger(logger))
//	if err != nil { ... }
//
//	ctx := context.Background()
//	file, err := a.AnalyzeFile(ctx, "main.go")
//	pkg, err := a.AnalyzePackage(ctx, "path/to/project", nil, []string{"**/testdata/**"})
//
// Package scans run on a worker pool and are deterministic: files are
// reported sorted by path regardless of completion order. A summary cache
// (OpenCache) lets repeated scans skip unchanged files.
package treehug
