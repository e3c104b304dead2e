package treehug

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/treehug/internal/discover"
	"github.com/jward/treehug/internal/lang"
	"github.com/jward/treehug/internal/model"
)

func filePaths(sum *PackageSummary) []string {
	out := make([]string, 0, len(sum.Files))
	for _, f := range sum.Files {
		out = append(out, f.File)
	}
	return out
}

func TestAnalyzePackage_Fixture(t *testing.T) {
	a := newTestAnalyzer(t)
	sum, err := a.AnalyzePackage(context.Background(), filepath.Join("testdata", "pkg"), nil, nil)
	require.NoError(t, err)

	abs, err := filepath.Abs(filepath.Join("testdata", "pkg"))
	require.NoError(t, err)
	assert.Equal(t, abs, sum.RootDir)
	assert.Equal(t, "go", sum.Language)
	assert.Empty(t, sum.Errors)
	assert.Equal(t, []string{
		"lib/math.rs",
		"lib/tool.py",
		"lib/util.go",
		"main.go",
		"scripts/Build.scala",
	}, filePaths(sum))

	byPath := map[string]*FileSummary{}
	for _, f := range sum.Files {
		byPath[f.File] = f
	}
	assert.Equal(t, []string{TierLint, TierSemantic}, byPath["scripts/Build.scala"].NotEvaluated)
	assert.Equal(t, []string{"debug-print"}, ruleIDs(byPath["main.go"].Lint))
	assert.Equal(t, "rust", byPath["lib/math.rs"].Language)
}

func TestAnalyzePackage_JSONShape(t *testing.T) {
	a := newTestAnalyzer(t)
	sum, err := a.AnalyzePackage(context.Background(), filepath.Join("testdata", "pkg"), []string{"**/*.go"}, nil)
	require.NoError(t, err)

	data, err := json.Marshal(sum)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"root_dir", "language", "files"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "errors")

	files := raw["files"].([]any)
	require.Len(t, files, 2)
	first := files[0].(map[string]any)
	for _, key := range []string{"file", "language", "hash", "symbols", "imports", "exports", "locals", "lint", "syntax"} {
		assert.Contains(t, first, key)
	}
	assert.NotNil(t, first["syntax"], "empty lists serialize as []")
}

func TestAnalyzePackage_DeterministicAcrossModes(t *testing.T) {
	root := filepath.Join("testdata", "pkg")

	serial, err := newTestAnalyzer(t, WithParallel(false)).AnalyzePackage(context.Background(), root, nil, nil)
	require.NoError(t, err)
	parallel, err := newTestAnalyzer(t, WithWorkers(3)).AnalyzePackage(context.Background(), root, nil, nil)
	require.NoError(t, err)

	js, err := json.Marshal(serial)
	require.NoError(t, err)
	jp, err := json.Marshal(parallel)
	require.NoError(t, err)
	assert.JSONEq(t, string(js), string(jp))
}

func TestAnalyzePackage_IncludeExcludeAndLanguage(t *testing.T) {
	root := filepath.Join("testdata", "pkg")

	sum, err := newTestAnalyzer(t).AnalyzePackage(context.Background(), root, []string{"lib/**"}, []string{"**/*.py"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/math.rs", "lib/util.go"}, filePaths(sum))

	sum, err = newTestAnalyzer(t, WithLanguage("python")).AnalyzePackage(context.Background(), root, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/tool.py"}, filePaths(sum))
	assert.Equal(t, "python", sum.Language)

	_, err = newTestAnalyzer(t).AnalyzePackage(context.Background(), root, []string{"[unclosed"}, nil)
	require.Error(t, err)
}

func TestAnalyzePackage_PerFileErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.go", "package x\n\nfunc OK() {}\n")
	writeFile(t, dir, "blob.go", "package x\x00binary")
	writeFile(t, dir, "b.rs", "fn main() {}\n")

	sum, err := newTestAnalyzer(t).AnalyzePackage(context.Background(), dir, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"b.rs", "ok.go"}, filePaths(sum))
	require.Len(t, sum.Errors, 1)
	fe := sum.Errors[0]
	assert.Equal(t, "blob.go", fe.Path)
	assert.Equal(t, model.ErrorKindUnreadable, fe.Kind)
	assert.ErrorIs(t, fe, ErrFileUnreadable)
	assert.Equal(t, "go", sum.Language)
}

func TestAnalyzePackage_InvalidRoot(t *testing.T) {
	a := newTestAnalyzer(t)

	_, err := a.AnalyzePackage(context.Background(), filepath.Join(t.TempDir(), "nope"), nil, nil)
	require.ErrorIs(t, err, ErrInvalidRoot)

	file := writeFile(t, t.TempDir(), "a.go", "package a\n")
	_, err = a.AnalyzePackage(context.Background(), file, nil, nil)
	require.ErrorIs(t, err, ErrInvalidRoot)
}

func TestAnalyzePackage_EmptyRoot(t *testing.T) {
	sum, err := newTestAnalyzer(t).AnalyzePackage(context.Background(), t.TempDir(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, sum.Files)
	assert.NotNil(t, sum.Files)
	assert.Empty(t, sum.Language)
}

func TestAnalyzePackage_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := newTestAnalyzer(t).AnalyzePackage(ctx, filepath.Join("testdata", "pkg"), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, sum, "discovery stops before any file is listed")
}

func TestAnalyzeAll_CanceledMidScan(t *testing.T) {
	files, err := discover.Files(context.Background(), filepath.Join("testdata", "pkg"), discover.Options{})
	require.NoError(t, err)
	require.NotEmpty(t, files)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, parallel := range []bool{false, true} {
		a := newTestAnalyzer(t, WithParallel(parallel))
		results := a.analyzeAll(ctx, files, nil)
		require.Len(t, results, len(files))
		for _, r := range results {
			if r != nil && r.err != nil {
				assert.ErrorIs(t, r.err, context.Canceled)
			}
		}
	}
}

func TestAnalyzePackage_CacheReuse(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	root := filepath.Join("testdata", "pkg")
	a := newTestAnalyzer(t, WithCache(cache))

	first, err := a.AnalyzePackage(context.Background(), root, nil, nil)
	require.NoError(t, err)

	stats, err := cache.Stats()
	require.NoError(t, err)
	assert.Equal(t, len(first.Files), stats.Entries)

	second, err := a.AnalyzePackage(context.Background(), root, nil, nil)
	require.NoError(t, err)
	j1, err := json.Marshal(first)
	require.NoError(t, err)
	j2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(j1), string(j2))
}

func TestPrimaryLanguage(t *testing.T) {
	files := []discover.File{
		{Rel: "a.rs", Language: lang.Rust},
		{Rel: "b.py", Language: lang.Python},
		{Rel: "c.rs", Language: lang.Rust},
		{Rel: "d.py", Language: lang.Python},
	}
	assert.Equal(t, "python", primaryLanguage(files), "ties go to the first name")
	assert.Equal(t, "rust", primaryLanguage(append(files, discover.File{Rel: "e.rs", Language: lang.Rust})))
	assert.Empty(t, primaryLanguage(nil))
}
