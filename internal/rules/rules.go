// Package rules runs user-supplied Risor scripts against analyzed files.
// Each script sees the file's source, symbols and imports and calls
// report() to emit lint findings.
package rules

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/treehug/internal/diag"
	"github.com/jward/treehug/internal/model"
	"github.com/jward/treehug/internal/slogutil"
)

// Script is a loaded rule script.
type Script struct {
	Path   string
	Source string
}

// Engine holds the loaded scripts. It is safe for concurrent Run calls;
// every run evaluates in a fresh Risor VM.
type Engine struct {
	fsys    fs.FS
	logger  *slog.Logger
	scripts []Script
}

// Option configures an Engine.
type Option func(*Engine)

// WithFS loads scripts (and resolves their imports) from fsys instead of
// the local disk.
func WithFS(fsys fs.FS) Option {
	return func(e *Engine) { e.fsys = fsys }
}

// WithLogger sets the logger behind the scripts' log global.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Input is everything a script can see about one file.
type Input struct {
	Path     string
	Language string
	Hash     string
	Source   []byte
	Root     *sitter.Node
	Grammar  *sitter.Language
	Symbols  []model.Symbol
	Imports  []model.ImportSymbol
}

// New loads every script in paths. Directories contribute all the .risor
// files below them.
func New(paths []string, opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slogutil.NewDiscardLogger()
	}

	files, err := e.expand(paths)
	if err != nil {
		return nil, err
	}
	for _, p := range files {
		src, err := e.LoadScript(p)
		if err != nil {
			return nil, err
		}
		e.scripts = append(e.scripts, Script{Path: p, Source: src})
	}
	return e, nil
}

func (e *Engine) expand(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		var info fs.FileInfo
		var err error
		if e.fsys != nil {
			info, err = fs.Stat(e.fsys, fsPath(p))
		} else {
			info, err = os.Stat(p)
		}
		if err != nil {
			return nil, fmt.Errorf("rules: %s: %w", p, err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		var found []string
		walk := func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".risor") {
				found = append(found, path)
			}
			return nil
		}
		if e.fsys != nil {
			err = fs.WalkDir(e.fsys, fsPath(p), walk)
		} else {
			err = filepath.WalkDir(p, walk)
		}
		if err != nil {
			return nil, fmt.Errorf("rules: walking %s: %w", p, err)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

func fsPath(p string) string {
	p = strings.TrimPrefix(filepath.ToSlash(p), "/")
	if p == "" {
		return "."
	}
	return p
}

// LoadScript reads a .risor file from the configured fs.FS or from disk.
func (e *Engine) LoadScript(path string) (string, error) {
	if e.fsys != nil {
		data, err := fs.ReadFile(e.fsys, fsPath(path))
		if err != nil {
			return "", fmt.Errorf("rules: loading script %s from fs: %w", path, err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("rules: loading script %s: %w", path, err)
	}
	return string(data), nil
}

// Scripts returns the loaded scripts in run order.
func (e *Engine) Scripts() []Script {
	if e == nil {
		return nil
	}
	return e.scripts
}

// Hash is a sha256 over the sorted script paths and contents. It is
// empty when no scripts are loaded.
func (e *Engine) Hash() string {
	if e == nil || len(e.scripts) == 0 {
		return ""
	}
	sorted := make([]Script, len(e.scripts))
	copy(sorted, e.scripts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	for _, s := range sorted {
		h.Write([]byte(s.Path))
		h.Write([]byte(s.Source))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Run evaluates every script against in. Findings are returned in script
// order. A failing script contributes an error and no findings; the other
// scripts still run.
func (e *Engine) Run(ctx context.Context, in *Input) ([]diag.Finding, []error) {
	if e == nil {
		return nil, nil
	}
	var findings []diag.Finding
	var errs []error
	for _, s := range e.scripts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		found, err := e.eval(ctx, s.Source, s.Path, in)
		if err != nil {
			e.logger.Warn("rule script failed", "script", s.Path, "file", in.Path, "error", err)
			errs = append(errs, err)
			continue
		}
		findings = append(findings, found...)
	}
	return findings, errs
}

// RunSource evaluates inline Risor source against in.
func (e *Engine) RunSource(ctx context.Context, source string, in *Input) ([]diag.Finding, error) {
	return e.eval(ctx, source, "<inline>", in)
}

func (e *Engine) eval(ctx context.Context, source, label string, in *Input) ([]diag.Finding, error) {
	rep := &reporter{script: label}
	globals := e.buildGlobals(in, rep, label)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := e.buildImporter(globals, label); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return nil, fmt.Errorf("rules: script %s: %w", label, err)
	}
	return rep.findings, nil
}

// buildImporter resolves Risor import statements relative to the script.
func (e *Engine) buildImporter(globals map[string]any, label string) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}
	if e.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    e.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if label == "<inline>" {
		return nil
	}
	return importer.NewLocalImporter(importer.LocalImporterOptions{
		GlobalNames: globalNames,
		SourceDir:   filepath.Dir(label),
		Extensions:  []string{".risor"},
	})
}
