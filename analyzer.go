package treehug

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/treehug/internal/capture"
	"github.com/jward/treehug/internal/diag"
	"github.com/jward/treehug/internal/lang"
	"github.com/jward/treehug/internal/metrics"
	"github.com/jward/treehug/internal/model"
	"github.com/jward/treehug/internal/resolve"
	"github.com/jward/treehug/internal/rules"
	"github.com/jward/treehug/internal/slogutil"
	"github.com/jward/treehug/internal/store"
)

// Tier names recorded in FileSummary.NotEvaluated.
const (
	TierLocals   = "locals"
	TierLint     = "lint"
	TierSemantic = "semantic"
)

// Files whose first binarySniffLen bytes contain a NUL are not analyzed.
const binarySniffLen = 8000

// Analyzer produces FileSummary and PackageSummary values. It is safe for
// concurrent use; per-file work shares only the compiled queries.
type Analyzer struct {
	language lang.Language // lang.Unknown means detect from the path
	semantic bool
	parallel bool
	workers  int

	cache   *store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	rules   *rules.Engine

	disable  []string
	severity map[string]string
	ruleSet  *diag.RuleSet

	engineKey string
	optErr    error
	warned    sync.Map // "lang/kind" -> struct{}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLanguage forces every file to be analyzed as the named language.
// Package scans then only consider files of that language.
func WithLanguage(name string) Option {
	return func(a *Analyzer) {
		if name == "" {
			return
		}
		l, err := lang.Parse(name)
		if err != nil {
			a.optErr = errors.Join(a.optErr, err)
			return
		}
		a.language = l
	}
}

// WithSemantic enables or disables the semantic tier (on by default).
func WithSemantic(enabled bool) Option {
	return func(a *Analyzer) { a.semantic = enabled }
}

// WithParallel enables or disables the worker pool for package scans
// (on by default).
func WithParallel(parallel bool) Option {
	return func(a *Analyzer) { a.parallel = parallel }
}

// WithWorkers bounds the package-scan worker pool. Zero means
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(a *Analyzer) { a.workers = n }
}

// WithCache stores and reuses summaries keyed by path, content hash and
// analyzer configuration.
func WithCache(c *Cache) Option {
	return func(a *Analyzer) { a.cache = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithMetrics records analysis counters and timings.
func WithMetrics(m *Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithRules runs scripted rules after the query-driven lint pass.
func WithRules(r *Rules) Option {
	return func(a *Analyzer) { a.rules = r }
}

// WithRuleConfig disables rules and overrides rule severities.
func WithRuleConfig(disable []string, severity map[string]string) Option {
	return func(a *Analyzer) {
		a.disable = disable
		a.severity = severity
	}
}

// New builds an Analyzer.
func New(opts ...Option) (*Analyzer, error) {
	a := &Analyzer{semantic: true, parallel: true}
	for _, opt := range opts {
		opt(a)
	}
	if a.optErr != nil {
		return nil, fmt.Errorf("treehug: %w", a.optErr)
	}
	if a.workers < 0 {
		return nil, fmt.Errorf("treehug: workers must be >= 0, got %d", a.workers)
	}
	if a.logger == nil {
		a.logger = slogutil.NewDiscardLogger()
	}
	rs, err := diag.NewRuleSet(a.disable, a.severity)
	if err != nil {
		return nil, fmt.Errorf("treehug: %w", err)
	}
	a.ruleSet = rs
	a.engineKey = store.EngineKey(lang.AssetsHash(), a.rules.Hash(), a.keyOptions())
	return a, nil
}

// EngineKey identifies everything besides file content that shapes a
// summary. Cached summaries are only reused under the same key.
func (a *Analyzer) EngineKey() string { return a.engineKey }

func (a *Analyzer) keyOptions() map[string]string {
	disable := append([]string(nil), a.disable...)
	sort.Strings(disable)
	sev := make([]string, 0, len(a.severity))
	for k, v := range a.severity {
		sev = append(sev, k+"="+strings.ToLower(v))
	}
	sort.Strings(sev)

	opts := map[string]string{
		"semantic": strconv.FormatBool(a.semantic),
		"disable":  strings.Join(disable, ","),
		"severity": strings.Join(sev, ","),
	}
	if a.language != lang.Unknown {
		opts["language"] = a.language.String()
	}
	return opts
}

// ParseOutcome is a parsed tree plus the ranges of any syntax errors the
// parser recovered from. A recovered tree is still fully usable.
type ParseOutcome struct {
	Tree   *sitter.Tree
	Errors []model.Range

	syntax []model.Diagnostic
}

// Recovered reports whether the parser had to recover from syntax errors.
func (p *ParseOutcome) Recovered() bool { return len(p.Errors) > 0 }

// Close releases the tree.
func (p *ParseOutcome) Close() {
	if p.Tree != nil {
		p.Tree.Close()
	}
}

func parse(ctx context.Context, p *sitter.Parser, src []byte) (*ParseOutcome, error) {
	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("treehug: parse: %w", err)
	}
	out := &ParseOutcome{Tree: tree, syntax: []model.Diagnostic{}}
	root := tree.RootNode()
	if root.HasError() {
		out.syntax = diag.Syntax(root, src)
		for _, d := range out.syntax {
			out.Errors = append(out.Errors, d.Range)
		}
	}
	return out, nil
}

// Parse parses src as the named language ("" detects from path).
func Parse(ctx context.Context, path string, src []byte, language string) (*ParseOutcome, error) {
	l, err := detect(path, language, lang.Unknown)
	if err != nil {
		return nil, err
	}
	p := l.Assets().NewParser()
	defer p.Close()
	return parse(ctx, p, src)
}

func detect(path, name string, override lang.Language) (lang.Language, error) {
	if name != "" {
		return lang.Parse(name)
	}
	if override != lang.Unknown {
		return override, nil
	}
	return lang.FromPath(path)
}

// AnalyzeFile reads and analyzes one file.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*FileSummary, error) {
	l, err := detect(path, "", a.language)
	if err != nil {
		return nil, fmt.Errorf("treehug: %w", err)
	}
	src, err := readSource(path)
	if err != nil {
		return nil, err
	}
	return a.analyzeWith(ctx, nil, path, path, src, l)
}

// AnalyzeSource analyzes in-memory source. language may be empty, in which
// case it is detected from path.
func (a *Analyzer) AnalyzeSource(ctx context.Context, path string, src []byte, language string) (*FileSummary, error) {
	l, err := detect(path, language, a.language)
	if err != nil {
		return nil, fmt.Errorf("treehug: %w", err)
	}
	return a.analyzeWith(ctx, nil, path, path, src, l)
}

func readSource(path string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("treehug: %w: %s: %v", model.ErrFileUnreadable, path, err)
	}
	if bytes.IndexByte(src[:min(len(src), binarySniffLen)], 0) >= 0 {
		return nil, fmt.Errorf("treehug: %w: %s: binary content", model.ErrFileUnreadable, path)
	}
	return src, nil
}

// analyzeWith runs the cache lookup, analysis and cache store for one file.
// display is the path reported in the summary; key is the cache path. When
// w carries a batch the cache write is buffered there.
func (a *Analyzer) analyzeWith(ctx context.Context, w *worker, display, key string, src []byte, l lang.Language) (*FileSummary, error) {
	hash := store.ContentHash(src)
	if a.cache != nil {
		if sum, ok := a.cached(w, key, hash); ok {
			sum.File = display
			a.metrics.ObserveCacheHit()
			a.metrics.ObserveFile(l.String(), metrics.OutcomeCached, 0)
			return sum, nil
		}
	}

	start := time.Now()
	p := w.parser(l)
	if w == nil {
		defer p.Close()
	}
	sum, err := a.analyze(ctx, p, display, src, hash, l)
	if err != nil {
		a.metrics.ObserveFile(l.String(), metrics.OutcomeError, time.Since(start))
		return nil, err
	}
	a.metrics.ObserveFile(l.String(), metrics.OutcomeOK, time.Since(start))
	a.metrics.ObserveSummary(sum)

	if a.cache != nil {
		e := &store.Entry{Path: key, Hash: hash, EngineKey: a.engineKey, Summary: sum, AnalyzedAt: time.Now()}
		if w != nil && w.batch != nil {
			w.batch.Put(e)
		} else if err := a.cache.Put(e); err != nil {
			a.logger.Warn("cache write failed", "file", display, "error", err)
		}
	}
	return sum, nil
}

func (a *Analyzer) cached(w *worker, key, hash string) (*FileSummary, bool) {
	var (
		sum *FileSummary
		ok  bool
		err error
	)
	if w != nil && w.batch != nil {
		var e *store.Entry
		e, ok, err = w.batch.Get(key, hash, a.engineKey)
		if ok {
			sum = e.Summary
		}
	} else {
		sum, ok, err = a.cache.Get(key, hash, a.engineKey)
	}
	if err != nil {
		a.logger.Warn("cache read failed", "file", key, "error", err)
		return nil, false
	}
	return sum, ok
}

// analyze is the pure per-file pipeline: parse, capture, resolve,
// classify.
func (a *Analyzer) analyze(ctx context.Context, p *sitter.Parser, path string, src []byte, hash string, l lang.Language) (*FileSummary, error) {
	assets := l.Assets()
	outcome, err := parse(ctx, p, src)
	if err != nil {
		return nil, err
	}
	defer outcome.Close()
	root := outcome.Tree.RootNode()

	sum := &FileSummary{
		File:      path,
		Language:  assets.Name,
		Hash:      hash,
		Syntax:    outcome.syntax,
		Recovered: outcome.Recovered(),
	}
	if outcome.Recovered() {
		a.logger.Debug("parse recovered", "file", path, "errors", len(outcome.Errors))
	}

	localsOK, refsOK := true, false
	var locals, refs []capture.Capture
	if q, ok := a.query(sum, assets, lang.Locals); ok {
		locals = capture.Run(root, q, src)
		refsOK = capturesReferences(q)
	} else {
		localsOK = false
		sum.NotEvaluated = append(sum.NotEvaluated, TierLocals)
	}
	if q, ok := a.query(sum, assets, lang.References); ok {
		refs = capture.Run(root, q, src)
		refsOK = true
	}

	tree := resolve.Resolve(root, src, locals, refs, resolve.Options{Export: assets.Export})
	sum.Symbols = nonNil(tree.Definitions())
	sum.Imports = nonNil(tree.Imports)
	sum.Exports = tree.Exports()
	sum.Locals = tree.Locals()
	sum.Warnings = append(sum.Warnings, tree.Warnings...)
	for _, w := range tree.Warnings {
		a.logger.Warn("malformed capture", "file", path, "detail", w)
	}

	lint := []model.Diagnostic{}
	if q, ok := a.query(sum, assets, lang.Lint); ok {
		lint = append(lint, diag.Lint(capture.Run(root, q, src), src, a.ruleSet)...)
	} else {
		sum.NotEvaluated = append(sum.NotEvaluated, TierLint)
	}

	if a.rules != nil && len(a.rules.Scripts()) > 0 {
		findings, errs := a.rules.Run(ctx, &rules.Input{
			Path:     path,
			Language: assets.Name,
			Hash:     hash,
			Source:   src,
			Root:     root,
			Grammar:  assets.Grammar(),
			Symbols:  sum.Symbols,
			Imports:  sum.Imports,
		})
		lint = append(lint, diag.FromFindings(findings, src, a.ruleSet)...)
		for _, err := range errs {
			sum.Warnings = append(sum.Warnings, err.Error())
		}
	}

	if a.semantic {
		// No reference captures for the language: semantic is not evaluated.
		if localsOK && refsOK {
			lint = append(lint, diag.Semantic(tree, assets.IsBuiltin, src, a.ruleSet)...)
			sum.References = tree.References
		} else {
			sum.NotEvaluated = append(sum.NotEvaluated, TierSemantic)
		}
	}

	if d := diag.ParseDirectives(src); !d.Empty() {
		lint = d.Filter(lint)
	}
	sum.Lint = lint
	return sum, nil
}

// capturesReferences reports whether q names a local.reference capture.
func capturesReferences(q *sitter.Query) bool {
	for i := uint32(0); i < q.CaptureCount(); i++ {
		if q.CaptureNameForId(i) == "local.reference" {
			return true
		}
	}
	return false
}

// query returns the compiled query for kind. Missing documents are a legal
// state; invalid ones are logged once per language and recorded as a
// warning on sum when non-nil.
func (a *Analyzer) query(sum *FileSummary, assets *lang.Assets, kind lang.QueryKind) (*sitter.Query, bool) {
	q, err := assets.Query(kind)
	if err == nil {
		return q, true
	}
	if errors.Is(err, model.ErrQueryInvalid) {
		if _, seen := a.warned.LoadOrStore(assets.Name+"/"+kind.String(), struct{}{}); !seen {
			a.logger.Warn("query failed to compile", "language", assets.Name, "query", kind.String(), "error", err)
		}
		if sum != nil {
			sum.Warnings = append(sum.Warnings, err.Error())
		}
	}
	return nil, false
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
