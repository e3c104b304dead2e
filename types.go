package treehug

import (
	"log/slog"

	"github.com/jward/treehug/internal/metrics"
	"github.com/jward/treehug/internal/model"
	"github.com/jward/treehug/internal/rules"
	"github.com/jward/treehug/internal/store"
)

// Public type aliases for the internal model. These are Go type aliases
// (=), identical to the internal types at compile time.

type FileSummary = model.FileSummary
type PackageSummary = model.PackageSummary
type Symbol = model.Symbol
type SymbolKind = model.SymbolKind
type ImportSymbol = model.ImportSymbol
type Reference = model.Reference
type Diagnostic = model.Diagnostic
type Tier = model.Tier
type Severity = model.Severity
type Range = model.Range
type Signature = model.Signature
type ClassMembers = model.ClassMembers
type Member = model.Member
type Parameter = model.Parameter
type FileError = model.FileError
type ErrorKind = model.ErrorKind

// Collaborators accepted by the Analyzer options.

type Cache = store.Store
type Metrics = metrics.Metrics
type Rules = rules.Engine

// Sentinel errors, matched with errors.Is.
var (
	ErrUnsupportedLanguage = model.ErrUnsupportedLanguage
	ErrQuerySetMissing     = model.ErrQuerySetMissing
	ErrQueryInvalid        = model.ErrQueryInvalid
	ErrParseRecoverable    = model.ErrParseRecoverable
	ErrFileUnreadable      = model.ErrFileUnreadable
	ErrMalformedCapture    = model.ErrMalformedCapture
	ErrInvalidRoot         = model.ErrInvalidRoot
)

// OpenCache opens (creating if needed) a summary cache database.
func OpenCache(path string) (*Cache, error) {
	return store.Open(path)
}

// LoadRules loads Risor rule scripts from files or directories. logger
// receives script failures and the scripts' own log calls; nil discards.
func LoadRules(logger *slog.Logger, paths ...string) (*Rules, error) {
	var opts []rules.Option
	if logger != nil {
		opts = append(opts, rules.WithLogger(logger))
	}
	return rules.New(paths, opts...)
}
