// Package model defines the language-agnostic data model shared by every
// analysis stage: ranges, symbols, references, imports, diagnostics and the
// file/package summaries serialized for callers.
package model

import "sort"

// SymbolKind is the normalized category of a definition. The string values
// are part of the stable output contract.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindType      SymbolKind = "type"
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
	KindEnum      SymbolKind = "enum"
	KindTrait     SymbolKind = "trait"
	KindModule    SymbolKind = "module"
	KindNamespace SymbolKind = "namespace"
	KindImport    SymbolKind = "import"
	KindVariable  SymbolKind = "variable"
	KindParameter SymbolKind = "parameter"
	KindField     SymbolKind = "field"
)

// IsCallable reports whether symbols of this kind carry a signature.
func (k SymbolKind) IsCallable() bool {
	return k == KindFunction || k == KindMethod
}

// IsTypeLike reports whether symbols of this kind describe a type.
func (k SymbolKind) IsTypeLike() bool {
	switch k {
	case KindType, KindClass, KindInterface, KindEnum, KindTrait:
		return true
	}
	return false
}

// Tier is the diagnostic tier a finding belongs to.
type Tier string

const (
	TierSyntax   Tier = "syntax"
	TierLint     Tier = "lint"
	TierSemantic Tier = "semantic"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Range is a source span. Bytes are 0-based offsets; lines and columns are
// 1-based, columns counted in bytes.
type Range struct {
	StartByte   uint32 `json:"start_byte"`
	EndByte     uint32 `json:"end_byte"`
	StartLine   int    `json:"start_line"`
	StartColumn int    `json:"start_column"`
	EndLine     int    `json:"end_line"`
	EndColumn   int    `json:"end_column"`
}

// Contains reports whether o lies entirely inside r.
func (r Range) Contains(o Range) bool {
	return r.StartByte <= o.StartByte && o.EndByte <= r.EndByte
}

// Len returns the byte length of the range.
func (r Range) Len() uint32 {
	return r.EndByte - r.StartByte
}

// Parameter is one entry of a callable's parameter list.
type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Signature describes a function or method.
type Signature struct {
	Parameters []Parameter `json:"parameters"`
	ReturnType string      `json:"return_type,omitempty"`
	Visibility string      `json:"visibility,omitempty"`
}

// Field is a named member of a struct-like type or enum variant.
type Field struct {
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	Visibility string `json:"visibility,omitempty"`
}

// Variant is one case of an enum, optionally carrying tuple or struct fields.
type Variant struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields,omitempty"`
}

// TypeMetadata holds the structural shape of a type-like symbol.
type TypeMetadata struct {
	Fields   []Field   `json:"fields,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
}

// Member is a method or field declared inside a class body.
type Member struct {
	Name       string     `json:"name"`
	Kind       SymbolKind `json:"kind"`
	Visibility string     `json:"visibility,omitempty"`
	Line       int        `json:"line"`
}

// ClassMembers partitions a class body into static and instance members.
type ClassMembers struct {
	StaticMethods   []Member `json:"static_methods"`
	InstanceMethods []Member `json:"instance_methods"`
	StaticFields    []Member `json:"static_fields"`
	InstanceFields  []Member `json:"instance_fields"`
}

// Empty reports whether no members were found.
func (m *ClassMembers) Empty() bool {
	return m == nil || len(m.StaticMethods)+len(m.InstanceMethods)+len(m.StaticFields)+len(m.InstanceFields) == 0
}

// Symbol is a named definition.
type Symbol struct {
	Name         string        `json:"name"`
	Kind         SymbolKind    `json:"kind"`
	Range        Range         `json:"range"`
	ContextRange *Range        `json:"context_range,omitempty"`
	Scope        int           `json:"scope"`
	Doc          string        `json:"doc,omitempty"`
	Exported     bool          `json:"exported"`
	Signature    *Signature    `json:"signature,omitempty"`
	TypeMetadata *TypeMetadata `json:"type_metadata,omitempty"`
	Members      *ClassMembers `json:"members,omitempty"`
}

// Line returns the 1-based line of the symbol's name.
func (s Symbol) Line() int { return s.Range.StartLine }

// ImportSymbol is a name bound by an import statement.
type ImportSymbol struct {
	Name     string `json:"name"`
	Source   string `json:"source,omitempty"`
	Imported string `json:"imported,omitempty"`
	Wildcard bool   `json:"wildcard,omitempty"`
	Range    Range  `json:"range"`
}

// Reference is a use-site of a name.
type Reference struct {
	Name  string `json:"name"`
	Kind  string `json:"kind,omitempty"`
	Range Range  `json:"range"`
	Scope int    `json:"scope"`
}

// Diagnostic is a single finding in one of the three tiers.
type Diagnostic struct {
	Tier     Tier     `json:"tier"`
	Severity Severity `json:"severity"`
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Range    Range    `json:"range"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Snippet  string   `json:"snippet,omitempty"`
}

// SortDiagnostics orders diagnostics by position, then rule.
func SortDiagnostics(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.Range.StartByte != b.Range.StartByte {
			return a.Range.StartByte < b.Range.StartByte
		}
		if a.Range.EndByte != b.Range.EndByte {
			return a.Range.EndByte < b.Range.EndByte
		}
		return a.Rule < b.Rule
	})
}

// FileSummary bundles everything produced for one file.
type FileSummary struct {
	File         string         `json:"file"`
	Language     string         `json:"language"`
	Hash         string         `json:"hash"`
	Symbols      []Symbol       `json:"symbols"`
	Imports      []ImportSymbol `json:"imports"`
	Exports      []Symbol       `json:"exports"`
	Locals       []Symbol       `json:"locals"`
	References   []Reference    `json:"references,omitempty"`
	Lint         []Diagnostic   `json:"lint"`
	Syntax       []Diagnostic   `json:"syntax"`
	NotEvaluated []string       `json:"not_evaluated,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
	Recovered    bool           `json:"recovered,omitempty"`
}

// SymbolsOfKind returns the symbols whose kind is one of kinds, in order.
func (f *FileSummary) SymbolsOfKind(kinds ...SymbolKind) []Symbol {
	want := make(map[SymbolKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []Symbol
	for _, s := range f.Symbols {
		if want[s.Kind] {
			out = append(out, s)
		}
	}
	return out
}

// DiagnosticsOfTier returns the diagnostics of one tier.
func (f *FileSummary) DiagnosticsOfTier(tier Tier) []Diagnostic {
	src := f.Lint
	if tier == TierSyntax {
		src = f.Syntax
	}
	var out []Diagnostic
	for _, d := range src {
		if d.Tier == tier {
			out = append(out, d)
		}
	}
	return out
}

// PackageSummary is the result of scanning a directory tree.
type PackageSummary struct {
	RootDir  string         `json:"root_dir"`
	Language string         `json:"language"`
	Files    []*FileSummary `json:"files"`
	Errors   []*FileError   `json:"errors,omitempty"`
}
