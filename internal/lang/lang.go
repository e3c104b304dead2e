// Package lang is the language registry: a closed set of supported languages
// mapped to their tree-sitter grammar, embedded query documents, builtin
// identifiers and export policy.
package lang

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/lua"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/scala"
	"github.com/smacker/go-tree-sitter/swift"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/jward/treehug/internal/model"
)

// Language identifies a supported language.
type Language int

const (
	Unknown Language = iota
	Bash
	C
	Cpp
	CSharp
	Go
	Java
	JavaScript
	Lua
	PHP
	Python
	Ruby
	Rust
	Scala
	Swift
	TypeScript
	TSX
)

// ExportPolicy decides which top-level definitions count as exported.
type ExportPolicy int

const (
	// ExportMarked exports definitions inside a local.export capture.
	ExportMarked ExportPolicy = iota
	// ExportCapitalized exports root-scope names starting with an upper-case letter.
	ExportCapitalized
	// ExportNoUnderscore exports root-scope names not starting with "_".
	ExportNoUnderscore
	// ExportTopLevel exports every root-scope definition.
	ExportTopLevel
)

func (p ExportPolicy) String() string {
	switch p {
	case ExportMarked:
		return "marked"
	case ExportCapitalized:
		return "capitalized"
	case ExportNoUnderscore:
		return "no-underscore"
	default:
		return "top-level"
	}
}

// Assets is everything the engine needs to analyze one language.
type Assets struct {
	Language   Language
	Name       string
	Dir        string // directory under queries/
	Extensions []string
	Aliases    []string
	Export     ExportPolicy

	grammar     func() *sitter.Language
	grammarOnce sync.Once
	sitterLang  *sitter.Language

	queries [numQueryKinds]compiledQuery

	builtinsOnce sync.Once
	builtins     map[string]bool
}

var table = map[Language]*Assets{
	Bash:       {Name: "bash", Dir: "bash", Extensions: []string{".sh", ".bash"}, Aliases: []string{"sh", "shell"}, Export: ExportTopLevel, grammar: bash.GetLanguage},
	C:          {Name: "c", Dir: "c", Extensions: []string{".c", ".h"}, Export: ExportTopLevel, grammar: c.GetLanguage},
	Cpp:        {Name: "cpp", Dir: "cpp", Extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx"}, Aliases: []string{"c++"}, Export: ExportTopLevel, grammar: cpp.GetLanguage},
	CSharp:     {Name: "csharp", Dir: "csharp", Extensions: []string{".cs"}, Aliases: []string{"c_sharp", "c#", "cs"}, Export: ExportMarked, grammar: csharp.GetLanguage},
	Go:         {Name: "go", Dir: "go", Extensions: []string{".go"}, Aliases: []string{"golang"}, Export: ExportCapitalized, grammar: golang.GetLanguage},
	Java:       {Name: "java", Dir: "java", Extensions: []string{".java"}, Export: ExportMarked, grammar: java.GetLanguage},
	JavaScript: {Name: "javascript", Dir: "javascript", Extensions: []string{".js", ".jsx", ".mjs", ".cjs"}, Aliases: []string{"js", "jsx"}, Export: ExportMarked, grammar: javascript.GetLanguage},
	Lua:        {Name: "lua", Dir: "lua", Extensions: []string{".lua"}, Export: ExportTopLevel, grammar: lua.GetLanguage},
	PHP:        {Name: "php", Dir: "php", Extensions: []string{".php"}, Export: ExportTopLevel, grammar: php.GetLanguage},
	Python:     {Name: "python", Dir: "python", Extensions: []string{".py", ".pyi"}, Aliases: []string{"py"}, Export: ExportNoUnderscore, grammar: python.GetLanguage},
	Ruby:       {Name: "ruby", Dir: "ruby", Extensions: []string{".rb"}, Aliases: []string{"rb"}, Export: ExportTopLevel, grammar: ruby.GetLanguage},
	Rust:       {Name: "rust", Dir: "rust", Extensions: []string{".rs"}, Aliases: []string{"rs"}, Export: ExportMarked, grammar: rust.GetLanguage},
	Scala:      {Name: "scala", Dir: "scala", Extensions: []string{".scala", ".sc"}, Export: ExportTopLevel, grammar: scala.GetLanguage},
	Swift:      {Name: "swift", Dir: "swift", Extensions: []string{".swift"}, Export: ExportTopLevel, grammar: swift.GetLanguage},
	TypeScript: {Name: "typescript", Dir: "typescript", Extensions: []string{".ts", ".mts", ".cts"}, Aliases: []string{"ts"}, Export: ExportMarked, grammar: typescript.GetLanguage},
	TSX:        {Name: "tsx", Dir: "tsx", Extensions: []string{".tsx"}, Export: ExportMarked, grammar: tsx.GetLanguage},
}

var (
	indexOnce sync.Once
	byExt     map[string]Language
	byName    map[string]Language
)

func buildIndex() {
	indexOnce.Do(func() {
		byExt = make(map[string]Language)
		byName = make(map[string]Language)
		for l, a := range table {
			a.Language = l
			byName[a.Name] = l
			for _, alias := range a.Aliases {
				byName[alias] = l
			}
			for _, ext := range a.Extensions {
				byExt[ext] = l
			}
		}
	})
}

// All returns every supported language ordered by name.
func All() []Language {
	out := make([]Language, 0, len(table))
	for l := range table {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return table[out[i]].Name < table[out[j]].Name })
	return out
}

// Parse resolves a language name or alias, case-insensitively.
func Parse(name string) (Language, error) {
	buildIndex()
	if l, ok := byName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return l, nil
	}
	return Unknown, fmt.Errorf("%w: %q", model.ErrUnsupportedLanguage, name)
}

// FromPath detects a language from a file extension.
func FromPath(path string) (Language, error) {
	buildIndex()
	ext := strings.ToLower(filepath.Ext(path))
	if l, ok := byExt[ext]; ok {
		return l, nil
	}
	return Unknown, fmt.Errorf("%w: %s", model.ErrUnsupportedLanguage, path)
}

// Supported reports whether path has a recognized extension.
func Supported(path string) bool {
	_, err := FromPath(path)
	return err == nil
}

// Assets returns the registry entry, or nil for Unknown.
func (l Language) Assets() *Assets {
	buildIndex()
	return table[l]
}

func (l Language) String() string {
	if a := l.Assets(); a != nil {
		return a.Name
	}
	return "unknown"
}

// Grammar returns the tree-sitter grammar handle.
func (a *Assets) Grammar() *sitter.Language {
	a.grammarOnce.Do(func() {
		a.sitterLang = a.grammar()
	})
	return a.sitterLang
}

// NewParser creates a parser for this language. Parsers are not safe for
// concurrent use; each goroutine needs its own.
func (a *Assets) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(a.Grammar())
	return p
}

// IsBuiltin reports whether name is predeclared in the language.
func (a *Assets) IsBuiltin(name string) bool {
	a.builtinsOnce.Do(func() {
		a.builtins = make(map[string]bool)
		src, err := loadDocument(a.Dir, "builtins.txt", nil)
		if err != nil {
			return
		}
		for _, line := range strings.Split(src, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
				continue
			}
			for _, f := range strings.Fields(line) {
				a.builtins[f] = true
			}
		}
	})
	return a.builtins[name]
}
