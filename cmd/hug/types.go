package main

import "github.com/jward/treehug"

// CLIResult is the JSON envelope for listing commands.
type CLIResult struct {
	Command string               `json:"command"`
	Results any                  `json:"results"`
	Errors  []*treehug.FileError `json:"errors,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// SymbolRow is a flattened symbol with its file.
type SymbolRow struct {
	File      string `json:"file"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	Exported  bool   `json:"exported"`
	Signature string `json:"signature,omitempty"`
	Doc       string `json:"doc,omitempty"`
}

// ImportRow is a flattened import with its file.
type ImportRow struct {
	File     string `json:"file"`
	Name     string `json:"name"`
	Source   string `json:"source,omitempty"`
	Imported string `json:"imported,omitempty"`
	Wildcard bool   `json:"wildcard"`
	Line     int    `json:"line"`
}

// ClassRow is a class-like symbol with members split static/instance.
type ClassRow struct {
	File            string           `json:"file"`
	Name            string           `json:"name"`
	Kind            string           `json:"kind"`
	Line            int              `json:"line"`
	StaticMethods   []treehug.Member `json:"static_methods"`
	InstanceMethods []treehug.Member `json:"instance_methods"`
	StaticFields    []treehug.Member `json:"static_fields"`
	InstanceFields  []treehug.Member `json:"instance_fields"`
}

// DiagnosticRow is a flattened diagnostic with its file.
type DiagnosticRow struct {
	File     string `json:"file"`
	Tier     string `json:"tier"`
	Severity string `json:"severity"`
	Rule     string `json:"rule"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Snippet  string `json:"snippet,omitempty"`
}

// LanguageRow describes one supported language.
type LanguageRow struct {
	Name       string   `json:"name"`
	Extensions []string `json:"extensions"`
	Aliases    []string `json:"aliases,omitempty"`
	Export     string   `json:"export_policy"`
	Queries    []string `json:"queries"`
}
