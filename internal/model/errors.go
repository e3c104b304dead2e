package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrQuerySetMissing     = errors.New("query set missing")
	ErrQueryInvalid        = errors.New("invalid query")
	ErrParseRecoverable    = errors.New("parse recovered from syntax errors")
	ErrFileUnreadable      = errors.New("file unreadable")
	ErrMalformedCapture    = errors.New("malformed capture")
	ErrInvalidRoot         = errors.New("invalid root")
)

// ErrorKind classifies a per-file failure in a package scan.
type ErrorKind string

const (
	ErrorKindUnsupported ErrorKind = "unsupported_language"
	ErrorKindUnreadable  ErrorKind = "unreadable"
	ErrorKindCanceled    ErrorKind = "canceled"
	ErrorKindAnalysis    ErrorKind = "analysis"
)

// KindOf maps an error to the ErrorKind recorded for it.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrUnsupportedLanguage):
		return ErrorKindUnsupported
	case errors.Is(err, ErrFileUnreadable):
		return ErrorKindUnreadable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCanceled
	default:
		return ErrorKindAnalysis
	}
}

// FileError records why one file was excluded from a package summary.
type FileError struct {
	Path string
	Kind ErrorKind
	Err  error
}

// NewFileError wraps err for path, classifying it.
func NewFileError(path string, err error) *FileError {
	return &FileError{Path: path, Kind: KindOf(err), Err: err}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// MarshalJSON renders the error as {file, kind, message}.
func (e *FileError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		File    string    `json:"file"`
		Kind    ErrorKind `json:"kind"`
		Message string    `json:"message"`
	}{e.Path, e.Kind, msg})
}
