package lang

import (
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/treehug/internal/model"
)

//go:embed queries
var queryFS embed.FS

// QueryKind names one of the per-language query documents.
type QueryKind int

const (
	Locals QueryKind = iota
	Lint
	References
	numQueryKinds
)

func (k QueryKind) String() string {
	switch k {
	case Locals:
		return "locals"
	case Lint:
		return "lint"
	case References:
		return "references"
	}
	return "unknown"
}

// File returns the document file name for the kind.
func (k QueryKind) File() string { return k.String() + ".scm" }

type compiledQuery struct {
	once  sync.Once
	query *sitter.Query
	err   error
}

// Query returns the compiled query for kind. The result is compiled once and
// is safe to share across goroutines. A missing or comment-only document
// yields model.ErrQuerySetMissing; a document that fails to compile yields a
// wrapped model.ErrQueryInvalid.
func (a *Assets) Query(kind QueryKind) (*sitter.Query, error) {
	cq := &a.queries[kind]
	cq.once.Do(func() {
		src, err := loadDocument(a.Dir, kind.File(), nil)
		if err != nil {
			cq.err = err
			return
		}
		if isEmptyQuery(src) {
			cq.err = fmt.Errorf("%w: %s %s", model.ErrQuerySetMissing, a.Name, kind)
			return
		}
		q, err := sitter.NewQuery([]byte(src), a.Grammar())
		if err != nil {
			cq.err = fmt.Errorf("%w: %s %s: %v", model.ErrQueryInvalid, a.Name, kind, err)
			return
		}
		cq.query = q
	})
	return cq.query, cq.err
}

// Source returns the fully expanded text of a query document.
func (a *Assets) Source(kind QueryKind) (string, error) {
	return loadDocument(a.Dir, kind.File(), nil)
}

// loadDocument reads queries/<dir>/<file> and splices in the same file from
// every directory named on a "; inherits:" line. Inherited text comes first.
func loadDocument(dir, file string, seen map[string]bool) (string, error) {
	if seen == nil {
		seen = make(map[string]bool)
	}
	if seen[dir] {
		return "", nil
	}
	seen[dir] = true

	data, err := queryFS.ReadFile(path.Join("queries", dir, file))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s/%s", model.ErrQuerySetMissing, dir, file)
		}
		return "", fmt.Errorf("read %s/%s: %w", dir, file, err)
	}

	var b strings.Builder
	for _, parent := range inherits(string(data)) {
		src, err := loadDocument(parent, file, seen)
		if err != nil {
			if errors.Is(err, model.ErrQuerySetMissing) {
				continue
			}
			return "", err
		}
		b.WriteString(src)
		b.WriteString("\n")
	}
	b.Write(data)
	return b.String(), nil
}

// inherits parses "; inherits: a,b" header lines.
func inherits(src string) []string {
	var out []string
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, ";") {
			continue
		}
		rest := strings.TrimSpace(strings.TrimLeft(line, ";"))
		if !strings.HasPrefix(rest, "inherits:") {
			continue
		}
		for _, name := range strings.Split(strings.TrimPrefix(rest, "inherits:"), ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

// isEmptyQuery reports whether src holds nothing but comments and blanks.
func isEmptyQuery(src string) bool {
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, ";") {
			return false
		}
	}
	return true
}

// AssetsHash returns a sha256 over every embedded query asset. It changes
// whenever a query, builtin list or inheritance header is edited.
func AssetsHash() string {
	var paths []string
	fs.WalkDir(queryFS, "queries", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			paths = append(paths, p)
		}
		return nil
	})
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		data, err := queryFS.ReadFile(p)
		if err != nil {
			continue
		}
		h.Write([]byte(p))
		h.Write(data)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
