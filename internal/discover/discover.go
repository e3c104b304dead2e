// Package discover lists the source files of a package root.
package discover

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jward/treehug/internal/lang"
	"github.com/jward/treehug/internal/model"
)

// File is one discovered source file.
type File struct {
	Path     string // absolute
	Rel      string // slash-separated, relative to the root
	Language lang.Language
}

// Options filters discovery.
type Options struct {
	// Include and Exclude are doublestar patterns matched against Rel.
	// An empty Include admits every file.
	Include []string
	Exclude []string
	// Language restricts results to one language; lang.Unknown admits all.
	Language lang.Language
	// NoGit skips git ls-files even inside a work tree.
	NoGit bool
}

var skipDirs = map[string]bool{
	"node_modules":  true,
	"vendor":        true,
	"__pycache__":   true,
	"venv":          true,
	"target":        true,
	"dist":          true,
	"build":         true,
	".mypy_cache":   true,
	".pytest_cache": true,
}

// SkipDir reports whether a directory with this base name is never scanned.
func SkipDir(name string) bool {
	return skipDirs[name] || (strings.HasPrefix(name, ".") && name != "." && name != "..")
}

// Validate reports whether patterns are well-formed doublestar globs.
func Validate(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("discover: invalid pattern %q", p)
		}
	}
	return nil
}

// Files returns the supported source files under root sorted by Rel.
// Inside a git work tree only tracked and untracked-but-not-ignored files
// are listed; elsewhere a root .gitignore is honored.
func Files(ctx context.Context, root string, opts Options) ([]File, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrInvalidRoot, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", model.ErrInvalidRoot, root)
	}
	if err := Validate(opts.Include); err != nil {
		return nil, err
	}
	if err := Validate(opts.Exclude); err != nil {
		return nil, err
	}

	var gitFiles map[string]bool
	if !opts.NoGit {
		gitFiles = gitListFiles(ctx, abs)
	}
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(abs)
	}

	var out []File
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == abs {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != abs && SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gitFiles != nil {
			if !gitFiles[rel] {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		l, err := lang.FromPath(path)
		if err != nil {
			return nil
		}
		if opts.Language != lang.Unknown && l != opts.Language {
			return nil
		}
		if !Match(rel, opts.Include, opts.Exclude) {
			return nil
		}
		out = append(out, File{Path: path, Rel: rel, Language: l})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover: walk %s: %w", root, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Rel < out[j].Rel })
	return out, nil
}

// Match applies include/exclude patterns to a slash-separated path.
func Match(rel string, include, exclude []string) bool {
	for _, p := range exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, p := range include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// gitListFiles returns tracked and untracked (but not ignored) files, or
// nil when root is not inside a git work tree.
func gitListFiles(ctx context.Context, root string) map[string]bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// --cached: tracked files, --others: untracked files,
	// --exclude-standard: respect .gitignore, .git/info/exclude, global excludes.
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil
	}

	files := make(map[string]bool)
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files[line] = true
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
