package treehug

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/jward/treehug/internal/discover"
	"github.com/jward/treehug/internal/lang"
	"github.com/jward/treehug/internal/model"
	"github.com/jward/treehug/internal/store"
)

// AnalyzePackage discovers the supported files under root, filtered by the
// include and exclude doublestar patterns, and analyzes each of them.
//
// An invalid root is the only fatal error. Per-file failures are recorded
// in PackageSummary.Errors. Files are reported relative to root, sorted by
// path. When ctx is canceled, files already in flight finish and the
// partial summary is returned together with the context error.
func (a *Analyzer) AnalyzePackage(ctx context.Context, root string, include, exclude []string) (*PackageSummary, error) {
	start := time.Now()
	files, err := discover.Files(ctx, root, discover.Options{
		Include:  include,
		Exclude:  exclude,
		Language: a.language,
	})
	if err != nil {
		return nil, fmt.Errorf("treehug: %w", err)
	}
	abs, _ := filepath.Abs(root)

	var batch *store.BatchedStore
	if a.cache != nil {
		batch = store.NewBatchedStore(a.cache)
	}

	results := a.analyzeAll(ctx, files, batch)

	if batch != nil {
		if err := batch.Commit(); err != nil {
			a.logger.Warn("cache commit failed", "root", abs, "error", err)
		}
	}

	sum := &PackageSummary{
		RootDir:  abs,
		Language: primaryLanguage(files),
		Files:    []*FileSummary{},
	}
	for i, res := range results {
		if res == nil {
			continue
		}
		if res.err != nil {
			a.logger.Warn("file analysis failed", "file", files[i].Rel, "error", res.err)
			sum.Errors = append(sum.Errors, model.NewFileError(files[i].Rel, res.err))
			continue
		}
		sum.Files = append(sum.Files, res.sum)
	}
	if sum.Language == "" && a.language != lang.Unknown {
		sum.Language = a.language.String()
	}

	a.logger.Info("package analyzed",
		"root", abs,
		"files", len(sum.Files),
		"errors", len(sum.Errors),
		"duration", time.Since(start))

	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("treehug: scan interrupted: %w", err)
	}
	return sum, nil
}

// primaryLanguage is the most frequent language among files; ties go to
// the alphabetically first name.
func primaryLanguage(files []discover.File) string {
	counts := make(map[string]int)
	for _, f := range files {
		counts[f.Language.String()]++
	}
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)

	best := ""
	for _, n := range names {
		if counts[n] > counts[best] {
			best = n
		}
	}
	return best
}
