package treehug

import (
	"context"
	"runtime"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/treehug/internal/discover"
	"github.com/jward/treehug/internal/lang"
	"github.com/jward/treehug/internal/store"
)

// worker owns one parser per language. Parsers are not safe for concurrent
// use, so each pool goroutine gets its own worker.
type worker struct {
	parsers map[lang.Language]*sitter.Parser
	batch   *store.BatchedStore
}

func newWorker(batch *store.BatchedStore) *worker {
	return &worker{parsers: make(map[lang.Language]*sitter.Parser), batch: batch}
}

// parser returns the worker's parser for l. A nil worker returns a fresh
// parser the caller must close.
func (w *worker) parser(l lang.Language) *sitter.Parser {
	if w == nil {
		return l.Assets().NewParser()
	}
	p, ok := w.parsers[l]
	if !ok {
		p = l.Assets().NewParser()
		w.parsers[l] = p
	}
	return p
}

func (w *worker) close() {
	for _, p := range w.parsers {
		p.Close()
	}
}

// fileResult is the outcome for the file at index in the scan list.
type fileResult struct {
	index int
	sum   *FileSummary
	err   error
}

// analyzeAll maps analyzeOne over files. Results are indexed by position so
// output order never depends on completion order. Files not yet submitted
// when ctx is canceled are left without a result.
func (a *Analyzer) analyzeAll(ctx context.Context, files []discover.File, batch *store.BatchedStore) []*fileResult {
	results := make([]*fileResult, len(files))
	if len(files) == 0 {
		return results
	}

	if !a.parallel {
		w := newWorker(batch)
		defer w.close()
		for i, f := range files {
			if ctx.Err() != nil {
				break
			}
			results[i] = a.analyzeOne(ctx, w, i, f)
		}
		return results
	}

	numWorkers := a.workers
	if numWorkers == 0 {
		numWorkers = runtime.NumCPU()
	}
	numWorkers = max(min(numWorkers, len(files)), 1)

	workCh := make(chan int)
	resultCh := make(chan *fileResult, len(files))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := newWorker(batch)
			defer w.close()
			for i := range workCh {
				resultCh <- a.analyzeOne(ctx, w, i, files[i])
			}
		}()
	}

	go func() {
		defer close(workCh)
		for i := range files {
			select {
			case workCh <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for res := range resultCh {
		results[res.index] = res
	}
	return results
}

func (a *Analyzer) analyzeOne(ctx context.Context, w *worker, i int, f discover.File) *fileResult {
	l := f.Language
	if a.language != lang.Unknown {
		l = a.language
	}
	src, err := readSource(f.Path)
	if err != nil {
		return &fileResult{index: i, err: err}
	}
	sum, err := a.analyzeWith(ctx, w, f.Rel, f.Path, src, l)
	return &fileResult{index: i, sum: sum, err: err}
}
