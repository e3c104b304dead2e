package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/treehug/internal/discover"
	"github.com/jward/treehug/internal/lang"
)

const metaPrunedAt = "pruned_at"

// CacheStats is the output of "cache stats".
type CacheStats struct {
	Path       string `json:"path"`
	Entries    int    `json:"entries"`
	Files      int    `json:"files"`
	EngineKeys int    `json:"engine_keys"`
	Bytes      int64  `json:"bytes"`
	EngineKey  string `json:"engine_key"`
	PrunedAt   string `json:"pruned_at,omitempty"`
}

// CachePrune is the output of "cache prune".
type CachePrune struct {
	Path    string `json:"path"`
	Kept    int    `json:"kept"`
	Removed int64  `json:"removed"`
}

var errNoCache = errors.New("no cache configured: set cache in .treehug.yaml or pass --cache")

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or prune the summary cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats [dir]",
		Short: "Show cache entry counts and size",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open(cmd, args)
			if err != nil {
				return c.outputError("cache stats", err)
			}
			defer s.Close()
			if s.cache == nil {
				return c.outputError("cache stats", errNoCache)
			}
			st, err := s.cache.Stats()
			if err != nil {
				return c.outputError("cache stats", err)
			}
			prunedAt, err := s.cache.GetMetadata(metaPrunedAt)
			if err != nil {
				return c.outputError("cache stats", err)
			}
			out := CacheStats{
				Path:       s.cfg.Cache,
				Entries:    st.Entries,
				Files:      st.Paths,
				EngineKeys: st.EngineKeys,
				Bytes:      st.Bytes,
				EngineKey:  s.analyzer.EngineKey(),
				PrunedAt:   prunedAt,
			}
			return c.output(out, func(w io.Writer) {
				fmt.Fprintf(w, "Cache: %s\n", out.Path)
				fmt.Fprintf(w, "Entries: %d (%d files, %d engine keys)\n", out.Entries, out.Files, out.EngineKeys)
				fmt.Fprintf(w, "Size: %d bytes\n", out.Bytes)
				if out.PrunedAt != "" {
					fmt.Fprintf(w, "Last pruned: %s\n", out.PrunedAt)
				}
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "prune [dir]",
		Short: "Drop entries for files no longer present under dir",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open(cmd, args)
			if err != nil {
				return c.outputError("cache prune", err)
			}
			defer s.Close()
			if s.cache == nil {
				return c.outputError("cache prune", errNoCache)
			}
			if !s.isDir {
				return c.outputError("cache prune", fmt.Errorf("prune needs a directory, got %s", s.target))
			}

			opts := discover.Options{Include: s.cfg.Include, Exclude: s.cfg.Exclude}
			if s.cfg.Language != "" {
				opts.Language, _ = lang.Parse(s.cfg.Language)
			}
			files, err := discover.Files(cmd.Context(), s.target, opts)
			if err != nil {
				return c.outputError("cache prune", err)
			}
			keep := make([]string, 0, len(files))
			for _, f := range files {
				keep = append(keep, f.Path)
			}
			removed, err := s.cache.Prune(keep)
			if err != nil {
				return c.outputError("cache prune", err)
			}
			if err := s.cache.SetMetadata(metaPrunedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
				return c.outputError("cache prune", err)
			}
			out := CachePrune{Path: s.cfg.Cache, Kept: len(keep), Removed: removed}
			return c.output(out, func(w io.Writer) {
				fmt.Fprintf(w, "Removed %d entries, %d files kept\n", out.Removed, out.Kept)
			})
		},
	})
	return cmd
}

func (c *cli) languagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported languages and their query sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := []LanguageRow{}
			for _, l := range lang.All() {
				a := l.Assets()
				row := LanguageRow{
					Name:       a.Name,
					Extensions: a.Extensions,
					Aliases:    a.Aliases,
					Export:     a.Export.String(),
					Queries:    []string{},
				}
				for _, k := range []lang.QueryKind{lang.Locals, lang.Lint, lang.References} {
					if _, err := a.Query(k); err == nil {
						row.Queries = append(row.Queries, k.String())
					}
				}
				rows = append(rows, row)
			}
			return c.outputRows("languages", rows, nil, func(w io.Writer) { formatLanguagesText(w, rows) })
		},
	}
}
