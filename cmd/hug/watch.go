package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/treehug"
	"github.com/jward/treehug/internal/lang"
	"github.com/jward/treehug/internal/metrics"
	"github.com/jward/treehug/internal/watch"
)

func (c *cli) watchCmd() *cobra.Command {
	var (
		metricsAddr string
		debounce    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-lint files as they change",
		Long: `Analyzes the directory once, then watches it and re-analyzes every
changed file, printing its diagnostics. Stops on interrupt.

With --metrics-addr, Prometheus metrics are served at /metrics.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := metrics.New(nil)
			if err != nil {
				return err
			}
			s, err := c.open(cmd, args, treehug.WithMetrics(m))
			if err != nil {
				return err
			}
			defer s.Close()
			if !s.isDir {
				return fmt.Errorf("watch needs a directory, got %s", s.target)
			}

			ctx := cmd.Context()
			if metricsAddr != "" {
				stop, err := serveMetrics(ctx, metricsAddr, m)
				if err != nil {
					return err
				}
				defer stop()
				s.logger.Info("serving metrics", "addr", metricsAddr)
			}

			pkg, err := s.analyzer.AnalyzePackage(ctx, s.target, s.cfg.Include, s.cfg.Exclude)
			if err != nil {
				return err
			}
			rows := []DiagnosticRow{}
			for _, f := range pkg.Files {
				rows = appendDiagnostics(rows, f.File, f.Syntax)
				rows = appendDiagnostics(rows, f.File, f.Lint)
			}
			formatDiagnosticsText(c.stdout, rows)

			w, err := watch.New(watch.Config{
				Root:     s.target,
				Debounce: debounce,
				Include:  s.cfg.Include,
				Exclude:  s.cfg.Exclude,
				Logger:   s.logger,
			})
			if err != nil {
				return err
			}

			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()
			for batch := range w.Events() {
				c.relint(ctx, s, batch)
			}
			if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before changes are analyzed")
	return cmd
}

// relint analyzes each written file in batch and prints its diagnostics.
func (c *cli) relint(ctx context.Context, s *session, batch []watch.Event) {
	for _, ev := range batch {
		if ev.Op == watch.OpRemove {
			fmt.Fprintf(c.stdout, "%s: removed\n", ev.Rel)
			continue
		}
		l, err := lang.FromPath(ev.Path)
		if err != nil {
			continue
		}
		if want, err := lang.Parse(s.cfg.Language); s.cfg.Language != "" && err == nil && l != want {
			continue
		}
		sum, err := s.analyzer.AnalyzeFile(ctx, ev.Path)
		if err != nil {
			s.logger.Warn("file analysis failed", "file", ev.Rel, "error", err)
			continue
		}
		rows := appendDiagnostics(nil, ev.Rel, sum.Syntax)
		rows = appendDiagnostics(rows, ev.Rel, sum.Lint)
		fmt.Fprintf(c.stdout, "--- %s\n", ev.Rel)
		formatDiagnosticsText(c.stdout, rows)
	}
}

// serveMetrics starts an HTTP server for m and returns its shutdown func.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go srv.Serve(ln) //nolint:errcheck
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
