package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/treehug"
	"github.com/jward/treehug/internal/config"
	"github.com/jward/treehug/internal/slogutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newCLI(os.Stdout, os.Stderr)
	err := c.root.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !c.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

// cli holds the command tree and the values bound to its flags.
type cli struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	// errorHandled is set by outputError so main() doesn't double-print.
	errorHandled bool

	flagConfig    string
	flagFormat    string
	flagLanguage  string
	flagLogLevel  string
	flagLogFormat string
	flagVerbose   int
	flagQuiet     bool
	flagInclude   []string
	flagExclude   []string
	flagWorkers   int
	flagNoSem     bool
	flagCache     string
	flagRules     []string
}

func newCLI(stdout, stderr io.Writer) *cli {
	c := &cli{stdout: stdout, stderr: stderr}
	c.root = &cobra.Command{
		Use:   "hug",
		Short: "Cross-language symbol inventory and diagnostics",
		Long: `hug analyzes source files with tree-sitter and reports symbols, imports,
exports, locals and three tiers of diagnostics (syntax, lint, semantic)
using one language-agnostic model.

Settings are read from .treehug.yaml in the analyzed root (or --config),
overridden by TREEHUG_* environment variables, then by flags.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateFormat(c.flagFormat)
		},
	}
	c.root.SetOut(stdout)
	c.root.SetErr(stderr)

	pf := c.root.PersistentFlags()
	pf.StringVar(&c.flagConfig, "config", "", "config file (default: .treehug.yaml in the analyzed root)")
	pf.StringVar(&c.flagFormat, "format", "json", "output format: "+strings.Join(validFormats, "|"))
	pf.StringVar(&c.flagLanguage, "language", "", "analyze every file as this language")
	pf.StringVar(&c.flagLogLevel, "log-level", "", "log level: debug|info|warn|error|silent")
	pf.StringVar(&c.flagLogFormat, "log-format", "", "log format: text|json")
	pf.CountVarP(&c.flagVerbose, "verbose", "v", "increase log verbosity (repeatable)")
	pf.BoolVarP(&c.flagQuiet, "quiet", "q", false, "disable logging")
	pf.StringSliceVar(&c.flagInclude, "include", nil, "include glob (repeatable, doublestar syntax)")
	pf.StringSliceVar(&c.flagExclude, "exclude", nil, "exclude glob (repeatable, doublestar syntax)")
	pf.IntVar(&c.flagWorkers, "workers", 0, "worker count for directory scans (0: one per CPU)")
	pf.BoolVar(&c.flagNoSem, "no-semantic", false, "skip the semantic tier")
	pf.StringVar(&c.flagCache, "cache", "", "summary cache database path")
	pf.StringSliceVar(&c.flagRules, "rules", nil, "Risor rule script or directory (repeatable)")

	c.root.AddCommand(
		c.analyzeCmd(),
		c.symbolsCmd(),
		c.functionsCmd(),
		c.typesCmd(),
		c.exportsCmd(),
		c.importsCmd(),
		c.classesCmd(),
		c.lintCmd(),
		c.languagesCmd(),
		c.watchCmd(),
		c.cacheCmd(),
	)
	return c
}

// session is everything a command needs to analyze one target.
type session struct {
	target   string // absolute
	isDir    bool
	cfg      *config.Config
	logger   *slog.Logger
	analyzer *treehug.Analyzer
	cache    *treehug.Cache
}

func (s *session) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

// resolveTarget returns the absolute path of the file or directory named
// by args (default ".").
func resolveTarget(args []string) (string, bool, error) {
	p := "."
	if len(args) > 0 {
		p = args[0]
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false, fmt.Errorf("resolving path %q: %w", p, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", false, fmt.Errorf("path not found: %s", abs)
	}
	return abs, info.IsDir(), nil
}

// loadConfig reads the config for root and applies flag overrides.
func (c *cli) loadConfig(cmd *cobra.Command, root string) (*config.Config, error) {
	cfg, err := config.Load(root, c.flagConfig)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("language") {
		cfg.Language = c.flagLanguage
	}
	if flags.Changed("include") {
		cfg.Include = c.flagInclude
	}
	if flags.Changed("exclude") {
		cfg.Exclude = c.flagExclude
	}
	if flags.Changed("workers") {
		cfg.Workers = c.flagWorkers
	}
	if flags.Changed("no-semantic") {
		cfg.Semantic = !c.flagNoSem
	}
	if flags.Changed("cache") {
		cfg.Cache = c.flagCache
	}
	if flags.Changed("rules") {
		cfg.Scripts = c.flagRules
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = c.flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = c.flagLogFormat
	}
	return cfg, cfg.Validate()
}

func (c *cli) newLogger(cfg *config.Config) *slog.Logger {
	level := slogutil.LevelFromString(cfg.Log.Level)
	if c.flagVerbose > 0 || c.flagQuiet {
		level = slogutil.LevelFromVerbosity(c.flagVerbose, c.flagQuiet)
	}
	return slogutil.NewLogger(c.stderr, level, cfg.Log.Format)
}

// open resolves the target, loads configuration and builds the analyzer.
func (c *cli) open(cmd *cobra.Command, args []string, extra ...treehug.Option) (*session, error) {
	target, isDir, err := resolveTarget(args)
	if err != nil {
		return nil, err
	}
	root := target
	if !isDir {
		root = filepath.Dir(target)
	}
	cfg, err := c.loadConfig(cmd, root)
	if err != nil {
		return nil, err
	}
	s := &session{target: target, isDir: isDir, cfg: cfg, logger: c.newLogger(cfg)}
	if cfg.Source != "" {
		s.logger.Debug("config loaded", "path", cfg.Source)
	}

	opts := []treehug.Option{
		treehug.WithLogger(s.logger),
		treehug.WithLanguage(cfg.Language),
		treehug.WithSemantic(cfg.Semantic),
		treehug.WithWorkers(cfg.Workers),
		treehug.WithRuleConfig(cfg.Rules.Disable, cfg.Rules.Severity),
	}
	if cfg.Cache != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Cache), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		s.cache, err = treehug.OpenCache(cfg.Cache)
		if err != nil {
			return nil, err
		}
		opts = append(opts, treehug.WithCache(s.cache))
	}
	if len(cfg.Scripts) > 0 {
		r, err := treehug.LoadRules(s.logger, cfg.Scripts...)
		if err != nil {
			s.Close()
			return nil, err
		}
		opts = append(opts, treehug.WithRules(r))
	}

	s.analyzer, err = treehug.New(append(opts, extra...)...)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
