package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/gomag/internal/app"
	"github.com/hyperifyio/gomag/internal/layout"
	"github.com/hyperifyio/gomag/internal/registry"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("run failed")
	}
	os.Exit(exitCode(err))
}

// exitCode maps run errors to the process exit status: 2 when nothing usable
// came out of the inputs, 1 for every other failure.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, app.ErrNoArticles), errors.Is(err, app.ErrNoIssues), errors.Is(err, registry.ErrNoURLs):
		return 2
	default:
		return 1
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "gomag",
		Short:         "Build a print-ready magazine from a list of X/Twitter article URLs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBuildCmd(stdout), newVersionCmd(stdout))
	return root
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "gomag %s (commit %s, built %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		},
	}
}

// buildFlags mirrors app.Config for flag parsing. Only flags the user set
// override the lower layers.
type buildFlags struct {
	configPath string
	envFile    string

	urls, output string

	paper                             string
	columns                           int
	marginOuter, marginInner          float64
	marginTop, marginBottom, colGap   float64
	pagination, imageLayout           string
	blankFirstPage, indexPage         bool
	storageState, workDir, engine     string
	browser, browserBin               string
	headless, keepTex, failFast, verb bool
	timeout                           time.Duration
	attempts, workers, mediaWorkers   int
}

func newBuildCmd(stdout io.Writer) *cobra.Command {
	var f buildFlags
	d := app.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Extract the listed articles and compile them into PDF issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, &f)
			if err != nil {
				return err
			}
			if cfg.Verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return run(cmd.Context(), cfg, stdout)
		},
	}

	bindBuildFlags(cmd, &f, d)
	return cmd
}

func bindBuildFlags(cmd *cobra.Command, f *buildFlags, d app.Config) {
	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "Path to a YAML or JSON config file")
	fl.StringVar(&f.envFile, "env-file", "", "Additional dotenv file loaded after .env")
	fl.StringVar(&f.urls, "urls", d.URLsPath, "Line-based list of article URLs")
	fl.StringVar(&f.output, "output", d.OutputPath, "Output PDF path; split issues are named <stem>-<id>.pdf")

	fl.StringVar(&f.paper, "paper", string(d.Layout.Paper), "Paper size: a4 or letter")
	fl.IntVar(&f.columns, "columns", d.Layout.Columns, "Number of text columns")
	fl.Float64Var(&f.marginOuter, "margin-outer", d.Layout.MarginOuter, "Outer margin in mm")
	fl.Float64Var(&f.marginInner, "margin-inner", d.Layout.MarginInner, "Inner (binding) margin in mm")
	fl.Float64Var(&f.marginTop, "margin-top", d.Layout.MarginTop, "Top margin in mm")
	fl.Float64Var(&f.marginBottom, "margin-bottom", d.Layout.MarginBottom, "Bottom margin in mm")
	fl.Float64Var(&f.colGap, "column-gap", d.Layout.ColumnGap, "Gap between columns in mm")
	fl.StringVar(&f.pagination, "pagination", string(d.Layout.Pagination), "Pagination: continuous, newpage or split")
	fl.StringVar(&f.imageLayout, "image-layout", string(d.Layout.ImageLayout), "Image placement: inline, span or appendix")
	fl.BoolVar(&f.blankFirstPage, "blank-first-page", false, "Start the issue with a blank page")
	fl.BoolVar(&f.indexPage, "index-page", false, "Add an index of articles before the content")

	fl.StringVar(&f.storageState, "storage-state", "", "Saved browser storage state for an authenticated session")
	fl.StringVar(&f.browser, "browser", d.Browser, "Page driver: chrome (rendered) or static (plain HTTP)")
	fl.StringVar(&f.browserBin, "browser-bin", "", "Browser binary; empty finds or downloads one")
	fl.BoolVar(&f.headless, "headless", d.Headless, "Run the browser headless")
	fl.DurationVar(&f.timeout, "timeout", d.Timeout, "Per-step extraction timeout")
	fl.IntVar(&f.attempts, "attempts", d.Attempts, "Extraction attempts per article")
	fl.IntVar(&f.workers, "workers", d.Workers, "Concurrent article extractions")
	fl.IntVar(&f.mediaWorkers, "media-workers", d.MediaWorkers, "Concurrent image downloads")
	fl.BoolVar(&f.failFast, "fail-fast", false, "Abort on the first extraction failure")

	fl.StringVar(&f.engine, "engine", d.Engine, "PDF engine: tectonic or native")
	fl.StringVar(&f.workDir, "work-dir", d.WorkDir, "Directory for staged media and LaTeX sources")
	fl.BoolVar(&f.keepTex, "keep-tex", false, "Keep the LaTeX source after a successful compile")
	fl.BoolVarP(&f.verb, "verbose", "v", false, "Verbose logging")
}

// resolveConfig layers defaults, config file, environment (after dotenv
// files) and finally the flags the user set.
func resolveConfig(cmd *cobra.Command, f *buildFlags) (app.Config, error) {
	cfg := app.DefaultConfig()
	if err := app.LoadEnvFiles(".env", f.envFile); err != nil {
		return cfg, fmt.Errorf("load env files: %w", err)
	}
	if f.configPath != "" {
		fc, err := app.LoadConfigFile(f.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		if err := app.ApplyFileConfig(&cfg, fc); err != nil {
			return cfg, err
		}
	}
	if err := app.ApplyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	if err := applyFlags(cmd, f, &cfg); err != nil {
		return cfg, err
	}
	return cfg, app.ValidateConfig(cfg)
}

func applyFlags(cmd *cobra.Command, f *buildFlags, cfg *app.Config) error {
	set := cmd.Flags().Changed
	var errs []error
	if set("urls") {
		cfg.URLsPath = f.urls
	}
	if set("output") {
		cfg.OutputPath = f.output
	}
	if set("paper") {
		p, err := layout.ParsePaper(f.paper)
		errs = append(errs, err)
		cfg.Layout.Paper = p
	}
	if set("columns") {
		cfg.Layout.Columns = f.columns
	}
	floats := []struct {
		name string
		src  float64
		dst  *float64
	}{
		{"margin-outer", f.marginOuter, &cfg.Layout.MarginOuter},
		{"margin-inner", f.marginInner, &cfg.Layout.MarginInner},
		{"margin-top", f.marginTop, &cfg.Layout.MarginTop},
		{"margin-bottom", f.marginBottom, &cfg.Layout.MarginBottom},
		{"column-gap", f.colGap, &cfg.Layout.ColumnGap},
	}
	for _, fv := range floats {
		if set(fv.name) {
			*fv.dst = fv.src
		}
	}
	if set("pagination") {
		p, err := layout.ParsePagination(f.pagination)
		errs = append(errs, err)
		cfg.Layout.Pagination = p
	}
	if set("image-layout") {
		m, err := layout.ParseImageLayout(f.imageLayout)
		errs = append(errs, err)
		cfg.Layout.ImageLayout = m
	}
	if set("blank-first-page") {
		cfg.Layout.BlankFirstPage = f.blankFirstPage
	}
	if set("index-page") {
		cfg.Layout.IndexPage = f.indexPage
	}
	if set("storage-state") {
		cfg.StorageState = f.storageState
	}
	if set("browser") {
		cfg.Browser = f.browser
	}
	if set("browser-bin") {
		cfg.BrowserBin = f.browserBin
	}
	if set("headless") {
		cfg.Headless = f.headless
	}
	if set("timeout") {
		cfg.Timeout = f.timeout
	}
	if set("attempts") {
		cfg.Attempts = f.attempts
	}
	if set("workers") {
		cfg.Workers = f.workers
	}
	if set("media-workers") {
		cfg.MediaWorkers = f.mediaWorkers
	}
	if set("fail-fast") {
		cfg.FailFast = f.failFast
	}
	if set("engine") {
		cfg.Engine = f.engine
	}
	if set("work-dir") {
		cfg.WorkDir = f.workDir
	}
	if set("keep-tex") {
		cfg.KeepTex = f.keepTex
	}
	if set("verbose") {
		cfg.Verbose = f.verb
	}
	return errors.Join(errs...)
}

func run(ctx context.Context, cfg app.Config, stdout io.Writer) error {
	a, err := app.New(cfg, app.WithSummary(stdout))
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	rep, err := a.Run(ctx)
	if err != nil {
		return err
	}
	if failed := rep.Failed(); len(failed) > 0 {
		log.Warn().Int("failed", len(failed)).Str("kinds", rep.FailureSummary()).Msg("some articles were left out")
	}
	for _, out := range rep.Compiled() {
		log.Info().Str("output", out).Msg("done")
	}
	return nil
}
