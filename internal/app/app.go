// Package app sequences a magazine build: read the URL list, extract every
// article through one page driver, sanitize, stage media, compose issues,
// render and compile them, and report what happened to each ref.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/gomag/internal/browser"
	"github.com/hyperifyio/gomag/internal/compile"
	"github.com/hyperifyio/gomag/internal/extract"
	"github.com/hyperifyio/gomag/internal/fetch"
	"github.com/hyperifyio/gomag/internal/layout"
	"github.com/hyperifyio/gomag/internal/media"
	"github.com/hyperifyio/gomag/internal/page"
	"github.com/hyperifyio/gomag/internal/registry"
	"github.com/hyperifyio/gomag/internal/render"
	"github.com/hyperifyio/gomag/internal/sanitize"
	"github.com/hyperifyio/gomag/internal/session"
)

var (
	// ErrNoArticles is returned when no ref survived extraction and
	// sanitizing. Per the exit code policy it maps to a non-zero exit.
	ErrNoArticles = errors.New("no usable articles")
	// ErrNoIssues is returned when articles were composed but no issue
	// compiled.
	ErrNoIssues = errors.New("no issue compiled")
)

// Option customises an App, mainly to swap collaborators in tests.
type Option func(*App)

// WithOpener replaces the page driver chosen by Config.Browser.
func WithOpener(o page.Opener) Option { return func(a *App) { a.opener = o } }

// WithCompiler replaces the engine chosen by Config.Engine.
func WithCompiler(c compile.Compiler) Option { return func(a *App) { a.compiler = c } }

// WithMediaGetter replaces the HTTP client used for images.
func WithMediaGetter(g media.Getter) Option { return func(a *App) { a.getter = g } }

// WithSummary prints the report table to w at the end of Run.
func WithSummary(w io.Writer) Option { return func(a *App) { a.summary = w } }

type App struct {
	cfg      Config
	engine   *extract.Engine
	opener   page.Opener
	compiler compile.Compiler
	getter   media.Getter
	summary  io.Writer
}

func New(cfg Config, opts ...Option) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	a := &App{
		cfg:    cfg,
		engine: extract.New(extract.Options{StepTimeout: cfg.Timeout, MaxAttempts: cfg.Attempts}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.compiler == nil {
		c, err := compile.New(cfg.Engine, filepath.Join(cfg.WorkDir, "tex"), cfg.KeepTex)
		if err != nil {
			return nil, fmt.Errorf("init compiler: %w", err)
		}
		a.compiler = c
	}
	if a.getter == nil {
		a.getter = &fetch.Client{
			HTTPClient:        newMediaHTTPClient(cfg.Timeout),
			UserAgent:         page.DefaultUserAgent,
			MaxAttempts:       3,
			PerRequestTimeout: cfg.Timeout,
			MaxConcurrent:     cfg.MediaWorkers,
		}
	}
	return a, nil
}

// Run executes one build. The report is returned even when err is non-nil;
// it is nil only if the run could not start.
func (a *App) Run(ctx context.Context) (*Report, error) {
	rep := newReport(a.cfg)
	defer a.finish(rep)

	refs, err := registry.LoadFile(a.cfg.URLsPath)
	rep.addInvalid(err)
	for _, inv := range registry.InvalidLines(err) {
		log.Warn().Int("line", inv.Line).Str("reason", inv.Reason).Msg("invalid url skipped")
	}
	if len(refs) == 0 {
		return rep, err
	}
	log.Info().Int("articles", len(refs)).Str("urls", a.cfg.URLsPath).Msg("url list loaded")

	sess, err := a.loadSession()
	if err != nil {
		return rep, err
	}

	raws, errs, err := a.extractAll(ctx, sess, refs)
	if err != nil {
		rep.setArticles(refs, make([]*sanitize.Article, len(refs)), errs)
		return rep, err
	}

	arts := make([]*sanitize.Article, len(refs))
	var accepted []sanitize.Article
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		art, err := sanitize.Sanitize(*raw)
		if err != nil {
			errs[i] = err
			log.Warn().Str("status_id", raw.Ref.StatusID).Err(err).Msg("article rejected")
			continue
		}
		arts[i] = &art
		accepted = append(accepted, art)
	}
	rep.setArticles(refs, arts, errs)
	if len(accepted) == 0 {
		return rep, fmt.Errorf("%w (%s)", ErrNoArticles, rep.FailureSummary())
	}
	log.Info().Int("accepted", len(accepted)).Int("failed", len(refs)-len(accepted)).Msg("articles extracted")

	assets := a.stageMedia(ctx, accepted, rep)

	issues, err := layout.Compose(accepted, assets, a.cfg.Layout)
	if err != nil {
		return rep, fmt.Errorf("compose: %w", err)
	}
	return rep, a.compileAll(ctx, issues, rep)
}

func (a *App) loadSession() (*session.Session, error) {
	if a.cfg.StorageState == "" {
		return session.Anonymous(), nil
	}
	sess, err := session.Load(a.cfg.StorageState)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	log.Info().Str("storage_state", a.cfg.StorageState).Int("cookies", len(sess.Cookies)).Msg("session loaded")
	return sess, nil
}

// pageOpener acquires the run's page driver. The release func must be called
// on every exit path.
func (a *App) pageOpener(ctx context.Context, sess *session.Session) (page.Opener, func(), error) {
	if a.opener != nil {
		return a.opener, func() {}, nil
	}
	if a.cfg.Browser == BrowserStatic {
		o, err := page.NewStaticOpener(sess, a.cfg.Timeout)
		if err != nil {
			return nil, nil, err
		}
		return o, func() {}, nil
	}
	b, err := browser.Launch(ctx, browser.Options{
		Headless:  a.cfg.Headless,
		Bin:       a.cfg.BrowserBin,
		NoSandbox: true,
		Session:   sess,
	})
	if err != nil {
		return nil, nil, err
	}
	return b, func() {
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Msg("browser close failed")
		}
	}, nil
}

// extractAll runs the engine over refs with bounded concurrency. Results are
// stored by ref index so that completion order never leaks into the output.
func (a *App) extractAll(ctx context.Context, sess *session.Session, refs []registry.ArticleRef) ([]*extract.RawArticle, []error, error) {
	raws := make([]*extract.RawArticle, len(refs))
	errs := make([]error, len(refs))

	opener, release, err := a.pageOpener(ctx, sess)
	if err != nil {
		return raws, errs, fmt.Errorf("open page driver: %w", err)
	}
	defer release()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for i, ref := range refs {
		g.Go(func() error {
			start := time.Now()
			raw, err := a.engine.Extract(gctx, opener, sess, ref)
			if err != nil {
				errs[i] = err
				ev := log.Warn().Str("status_id", ref.StatusID).Str("kind", string(extract.KindOf(err)))
				var f *extract.Failure
				if errors.As(err, &f) {
					ev = ev.Str("step", f.Step).Bool("timed_out", f.TimedOut())
				}
				ev.Err(err).Msg("extraction failed")
				if a.cfg.FailFast {
					return err
				}
				return nil
			}
			raws[i] = &raw
			log.Debug().Str("status_id", ref.StatusID).Dur("took", time.Since(start)).Msg("article extracted")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return raws, errs, fmt.Errorf("aborted on first failure: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return raws, errs, err
	}
	return raws, errs, nil
}

// stageMedia downloads every image once. Failures are reported and dropped;
// the article keeps its text.
func (a *App) stageMedia(ctx context.Context, arts []sanitize.Article, rep *Report) map[string]media.Asset {
	var urls []string
	seen := map[string]bool{}
	for _, art := range arts {
		for _, u := range art.MediaURLs {
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	if len(urls) == 0 {
		return nil
	}

	stager := media.NewStager(a.getter, filepath.Join(a.cfg.WorkDir, "media"))
	errs := make([]error, len(urls))
	var g errgroup.Group
	g.SetLimit(a.cfg.MediaWorkers)
	for i, u := range urls {
		g.Go(func() error {
			_, errs[i] = stager.StageOne(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	rep.addMediaFailures(errors.Join(errs...))
	rep.MediaFetches = stager.Fetches()
	assets := stager.Assets()
	log.Info().Int("images", len(urls)).Int("staged", len(assets)).Int64("fetches", stager.Fetches()).Msg("media staged")
	return assets
}

// compileAll compiles every issue. In split mode a failed issue does not stop
// the others; the run fails only when none compiled.
func (a *App) compileAll(ctx context.Context, issues []layout.Issue, rep *Report) error {
	split := a.cfg.Layout.Pagination == layout.Split
	var errs []error
	for _, is := range issues {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := issueOutputPath(a.cfg.OutputPath, is.Name, split)
		err := a.compileIssue(ctx, is, out)
		rep.addIssue(is, a.compiler.Name(), out, err)
		if err != nil {
			errs = append(errs, err)
			log.Error().Str("issue", is.Name).Err(err).Msg("compile failed")
			continue
		}
		log.Info().Str("issue", is.Name).Str("output", out).Msg("issue compiled")
	}
	if len(rep.Compiled()) == 0 {
		return fmt.Errorf("%w: %w", ErrNoIssues, errors.Join(errs...))
	}
	return nil
}

// compileIssue renders is and compiles it to a hidden sibling of out, which
// is renamed into place only after the engine succeeds.
func (a *App) compileIssue(ctx context.Context, is layout.Issue, out string) error {
	doc, err := render.Render(is, a.cfg.Layout)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}
	tmp := tempSibling(out)
	if err := a.compiler.Compile(ctx, doc, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("place %s: %w", out, err)
	}
	return nil
}

func (a *App) finish(rep *Report) {
	rep.FinishedAt = time.Now().UTC()
	path := reportSidecarPath(a.cfg.OutputPath)
	if err := rep.WriteJSON(path); err != nil {
		log.Warn().Err(err).Msg("write report")
	} else {
		log.Info().Str("report", path).Msg("wrote run report")
	}
	if a.summary != nil {
		rep.RenderTable(a.summary)
	}
}
