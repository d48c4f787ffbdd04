// Package extract turns a status page into a RawArticle. Container lookup is
// an ordered list of locators and body text an ordered list of strategies,
// so that markup drift is fixed by adding or replacing one entry.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gomag/internal/page"
	"github.com/hyperifyio/gomag/internal/registry"
	"github.com/hyperifyio/gomag/internal/session"
)

const (
	DefaultStepTimeout = 30 * time.Second
	DefaultMaxAttempts = 2
	DefaultBackoff     = 500 * time.Millisecond
)

var restrictedSelectors = []string{
	`[data-testid="loginButton"]`,
	`a[href="/login"]`,
	`form[action*="login"]`,
}

var restrictedPhrases = []string{
	"These posts are protected",
	"This account's posts are protected",
	"Sign in to X",
	"Log in to Twitter",
}

// RawArticle holds the fields read from one status page. Author and
// PublishedAt are best effort; Text is never empty.
type RawArticle struct {
	Ref          registry.ArticleRef `json:"ref"`
	AuthorName   string              `json:"author_name"`
	AuthorHandle string              `json:"author_handle"`
	Text         string              `json:"text"`
	PublishedAt  *time.Time          `json:"published_at,omitempty"`
	MediaURLs    []string            `json:"media_urls,omitempty"`
	// Locator and TextStrategy name the strategies that produced the
	// article, reported to spot markup drift.
	Locator      string `json:"locator"`
	TextStrategy string `json:"text_strategy"`
}

// Options tunes an Engine. Zero values take the defaults.
type Options struct {
	StepTimeout time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// Engine runs the extraction state machine. It holds policy only; the page
// capability and session are passed to every call.
type Engine struct {
	Locators    []Locator
	Texts       []TextStrategy
	StepTimeout time.Duration
	MaxAttempts int
	Backoff     time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// New returns an engine with the default locators and text strategies.
func New(opts Options) *Engine {
	e := &Engine{
		Locators:    DefaultLocators(),
		Texts:       DefaultTextStrategies(),
		StepTimeout: opts.StepTimeout,
		MaxAttempts: opts.MaxAttempts,
		Backoff:     opts.Backoff,
		sleep:       sleepCtx,
	}
	if e.StepTimeout <= 0 {
		e.StepTimeout = DefaultStepTimeout
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = DefaultMaxAttempts
	}
	if e.Backoff <= 0 {
		e.Backoff = DefaultBackoff
	}
	return e
}

// Extract opens ref and reads its article. Every attempt re-evaluates the
// whole sequence from navigation onwards. The returned error is always a
// *Failure.
func (e *Engine) Extract(ctx context.Context, opener page.Opener, sess *session.Session, ref registry.ArticleRef) (RawArticle, error) {
	var last *Failure
	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := e.Backoff << (attempt - 2)
			log.Debug().Str("status_id", ref.StatusID).Int("attempt", attempt).Dur("backoff", delay).Msg("retrying extraction")
			if err := e.sleep(ctx, delay); err != nil {
				break
			}
		}
		art, f := e.attempt(ctx, opener, sess, ref, attempt)
		if f == nil {
			log.Debug().Str("status_id", ref.StatusID).Int("attempt", attempt).
				Str("locator", art.Locator).Str("text", art.TextStrategy).Msg("extracted")
			return art, nil
		}
		f.Attempts = attempt
		last = f
		log.Debug().Str("status_id", ref.StatusID).Int("attempt", attempt).Str("kind", string(f.Kind)).
			Str("step", f.Step).Bool("timed_out", f.TimedOut()).Err(f.Err).Msg("attempt failed")
		if !f.Retryable() || ctx.Err() != nil {
			break
		}
	}
	return RawArticle{}, last
}

func (e *Engine) attempt(ctx context.Context, opener page.Opener, sess *session.Session, ref registry.ArticleRef, n int) (RawArticle, *Failure) {
	step := e.StepTimeout * time.Duration(n)
	// Navigation, waiting and the locators each get one step.
	actx, cancel := context.WithTimeout(ctx, step*time.Duration(2+len(e.Locators)))
	defer cancel()

	fail := func(kind Kind, at string, err error) (RawArticle, *Failure) {
		return RawArticle{}, &Failure{Kind: kind, Ref: ref, Step: at, Err: err}
	}

	octx, ocancel := context.WithTimeout(actx, step)
	p, err := opener.Open(octx, ref.URL)
	ocancel()
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %w", ErrNavigation, err)
		}
		return fail(KindTimeout, StepOpen, err)
	}
	defer func() { _ = p.Close() }()

	wctx, wcancel := context.WithTimeout(actx, step)
	err = p.WaitFor(wctx, ContainerSelector)
	wcancel()
	if err != nil {
		if !sess.Authenticated() && restricted(actx, p) {
			return fail(KindAuthRequired, StepWait, ErrRestricted)
		}
		return fail(KindTimeout, StepWait, err)
	}

	container, via := e.locate(actx, p, ref.StatusID, step)
	if container == nil {
		return fail(KindContentMissing, StepLocate, ErrNoContainer)
	}

	art := RawArticle{Ref: ref, Locator: via}
	art.AuthorName, art.AuthorHandle = extractAuthor(container)
	art.PublishedAt = extractTimestamp(container)
	art.MediaURLs = extractMedia(container)
	art.Text, art.TextStrategy = chooseText(e.Texts, container, p.URL())
	if art.Text == "" {
		if actx.Err() != nil {
			return fail(KindTimeout, StepText, actx.Err())
		}
		if !sess.Authenticated() && restricted(actx, p) {
			return fail(KindAuthRequired, StepText, ErrRestricted)
		}
		return fail(KindContentMissing, StepText, ErrEmptyText)
	}
	return art, nil
}

func (e *Engine) locate(ctx context.Context, p page.Page, statusID string, step time.Duration) (page.Node, string) {
	for _, l := range e.Locators {
		lctx, cancel := context.WithTimeout(ctx, step)
		node, err := l.Locate(lctx, p, statusID)
		cancel()
		if err != nil {
			log.Debug().Str("status_id", statusID).Str("locator", l.Name).Err(err).Msg("locator gave up")
			continue
		}
		if node != nil {
			return node, l.Name
		}
	}
	return nil, ""
}

// restricted reports whether the page shows a login wall.
func restricted(ctx context.Context, p page.Page) bool {
	for _, sel := range restrictedSelectors {
		if nodes, err := p.Query(ctx, sel); err == nil && len(nodes) > 0 {
			return true
		}
	}
	body, err := p.Query(ctx, "body")
	if err != nil || len(body) == 0 {
		return false
	}
	text := body[0].Text()
	for _, phrase := range restrictedPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
