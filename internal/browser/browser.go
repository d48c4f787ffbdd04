// Package browser drives a headless Chromium through go-rod and exposes it as
// a page.Opener, so that client-rendered pages can be queried.
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gomag/internal/page"
	"github.com/hyperifyio/gomag/internal/session"
)

// Options configures the browser launch.
type Options struct {
	Headless bool
	// Bin is an explicit browser binary. Empty lets the launcher find or
	// download one.
	Bin string
	// NoSandbox is needed in most containers.
	NoSandbox bool
	Session   *session.Session
}

// Browser is one browser process shared by every page opened during a run.
// Pages are separate tabs, so concurrent Open calls are safe.
type Browser struct {
	launcher *launcher.Launcher
	rod      *rod.Browser
}

// Launch starts the browser and installs the session cookies. The caller must
// Close it on every exit path.
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	l := launcher.New().Headless(opts.Headless).NoSandbox(opts.NoSandbox)
	if strings.TrimSpace(opts.Bin) != "" {
		l = l.Bin(opts.Bin)
	}
	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	b := &Browser{launcher: l, rod: rb}
	if opts.Session.Authenticated() {
		if err := rb.SetCookies(cookieParams(opts.Session)); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("install session cookies: %w", err)
		}
		log.Debug().Int("cookies", len(opts.Session.Cookies)).Msg("session cookies installed")
	}
	return b, nil
}

// Open navigates a new tab to url and waits for the load event.
func (b *Browser) Open(ctx context.Context, url string) (page.Page, error) {
	p, err := b.rod.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("new tab: %w", err)
	}
	if err := p.Context(ctx).Navigate(url); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.Context(ctx).WaitLoad(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("wait load %s: %w", url, err)
	}
	return &tab{url: url, page: p}, nil
}

// Close shuts the browser down and removes its profile directory.
func (b *Browser) Close() error {
	var err error
	if b.rod != nil {
		err = b.rod.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	return err
}

type tab struct {
	url  string
	page *rod.Page
}

func (t *tab) URL() string { return t.url }

// WaitFor polls the live DOM until selector matches or ctx ends.
func (t *tab) WaitFor(ctx context.Context, selector string) error {
	if _, err := t.page.Context(ctx).Element(selector); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s", page.ErrWaitTimeout, selector)
		}
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

// Query takes a DOM snapshot and answers the selector from it. Nodes returned
// by one call are therefore stable while the page keeps rendering.
func (t *tab) Query(ctx context.Context, selector string) ([]page.Node, error) {
	html, err := t.page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", t.url, err)
	}
	snap, err := page.NewSnapshot(t.url, strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return snap.Query(selector), nil
}

func (t *tab) Close() error { return t.page.Close() }

func cookieParams(s *session.Session) []*proto.NetworkCookieParam {
	out := make([]*proto.NetworkCookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.SameSite != "" {
			p.SameSite = proto.NetworkCookieSameSite(c.SameSite)
		}
		if exp := c.Expiry(); !exp.IsZero() {
			p.Expires = proto.TimeSinceEpoch(exp.Unix())
		}
		out = append(out, p)
	}
	return out
}
