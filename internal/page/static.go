package page

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperifyio/gomag/internal/session"
)

// DefaultUserAgent is sent by the HTTP driver.
const DefaultUserAgent = "Mozilla/5.0 (compatible; gomag/1.0; +https://github.com/hyperifyio/gomag)"

// maxPageBytes caps how much of a response body is parsed.
const maxPageBytes = 16 << 20

// StaticOpener fetches pages over plain HTTP without running scripts. It suits
// server-rendered pages, saved fixtures and tests; client-rendered pages need
// the browser driver.
type StaticOpener struct {
	Client    *http.Client
	UserAgent string
}

// NewStaticOpener returns an HTTP driver that sends the session cookies.
func NewStaticOpener(sess *session.Session, timeout time.Duration) (*StaticOpener, error) {
	jar, err := sess.Jar()
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &StaticOpener{
		Client:    &http.Client{Jar: jar, Timeout: timeout},
		UserAgent: DefaultUserAgent,
	}, nil
}

// Open performs a GET and parses the response. Client errors such as 401 or
// 404 still produce a page so that callers can inspect login walls.
func (o *StaticOpener) Open(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	ua := o.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("server error: %d", resp.StatusCode)
	}
	snap, err := NewSnapshot(resp.Request.URL.String(), io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, err
	}
	return &StaticPage{snap: snap}, nil
}

// StaticPage serves queries from a single DOM snapshot.
type StaticPage struct {
	snap *Snapshot
}

// FromHTML builds a page from an HTML string.
func FromHTML(pageURL, markup string) (*StaticPage, error) {
	snap, err := NewSnapshot(pageURL, strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	return &StaticPage{snap: snap}, nil
}

func (p *StaticPage) URL() string { return p.snap.URL() }

// WaitFor succeeds when the selector is present. A snapshot never changes, so
// an absent selector fails at once instead of waiting out the deadline.
func (p *StaticPage) WaitFor(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrWaitTimeout, selector)
	}
	if p.snap.Has(selector) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrWaitTimeout, selector)
}

func (p *StaticPage) Query(ctx context.Context, selector string) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.snap.Query(selector), nil
}

func (p *StaticPage) Close() error { return nil }
