package page

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/gomag/internal/session"
)

const fixture = `<!doctype html>
<html><body>
  <script>var x = 1;</script>
  <article>
    <div data-testid="User-Name"><span>Alice Example</span><div><span>@alice</span></div></div>
    <div data-testid="tweetText"><span>First line
second line</span></div>
    <p>Paragraph one.</p><p>Paragraph two.</p>
    <img src="https://pbs.twimg.com/media/abc?format=jpg&amp;name=small">
  </article>
</body></html>`

func TestInnerText_KeepsBlockBreaks(t *testing.T) {
	p, err := FromHTML("https://x.com/alice/status/1", fixture)
	require.NoError(t, err)

	arts, err := p.Query(context.Background(), "article")
	require.NoError(t, err)
	require.Len(t, arts, 1)

	text := arts[0].Text()
	assert.Contains(t, text, "Alice Example\n@alice")
	assert.Contains(t, text, "First line\nsecond line")
	assert.Contains(t, text, "Paragraph one.\n\nParagraph two.")
	assert.NotContains(t, text, "var x")
}

func TestNode_FindAndAttr(t *testing.T) {
	p, err := FromHTML("https://x.com/alice/status/1", fixture)
	require.NoError(t, err)
	arts, err := p.Query(context.Background(), "article")
	require.NoError(t, err)

	imgs := arts[0].Find(`img[src*="twimg.com/media"]`)
	require.Len(t, imgs, 1)
	src, ok := imgs[0].Attr("src")
	require.True(t, ok)
	assert.Equal(t, "https://pbs.twimg.com/media/abc?format=jpg&name=small", src)

	_, ok = imgs[0].Attr("alt")
	assert.False(t, ok)
	assert.Contains(t, imgs[0].HTML(), "<img")
}

func TestStaticPage_WaitFor(t *testing.T) {
	p, err := FromHTML("https://x.com/", "<html><body><main>nothing</main></body></html>")
	require.NoError(t, err)

	require.NoError(t, p.WaitFor(context.Background(), "main"))
	err = p.WaitFor(context.Background(), "article")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWaitTimeout))
}

func TestStaticOpener_SendsSessionCookies(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("auth_token"); err == nil {
			gotCookie = c.Value
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(fixture))
	}))
	defer srv.Close()

	state := `{"cookies":[{"name":"auth_token","value":"secret","domain":"127.0.0.1","path":"/","expires":-1}]}`
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(state), 0o600))
	sess, err := session.Load(path)
	require.NoError(t, err)

	o, err := NewStaticOpener(sess, 0)
	require.NoError(t, err)

	p, err := o.Open(context.Background(), srv.URL+"/alice/status/1")
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.WaitFor(context.Background(), "article"))
	assert.Equal(t, "secret", gotCookie)
}

func TestStaticOpener_ServerErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	o := &StaticOpener{Client: srv.Client()}
	_, err := o.Open(context.Background(), srv.URL)
	require.Error(t, err)
}
