package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/gomag/internal/compile"
	"github.com/hyperifyio/gomag/internal/extract"
	"github.com/hyperifyio/gomag/internal/layout"
	"github.com/hyperifyio/gomag/internal/page"
	"github.com/hyperifyio/gomag/internal/registry"
	"github.com/hyperifyio/gomag/internal/render"
)

func articleHTML(id, name, handle, text string, images ...string) string {
	var b strings.Builder
	b.WriteString(`<!doctype html><html><body><article>`)
	fmt.Fprintf(&b, `<div data-testid="User-Name"><span>%s</span><span>%s</span></div>`, name, handle)
	fmt.Fprintf(&b, `<a href="/%s/status/%s"><time datetime="2024-05-01T10:32:00.000Z">May 1</time></a>`, strings.TrimPrefix(handle, "@"), id)
	fmt.Fprintf(&b, `<div data-testid="tweetText"><span>%s</span></div>`, text)
	for _, img := range images {
		fmt.Fprintf(&b, `<img src="%s">`, img)
	}
	b.WriteString(`</article></body></html>`)
	return b.String()
}

const emptyPage = `<html><body><main><p>Something went wrong.</p></main></body></html>`

// fixtureOpener serves pages by status id. Unknown ids get a page without an
// article, which the engine reports as a timeout. delay[id] slows a page down.
type fixtureOpener struct {
	pages map[string]string
	delay map[string]time.Duration
}

func (o *fixtureOpener) Open(ctx context.Context, url string) (page.Page, error) {
	id, err := registry.StatusID(url)
	if err != nil {
		return nil, err
	}
	if d := o.delay[id]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	markup, ok := o.pages[id]
	if !ok {
		markup = emptyPage
	}
	return page.FromHTML(url, markup)
}

type fakeCompiler struct {
	mu   sync.Mutex
	docs []render.Document
	fail map[string]bool
}

func (c *fakeCompiler) Name() string { return "fake" }

func (c *fakeCompiler) Compile(_ context.Context, doc render.Document, out string) error {
	c.mu.Lock()
	c.docs = append(c.docs, doc)
	c.mu.Unlock()
	if c.fail[doc.Name] {
		return &compile.CompileError{Issue: doc.Name, Engine: "fake", SourcePath: "/work/" + doc.Name + ".tex", Err: errors.New("undefined control sequence")}
	}
	return os.WriteFile(out, []byte("%PDF-1.4 "+doc.Name), 0o644)
}

type fakeGetter struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
	body  []byte
}

func (g *fakeGetter) Get(_ context.Context, url string) ([]byte, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = map[string]int{}
	}
	g.calls[url]++
	for k := range g.fail {
		if strings.Contains(url, k) {
			return nil, "", errors.New("404")
		}
	}
	return g.body, "image/png", nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

type harness struct {
	cfg      Config
	opener   *fixtureOpener
	compiler *fakeCompiler
	getter   *fakeGetter
}

func newHarness(t *testing.T, urls ...string) *harness {
	t.Helper()
	dir := t.TempDir()
	list := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(list, []byte("# issue 1\n"+strings.Join(urls, "\n")+"\n"), 0o644))

	cfg := DefaultConfig()
	cfg.URLsPath = list
	cfg.OutputPath = filepath.Join(dir, "out", "mag.pdf")
	cfg.WorkDir = filepath.Join(dir, "work")
	cfg.Browser = BrowserStatic
	cfg.Timeout = time.Second
	cfg.Attempts = 1
	return &harness{
		cfg:      cfg,
		opener:   &fixtureOpener{pages: map[string]string{}, delay: map[string]time.Duration{}},
		compiler: &fakeCompiler{fail: map[string]bool{}},
		getter:   &fakeGetter{body: pngBytes(t), fail: map[string]bool{}},
	}
}

func (h *harness) run(t *testing.T) (*Report, error) {
	t.Helper()
	a, err := New(h.cfg, WithOpener(h.opener), WithCompiler(h.compiler), WithMediaGetter(h.getter))
	require.NoError(t, err)
	return a.Run(context.Background())
}

func (h *harness) add(id, handle, text string, images ...string) {
	h.opener.pages[id] = articleHTML(id, "Name "+id, handle, text, images...)
}

func statusURL(id string) string { return "https://x.com/someone/status/" + id }

func TestRun_AllArticlesFail(t *testing.T) {
	h := newHarness(t, statusURL("1"), statusURL("2"), statusURL("3"))

	rep, err := h.run(t)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoArticles))
	assert.Contains(t, err.Error(), "timeout=3")

	require.NotNil(t, rep)
	require.Len(t, rep.Articles, 3)
	for _, a := range rep.Articles {
		assert.Equal(t, string(extract.KindTimeout), a.Outcome)
		assert.Equal(t, extract.StepWait, a.Step)
	}
	assert.Empty(t, rep.Succeeded())
	assert.Empty(t, h.compiler.docs)
	assert.NoFileExists(t, h.cfg.OutputPath)
	assert.FileExists(t, reportSidecarPath(h.cfg.OutputPath))
}

func TestRun_OrderFollowsInputNotCompletion(t *testing.T) {
	h := newHarness(t, statusURL("10"), statusURL("20"), statusURL("30"))
	h.cfg.Workers = 3
	h.add("10", "@ten", "First article text is here and is long enough.")
	h.add("20", "@twenty", "Second article text is here and is long enough.")
	h.add("30", "@thirty", "Third article text is here and is long enough.")
	h.opener.delay["10"] = 60 * time.Millisecond
	h.opener.delay["20"] = 30 * time.Millisecond

	rep, err := h.run(t)
	require.NoError(t, err)

	require.Len(t, h.compiler.docs, 1)
	var ids []string
	for _, m := range h.compiler.docs[0].Issue.Articles() {
		ids = append(ids, m.StatusID)
	}
	assert.Equal(t, []string{"10", "20", "30"}, ids)
	assert.Equal(t, []string{h.cfg.OutputPath}, rep.Compiled())

	b, err := os.ReadFile(h.cfg.OutputPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF")))
	assert.NoFileExists(t, tempSibling(h.cfg.OutputPath))
}

func TestRun_PartialFailureIsReported(t *testing.T) {
	h := newHarness(t, statusURL("1"), statusURL("2"), "not a url", statusURL("3"))
	h.add("1", "@one", "Article one has enough text to be accepted.")
	h.add("3", "@three", "Article three has enough text to be accepted.")

	rep, err := h.run(t)
	require.NoError(t, err)

	require.Len(t, rep.InvalidLines, 1)
	assert.Equal(t, 4, rep.InvalidLines[0].Line)
	require.Len(t, rep.Articles, 3)
	assert.Equal(t, OutcomeSucceeded, rep.Articles[0].Outcome)
	assert.Equal(t, string(extract.KindTimeout), rep.Articles[1].Outcome)
	assert.Equal(t, OutcomeSucceeded, rep.Articles[2].Outcome)
	assert.Equal(t, "timeout=1", rep.FailureSummary())
}

func TestRun_DuplicateURLsYieldOneArticle(t *testing.T) {
	h := newHarness(t, "https://x.com/a/status/111", "https://twitter.com/b/status/111")
	h.add("111", "@a", "Only once in the magazine, even though listed twice.")

	rep, err := h.run(t)
	require.NoError(t, err)
	require.Len(t, rep.Articles, 1)
	assert.Equal(t, "111", rep.Articles[0].StatusID)
}

func TestRun_SplitContinuesPastCompileFailure(t *testing.T) {
	h := newHarness(t, statusURL("111"), statusURL("222"), statusURL("333"))
	h.cfg.Layout.Pagination = layout.Split
	for _, id := range []string{"111", "222", "333"} {
		h.add(id, "@u"+id, "Split article "+id+" with enough text to keep.")
	}
	h.compiler.fail["222"] = true

	rep, err := h.run(t)
	require.NoError(t, err)

	dir := filepath.Dir(h.cfg.OutputPath)
	assert.FileExists(t, filepath.Join(dir, "mag-111.pdf"))
	assert.NoFileExists(t, filepath.Join(dir, "mag-222.pdf"))
	assert.FileExists(t, filepath.Join(dir, "mag-333.pdf"))

	require.Len(t, rep.Issues, 3)
	assert.Empty(t, rep.Issues[0].Error)
	assert.Contains(t, rep.Issues[1].Error, "undefined control sequence")
	assert.Equal(t, "/work/222.tex", rep.Issues[1].SourcePath)
	assert.Equal(t, []string{"222"}, rep.Issues[1].Articles)
	assert.Len(t, rep.Compiled(), 2)
}

func TestRun_SingleIssueCompileFailureIsFatal(t *testing.T) {
	h := newHarness(t, statusURL("1"))
	h.add("1", "@one", "Text that composes but never compiles.")
	h.compiler.fail[layout.SingleIssueName] = true

	_, err := h.run(t)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoIssues))
	var ce *compile.CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "fake", ce.Engine)
	assert.NoFileExists(t, h.cfg.OutputPath)
}

func TestRun_MediaFailureKeepsArticle(t *testing.T) {
	h := newHarness(t, statusURL("1"), statusURL("2"))
	shared := "https://pbs.twimg.com/media/SHARED?format=png&name=small"
	h.add("1", "@one", "Article with two pictures and enough words.", shared, "https://pbs.twimg.com/media/GONE?format=jpg&name=small")
	h.add("2", "@two", "Another article reusing the first picture.", shared)
	h.getter.fail["GONE"] = true

	rep, err := h.run(t)
	require.NoError(t, err)

	assert.Len(t, rep.Succeeded(), 2)
	require.Len(t, rep.MediaFailures, 1)
	assert.Contains(t, rep.MediaFailures[0].URL, "GONE")
	assert.Equal(t, int64(2), rep.MediaFetches)

	require.Len(t, h.compiler.docs, 1)
	var images []layout.ImageBlock
	for _, b := range h.compiler.docs[0].Issue.Blocks {
		if img, ok := b.(layout.ImageBlock); ok {
			images = append(images, img)
		}
	}
	require.Len(t, images, 2)
	assert.Equal(t, images[0].Asset.LocalPath, images[1].Asset.LocalPath)
	assert.Equal(t, "1", images[0].Article.StatusID)
	assert.Equal(t, "2", images[1].Article.StatusID)
}

func TestRun_RelativeWorkDirYieldsAbsoluteImagePaths(t *testing.T) {
	h := newHarness(t, statusURL("1"))
	h.add("1", "@one", "Article with a picture and enough words.", "https://pbs.twimg.com/media/PIC?format=png&name=small")
	t.Chdir(t.TempDir())
	h.cfg.WorkDir = ".gomag"

	_, err := h.run(t)
	require.NoError(t, err)
	require.Len(t, h.compiler.docs, 1)

	var img *layout.ImageBlock
	for _, b := range h.compiler.docs[0].Issue.Blocks {
		if v, ok := b.(layout.ImageBlock); ok {
			img = &v
		}
	}
	require.NotNil(t, img)
	p := img.Asset.LocalPath
	assert.True(t, filepath.IsAbs(p), p)
	assert.FileExists(t, p)
	assert.Contains(t, h.compiler.docs[0].Source, `\detokenize{`+filepath.ToSlash(p)+`}`)
}

func TestRun_FailFast(t *testing.T) {
	h := newHarness(t, statusURL("1"), statusURL("2"))
	h.cfg.FailFast = true
	h.add("2", "@two", "Would succeed but the run aborts first.")

	_, err := h.run(t)
	require.Error(t, err)
	assert.Equal(t, extract.KindTimeout, extract.KindOf(err))
	assert.Empty(t, h.compiler.docs)
}

func TestRun_EmptyListReportsNoURLs(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t)
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrNoURLs))
}

func TestRun_SummaryTable(t *testing.T) {
	h := newHarness(t, statusURL("1"), statusURL("2"))
	h.add("1", "@one", "Table row article with enough text inside.")

	var out bytes.Buffer
	a, err := New(h.cfg, WithOpener(h.opener), WithCompiler(h.compiler), WithMediaGetter(h.getter), WithSummary(&out))
	require.NoError(t, err)
	_, err = a.Run(context.Background())
	require.NoError(t, err)

	s := out.String()
	assert.Contains(t, s, "succeeded")
	assert.Contains(t, s, "timeout")
	assert.Contains(t, strings.ToLower(s), "1/2 ok")
	assert.Contains(t, s, h.cfg.OutputPath)
}

func TestIssueOutputPath(t *testing.T) {
	assert.Equal(t, "out/mag.pdf", issueOutputPath("out/mag.pdf", "issue", false))
	assert.Equal(t, "out/mag-123.pdf", issueOutputPath("out/mag.pdf", "123", true))
	assert.Equal(t, "mag-123.pdf", issueOutputPath("mag", "123", true))
	assert.Equal(t, "out/mag.pdf.report.json", reportSidecarPath("out/mag.pdf"))
}
