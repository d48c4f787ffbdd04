package compile

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/gomag/internal/extract"
	"github.com/hyperifyio/gomag/internal/layout"
	"github.com/hyperifyio/gomag/internal/media"
	"github.com/hyperifyio/gomag/internal/registry"
	"github.com/hyperifyio/gomag/internal/render"
	"github.com/hyperifyio/gomag/internal/sanitize"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: 90, B: 200, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func testDocument(t *testing.T, cfg layout.Config, imagePath string) render.Document {
	t.Helper()
	art := sanitize.Article{RawArticle: extract.RawArticle{
		Ref:          registry.ArticleRef{StatusID: "42", URL: "https://x.com/bob/status/42"},
		AuthorName:   "Bob Café",
		AuthorHandle: "@bob",
		Text:         "First paragraph with enough words to wrap a little.\n\n## Heading\n\n- one\n- two\n\n```go\nfmt.Println(1)\n```\n\nLast paragraph.",
	}}
	assets := map[string]media.Asset{}
	if imagePath != "" {
		art.MediaURLs = []string{"https://pbs.twimg.com/media/a.png"}
		assets["https://pbs.twimg.com/media/a.png"] = media.Asset{SourceURL: "https://pbs.twimg.com/media/a.png", LocalPath: imagePath}
	}
	issues, err := layout.Compose([]sanitize.Article{art}, assets, cfg)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	doc, err := render.Render(issues[0], cfg)
	require.NoError(t, err)
	return doc
}

func TestNew(t *testing.T) {
	c, err := New("", "", false)
	require.NoError(t, err)
	assert.Equal(t, "tectonic", c.Name())

	c, err = New("native", "", false)
	require.NoError(t, err)
	assert.Equal(t, "native", c.Name())

	_, err = New("pdflatex", "", false)
	assert.Error(t, err)
}

func TestTectonic_MissingBinaryKeepsSource(t *testing.T) {
	dir := t.TempDir()
	doc := testDocument(t, layout.DefaultConfig(), "")
	tc := &Tectonic{Bin: "gomag-no-such-tectonic", WorkDir: dir}

	out := filepath.Join(dir, "out.pdf")
	err := tc.Compile(context.Background(), doc, out)
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "tectonic", ce.Engine)
	assert.Equal(t, "issue", ce.Issue)
	assert.True(t, errors.Is(err, ErrEngineNotFound))
	assert.FileExists(t, ce.SourcePath)
	assert.Contains(t, err.Error(), "source kept at")
	assert.NoFileExists(t, out)
}

func TestNative_WritesPDF(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "a.png")
	writePNG(t, imgPath)

	for _, il := range []layout.ImageLayout{layout.Inline, layout.Span, layout.Appendix} {
		t.Run(string(il), func(t *testing.T) {
			cfg := layout.DefaultConfig()
			cfg.ImageLayout = il
			cfg.IndexPage = true
			doc := testDocument(t, cfg, imgPath)

			out := filepath.Join(dir, string(il), "issue.pdf")
			require.NoError(t, (&Native{}).Compile(context.Background(), doc, out))

			b, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.True(t, len(b) > 4 && string(b[:4]) == "%PDF")
			assert.NoFileExists(t, out+".tmp")
		})
	}
}

func TestNative_UnreadableImageIsSkipped(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))

	doc := testDocument(t, layout.DefaultConfig(), bad)
	out := filepath.Join(dir, "issue.pdf")
	require.NoError(t, (&Native{}).Compile(context.Background(), doc, out))
	assert.FileExists(t, out)
}

func TestNative_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	doc := testDocument(t, layout.DefaultConfig(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(dir, "issue.pdf")
	err := (&Native{}).Compile(ctx, doc, out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NoFileExists(t, out)
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4"), 0o644))

	dst := filepath.Join(dir, "nested", "b.pdf")
	require.NoError(t, moveFile(src, dst))
	assert.NoFileExists(t, src)
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(b))
}
