package compile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gomag/internal/layout"
	"github.com/hyperifyio/gomag/internal/render"
)

// Native lays the issue out directly with gofpdf. It needs no TeX
// installation and reads the composed blocks rather than the LaTeX source.
// Typography is plainer: core fonts, no hyphenation, JPEG/PNG/GIF images.
type Native struct{}

func (n *Native) Name() string { return "native" }

func (n *Native) Compile(ctx context.Context, doc render.Document, outPath string) error {
	fail := func(err error) error {
		return &CompileError{Issue: doc.Name, Engine: n.Name(), Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fail(err)
	}
	w := newPDFWriter(doc.Config)
	for _, b := range doc.Issue.Blocks {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		w.block(b)
		if w.pdf.Err() {
			return fail(w.pdf.Error())
		}
	}
	w.leave()

	tmp := outPath + ".tmp"
	if err := w.pdf.OutputFileAndClose(tmp); err != nil {
		os.Remove(tmp)
		return fail(err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return fail(err)
	}
	return nil
}

const (
	bodySize  = 9.0
	lineH     = 4.0
	fontFace  = "Helvetica"
	codeFace  = "Courier"
	spanRatio = 0.72
)

type pdfMode int

const (
	pdfNone pdfMode = iota
	pdfColumns
	pdfIndex
)

type pdfWriter struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
	cfg layout.Config

	pageW, pageH float64
	colW         float64

	mode    pdfMode
	col     int
	colTop  float64
	maxY    float64
	pending bool
	links   map[string]int
}

func newPDFWriter(cfg layout.Config) *pdfWriter {
	size := "A4"
	if cfg.Paper == layout.PaperLetter {
		size = "Letter"
	}
	pdf := gofpdf.New("P", "mm", size, "")
	pdf.SetMargins(cfg.MarginInner, cfg.MarginTop, cfg.MarginOuter)
	pdf.SetAutoPageBreak(true, cfg.MarginBottom)
	pdf.SetCreator("gomag", true)
	w := &pdfWriter{
		pdf:   pdf,
		tr:    pdf.UnicodeTranslatorFromDescriptor(""),
		cfg:   cfg,
		links: map[string]int{},
	}
	w.pageW, w.pageH = pdf.GetPageSize()
	usable := w.pageW - cfg.MarginInner - cfg.MarginOuter
	cols := float64(cfg.Columns)
	w.colW = (usable - cfg.ColumnGap*(cols-1)) / cols
	pdf.SetAcceptPageBreakFunc(w.acceptPageBreak)
	w.newPage()
	return w
}

func (w *pdfWriter) usable() float64 { return w.pageW - w.cfg.MarginInner - w.cfg.MarginOuter }

func (w *pdfWriter) newPage() {
	w.pdf.AddPage()
	w.col = 0
	w.colTop, w.maxY = w.cfg.MarginTop, w.cfg.MarginTop
	if w.mode == pdfColumns {
		w.setCol(0)
	} else {
		w.setFull()
	}
}

// acceptPageBreak moves to the next column, or lets gofpdf add a page after
// the last one.
func (w *pdfWriter) acceptPageBreak() bool {
	if w.mode == pdfColumns && w.col < w.cfg.Columns-1 {
		w.track()
		w.col++
		w.setCol(w.col)
		w.pdf.SetY(w.colTop)
		return false
	}
	w.col = 0
	w.colTop, w.maxY = w.cfg.MarginTop, w.cfg.MarginTop
	if w.mode == pdfColumns {
		w.setCol(0)
	}
	return true
}

func (w *pdfWriter) setCol(i int) {
	x := w.cfg.MarginInner + float64(i)*(w.colW+w.cfg.ColumnGap)
	w.pdf.SetLeftMargin(x)
	w.pdf.SetRightMargin(w.pageW - x - w.colW)
	w.pdf.SetX(x)
}

func (w *pdfWriter) setFull() {
	w.pdf.SetLeftMargin(w.cfg.MarginInner)
	w.pdf.SetRightMargin(w.cfg.MarginOuter)
	w.pdf.SetX(w.cfg.MarginInner)
}

func (w *pdfWriter) track() {
	if y := w.pdf.GetY(); y > w.maxY {
		w.maxY = y
	}
}

func (w *pdfWriter) enter(next pdfMode) {
	if w.pending {
		w.pending = false
		w.mode = next
		w.newPage()
		if next == pdfIndex {
			w.title("In this issue")
		}
		return
	}
	if w.mode == next {
		return
	}
	switch w.mode {
	case pdfColumns:
		w.track()
		w.mode = pdfNone
		w.setFull()
		w.pdf.SetY(w.maxY + 2)
	case pdfIndex:
		w.mode = next
		w.newPage()
	}
	w.mode = next
	switch next {
	case pdfColumns:
		w.col = 0
		w.colTop, w.maxY = w.pdf.GetY(), w.pdf.GetY()
		w.setCol(0)
	case pdfIndex:
		w.title("In this issue")
	}
}

func (w *pdfWriter) leave() {
	w.pending = false
	w.enter(pdfNone)
}

func (w *pdfWriter) block(b layout.Block) {
	switch v := b.(type) {
	case layout.TextBlock:
		w.enter(pdfColumns)
		w.text(v)
		w.track()
	case layout.ImageBlock:
		if v.Placement == layout.PlaceInline {
			w.enter(pdfColumns)
			w.image(v.Asset.LocalPath, w.colW*0.84)
			w.track()
			return
		}
		w.enter(pdfNone)
		if v.Placement == layout.PlaceSpan {
			w.image(v.Asset.LocalPath, w.usable()*spanRatio)
			return
		}
		w.image(v.Asset.LocalPath, w.usable()*0.8)
		w.pdf.SetFont(fontFace, "I", 8)
		w.pdf.WriteLinkID(lineH, w.tr(fmt.Sprintf("From Article %d (%s)", v.Article.Seq, v.Article.StatusID)), w.link(v.Article.StatusID))
		w.pdf.Ln(lineH + 2)
	case layout.PageBreak:
		w.enter(pdfNone)
		w.pending = true
	case layout.BlankPage:
		w.enter(pdfNone)
		if w.pdf.GetY() > w.cfg.MarginTop {
			w.newPage()
		}
		w.pending = true
	case layout.SectionHeading:
		w.enter(pdfNone)
		w.newPage()
		w.title(v.Title)
	case layout.IndexEntry:
		w.enter(pdfIndex)
		w.pdf.SetFont(fontFace, "B", 10)
		label := fmt.Sprintf("%d. %s %s", v.Article.Seq, orUnknown(v.AuthorName), v.AuthorHandle)
		w.pdf.WriteLinkID(5, w.tr(label), w.link(v.Article.StatusID))
		w.pdf.Ln(5)
		if v.Excerpt != "" {
			w.pdf.SetFont(fontFace, "", 8)
			w.pdf.SetTextColor(100, 100, 100)
			w.pdf.MultiCell(0, 3.8, w.tr(v.Excerpt), "", "L", false)
			w.pdf.SetTextColor(0, 0, 0)
		}
		w.pdf.Ln(1.5)
	}
}

func (w *pdfWriter) title(s string) {
	w.pdf.SetFont(fontFace, "B", 14)
	w.pdf.CellFormat(0, 8, w.tr(s), "", 1, "L", false, 0, "")
	w.pdf.Ln(2)
}

func (w *pdfWriter) link(statusID string) int {
	id, ok := w.links[statusID]
	if !ok {
		id = w.pdf.AddLink()
		w.links[statusID] = id
	}
	return id
}

func (w *pdfWriter) text(t layout.TextBlock) {
	p := w.pdf
	switch t.Style {
	case layout.StyleHeader:
		h := t.Header
		if h == nil {
			h = &layout.Header{}
		}
		p.SetLink(w.link(t.Article.StatusID), p.GetY(), p.PageNo())
		x, y := p.GetX(), p.GetY()+1
		p.SetDrawColor(160, 160, 160)
		p.Line(x, y, x+w.colW, y)
		p.SetY(y + 1.5)
		p.SetFont(fontFace, "B", 11)
		p.CellFormat(0, 5, w.tr(fmt.Sprintf("Article %d/%d", h.Position, h.Total)), "", 1, "L", false, 0, "")
		p.SetFont(codeFace, "", 7)
		p.CellFormat(0, 3.5, t.Article.StatusID, "", 1, "L", false, 0, "")
		p.SetFont(fontFace, "B", bodySize)
		p.MultiCell(0, lineH, w.tr(orUnknown(h.AuthorName)+" "+h.AuthorHandle), "", "L", false)
		p.SetFont(fontFace, "I", 7.5)
		p.MultiCell(0, 3.5, w.tr("Published: "+render.DateDisplay(h.PublishedAt)), "", "L", false)
		p.MultiCell(0, 3.5, w.tr("Source: "+h.SourceURL), "", "L", false)
		p.Ln(2)
	case layout.StyleHeading:
		size := bodySize + 1
		if t.Level <= 1 {
			size = bodySize + 3
		}
		p.SetFont(fontFace, "B", size)
		p.MultiCell(0, lineH+0.5, w.tr(t.Text), "", "L", false)
		p.Ln(1)
	case layout.StyleBulletList, layout.StyleNumberedList:
		p.SetFont(fontFace, "", bodySize)
		for i, item := range t.Items {
			marker := "• "
			if t.Style == layout.StyleNumberedList {
				marker = fmt.Sprintf("%d. ", i+1)
			}
			p.MultiCell(0, lineH, w.tr(marker+item), "", "L", false)
		}
		p.Ln(1.5)
	case layout.StyleCode:
		p.SetFont(codeFace, "", 7)
		p.SetFillColor(242, 242, 242)
		p.MultiCell(0, 3.4, w.tr(t.Text), "", "L", true)
		p.Ln(1.5)
	default:
		p.SetFont(fontFace, "", bodySize)
		p.MultiCell(0, lineH, w.tr(t.Text), "", "J", false)
		p.Ln(1.5)
	}
}

// image places a file at the given width, centred in the current area. A
// file gofpdf cannot read is logged and skipped.
func (w *pdfWriter) image(path string, width float64) {
	p := w.pdf
	opts := gofpdf.ImageOptions{ReadDpi: true}
	info := p.RegisterImageOptions(path, opts)
	if p.Err() || info == nil || info.Width() == 0 {
		log.Warn().Str("path", path).Err(p.Error()).Msg("image skipped")
		p.ClearError()
		return
	}
	h := width * info.Height() / info.Width()
	maxH := w.pageH - w.cfg.MarginTop - w.cfg.MarginBottom
	if h > maxH {
		width, h = width*maxH/h, maxH
	}
	if p.GetY()+h > w.pageH-w.cfg.MarginBottom && w.acceptPageBreak() {
		p.AddPage()
	}
	left, _, right, _ := p.GetMargins()
	x := left + (w.pageW-left-right-width)/2
	y := p.GetY()
	p.ImageOptions(path, x, y, width, h, false, opts, 0, "")
	p.SetY(y + h + 2)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
