package layout

import (
	"time"

	"github.com/hyperifyio/gomag/internal/media"
)

// Block is one placed unit of an issue. The set of variants is closed:
// TextBlock, ImageBlock, PageBreak, BlankPage, SectionHeading and IndexEntry.
type Block interface {
	block()
}

// ArticleMark identifies the article a block belongs to. Seq is the 1-based
// position of the article in the run's input order.
type ArticleMark struct {
	Seq      int    `json:"seq"`
	StatusID string `json:"status_id"`
}

// Label is the cross-reference target of the article's header.
func (m ArticleMark) Label() string { return "article-" + m.StatusID }

// TextStyle classifies a TextBlock.
type TextStyle string

const (
	StyleHeader       TextStyle = "header"
	StyleParagraph    TextStyle = "paragraph"
	StyleHeading      TextStyle = "heading"
	StyleBulletList   TextStyle = "bullet_list"
	StyleNumberedList TextStyle = "numbered_list"
	StyleCode         TextStyle = "code"
)

// Header describes the opening block of an article.
type Header struct {
	Position     int
	Total        int
	AuthorName   string
	AuthorHandle string
	PublishedAt  *time.Time
	SourceURL    string
}

// TextBlock carries article text. Header is set only for StyleHeader, Items
// only for the list styles, Level only for headings and Language only for
// code.
type TextBlock struct {
	Article  ArticleMark
	Style    TextStyle
	Text     string
	Items    []string
	Level    int
	Language string
	Header   *Header
}

// Placement records which image policy placed an ImageBlock.
type Placement string

const (
	PlaceInline   Placement = "inline"
	PlaceSpan     Placement = "span"
	PlaceAppendix Placement = "appendix"
)

// ImageBlock places one staged image. Article is the back-reference to the
// article the image came from.
type ImageBlock struct {
	Article   ArticleMark
	Asset     media.Asset
	Placement Placement
}

// PageBreak forces the next block onto a new page.
type PageBreak struct{}

// BlankPage is an intentionally empty page.
type BlankPage struct{}

// SectionHeading opens a run-level section such as the image appendix.
type SectionHeading struct {
	Title string
}

// IndexEntry lists one article on the index page.
type IndexEntry struct {
	Article      ArticleMark
	AuthorName   string
	AuthorHandle string
	Excerpt      string
}

func (TextBlock) block()      {}
func (ImageBlock) block()     {}
func (PageBreak) block()      {}
func (BlankPage) block()      {}
func (SectionHeading) block() {}
func (IndexEntry) block()     {}

// Issue is the ordered block sequence of one compiled document.
type Issue struct {
	Name   string
	Blocks []Block
}

// Articles returns the distinct articles of the issue in block order.
func (is Issue) Articles() []ArticleMark {
	var out []ArticleMark
	seen := map[string]bool{}
	for _, b := range is.Blocks {
		tb, ok := b.(TextBlock)
		if !ok || seen[tb.Article.StatusID] {
			continue
		}
		seen[tb.Article.StatusID] = true
		out = append(out, tb.Article)
	}
	return out
}
