// Package layout places sanitized articles onto issues. Pagination and image
// placement are closed sets of modes; Compose switches over each of them
// exhaustively and rejects anything else.
package layout

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperifyio/gomag/internal/media"
	"github.com/hyperifyio/gomag/internal/sanitize"
)

// AppendixTitle heads the trailing image section.
const AppendixTitle = "Image Appendix"

// SingleIssueName names the issue of the continuous and newpage modes.
const SingleIssueName = "issue"

const excerptRunes = 90

type entry struct {
	article sanitize.Article
	mark    ArticleMark
	images  []media.Asset
}

// Compose turns articles, in input order, into issues. assets is keyed by the
// media URL as it appears in the article; unknown URLs are skipped so that an
// article with failed media still renders. Every article contributes at
// least its header TextBlock and one body TextBlock.
func Compose(articles []sanitize.Article, assets map[string]media.Asset, cfg Config) ([]Issue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	entries := make([]entry, len(articles))
	for i, a := range articles {
		entries[i] = entry{
			article: a,
			mark:    ArticleMark{Seq: i + 1, StatusID: a.Ref.StatusID},
			images:  imagesFor(a.MediaURLs, assets),
		}
	}
	if len(entries) == 0 {
		return nil, nil
	}

	switch cfg.Pagination {
	case Continuous, NewPage:
		is, err := composeIssue(SingleIssueName, entries, len(entries), cfg)
		if err != nil {
			return nil, err
		}
		return []Issue{is}, nil
	case Split:
		issues := make([]Issue, 0, len(entries))
		for _, e := range entries {
			is, err := composeIssue(e.mark.StatusID, []entry{e}, len(entries), cfg)
			if err != nil {
				return nil, err
			}
			issues = append(issues, is)
		}
		return issues, nil
	default:
		return nil, fmt.Errorf("layout: unhandled pagination %q", cfg.Pagination)
	}
}

func composeIssue(name string, entries []entry, total int, cfg Config) (Issue, error) {
	var blocks, appendix []Block
	if cfg.BlankFirstPage {
		blocks = append(blocks, BlankPage{})
	}
	if cfg.IndexPage {
		for _, e := range entries {
			blocks = append(blocks, IndexEntry{
				Article:      e.mark,
				AuthorName:   e.article.AuthorName,
				AuthorHandle: e.article.AuthorHandle,
				Excerpt:      excerpt(e.article.Text),
			})
		}
	}

	for k, e := range entries {
		if cfg.Pagination == NewPage && k > 0 {
			blocks = append(blocks, PageBreak{})
		}
		blocks = append(blocks, header(e, total))
		paras := Paragraphs(e.mark, e.article.Text)

		switch cfg.ImageLayout {
		case Inline:
			blocks = append(blocks, interleaveInline(e.mark, paras, e.images)...)
		case Span:
			blocks = append(blocks, interleaveSpan(e.mark, paras, e.images, e.article.WordCount)...)
		case Appendix:
			for _, p := range paras {
				blocks = append(blocks, p)
			}
			for _, a := range e.images {
				appendix = append(appendix, ImageBlock{Article: e.mark, Asset: a, Placement: PlaceAppendix})
			}
		default:
			return Issue{}, fmt.Errorf("layout: unhandled image layout %q", cfg.ImageLayout)
		}
	}

	if len(appendix) > 0 {
		blocks = append(blocks, SectionHeading{Title: AppendixTitle})
		blocks = append(blocks, appendix...)
	}
	return Issue{Name: name, Blocks: blocks}, nil
}

func header(e entry, total int) TextBlock {
	a := e.article
	return TextBlock{
		Article: e.mark,
		Style:   StyleHeader,
		Header: &Header{
			Position:     e.mark.Seq,
			Total:        total,
			AuthorName:   a.AuthorName,
			AuthorHandle: a.AuthorHandle,
			PublishedAt:  a.PublishedAt,
			SourceURL:    a.Ref.URL,
		},
	}
}

// interleaveInline puts an image after the first paragraph and after every
// second one, and the rest after the last paragraph.
func interleaveInline(mark ArticleMark, paras []TextBlock, images []media.Asset) []Block {
	out := make([]Block, 0, len(paras)+len(images))
	next := 0
	for i, p := range paras {
		out = append(out, p)
		n := i + 1
		if (n == 1 || n%2 == 0) && next < len(images) {
			out = append(out, ImageBlock{Article: mark, Asset: images[next], Placement: PlaceInline})
			next++
		}
	}
	for ; next < len(images); next++ {
		out = append(out, ImageBlock{Article: mark, Asset: images[next], Placement: PlaceInline})
	}
	return out
}

// interleaveSpan spreads the images between paragraph groups by reading
// length: image i of m goes after the first paragraph at which (i+1)/(m+1) of
// the article's words have been read, never before the first paragraph.
// words is the article's word count; the paragraphs' own count is used when
// it is missing or larger.
func interleaveSpan(mark ArticleMark, paras []TextBlock, images []media.Asset, words int) []Block {
	out := make([]Block, 0, len(paras)+len(images))
	counts := make([]int, len(paras))
	sum := 0
	for i, p := range paras {
		counts[i] = paragraphWords(p)
		sum += counts[i]
	}
	total := words
	if total <= 0 || total > sum {
		total = sum
	}

	next, read := 0, 0
	for i, p := range paras {
		out = append(out, p)
		read += counts[i]
		for next < len(images) && read*(len(images)+1) >= (next+1)*total {
			out = append(out, ImageBlock{Article: mark, Asset: images[next], Placement: PlaceSpan})
			next++
		}
	}
	for ; next < len(images); next++ {
		out = append(out, ImageBlock{Article: mark, Asset: images[next], Placement: PlaceSpan})
	}
	return out
}

func paragraphWords(p TextBlock) int {
	n := len(strings.Fields(p.Text))
	for _, item := range p.Items {
		n += len(strings.Fields(item))
	}
	return n
}

func imagesFor(urls []string, assets map[string]media.Asset) []media.Asset {
	var out []media.Asset
	seen := map[string]bool{}
	for _, u := range urls {
		a, ok := assets[u]
		if !ok {
			a, ok = assets[media.Normalize(u)]
		}
		if !ok || seen[a.LocalPath] {
			continue
		}
		seen[a.LocalPath] = true
		out = append(out, a)
	}
	return out
}

func excerpt(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) <= excerptRunes {
		return line
	}
	r := []rune(line)
	return strings.TrimSpace(string(r[:excerptRunes])) + "…"
}
