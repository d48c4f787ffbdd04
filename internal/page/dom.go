package page

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Snapshot is a parsed, immutable copy of a page's DOM.
type Snapshot struct {
	url string
	doc *goquery.Document
}

// NewSnapshot parses HTML from r.
func NewSnapshot(pageURL string, r io.Reader) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Snapshot{url: pageURL, doc: doc}, nil
}

// URL returns the address the snapshot was taken from.
func (s *Snapshot) URL() string { return s.url }

// Has reports whether at least one element matches selector.
func (s *Snapshot) Has(selector string) bool {
	return s.doc.Find(selector).Length() > 0
}

// Query returns every element matching selector.
func (s *Snapshot) Query(selector string) []Node {
	return nodes(s.doc.Find(selector))
}

// BodyText returns the rendered text of the whole body.
func (s *Snapshot) BodyText() string {
	body := s.doc.Find("body")
	if body.Length() == 0 {
		return ""
	}
	return InnerText(body.Nodes[0])
}

type domNode struct {
	sel *goquery.Selection
}

func nodes(sel *goquery.Selection) []Node {
	out := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, domNode{sel: s})
	})
	return out
}

func (n domNode) Text() string {
	if n.sel.Length() == 0 {
		return ""
	}
	return InnerText(n.sel.Nodes[0])
}

func (n domNode) Attr(name string) (string, bool) { return n.sel.Attr(name) }

func (n domNode) Find(selector string) []Node { return nodes(n.sel.Find(selector)) }

func (n domNode) HTML() string {
	h, err := goquery.OuterHtml(n.sel)
	if err != nil {
		return ""
	}
	return h
}

// InnerText approximates the browser's innerText: block elements start new
// lines, paragraphs and headings are separated by a blank line and
// script-like content is skipped.
func InnerText(n *html.Node) string {
	var b strings.Builder
	collectText(&b, n, false)
	return normalizeWhitespace(b.String())
}

func collectText(b *strings.Builder, n *html.Node, inPre bool) {
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "template", "svg", "iframe":
			return
		case "pre", "code":
			inPre = true
		case "br", "hr":
			b.WriteString("\n")
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "div", "section", "header", "blockquote", "ul", "ol":
			ensureBreaks(b, 1)
		}
	}

	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			// Indentation between tags is markup formatting, not text.
			if strings.TrimSpace(data) == "" && strings.Contains(data, "\n") {
				return
			}
			data = strings.ReplaceAll(data, "\t", " ")
			data = strings.ReplaceAll(data, "\r", " ")
		}
		b.WriteString(data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre)
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote":
			ensureBreaks(b, 2)
		case "li", "div", "section", "header", "ul", "ol", "pre":
			ensureBreaks(b, 1)
		}
	}
}

// ensureBreaks pads the builder so it ends with at least n newlines. Nested
// block elements therefore do not stack up spurious blank lines.
func ensureBreaks(b *strings.Builder, n int) {
	s := b.String()
	if s == "" {
		return
	}
	s = strings.TrimRight(s, " \t")
	have := len(s) - len(strings.TrimRight(s, "\n"))
	for ; have < n; have++ {
		b.WriteByte('\n')
	}
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			// Keep at most one consecutive blank
			if len(out) == 0 || out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, collapseSpaces(trimmed))
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}
