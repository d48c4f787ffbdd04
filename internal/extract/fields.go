package extract

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"

	"github.com/hyperifyio/gomag/internal/page"
)

const (
	authorSelector    = `[data-testid="User-Name"]`
	timeSelector      = `time[datetime]`
	mediaSelector     = `img[src*="twimg.com/media"]`
	tweetTextSelector = `[data-testid="tweetText"]`
	langBlockSelector = `div[lang]`

	// minTextNode drops short fragments such as "Show more" links.
	minTextNode = 12
	// maxTextNodes bounds how many tweet-text nodes are joined.
	maxTextNodes = 20
)

var handleRe = regexp.MustCompile(`@[A-Za-z0-9_]+`)

// extractAuthor returns display name and handle, falling back to "Unknown"
// and "@unknown" so that a missing author never fails extraction.
func extractAuthor(container page.Node) (name, handle string) {
	var raw string
	if nodes := container.Find(authorSelector); len(nodes) > 0 {
		raw = nodes[0].Text()
	}
	return parseAuthor(raw)
}

func parseAuthor(raw string) (name, handle string) {
	handle = "@unknown"
	if m := handleRe.FindString(raw); m != "" {
		handle = m
	}
	name = "Unknown"
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(handleRe.ReplaceAllString(line, ""))
		line = strings.Trim(line, " -|·")
		if line != "" {
			name = line
			break
		}
	}
	return name, handle
}

// extractTimestamp reads the first machine-readable time element.
func extractTimestamp(container page.Node) *time.Time {
	for _, n := range container.Find(timeSelector) {
		v, _ := n.Attr("datetime")
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		t, err := dateparse.ParseAny(v)
		if err != nil {
			continue
		}
		t = t.UTC()
		return &t
	}
	return nil
}

// extractMedia collects absolute image URLs in document order, once each.
func extractMedia(container page.Node) []string {
	var out []string
	seen := map[string]bool{}
	for _, n := range container.Find(mediaSelector) {
		src, _ := n.Attr("src")
		src = strings.TrimSpace(src)
		if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
			continue
		}
		if seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}

// TextStrategy produces a candidate body text from a container.
type TextStrategy struct {
	Name string
	// WinAt accepts a candidate of at least this many characters without
	// trying the remaining strategies. Zero never wins outright.
	WinAt   int
	Extract func(container page.Node, pageURL string) string
}

// DefaultTextStrategies lists the body text strategies in preference order.
func DefaultTextStrategies() []TextStrategy {
	return []TextStrategy{
		{Name: "tweet-text", WinAt: 40, Extract: tweetText},
		{Name: "lang-block", Extract: langBlock},
		{Name: "readability", Extract: readableText},
		{Name: "inner-text", Extract: func(c page.Node, _ string) string { return strings.TrimSpace(c.Text()) }},
	}
}

// chooseText runs the strategies in order. The first candidate reaching its
// WinAt threshold is taken, otherwise the longest non-empty one.
func chooseText(strategies []TextStrategy, container page.Node, pageURL string) (text, strategy string) {
	best, bestLen := "", 0
	for _, s := range strategies {
		candidate := strings.TrimSpace(s.Extract(container, pageURL))
		n := utf8.RuneCountInString(candidate)
		if n == 0 {
			continue
		}
		if s.WinAt > 0 && n >= s.WinAt {
			return candidate, s.Name
		}
		if n > bestLen {
			best, bestLen, strategy = candidate, n, s.Name
		}
	}
	return best, strategy
}

func tweetText(container page.Node, _ string) string {
	var parts []string
	seen := map[string]bool{}
	for _, n := range container.Find(tweetTextSelector) {
		if len(parts) == maxTextNodes {
			break
		}
		t := strings.TrimSpace(n.Text())
		if utf8.RuneCountInString(t) < minTextNode || seen[t] {
			continue
		}
		seen[t] = true
		parts = append(parts, t)
	}
	return strings.Join(parts, "\n\n")
}

func langBlock(container page.Node, _ string) string {
	best := ""
	for _, n := range container.Find(langBlockSelector) {
		t := strings.TrimSpace(n.Text())
		if utf8.RuneCountInString(t) >= minTextNode && len(t) > len(best) {
			best = t
		}
	}
	return best
}

func readableText(container page.Node, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = nil
	}
	doc := "<html><body>" + container.HTML() + "</body></html>"
	article, err := readability.FromReader(strings.NewReader(doc), u)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}
