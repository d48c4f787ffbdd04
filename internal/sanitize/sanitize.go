// Package sanitize cleans extracted article text: page chrome and counters
// are dropped, whitespace is normalised and empty results are rejected.
//
// Sanitize is a pure function and its output is a fixed point of itself.
// Markup escaping is kept out of the stored text for that reason and applied
// by EscapeLaTeX when a document is serialised.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/hyperifyio/gomag/internal/extract"
	"github.com/hyperifyio/gomag/internal/registry"
)

// maxPasses bounds the fixed-point loop. Every pass that changes the text
// removes something, so real inputs settle in two or three.
const maxPasses = 16

var (
	artifactPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)if\s*\(!alreadyRequested\)\s*\{[\s\S]*?\}`),
		regexp.MustCompile(`(?i)postComment\s*\([\s\S]*?\)`),
		regexp.MustCompile(`(?i)@review-harness:\S+`),
		regexp.MustCompile(`(?i)\$\{trigger\}`),
	}
	counterLine   = regexp.MustCompile(`(?i)^[\d,.]+(?:[KMBT]\+?)?$`)
	stopLine      = regexp.MustCompile(`(?i)^(?:Want to publish your own Article\?|Upgrade to Premium|Read\s+\d+\s+replies)$`)
	timestampLine = regexp.MustCompile(`(?i)^\d{1,2}:\d{2}\s?(?:AM|PM)\s*·`)
	spaceRun      = regexp.MustCompile(`[ \t\p{Zs}]+`)
)

var buttonLabels = map[string]bool{
	"reply": true, "repost": true, "reposts": true, "retweet": true, "retweets": true,
	"like": true, "likes": true, "quote": true, "quotes": true, "bookmark": true,
	"bookmarks": true, "share": true, "follow": true, "following": true,
	"subscribe": true, "show more": true, "translate post": true,
	"show translation": true, "copy link": true,
}

// Article is a RawArticle whose text has been normalised.
type Article struct {
	extract.RawArticle
	WordCount int `json:"word_count"`
}

// RejectionError reports an article whose text did not survive cleaning.
type RejectionError struct {
	Ref    registry.ArticleRef
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("sanitize %s: %s", e.Ref.StatusID, e.Reason)
}

// Sanitize normalises raw.Text. Author and timestamp are carried unchanged;
// an article with neither is still accepted as long as text remains.
func Sanitize(raw extract.RawArticle) (Article, error) {
	text := Text(raw.Text, raw.AuthorName, raw.AuthorHandle)
	if text == "" {
		return Article{}, &RejectionError{Ref: raw.Ref, Reason: "text is empty after cleaning"}
	}
	out := raw
	out.Text = text
	out.MediaURLs = append([]string(nil), raw.MediaURLs...)
	return Article{RawArticle: out, WordCount: len(strings.Fields(text))}, nil
}

// Text cleans s until another pass would no longer change it.
func Text(s, authorName, authorHandle string) string {
	prefix := authorPrefix(authorName, authorHandle)
	for i := 0; i < maxPasses; i++ {
		next := pass(s, prefix, authorName, authorHandle)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func authorPrefix(name, handle string) *regexp.Regexp {
	name, handle = strings.TrimSpace(name), strings.TrimSpace(handle)
	if name == "" || handle == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)^\s*` + regexp.QuoteMeta(name) + `\s+` + regexp.QuoteMeta(handle) + `(?:\s+[\d.,]+[KMBT]?)*\s+`)
}

func pass(s string, prefix *regexp.Regexp, authorName, authorHandle string) string {
	s = norm.NFC.String(stripControl(s))
	for _, re := range artifactPatterns {
		s = re.ReplaceAllString(s, " ")
	}
	if prefix != nil {
		s = prefix.ReplaceAllString(s, "")
	}

	name := strings.ToLower(strings.TrimSpace(authorName))
	handle := strings.ToLower(strings.TrimSpace(authorHandle))
	both := strings.TrimSpace(name + " " + handle)

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
		if line == "" {
			if len(lines) > 0 && lines[len(lines)-1] != "" {
				lines = append(lines, "")
			}
			continue
		}
		if stopLine.MatchString(line) || timestampLine.MatchString(line) || line == "Views" || line == "·" {
			break
		}
		lower := strings.ToLower(line)
		if (name != "" && lower == name) || (handle != "" && lower == handle) || (both != "" && lower == both) {
			continue
		}
		if counterLine.MatchString(line) || buttonLabels[lower] {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// stripControl drops control characters other than newline and tab, and
// folds carriage returns into newlines.
func stripControl(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == '\u200b' || r == '\ufeff' {
			return -1
		}
		return r
	}, s)
}

var latexEscapes = map[rune]string{
	'\\': `\textbackslash{}`,
	'&':  `\&`,
	'%':  `\%`,
	'$':  `\$`,
	'#':  `\#`,
	'_':  `\_`,
	'{':  `\{`,
	'}':  `\}`,
	'~':  `\textasciitilde{}`,
	'^':  `\textasciicircum{}`,
}

// EscapeLaTeX escapes the characters LaTeX treats as markup.
func EscapeLaTeX(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if esc, ok := latexEscapes[r]; ok {
			b.WriteString(esc)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
