// Package registry turns a line-based list of status URLs into an ordered,
// de-duplicated set of article references.
package registry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// ErrNoURLs is returned when an input list contains no usable status URL.
var ErrNoURLs = errors.New("no valid status URLs")

var allowedHosts = map[string]bool{
	"x.com":           true,
	"www.x.com":       true,
	"twitter.com":     true,
	"www.twitter.com": true,
}

// ArticleRef identifies one article. StatusID is the identity key.
type ArticleRef struct {
	StatusID string `json:"status_id"`
	// URL is the first occurrence as written in the input, used for
	// navigation and diagnostics.
	URL string `json:"url"`
	// Index is the position of the ref after de-duplication.
	Index int `json:"index"`
	// Line is the 1-based input line the ref was taken from.
	Line int `json:"line"`
}

// CanonicalURL returns the host-independent URL of the status.
func (r ArticleRef) CanonicalURL() string {
	return "https://x.com/i/status/" + r.StatusID
}

// InvalidURLError describes a single rejected input line.
type InvalidURLError struct {
	Line   int
	Text   string
	Reason string
}

func (e *InvalidURLError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid URL at line %d (%q): %s", e.Line, e.Text, e.Reason)
	}
	return fmt.Sprintf("invalid URL %q: %s", e.Text, e.Reason)
}

// StatusID extracts the numeric status id from an x.com or twitter.com URL.
func StatusID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	u, err := url.Parse(s)
	if err != nil {
		return "", &InvalidURLError{Text: s, Reason: "unparseable URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &InvalidURLError{Text: s, Reason: "unsupported scheme"}
	}
	if !allowedHosts[strings.ToLower(u.Hostname())] {
		return "", &InvalidURLError{Text: s, Reason: "unsupported host, expected x.com or twitter.com"}
	}
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	for i, p := range parts {
		if p != "status" || i+1 >= len(parts) {
			continue
		}
		id := parts[i+1]
		if !isDigits(id) {
			return "", &InvalidURLError{Text: s, Reason: "status id is not numeric"}
		}
		return id, nil
	}
	return "", &InvalidURLError{Text: s, Reason: "missing /status/<id>"}
}

// Parse validates lines and returns refs in first-occurrence order. Blank lines
// and lines starting with '#' are skipped. Invalid lines do not stop parsing;
// they are returned joined in the error, each as *InvalidURLError, alongside
// the refs that did parse.
func Parse(lines []string) ([]ArticleRef, error) {
	refs := make([]ArticleRef, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	var errs []error
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := StatusID(line)
		if err != nil {
			var inv *InvalidURLError
			if errors.As(err, &inv) {
				inv.Line = i + 1
			}
			errs = append(errs, err)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		refs = append(refs, ArticleRef{StatusID: id, URL: line, Index: len(refs), Line: i + 1})
	}
	return refs, errors.Join(errs...)
}

// Read parses a URL list from r.
func Read(r io.Reader) ([]ArticleRef, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return Parse(lines)
}

// LoadFile reads and parses a URL list file. It returns ErrNoURLs when no line
// survives validation.
func LoadFile(path string) ([]ArticleRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer f.Close()
	refs, err := Read(f)
	if len(refs) == 0 {
		return nil, errors.Join(ErrNoURLs, err)
	}
	return refs, err
}

// InvalidLines unwraps every *InvalidURLError contained in err.
func InvalidLines(err error) []*InvalidURLError {
	if err == nil {
		return nil
	}
	var out []*InvalidURLError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, InvalidLines(e)...)
		}
		return out
	}
	var inv *InvalidURLError
	if errors.As(err, &inv) {
		out = append(out, inv)
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
