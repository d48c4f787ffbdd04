package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/hyperifyio/gomag/internal/compile"
	"github.com/hyperifyio/gomag/internal/extract"
	"github.com/hyperifyio/gomag/internal/layout"
	"github.com/hyperifyio/gomag/internal/media"
	"github.com/hyperifyio/gomag/internal/registry"
	"github.com/hyperifyio/gomag/internal/sanitize"
)

// Article outcomes that are not extraction failure kinds.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRejected  = "rejected"
	OutcomeSkipped   = "skipped"
)

// ArticleOutcome records what happened to one ArticleRef.
type ArticleOutcome struct {
	Index    int    `json:"index"`
	StatusID string `json:"status_id"`
	URL      string `json:"url"`
	Outcome  string `json:"outcome"`
	Step     string `json:"step,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
	Message  string `json:"message,omitempty"`
	Author   string `json:"author,omitempty"`
	Words    int    `json:"words,omitempty"`
	Images   int    `json:"images,omitempty"`
	Locator  string `json:"locator,omitempty"`
	Strategy string `json:"text_strategy,omitempty"`
}

// InvalidLine is an input line that did not name an article.
type InvalidLine struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// MediaFailure is one image that could not be staged.
type MediaFailure struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

// IssueOutcome records one compiled, or failed, document.
type IssueOutcome struct {
	Name       string   `json:"name"`
	Output     string   `json:"output,omitempty"`
	Articles   []string `json:"articles"`
	Engine     string   `json:"engine"`
	Error      string   `json:"error,omitempty"`
	SourcePath string   `json:"source_path,omitempty"`
}

// Report is the run summary. It names every ref and why it failed so that
// selector drift can be diagnosed without a verbose re-run.
type Report struct {
	RunID         string           `json:"run_id"`
	Version       string           `json:"version"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
	Layout        layout.Config    `json:"layout"`
	InvalidLines  []InvalidLine    `json:"invalid_lines,omitempty"`
	Articles      []ArticleOutcome `json:"articles"`
	MediaFailures []MediaFailure   `json:"media_failures,omitempty"`
	MediaFetches  int64            `json:"media_fetches"`
	Issues        []IssueOutcome   `json:"issues"`
}

func newReport(cfg Config) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Version:   BuildVersion,
		StartedAt: time.Now().UTC(),
		Layout:    cfg.Layout,
	}
}

func (r *Report) addInvalid(err error) {
	for _, inv := range registry.InvalidLines(err) {
		r.InvalidLines = append(r.InvalidLines, InvalidLine{Line: inv.Line, Text: inv.Text, Reason: inv.Reason})
	}
}

// setArticles records one outcome per ref, in input order.
func (r *Report) setArticles(refs []registry.ArticleRef, arts []*sanitize.Article, errs []error) {
	r.Articles = make([]ArticleOutcome, len(refs))
	for i, ref := range refs {
		o := ArticleOutcome{Index: ref.Index, StatusID: ref.StatusID, URL: ref.URL}
		switch {
		case arts[i] != nil:
			a := arts[i]
			o.Outcome = OutcomeSucceeded
			o.Author = strings.TrimSpace(a.AuthorName + " " + a.AuthorHandle)
			o.Words = a.WordCount
			o.Images = len(a.MediaURLs)
			o.Locator = a.Locator
			o.Strategy = a.TextStrategy
		case errs[i] != nil:
			o.Message = errs[i].Error()
			var f *extract.Failure
			var rej *sanitize.RejectionError
			switch {
			case errors.As(errs[i], &f):
				o.Outcome = string(f.Kind)
				o.Step = f.Step
				o.Attempts = f.Attempts
			case errors.As(errs[i], &rej):
				o.Outcome = OutcomeRejected
			default:
				o.Outcome = string(extract.KindOf(errs[i]))
			}
		default:
			o.Outcome = OutcomeSkipped
		}
		r.Articles[i] = o
	}
}

func (r *Report) addMediaFailures(err error) {
	for _, u := range media.FailedURLs(err) {
		r.MediaFailures = append(r.MediaFailures, MediaFailure{URL: u, Message: mediaMessage(err, u)})
	}
}

func mediaMessage(err error, u string) string {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return err.Error()
	}
	for _, e := range joined.Unwrap() {
		var fe *media.FetchError
		if errors.As(e, &fe) && fe.URL == u {
			return fe.Err.Error()
		}
	}
	return ""
}

func (r *Report) addIssue(is layout.Issue, engine, output string, err error) {
	o := IssueOutcome{Name: is.Name, Engine: engine}
	for _, m := range is.Articles() {
		o.Articles = append(o.Articles, m.StatusID)
	}
	if err != nil {
		o.Error = err.Error()
		var ce *compile.CompileError
		if errors.As(err, &ce) {
			o.SourcePath = ce.SourcePath
		}
	} else {
		o.Output = output
	}
	r.Issues = append(r.Issues, o)
}

// Succeeded lists the articles that were extracted and sanitized.
func (r *Report) Succeeded() []ArticleOutcome {
	var out []ArticleOutcome
	for _, a := range r.Articles {
		if a.Outcome == OutcomeSucceeded {
			out = append(out, a)
		}
	}
	return out
}

// Failed lists the articles that did not make it into any issue.
func (r *Report) Failed() []ArticleOutcome {
	var out []ArticleOutcome
	for _, a := range r.Articles {
		if a.Outcome != OutcomeSucceeded {
			out = append(out, a)
		}
	}
	return out
}

// Compiled returns the output paths of issues that compiled.
func (r *Report) Compiled() []string {
	var out []string
	for _, is := range r.Issues {
		if is.Error == "" {
			out = append(out, is.Output)
		}
	}
	return out
}

// FailureSummary counts failed articles per outcome, e.g. "timeout=2, rejected=1".
func (r *Report) FailureSummary() string {
	counts := map[string]int{}
	var order []string
	for _, a := range r.Failed() {
		if counts[a.Outcome] == 0 {
			order = append(order, a.Outcome)
		}
		counts[a.Outcome]++
	}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

// marshal encodes the report with indentation for the sidecar file.
func (r *Report) marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteJSON stores the report at path through a temporary sibling.
func (r *Report) WriteJSON(path string) error {
	b, err := r.marshal()
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir report dir: %w", err)
	}
	tmp := tempSibling(path)
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderTable writes a human-readable summary of per-article outcomes and
// issues.
func (r *Report) RenderTable(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("gomag run " + r.RunID)
	t.AppendHeader(table.Row{"#", "Status ID", "Outcome", "Author", "Words", "Images", "Detail"})
	for _, a := range r.Articles {
		detail := a.Message
		if a.Outcome == OutcomeSucceeded {
			detail = a.Locator + "/" + a.Strategy
		}
		t.AppendRow(table.Row{a.Index + 1, a.StatusID, a.Outcome, a.Author, a.Words, a.Images, truncate(detail, 60)})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d/%d ok", len(r.Succeeded()), len(r.Articles)), "", "", "", ""})
	t.Render()

	if len(r.Issues) == 0 && len(r.MediaFailures) == 0 && len(r.InvalidLines) == 0 {
		return
	}
	it := table.NewWriter()
	it.SetOutputMirror(w)
	it.SetStyle(table.StyleLight)
	it.AppendHeader(table.Row{"Kind", "Name", "Result"})
	for _, l := range r.InvalidLines {
		it.AppendRow(table.Row{"input", fmt.Sprintf("line %d", l.Line), l.Reason})
	}
	for _, m := range r.MediaFailures {
		it.AppendRow(table.Row{"media", truncate(m.URL, 50), truncate(m.Message, 60)})
	}
	for _, is := range r.Issues {
		res := is.Output
		if is.Error != "" {
			res = "FAILED: " + truncate(is.Error, 60)
		}
		it.AppendRow(table.Row{"issue", is.Name, res})
	}
	it.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
