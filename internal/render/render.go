// Package render serializes a composed issue to LaTeX. Every block maps to
// exactly one fragment; the renderer only adds the environment glue between
// fragments (opening and closing the column flow, the index section) and the
// document preamble.
package render

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/hyperifyio/gomag/internal/layout"
	"github.com/hyperifyio/gomag/internal/sanitize"
)

//go:embed issue.tex.tmpl
var issueTemplate string

var tmpl = template.Must(template.New("issue").
	Delims("<<", ">>").
	Funcs(template.FuncMap{"mm": formatMM}).
	Parse(issueTemplate))

// Document is a rendered issue ready for a compiler. Issue and Config travel
// with the source so that engines which do not read LaTeX can lay out the
// same blocks.
type Document struct {
	Name   string
	Source string
	Issue  layout.Issue
	Config layout.Config
}

// Render produces the complete LaTeX document of one issue.
func Render(is layout.Issue, cfg layout.Config) (Document, error) {
	frags, err := Fragments(is)
	if err != nil {
		return Document{}, err
	}
	var body strings.Builder
	f := flow{columns: cfg.Columns}
	for i, b := range is.Blocks {
		f.enter(&body, modeFor(b))
		body.WriteString(frags[i])
		body.WriteString("\n\n")
	}
	f.enter(&body, modeNone)

	var out strings.Builder
	err = tmpl.Execute(&out, map[string]any{
		"PaperOption": paperOption(cfg.Paper),
		"Config":      cfg,
		"Title":       sanitize.EscapeLaTeX(is.Name),
		"Body":        strings.TrimRight(body.String(), "\n"),
	})
	if err != nil {
		return Document{}, fmt.Errorf("render %s: %w", is.Name, err)
	}
	return Document{Name: is.Name, Source: out.String(), Issue: is, Config: cfg}, nil
}

// Fragments renders each block on its own, in order.
func Fragments(is layout.Issue) ([]string, error) {
	out := make([]string, len(is.Blocks))
	for i, b := range is.Blocks {
		s, err := Fragment(b)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// Fragment renders a single block.
func Fragment(b layout.Block) (string, error) {
	switch v := b.(type) {
	case layout.TextBlock:
		return textBlock(v), nil
	case layout.ImageBlock:
		return imageBlock(v), nil
	case layout.PageBreak:
		return `\clearpage`, nil
	case layout.BlankPage:
		return `\null\thispagestyle{empty}\clearpage`, nil
	case layout.SectionHeading:
		return `\clearpage` + "\n" + `\section*{` + sanitize.EscapeLaTeX(v.Title) + `}`, nil
	case layout.IndexEntry:
		return indexEntry(v), nil
	default:
		return "", fmt.Errorf("render: unsupported block %T", b)
	}
}

type mode int

const (
	modeNone mode = iota
	modeColumns
	modeIndex
)

// modeFor reports which environment a block must sit in. Text and inline
// images flow in columns; everything else is full width.
func modeFor(b layout.Block) mode {
	switch v := b.(type) {
	case layout.TextBlock:
		return modeColumns
	case layout.ImageBlock:
		if v.Placement == layout.PlaceInline {
			return modeColumns
		}
	case layout.IndexEntry:
		return modeIndex
	}
	return modeNone
}

type flow struct {
	columns int
	current mode
}

func (f *flow) enter(b *strings.Builder, next mode) {
	if f.current == next {
		return
	}
	switch f.current {
	case modeColumns:
		if f.columns > 1 {
			b.WriteString(`\end{multicols*}` + "\n\n")
		}
	case modeIndex:
		b.WriteString(`\clearpage` + "\n\n")
	}
	switch next {
	case modeColumns:
		if f.columns > 1 {
			fmt.Fprintf(b, "\\begin{multicols*}{%d}\n", f.columns)
		}
	case modeIndex:
		b.WriteString(`\section*{In this issue}` + "\n")
	}
	f.current = next
}

func textBlock(t layout.TextBlock) string {
	switch t.Style {
	case layout.StyleHeader:
		return header(t)
	case layout.StyleHeading:
		esc := sanitize.EscapeLaTeX(t.Text)
		switch {
		case t.Level <= 1:
			return `\noindent\textbf{\large ` + esc + `}\par`
		case t.Level == 2:
			return `\noindent\textbf{` + esc + `}\par`
		default:
			return `\noindent\textit{` + esc + `}\par`
		}
	case layout.StyleBulletList, layout.StyleNumberedList:
		env := "itemize"
		if t.Style == layout.StyleNumberedList {
			env = "enumerate"
		}
		lines := []string{`\begin{` + env + `}`}
		for _, item := range t.Items {
			lines = append(lines, `\item{} `+sanitize.EscapeLaTeX(item))
		}
		lines = append(lines, `\end{`+env+`}`)
		return strings.Join(lines, "\n")
	case layout.StyleCode:
		code := strings.ReplaceAll(t.Text, `\end{lstlisting}`, `\\end{lstlisting}`)
		return `\begin{lstlisting}` + listingsLanguage(t.Language) + "\n" + code + "\n" + `\end{lstlisting}`
	default:
		return sanitize.EscapeLaTeX(t.Text) + `\par`
	}
}

func header(t layout.TextBlock) string {
	h := t.Header
	if h == nil {
		h = &layout.Header{}
	}
	return strings.Join([]string{
		`\phantomsection\label{` + t.Article.Label() + `}`,
		`\vspace{1.8mm}`,
		`\noindent{\color{black!45}\rule{\linewidth}{0.55pt}}`,
		`\vspace{1.2mm}`,
		fmt.Sprintf(`\noindent\textbf{\large Article %d/%d}\hfill\texttt{%s}\\`, h.Position, h.Total, sanitize.EscapeLaTeX(t.Article.StatusID)),
		`\textbf{` + sanitize.EscapeLaTeX(orUnknown(h.AuthorName)) + `} ` + sanitize.EscapeLaTeX(h.AuthorHandle) + `\\`,
		`\textit{Published:} ` + sanitize.EscapeLaTeX(DateDisplay(h.PublishedAt)) + `\\`,
		`\textit{Source:} \url{` + urlArg(h.SourceURL) + `}`,
		`\vspace{1.6mm}`,
	}, "\n")
}

func imageBlock(img layout.ImageBlock) string {
	path := `\detokenize{` + filepath.ToSlash(img.Asset.LocalPath) + `}`
	switch img.Placement {
	case layout.PlaceInline:
		return `\begin{center}` + "\n" + `\includegraphics[width=0.84\columnwidth]{` + path + `}` + "\n" + `\end{center}` + "\n" + `\vspace{1.5mm}`
	case layout.PlaceSpan:
		return `\begin{center}` + "\n" + `\includegraphics[width=0.72\textwidth]{` + path + `}` + "\n" + `\end{center}` + "\n" + `\vspace{2.4mm}`
	default:
		return strings.Join([]string{
			`\begin{center}`,
			`\includegraphics[width=0.8\textwidth,height=0.6\textheight,keepaspectratio]{` + path + `}\\`,
			fmt.Sprintf(`{\small From \hyperref[%s]{Article %d} (\texttt{%s}), page \pageref{%s}}`,
				img.Article.Label(), img.Article.Seq, sanitize.EscapeLaTeX(img.Article.StatusID), img.Article.Label()),
			`\end{center}`,
		}, "\n")
	}
}

func indexEntry(e layout.IndexEntry) string {
	line := fmt.Sprintf(`\noindent\hyperref[%s]{\textbf{%d. %s} %s}\dotfill\pageref{%s}`,
		e.Article.Label(), e.Article.Seq, sanitize.EscapeLaTeX(orUnknown(e.AuthorName)),
		sanitize.EscapeLaTeX(e.AuthorHandle), e.Article.Label())
	if e.Excerpt == "" {
		return line + `\par`
	}
	return line + `\\` + "\n" + `{\small\color{black!60}` + sanitize.EscapeLaTeX(e.Excerpt) + `}\par`
}

// DateDisplay formats a publication time, or "Unknown" when absent.
func DateDisplay(t *time.Time) string {
	if t == nil {
		return "Unknown"
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

// urlArg escapes the few characters \url cannot take verbatim.
func urlArg(u string) string {
	r := strings.NewReplacer(`%`, `\%`, `#`, `\#`, `{`, `%7B`, `}`, `%7D`, ` `, `%20`)
	return r.Replace(u)
}

func listingsLanguage(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "py", "python":
		return "[language=Python]"
	case "js", "javascript", "ts", "typescript", "java":
		return "[language=Java]"
	case "go", "golang", "c", "cpp", "c++":
		return "[language=C]"
	}
	return ""
}

func paperOption(p layout.Paper) string {
	if p == layout.PaperLetter {
		return "letterpaper"
	}
	return "a4paper"
}

func formatMM(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
