package app

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/gomag/internal/compile"
	"github.com/hyperifyio/gomag/internal/extract"
	"github.com/hyperifyio/gomag/internal/layout"
	"github.com/hyperifyio/gomag/internal/media"
	"github.com/hyperifyio/gomag/internal/registry"
	"github.com/hyperifyio/gomag/internal/sanitize"
)

func TestReport_SetArticlesClassifiesOutcomes(t *testing.T) {
	refs := []registry.ArticleRef{
		{StatusID: "1", Index: 0}, {StatusID: "2", Index: 1}, {StatusID: "3", Index: 2}, {StatusID: "4", Index: 3},
	}
	ok := &sanitize.Article{RawArticle: extract.RawArticle{Ref: refs[0], AuthorName: "Ann", AuthorHandle: "@ann", MediaURLs: []string{"a"}, Locator: "anchored", TextStrategy: "tweet-text"}, WordCount: 7}
	arts := []*sanitize.Article{ok, nil, nil, nil}
	errs := []error{
		nil,
		&extract.Failure{Kind: extract.KindAuthRequired, Ref: refs[1], Step: extract.StepWait, Attempts: 1, Err: extract.ErrRestricted},
		&sanitize.RejectionError{Ref: refs[2], Reason: "text is empty after cleaning"},
		nil,
	}

	r := newReport(DefaultConfig())
	r.setArticles(refs, arts, errs)

	require.Len(t, r.Articles, 4)
	assert.Equal(t, OutcomeSucceeded, r.Articles[0].Outcome)
	assert.Equal(t, "Ann @ann", r.Articles[0].Author)
	assert.Equal(t, 7, r.Articles[0].Words)
	assert.Equal(t, 1, r.Articles[0].Images)
	assert.Equal(t, "auth_required", r.Articles[1].Outcome)
	assert.Equal(t, extract.StepWait, r.Articles[1].Step)
	assert.Equal(t, OutcomeRejected, r.Articles[2].Outcome)
	assert.Equal(t, OutcomeSkipped, r.Articles[3].Outcome)
	assert.Equal(t, "auth_required=1, rejected=1, skipped=1", r.FailureSummary())
	assert.Len(t, r.Succeeded(), 1)
	assert.Len(t, r.Failed(), 3)
}

func TestReport_MediaAndIssues(t *testing.T) {
	r := newReport(DefaultConfig())
	r.addMediaFailures(errors.Join(
		&media.FetchError{URL: "https://pbs.twimg.com/media/X?format=jpg&name=orig", Err: errors.New("404")},
	))
	require.Len(t, r.MediaFailures, 1)
	assert.Equal(t, "404", r.MediaFailures[0].Message)

	is := layout.Issue{Name: "42", Blocks: []layout.Block{layout.TextBlock{Article: layout.ArticleMark{Seq: 1, StatusID: "42"}}}}
	r.addIssue(is, "tectonic", "out-42.pdf", &compile.CompileError{Issue: "42", Engine: "tectonic", SourcePath: "w/42.tex", Err: errors.New("exit status 1")})
	r.addIssue(layout.Issue{Name: "43"}, "tectonic", "out-43.pdf", nil)

	require.Len(t, r.Issues, 2)
	assert.Equal(t, "w/42.tex", r.Issues[0].SourcePath)
	assert.Empty(t, r.Issues[0].Output)
	assert.Equal(t, []string{"42"}, r.Issues[0].Articles)
	assert.Equal(t, []string{"out-43.pdf"}, r.Compiled())
}

func TestReport_WriteJSON(t *testing.T) {
	r := newReport(DefaultConfig())
	r.Articles = []ArticleOutcome{{Index: 0, StatusID: "1", Outcome: OutcomeSucceeded}}
	path := filepath.Join(t.TempDir(), "nested", "mag.pdf.report.json")
	require.NoError(t, r.WriteJSON(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, r.RunID, back["run_id"])
	assert.Len(t, r.RunID, 36)
	assert.NoFileExists(t, tempSibling(path))
}
