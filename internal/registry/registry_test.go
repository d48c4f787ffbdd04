package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SameStatusAcrossHostsCollapses(t *testing.T) {
	refs, err := Parse([]string{"https://x.com/a/status/111", "https://twitter.com/b/status/111"})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "111", refs[0].StatusID)
	assert.Equal(t, "https://x.com/a/status/111", refs[0].URL)
	assert.Equal(t, 0, refs[0].Index)
}

func TestParse_FirstOccurrenceKeepsPosition(t *testing.T) {
	refs, err := Parse([]string{
		"https://x.com/a/status/1",
		"https://x.com/b/status/2",
		"https://www.twitter.com/c/status/1?s=20",
		"https://x.com/d/status/3",
		"https://x.com/e/status/2/photo/1",
	})
	require.NoError(t, err)
	ids := make([]string, 0, len(refs))
	for i, r := range refs {
		ids = append(ids, r.StatusID)
		assert.Equal(t, i, r.Index)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestParse_SkipsCommentsAndBlankLines(t *testing.T) {
	refs, err := Parse([]string{
		"# reading list",
		"",
		"   ",
		"  https://x.com/alice/status/42  ",
		"#https://x.com/bob/status/43",
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "42", refs[0].StatusID)
	assert.Equal(t, 4, refs[0].Line)
}

func TestParse_InvalidLinesAreReportedNotFatal(t *testing.T) {
	refs, err := Parse([]string{
		"https://x.com/alice/status/42",
		"https://example.com/alice/status/1",
		"ftp://x.com/alice/status/1",
		"https://x.com/alice/status/abc",
		"https://x.com/alice",
	})
	require.Len(t, refs, 1)
	require.Error(t, err)

	invalid := InvalidLines(err)
	require.Len(t, invalid, 4)
	lines := []int{invalid[0].Line, invalid[1].Line, invalid[2].Line, invalid[3].Line}
	assert.Equal(t, []int{2, 3, 4, 5}, lines)

	var first *InvalidURLError
	require.True(t, errors.As(err, &first))
	assert.Contains(t, first.Error(), "line 2")
}

func TestStatusID(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://x.com/a/status/111", "111", false},
		{"http://twitter.com/a/status/222", "222", false},
		{"https://www.x.com/a/status/333/", "333", false},
		{"https://X.com/a/status/444", "444", false},
		{"https://mobile.example.org/a/status/1", "", true},
		{"https://x.com/a/status/", "", true},
		{"not a url", "", true},
	}
	for _, tc := range cases {
		got, err := StatusID(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "urls.txt")
	content := strings.Join([]string{
		"# issue 7",
		"https://x.com/a/status/10",
		"https://x.com/b/status/20",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	refs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "https://x.com/i/status/20", refs[1].CanonicalURL())
}

func TestLoadFile_NoValidURLs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("# nothing\n\nhttps://example.com/x\n"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoURLs))
	assert.Len(t, InvalidLines(err), 1)
}
