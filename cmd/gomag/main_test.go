package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/gomag/internal/app"
	"github.com/hyperifyio/gomag/internal/layout"
	"github.com/hyperifyio/gomag/internal/registry"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{app.ErrNoArticles, 2},
		{fmt.Errorf("run: %w", app.ErrNoIssues), 2},
		{errors.Join(registry.ErrNoURLs, errors.New("bad line")), 2},
		{errors.New("config: unknown browser"), 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, exitCode(c.err), "%v", c.err)
	}
}

// parsedBuildCmd returns a build command with args parsed but not executed.
func parsedBuildCmd(t *testing.T, args ...string) (*cobra.Command, *buildFlags) {
	t.Helper()
	f := &buildFlags{}
	cmd := &cobra.Command{Use: "build"}
	bindBuildFlags(cmd, f, app.DefaultConfig())
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, f
}

func TestResolveConfig_Layering(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "gomag.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("layout:\n  paper: a4\n  columns: 4\n  pagination: split\ncompile:\n  engine: native\n"), 0o644))
	t.Setenv("GOMAG_PAPER", "letter")
	t.Setenv("GOMAG_COLUMNS", "5")

	cmd, f := parsedBuildCmd(t, "--config", cfgPath, "--columns", "2")
	cfg, err := resolveConfig(cmd, f)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Layout.Columns, "flag beats env")
	assert.Equal(t, layout.PaperLetter, cfg.Layout.Paper, "env beats file")
	assert.Equal(t, layout.Split, cfg.Layout.Pagination, "file beats default")
	assert.Equal(t, "native", cfg.Engine)
	assert.Equal(t, app.DefaultWorkers, cfg.Workers, "default kept")
}

func TestResolveConfig_UnsetFlagsKeepLowerLayers(t *testing.T) {
	t.Setenv("GOMAG_WORKERS", "3")
	cmd, f := parsedBuildCmd(t, "--fail-fast")
	cfg, err := resolveConfig(cmd, f)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, app.DefaultMediaWorkers, cfg.MediaWorkers)
}

func TestBuild_InvalidFlagValue(t *testing.T) {
	root := newRootCmd(&bytes.Buffer{})
	root.SetArgs([]string{"build", "--pagination", "sideways", "--urls", filepath.Join(t.TempDir(), "none.txt")})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown pagination")
	assert.Equal(t, 1, exitCode(err))
}

func TestBuild_NoValidURLsExitsTwo(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(list, []byte("# nothing usable\nhttps://example.com/post/1\n\n"), 0o644))

	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"build", "--urls", list, "--output", filepath.Join(dir, "mag.pdf"), "--browser", "static", "--work-dir", filepath.Join(dir, "work")})
	err := root.Execute()
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrNoURLs))
	assert.Equal(t, 2, exitCode(err))
	assert.FileExists(t, filepath.Join(dir, "mag.pdf.report.json"))
	assert.NoFileExists(t, filepath.Join(dir, "mag.pdf"))
	assert.True(t, strings.Contains(out.String(), "0/0"))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "gomag "+app.BuildVersion)
}
