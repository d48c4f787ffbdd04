package compile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gomag/internal/render"
)

// ErrEngineNotFound is wrapped when the TeX engine binary is not installed.
var ErrEngineNotFound = errors.New("tectonic not found on PATH")

// Tectonic compiles LaTeX with the tectonic binary.
type Tectonic struct {
	// Bin overrides the binary; empty looks up "tectonic" on PATH.
	Bin string
	// WorkDir receives the .tex source and the engine's output.
	WorkDir string
	// KeepSource retains the .tex after a successful compile. It is always
	// retained on failure.
	KeepSource bool
}

func (t *Tectonic) Name() string { return "tectonic" }

func (t *Tectonic) Compile(ctx context.Context, doc render.Document, outPath string) error {
	fail := func(src, stderr string, err error) error {
		return &CompileError{Issue: doc.Name, Engine: t.Name(), SourcePath: src, Stderr: stderr, Err: err}
	}
	dir := t.WorkDir
	if dir == "" {
		dir = filepath.Dir(outPath)
	}
	src, err := WriteSource(dir, doc)
	if err != nil {
		return fail("", "", err)
	}

	bin := t.Bin
	if bin == "" {
		bin = "tectonic"
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return fail(src, "", fmt.Errorf("%w: %v", ErrEngineNotFound, err))
	}

	outDir, err := os.MkdirTemp(dir, ".tectonic-*")
	if err != nil {
		return fail(src, "", err)
	}
	defer os.RemoveAll(outDir)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, resolved, "--outdir", outDir, src)
	cmd.Stderr = &stderr
	log.Debug().Str("issue", doc.Name).Str("source", src).Msg("running tectonic")
	if err := cmd.Run(); err != nil {
		return fail(src, strings.TrimSpace(stderr.String()), err)
	}

	produced := filepath.Join(outDir, doc.Name+".pdf")
	if _, err := os.Stat(produced); err != nil {
		return fail(src, strings.TrimSpace(stderr.String()), fmt.Errorf("expected output not found: %w", err))
	}
	if err := moveFile(produced, outPath); err != nil {
		return fail(src, "", err)
	}
	if !t.KeepSource {
		_ = os.Remove(src)
	}
	return nil
}
