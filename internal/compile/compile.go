// Package compile turns a rendered document into a PDF. Engines are opaque to
// the caller: a compile either writes the output file or returns a
// *CompileError.
package compile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hyperifyio/gomag/internal/render"
)

// Compiler writes the PDF for doc to outPath.
type Compiler interface {
	Name() string
	Compile(ctx context.Context, doc render.Document, outPath string) error
}

// CompileError reports a failed compile. SourcePath points at the retained
// intermediate source when one was written.
type CompileError struct {
	Issue      string
	Engine     string
	SourcePath string
	Stderr     string
	Err        error
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("compile %s with %s: %v", e.Issue, e.Engine, e.Err)
	if e.SourcePath != "" {
		msg += " (source kept at " + e.SourcePath + ")"
	}
	return msg
}

func (e *CompileError) Unwrap() error { return e.Err }

// New returns the engine registered under name.
func New(name, workDir string, keepSource bool) (Compiler, error) {
	switch name {
	case "", "tectonic":
		return &Tectonic{WorkDir: workDir, KeepSource: keepSource}, nil
	case "native":
		return &Native{}, nil
	}
	return nil, fmt.Errorf("unknown engine %q (want tectonic or native)", name)
}

// WriteSource stores doc.Source as <dir>/<name>.tex and returns the path.
func WriteSource(dir string, doc render.Document) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	p := filepath.Join(dir, doc.Name+".tex")
	if err := os.WriteFile(p, []byte(doc.Source), 0o644); err != nil {
		return "", fmt.Errorf("write source: %w", err)
	}
	return p, nil
}

// moveFile places src at dst through a temporary sibling of dst, so dst is
// either absent or complete.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Remove(src)
}
