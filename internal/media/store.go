package media

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// hashPrefix is the number of hex digits of the content hash used in names.
const hashPrefix = 16

// Store keeps staged media as <Dir>/<sha256 prefix><ext>. Identical content
// always maps to the same file, so re-runs with unchanged media rewrite
// nothing.
type Store struct {
	Dir string
}

func (s *Store) ensureDir() error {
	if s == nil || s.Dir == "" {
		return errors.New("media dir not configured")
	}
	return os.MkdirAll(s.Dir, 0o755)
}

// Put writes body and returns its path, full content hash and detected MIME
// type. The file lands through a temporary name and a rename.
func (s *Store) Put(body []byte) (path, hash, mime string, err error) {
	if err := s.ensureDir(); err != nil {
		return "", "", "", err
	}
	sum := sha256.Sum256(body)
	hash = hex.EncodeToString(sum[:])
	mt := mimetype.Detect(body)
	ext := mt.Extension()
	if ext == "" {
		ext = ".bin"
	}
	path = filepath.Join(s.Dir, hash[:hashPrefix]+ext)
	if _, err := os.Stat(path); err == nil {
		return path, hash, mt.String(), nil
	}

	tmp, err := os.CreateTemp(s.Dir, ".stage-*")
	if err != nil {
		return "", "", "", fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", "", "", fmt.Errorf("write media: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", "", "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", "", "", fmt.Errorf("rename media: %w", err)
	}
	return path, hash, mt.String(), nil
}
