package app

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads dotenv files into the process environment. Variables
// already present in the real environment win; among the files, later ones
// override earlier ones. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for i := len(paths) - 1; i >= 0; i-- {
		p := strings.TrimSpace(paths[i])
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}
