package app

import (
	"path/filepath"
	"strings"
)

// issueOutputPath returns where an issue's PDF goes. A single issue takes the
// configured output path; split issues are named <stem>-<name><ext> beside it.
func issueOutputPath(output, issueName string, split bool) string {
	if !split {
		return output
	}
	ext := filepath.Ext(output)
	if ext == "" {
		ext = ".pdf"
	}
	stem := strings.TrimSuffix(output, filepath.Ext(output))
	return stem + "-" + issueName + ext
}

// reportSidecarPath returns the JSON report path next to the output document.
func reportSidecarPath(output string) string {
	return output + ".report.json"
}

// tempSibling returns a hidden path in the same directory as p, so a rename
// onto p stays on one filesystem.
func tempSibling(p string) string {
	return filepath.Join(filepath.Dir(p), "."+filepath.Base(p)+".partial")
}
