package engine

import (
	"path/filepath"
	"strings"
)

// relativeName maps an event path to a name directly inside root. It
// reports false for root itself, for paths outside root, and for anything
// in a subdirectory.
func relativeName(root, absPath string) (string, bool) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(absPath))
	if err != nil || rel == "." {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if strings.ContainsRune(rel, filepath.Separator) {
		return "", false
	}
	return rel, true
}
