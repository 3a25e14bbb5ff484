package utils

import (
	"path/filepath"
	"strings"
)

// IsPathWithin reports whether path, after symlink resolution, lies under
// any of roots. Unresolvable paths are compared as given.
func IsPathWithin(path string, roots []string) bool {
	absPath, ok := resolve(path)
	if !ok {
		return false
	}
	for _, root := range roots {
		absRoot, ok := resolve(root)
		if !ok {
			continue
		}
		rel, err := filepath.Rel(absRoot, absPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func resolve(path string) (string, bool) {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	abs, err := filepath.Abs(path)
	return abs, err == nil
}
