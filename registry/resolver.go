package registry

import (
	"path/filepath"
	"strings"
)

// MaxSegments bounds how many trailing dot segments form a compound extension.
const MaxSegments = 3

// Candidates lists the extensions a file name could claim, longest first.
// "archive.tar.gz" yields ".tar.gz" then ".gz". Leading dots of hidden files
// are not extension separators, so ".bashrc" yields nothing.
func Candidates(name string) []string {
	base := strings.ToLower(filepath.Base(name))
	base = strings.TrimLeft(base, ".")
	parts := strings.Split(base, ".")
	if len(parts) < 2 {
		return nil
	}
	segments := parts[1:]
	limit := min(len(segments), MaxSegments)
	out := make([]string, 0, limit)
	for n := limit; n >= 1; n-- {
		tail := segments[len(segments)-n:]
		if hasEmpty(tail) {
			continue
		}
		out = append(out, "."+strings.Join(tail, "."))
	}
	return out
}

// DisplayExtension is the lower-cased last dot segment, or "" when there is none.
func DisplayExtension(name string) string {
	c := Candidates(name)
	if len(c) == 0 {
		return ""
	}
	return c[len(c)-1]
}

// NormalizeExtension lower-cases ext, adds the leading dot and checks the
// segment rules. It returns false for anything that could never be produced
// by Candidates.
func NormalizeExtension(ext string) (string, bool) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return "", false
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	segments := strings.Split(ext[1:], ".")
	if len(segments) > MaxSegments || hasEmpty(segments) {
		return "", false
	}
	for _, s := range segments {
		if strings.ContainsAny(s, `/\ `) {
			return "", false
		}
	}
	return ext, true
}

func hasEmpty(segments []string) bool {
	for _, s := range segments {
		if s == "" {
			return true
		}
	}
	return false
}
