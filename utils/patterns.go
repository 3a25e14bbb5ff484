package utils

import (
	"path/filepath"
	"regexp"
	"strings"
)

// PathFilter decides which walked paths get inspected. A pattern is tried as
// a glob against the base name and, when it compiles, as a regular
// expression against the full path.
type PathFilter struct {
	includeGlobs []string
	includeRegex []*regexp.Regexp
	excludeGlobs []string
	excludeRegex []*regexp.Regexp
	skipHidden   bool
}

func NewPathFilter(includePatterns, excludePatterns []string, skipHidden bool) *PathFilter {
	return &PathFilter{
		includeGlobs: append([]string(nil), includePatterns...),
		includeRegex: compileRegex(includePatterns),
		excludeGlobs: append([]string(nil), excludePatterns...),
		excludeRegex: compileRegex(excludePatterns),
		skipHidden:   skipHidden,
	}
}

// Include reports whether the file at path should be inspected.
func (f *PathFilter) Include(path string) bool {
	if f == nil {
		return true
	}
	if f.skipHidden && hidden(path) {
		return false
	}
	if len(f.includeGlobs) > 0 && !matches(path, f.includeGlobs, f.includeRegex) {
		return false
	}
	return !matches(path, f.excludeGlobs, f.excludeRegex)
}

// Descend reports whether a walk should enter dir. Include patterns do not
// apply to directories.
func (f *PathFilter) Descend(dir string) bool {
	if f == nil {
		return true
	}
	if f.skipHidden && hidden(dir) {
		return false
	}
	return !matches(dir, f.excludeGlobs, f.excludeRegex)
}

func hidden(path string) bool {
	base := filepath.Base(path)
	return len(base) > 1 && strings.HasPrefix(base, ".") && base != ".."
}

func matches(path string, globs []string, regexes []*regexp.Regexp) bool {
	base := filepath.Base(path)
	for _, pattern := range globs {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	for _, re := range regexes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func compileRegex(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		if re, err := regexp.Compile(pattern); err == nil {
			compiled = append(compiled, re)
		}
	}
	return compiled
}
