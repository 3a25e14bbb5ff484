// Package registry maps file extensions to format checkers.
package registry

import (
	"fmt"
	"sort"

	"github.com/Hellohistory/ErrorFile/report"
)

// Checker validates the bytes of one file. Expected failures are returned as
// tagged findings; a panic is treated as a bug and captured by the caller.
type Checker interface {
	Check(path string, mode report.Mode) report.Finding
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(path string, mode report.Mode) report.Finding

func (f CheckerFunc) Check(path string, mode report.Mode) report.Finding {
	return f(path, mode)
}

// Registry is a plain map from normalized extension to checker. It is not
// synchronised: register everything before inspections start.
type Registry struct {
	checkers map[string]Checker
}

func New() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register binds ext to c; a later registration replaces an earlier one.
// A malformed extension or nil checker is a programming error and panics.
func (r *Registry) Register(ext string, c Checker) {
	norm, ok := NormalizeExtension(ext)
	if !ok {
		panic(fmt.Sprintf("registry: malformed extension %q", ext))
	}
	if c == nil {
		panic(fmt.Sprintf("registry: nil checker for %s", norm))
	}
	r.checkers[norm] = c
}

// RegisterFunc is Register for a plain function.
func (r *Registry) RegisterFunc(ext string, fn func(string, report.Mode) report.Finding) {
	r.Register(ext, CheckerFunc(fn))
}

func (r *Registry) Lookup(ext string) (Checker, bool) {
	norm, ok := NormalizeExtension(ext)
	if !ok {
		return nil, false
	}
	c, ok := r.checkers[norm]
	return c, ok
}

// Resolve returns the first candidate with a registered checker.
func (r *Registry) Resolve(candidates []string) (string, Checker, bool) {
	for _, ext := range candidates {
		if c, ok := r.checkers[ext]; ok {
			return ext, c, true
		}
	}
	return "", nil, false
}

// ResolvePath is Resolve over the candidates of path.
func (r *Registry) ResolvePath(path string) (string, Checker, bool) {
	return r.Resolve(Candidates(path))
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.checkers))
	for ext := range r.checkers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	return len(r.checkers)
}
