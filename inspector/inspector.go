// Package inspector runs the per-file pipeline: signature prefilter, checker
// resolution and the checker itself.
package inspector

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/Hellohistory/ErrorFile/logger"
	"github.com/Hellohistory/ErrorFile/prefilter"
	"github.com/Hellohistory/ErrorFile/registry"
	"github.com/Hellohistory/ErrorFile/report"
	"github.com/Hellohistory/ErrorFile/tracing"
)

// Inspector is safe for concurrent use as long as the registry and
// signature table are not modified.
type Inspector struct {
	registry   *registry.Registry
	signatures *prefilter.Table
}

func New(reg *registry.Registry, signatures *prefilter.Table) *Inspector {
	if signatures == nil {
		signatures = prefilter.NewTable()
	}
	return &Inspector{registry: reg, signatures: signatures}
}

// Inspect checks path in mode. A prefilter verdict is conclusive only when it
// fails; a checker panic becomes unknown_error.
func (i *Inspector) Inspect(ctx context.Context, path string, mode report.Mode, policy prefilter.Policy) report.Finding {
	candidates := registry.Candidates(path)

	if policy.Enabled {
		endRegion := tracing.StartRegion(ctx, "prefilter")
		f, judged := i.signatures.Check(path, candidates, policy)
		endRegion()
		if judged && !f.OK {
			return f
		}
	}

	ext, checker, ok := i.registry.Resolve(candidates)
	if !ok {
		if len(candidates) == 0 {
			return report.Fail("file has no extension", report.TagUnsupported)
		}
		return report.Fail("no checker registered for "+candidates[len(candidates)-1], report.TagUnsupported)
	}

	tracing.Log(ctx, "checker", ext)
	endRegion := tracing.StartRegion(ctx, "checker")
	defer endRegion()
	return run(checker, path, mode, ext)
}

func run(c registry.Checker, path string, mode report.Mode, ext string) (f report.Finding) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("path", path).Warnf("checker for %s panicked: %v\n%s", ext, r, debug.Stack())
			f = report.Finding{
				OK:      false,
				Message: fmt.Sprintf("checker for %s crashed", ext),
				Tags:    []report.Tag{report.TagUnknownError},
				Error:   fmt.Sprint(r),
			}
		}
	}()
	return c.Check(path, mode).Normalize()
}

// Resolve reports which registered extension would handle path.
func (i *Inspector) Resolve(path string) (string, bool) {
	ext, _, ok := i.registry.ResolvePath(path)
	return ext, ok
}
