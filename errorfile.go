package errorfile

import (
	"context"

	"github.com/Hellohistory/ErrorFile/registry"
	"github.com/Hellohistory/ErrorFile/report"
	"github.com/Hellohistory/ErrorFile/scanner"
)

type (
	Report         = report.Report
	Finding        = report.Finding
	Tag            = report.Tag
	Mode           = report.Mode
	Checker        = registry.Checker
	InspectOptions = scanner.InspectOptions
	BatchOptions   = scanner.BatchOptions
)

const (
	ModeFast = report.ModeFast
	ModeDeep = report.ModeDeep
)

// DefaultInspectOptions inspects in deep mode with the cache and the
// signature precheck enabled.
func DefaultInspectOptions() InspectOptions { return scanner.DefaultInspectOptions() }

func DefaultBatchOptions() BatchOptions { return scanner.DefaultBatchOptions() }

// Inspect checks a single file. It never fails: every problem, including a
// missing file or an unknown mode, is described by the returned report.
func Inspect(path string, opts InspectOptions) Report {
	return scanner.Default().Inspect(path, opts)
}

// InspectMany checks paths concurrently and returns one report per input in
// input order. The only error is ctx's, in which case no reports are
// returned.
func InspectMany(ctx context.Context, paths []string, opts BatchOptions) ([]Report, error) {
	return scanner.Default().InspectMany(ctx, paths, opts)
}

// Register installs c for ext on the shared engine, replacing any checker
// already registered for it. Register before inspecting; the registry is
// not synchronised. It panics on a malformed extension or a nil checker.
// After a registration, process-pool batches on the shared engine run
// in-process, since worker processes only know the compiled-in checkers.
func Register(ext string, c Checker) {
	scanner.Default().Register(ext, c)
}

func RegisterFunc(ext string, fn func(path string, mode Mode) Finding) {
	scanner.Default().RegisterFunc(ext, fn)
}
