//go:build trace

package tracing

import (
	"context"
	"os"
	"runtime/trace"
)

var traceFile *os.File

// Start writes a runtime execution trace to path (trace.out when empty).
func Start(path string) error {
	if path == "" {
		path = "trace.out"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := trace.Start(f); err != nil {
		f.Close()
		return err
	}
	traceFile = f
	return nil
}

func Stop() {
	trace.Stop()
	if traceFile != nil {
		traceFile.Close()
		traceFile = nil
	}
}

// StartTask opens one task per inspected file.
func StartTask(ctx context.Context, name string) (context.Context, func()) {
	ctx, task := trace.NewTask(ctx, name)
	return ctx, task.End
}

// StartRegion marks a pipeline stage (prefilter, checker, cache) inside a task.
func StartRegion(ctx context.Context, name string) func() {
	return trace.StartRegion(ctx, name).End
}

func Log(ctx context.Context, category, message string) {
	trace.Log(ctx, category, message)
}
