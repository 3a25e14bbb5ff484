package scanner

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"golang.org/x/time/rate"

	"github.com/Hellohistory/ErrorFile/logger"
	"github.com/Hellohistory/ErrorFile/report"
)

// BatchOptions controls InspectMany. The embedded InspectOptions apply to
// every file.
type BatchOptions struct {
	InspectOptions

	// Workers bounds parallelism; non-positive means DefaultWorkers.
	Workers int
	// UseProcessPool runs every file in a child process. The cache is never
	// used in this mode. Engines that are not Reproducible fall back to
	// in-process inspection.
	UseProcessPool bool
	// StagedDeep runs the fast check first for staged extensions when Mode
	// is deep, and only runs the deep check when the fast one passes.
	StagedDeep bool

	// MaxPerSecond caps how many files are started per second; zero means
	// unlimited unless AutoTune picks a limit.
	MaxPerSecond      int
	AutoTune          bool
	AutoTuneInterval  time.Duration
	AutoTuneTargetCPU float64

	// Progress is called after each unique file completes. Calls are
	// serialized.
	Progress func(done, total int)
	// InFlight, when set, tracks the files currently being inspected.
	InFlight *InFlight
}

func DefaultBatchOptions() BatchOptions {
	return BatchOptions{InspectOptions: DefaultInspectOptions()}
}

// DefaultWorkers is the logical CPU count.
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// InspectMany returns one report per input path in input order. Each unique
// path is inspected once and its report is copied to every occurrence.
// Cancelling ctx abandons the whole batch and returns ctx.Err().
func (e *Engine) InspectMany(ctx context.Context, paths []string, opts BatchOptions) ([]report.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unique, index := dedupePaths(paths)
	results := make([]report.Report, len(unique))

	inspect := opts.InspectOptions
	usePool := opts.UseProcessPool
	if usePool {
		inspect.UseCache = false
		if !e.Reproducible() {
			logger.Warn("Engine has runtime checker customizations; inspecting in-process instead of the process pool")
			usePool = false
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	workers = max(1, min(workers, len(unique)))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, workers)
	var processed atomic.Int64
	limiter := e.batchLimiter(runCtx, opts, jobs, &processed)
	progress := serializedProgress(opts.Progress, len(unique))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if runCtx.Err() != nil {
					continue
				}
				opts.InFlight.begin(unique[i])
				if usePool {
					results[i] = e.inspectInProcess(runCtx, unique[i], inspect, opts.StagedDeep)
				} else {
					results[i] = e.inspect(runCtx, unique[i], inspect, opts.StagedDeep)
				}
				opts.InFlight.end(unique[i])
				progress(int(processed.Add(1)))
			}
		}()
	}

feed:
	for i := range unique {
		if limiter != nil {
			if err := limiter.Wait(runCtx); err != nil {
				break
			}
		}
		select {
		case <-runCtx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		logger.Warnf("Batch cancelled after %d of %d files: %v", processed.Load(), len(unique), err)
		return nil, err
	}

	out := make([]report.Report, len(paths))
	for i, u := range index {
		out[i] = results[u].Clone()
	}
	return out, nil
}

func (e *Engine) batchLimiter(ctx context.Context, opts BatchOptions, jobs chan int, processed *atomic.Int64) *rate.Limiter {
	switch {
	case opts.MaxPerSecond > 0:
		return rate.NewLimiter(rate.Limit(opts.MaxPerSecond), opts.MaxPerSecond)
	case opts.AutoTune:
		state := initialAutoTune()
		limiter := rate.NewLimiter(rate.Limit(state.limit), state.limit)
		startAutoTune(ctx, opts, limiter, state, autoTuneTelemetry{
			pendingFn:   func() int { return len(jobs) },
			capacityFn:  func() int { return cap(jobs) },
			processedFn: processed.Load,
		})
		return limiter
	}
	return nil
}

// dedupePaths keys paths by absolute path. index maps every input position
// to its slot in unique.
func dedupePaths(paths []string) (unique []string, index []int) {
	seen := make(map[string]int, len(paths))
	index = make([]int, len(paths))
	for i, p := range paths {
		abs := absPath(p)
		slot, ok := seen[abs]
		if !ok {
			slot = len(unique)
			seen[abs] = slot
			unique = append(unique, p)
		}
		index[i] = slot
	}
	return unique, index
}

func serializedProgress(fn func(done, total int), total int) func(int) {
	if fn == nil {
		return func(int) {}
	}
	var mu sync.Mutex
	last := 0
	return func(done int) {
		mu.Lock()
		defer mu.Unlock()
		// Reports can finish out of order; never move backwards.
		if done > last {
			last = done
			fn(done, total)
		}
	}
}

// BatchSummary aggregates a batch result.
func BatchSummary(reports []report.Report) report.Summary {
	return report.Summarize(reports)
}
