package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Hellohistory/ErrorFile/config"
	"github.com/Hellohistory/ErrorFile/diag"
	"github.com/Hellohistory/ErrorFile/logger"
	"github.com/Hellohistory/ErrorFile/output"
	"github.com/Hellohistory/ErrorFile/report"
	"github.com/Hellohistory/ErrorFile/scanner"
	"github.com/Hellohistory/ErrorFile/tracing"
	"github.com/Hellohistory/ErrorFile/utils"
)

const (
	exitConfig    = 2
	exitCancelled = 130
)

func main() {
	// Process-pool children re-execute this binary; they never return.
	scanner.ServeWorkerIfRequested()
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return exitConfig
	}

	logger.Init(cfg.LogLevel)

	if cfg.TraceFile != "" {
		if err := tracing.Start(cfg.TraceFile); err != nil {
			logger.Warnf("Failed to start trace: %v", err)
		} else {
			defer tracing.Stop()
		}
	}
	if cfg.TraceFlight {
		if err := tracing.StartFlightRecorder(cfg.TraceFlightMaxBytes, cfg.TraceFlightMinAge); err != nil {
			logger.Warnf("Failed to start flight recorder: %v", err)
		} else {
			defer func() {
				if err := tracing.WriteFlightRecorder(cfg.TraceFlightFile); err != nil {
					logger.Warnf("Failed to write flight recorder: %v", err)
				}
				tracing.StopFlightRecorder()
			}()
		}
	}

	metrics := output.Metrics{StartTime: time.Now().UTC().Format(time.RFC3339)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go handleSignalEvent(cancel, sigChan)

	filter := utils.NewPathFilter(cfg.IncludePatterns, cfg.ExcludePatterns, cfg.SkipHidden)
	files, err := scanner.CollectFiles(ctx, cfg.Paths, scanner.CollectOptions{
		Filter:         filter,
		MaxFileSize:    cfg.MaxFileSize,
		FollowSymlinks: cfg.FollowSymlinks,
	})
	if err != nil {
		logger.Errorf("Collecting files failed: %v", err)
		return exitCancelled
	}
	metrics.Files = len(files)
	logger.Infof("Inspecting %d files", len(files))

	writer, err := output.New(cfg, &metrics)
	if err != nil {
		logger.Errorf("Failed to initialize output: %v", err)
		return exitConfig
	}

	engine := newEngine(cfg)
	tracker := scanner.NewInFlight()
	opts := batchOptions(cfg, tracker)

	var bar *progressbar.ProgressBar
	if cfg.Progress {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Inspecting files"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetVisibility(progressVisible()),
			progressbar.OptionFullWidth(),
		)
		opts.Progress = func(done, _ int) { bar.Set(done) }
	}

	controller := diag.NewController(diagOptions(cfg, tracker))
	controller.Start(ctx)

	reports, err := engine.InspectMany(ctx, files, opts)
	controller.Close()
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		logger.Errorf("Inspection aborted: %v", err)
		metrics.EndTime = time.Now().UTC().Format(time.RFC3339)
		writer.SetMetrics(metrics)
		writer.Close()
		return exitCancelled
	}

	for _, r := range reports {
		if err := writer.WriteReport(r); err != nil {
			logger.Errorf("Failed to write report for %s: %v", r.FilePath, err)
		}
	}
	metrics.EndTime = time.Now().UTC().Format(time.RFC3339)
	writer.SetMetrics(metrics)
	if err := writer.Close(); err != nil {
		logger.Errorf("Failed to finalize output: %v", err)
	}

	summary := report.Summarize(reports)
	logSummary(summary)
	if summary.Failed > 0 {
		return cfg.FailExitCode
	}
	return 0
}

func newEngine(cfg *config.Config) *scanner.Engine {
	opts := []scanner.Option{scanner.WithCacheSize(cfg.CacheSize)}
	if len(cfg.StagedExtensions) > 0 {
		opts = append(opts, scanner.WithStagedExtensions(cfg.StagedExtensions...))
	}
	engine := scanner.New(opts...)
	loaded := engine.Plugins()
	if len(loaded.Skipped) > 0 {
		logger.Infof("Checker groups not compiled in: %s", strings.Join(loaded.Skipped, ", "))
	}
	return engine
}

func batchOptions(cfg *config.Config, tracker *scanner.InFlight) scanner.BatchOptions {
	opts := scanner.BatchOptions{
		InspectOptions: scanner.InspectOptions{
			Mode:              cfg.Mode,
			UseCache:          cfg.UseCache,
			SignaturePrecheck: cfg.SignaturePrecheck,
			Allowlist:         cfg.PrecheckAllowlist,
			Denylist:          cfg.PrecheckDenylist,
		},
		UseProcessPool:    cfg.ProcessPool,
		StagedDeep:        cfg.StagedDeep,
		MaxPerSecond:      cfg.MaxPerSecond,
		AutoTune:          cfg.AutoTune,
		AutoTuneInterval:  cfg.AutoTuneInterval,
		AutoTuneTargetCPU: cfg.AutoTuneTargetCPU,
		InFlight:          tracker,
	}
	if cfg.WorkersSet {
		opts.Workers = cfg.Workers
	}
	return opts
}

func diagOptions(cfg *config.Config, tracker *scanner.InFlight) diag.Options {
	opts := diag.Options{
		StallThreshold:  cfg.DiagStallThreshold,
		Dir:             cfg.DiagDir,
		ProgressCountFn: tracker.Completed,
		InFlightFn:      tracker.Paths,
	}
	if cfg.TraceFlight {
		opts.DumpFlightRecorder = tracing.WriteFlightRecorder
	}
	return opts
}

func logSummary(s report.Summary) {
	parts := make([]string, 0, len(s.Tags))
	for _, t := range s.SortedTags() {
		parts = append(parts, fmt.Sprintf("%s=%d", t, s.Tags[t]))
	}
	logger.Infof("Inspected %d files: %d passed, %d failed, %d from cache [%s]",
		s.Total, s.Passed, s.Failed, s.CacheHits, strings.Join(parts, " "))
}

func handleSignalEvent(cancelFunc context.CancelFunc, sigChan <-chan os.Signal) {
	if _, ok := <-sigChan; !ok {
		return
	}
	logger.Info("Interrupt signal received. Shutting down...")
	cancelFunc()
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("ERRORFILE_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}
