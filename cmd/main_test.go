package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/Hellohistory/ErrorFile/config"
	"github.com/Hellohistory/ErrorFile/logger"
	"github.com/Hellohistory/ErrorFile/report"
	"github.com/Hellohistory/ErrorFile/scanner"
)

func TestMain(m *testing.M) {
	scanner.ServeWorkerIfRequested()
	logger.Init("error")
	os.Exit(m.Run())
}

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	oldArgs := os.Args
	oldFlag := flag.CommandLine
	t.Cleanup(func() {
		os.Args = oldArgs
		flag.CommandLine = oldFlag
	})
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	os.Args = append([]string{"errorfile"}, args...)
}

func TestHandleSignalEventCancelsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)

	done := make(chan struct{})
	go func() {
		handleSignalEvent(cancel, sigChan)
		close(done)
	}()

	sigChan <- syscall.SIGTERM

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected context to be canceled")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("signal handler did not return")
	}
}

func TestHandleSignalEventClosedChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal)
	close(sigChan)
	handleSignalEvent(cancel, sigChan)
	if ctx.Err() != nil {
		t.Fatal("closed channel should not cancel")
	}
}

func TestBatchOptions(t *testing.T) {
	cfg := &config.Config{
		Mode:              "fast",
		Workers:           8,
		UseCache:          true,
		SignaturePrecheck: true,
		PrecheckDenylist:  []string{".png"},
		ProcessPool:       true,
		StagedDeep:        true,
		MaxPerSecond:      50,
	}
	tracker := scanner.NewInFlight()
	opts := batchOptions(cfg, tracker)
	if opts.Mode != "fast" || !opts.UseCache || !opts.SignaturePrecheck || opts.Denylist[0] != ".png" {
		t.Fatalf("unexpected inspect options: %+v", opts.InspectOptions)
	}
	if !opts.UseProcessPool || !opts.StagedDeep || opts.MaxPerSecond != 50 || opts.InFlight != tracker {
		t.Fatalf("unexpected batch options: %+v", opts)
	}
	if opts.Workers != 0 {
		t.Fatal("unset worker count should fall back to the engine default")
	}
	cfg.WorkersSet = true
	if batchOptions(cfg, tracker).Workers != 8 {
		t.Fatal("explicit worker count ignored")
	}
}

func TestDiagOptions(t *testing.T) {
	cfg := &config.Config{DiagStallThreshold: time.Second, DiagDir: "d", TraceFlight: true}
	opts := diagOptions(cfg, scanner.NewInFlight())
	if opts.StallThreshold != time.Second || opts.Dir != "d" || opts.DumpFlightRecorder == nil {
		t.Fatalf("unexpected diag options: %+v", opts)
	}
	if opts.ProgressCountFn() != 0 || len(opts.InFlightFn()) != 0 {
		t.Fatal("fresh tracker should be empty")
	}
}

func TestProgressVisible(t *testing.T) {
	t.Setenv("ERRORFILE_DISABLE_PROGRESS", "yes")
	if progressVisible() {
		t.Fatal("expected progress hidden")
	}
	t.Setenv("ERRORFILE_DISABLE_PROGRESS", "")
	if !progressVisible() {
		t.Fatal("expected progress visible")
	}
}

func TestRunWritesReportsAndExitCode(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "good.json"), []byte(`{"a": [1, 2]}`), 0o644)
	os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"a": `), 0o644)
	os.WriteFile(filepath.Join(dir, "skip.tmp"), []byte("ignored"), 0o644)
	out := filepath.Join(t.TempDir(), "report.json")

	withArgs(t, "--output", out, "--exclude", "*.tmp", "--log-level", "error", "--fail-exit-code", "3", dir)
	if code := run(); code != 3 {
		t.Fatalf("exit code = %d", code)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var doc struct {
		Reports []report.Report `json:"reports"`
		Metrics struct {
			Files  int `json:"files"`
			Failed int `json:"failed"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(doc.Reports) != 2 || doc.Metrics.Files != 2 || doc.Metrics.Failed != 1 {
		t.Fatalf("unexpected output: %+v", doc)
	}
	for _, r := range doc.Reports {
		if filepath.Base(r.FilePath) == "bad.json" && r.OK {
			t.Fatalf("truncated json passed: %+v", r)
		}
	}
}

func TestRunAllPassExitsZero(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("plain text\n"), 0o644)
	withArgs(t, "--output", filepath.Join(t.TempDir(), "out.ndjson"), "--format", "ndjson", "--mode", "fast", "--log-level", "error", dir)
	if code := run(); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunConfigError(t *testing.T) {
	withArgs(t, "--mode", "slow", ".")
	if code := run(); code != exitConfig {
		t.Fatalf("exit code = %d", code)
	}
}
