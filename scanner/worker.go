package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/Hellohistory/ErrorFile/logger"
	"github.com/Hellohistory/ErrorFile/registry"
	"github.com/Hellohistory/ErrorFile/report"
)

// WorkerEnv marks a child process started by the process pool.
const WorkerEnv = "ERRORFILE_WORKER"

type workerRequest struct {
	Path       string         `json:"path"`
	Options    InspectOptions `json:"options"`
	StagedDeep bool           `json:"staged_deep"`
	Staged     []string       `json:"staged_extensions"`
}

// executable is the binary re-executed for each process-pool unit.
var executable = os.Executable

// ServeWorkerIfRequested turns the process into a one-shot inspection worker
// when it was started by the process pool: it reads one request from stdin,
// writes one report to stdout and exits. Otherwise it returns immediately.
// Call it first thing in main (or TestMain) of any binary that uses
// UseProcessPool.
func ServeWorkerIfRequested() {
	if os.Getenv(WorkerEnv) != "1" {
		return
	}
	os.Exit(serveWorker(os.Stdin, os.Stdout))
}

func serveWorker(in *os.File, out *os.File) int {
	var req workerRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		fmt.Fprintf(os.Stderr, "errorfile worker: bad request: %v\n", err)
		return 2
	}
	req.Options.UseCache = false
	e := Default()
	if req.Staged != nil {
		e = e.withStaged(req.Staged)
	}
	r := e.inspect(context.Background(), req.Path, req.Options, req.StagedDeep)
	if err := json.NewEncoder(out).Encode(r); err != nil {
		fmt.Fprintf(os.Stderr, "errorfile worker: write report: %v\n", err)
		return 2
	}
	return 0
}

// inspectInProcess runs one unit in a child process. Any failure of the
// child itself becomes an unknown_error report.
func (e *Engine) inspectInProcess(ctx context.Context, path string, opts InspectOptions, staged bool) report.Report {
	abs := absPath(path)
	fail := func(msg string, err error) report.Report {
		logger.WithField("path", abs).Warnf("%s: %v", msg, err)
		mode := report.Mode(opts.Mode)
		if opts.Mode == "" {
			mode = report.ModeDeep
		}
		return report.New(abs, registry.DisplayExtension(abs), mode, report.FailErr(msg, err, report.TagUnknownError))
	}

	exe, err := executable()
	if err != nil {
		return fail("cannot locate worker executable", err)
	}
	payload, err := json.Marshal(workerRequest{
		Path:       abs,
		Options:    opts,
		StagedDeep: staged,
		Staged:     e.StagedExtensions(),
	})
	if err != nil {
		return fail("cannot encode worker request", err)
	}

	cmd := exec.CommandContext(ctx, exe)
	cmd.Env = append(os.Environ(), WorkerEnv+"=1")
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return fail("worker process failed", err)
	}

	var r report.Report
	if err := json.Unmarshal(stdout.Bytes(), &r); err != nil {
		return fail("worker returned an unreadable report", err)
	}
	return r
}
