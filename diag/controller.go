// Package diag watches a running batch and dumps diagnostics when no
// inspection completes for a configured threshold.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/Hellohistory/ErrorFile/logger"
)

type profileWriter interface {
	WriteTo(w io.Writer, debug int) error
}

type Options struct {
	StallThreshold     time.Duration
	Dir                string
	ProgressCountFn    func() int64
	InFlightFn         func() []string
	DumpFlightRecorder func(path string) error
	NowFn              func() time.Time
	ProfileLookupFn    func(name string) profileWriter
}

type Controller struct {
	stallThreshold     time.Duration
	dir                string
	progressCountFn    func() int64
	inFlightFn         func() []string
	dumpFlightRecorder func(path string) error
	nowFn              func() time.Time
	profileLookupFn    func(name string) profileWriter

	mu             sync.Mutex
	lastProgressAt time.Time
	lastProgress   int64
	lastDumpAt     time.Time
	dumps          int

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewController(opts Options) *Controller {
	nowFn := opts.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}
	profileLookup := opts.ProfileLookupFn
	if profileLookup == nil {
		profileLookup = func(name string) profileWriter {
			if p := pprof.Lookup(name); p != nil {
				return p
			}
			return nil
		}
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	return &Controller{
		stallThreshold:     opts.StallThreshold,
		dir:                dir,
		progressCountFn:    opts.ProgressCountFn,
		inFlightFn:         opts.InFlightFn,
		dumpFlightRecorder: opts.DumpFlightRecorder,
		nowFn:              nowFn,
		profileLookupFn:    profileLookup,
	}
}

// Start polls progress until ctx ends or Close is called. It does nothing
// without a positive threshold and a progress source.
func (c *Controller) Start(ctx context.Context) {
	if c == nil || c.stallThreshold <= 0 || c.progressCountFn == nil || c.stopCh != nil {
		return
	}

	now := c.nowFn()
	c.mu.Lock()
	c.lastProgress = c.progressCountFn()
	c.lastProgressAt = now
	c.lastDumpAt = time.Time{}
	c.mu.Unlock()

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	interval := min(max(c.stallThreshold/2, 250*time.Millisecond), 2*time.Second)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(c.doneCh)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.runProbe(c.nowFn())
			}
		}
	}()
}

func (c *Controller) Close() {
	if c == nil || c.stopCh == nil {
		return
	}
	close(c.stopCh)
	<-c.doneCh
	c.stopCh = nil
	c.doneCh = nil
}

// Dumps reports how many stall dumps were written.
func (c *Controller) Dumps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dumps
}

func (c *Controller) runProbe(now time.Time) {
	if c == nil || c.progressCountFn == nil || c.stallThreshold <= 0 {
		return
	}

	progress := c.progressCountFn()

	c.mu.Lock()
	if progress != c.lastProgress || c.lastProgressAt.IsZero() {
		c.lastProgress = progress
		c.lastProgressAt = now
		c.mu.Unlock()
		return
	}
	stalledFor := now.Sub(c.lastProgressAt)
	shouldDump := stalledFor >= c.stallThreshold &&
		(c.lastDumpAt.IsZero() || now.Sub(c.lastDumpAt) >= c.stallThreshold)
	if shouldDump {
		c.lastDumpAt = now
		c.dumps++
	}
	c.mu.Unlock()

	if shouldDump {
		if err := c.dumpStallArtifacts(now, progress, stalledFor); err != nil {
			logger.Warnf("Diagnostics stall dump failed: %v", err)
		}
	}
}

func (c *Controller) dumpStallArtifacts(now time.Time, progress int64, stalledFor time.Duration) error {
	var inFlight []string
	if c.inFlightFn != nil {
		inFlight = c.inFlightFn()
	}
	logger.WithField("in_flight", inFlight).Warnf(
		"No inspection completed for %s (%d done)", stalledFor.Round(time.Millisecond), progress)

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	ts := now.UTC().Format("20060102-150405.000")
	eventPath := filepath.Join(c.dir, fmt.Sprintf("errorfile-stall-%s.json", ts))
	event := map[string]any{
		"event":               "inspection_stalled",
		"timestamp":           now.UTC().Format(time.RFC3339Nano),
		"completed":           progress,
		"in_flight":           inFlight,
		"threshold_ms":        c.stallThreshold.Milliseconds(),
		"observed_stalled_ms": stalledFor.Milliseconds(),
	}
	b, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(eventPath, b, 0o600); err != nil {
		return err
	}

	if _, err := c.writeProfile("goroutine", 2); err != nil {
		logger.Warnf("Diagnostics goroutine profile dump failed: %v", err)
	}
	if c.dumpFlightRecorder != nil {
		tracePath := filepath.Join(c.dir, fmt.Sprintf("errorfile-flight-%s.out", ts))
		if err := c.dumpFlightRecorder(tracePath); err != nil {
			logger.Warnf("Diagnostics flight recorder dump failed: %v", err)
		}
	}
	return nil
}

func (c *Controller) writeProfile(name string, debug int) (string, error) {
	if c == nil {
		return "", fmt.Errorf("diagnostics controller is nil")
	}
	profile := c.profileLookupFn(name)
	if profile == nil {
		return "", fmt.Errorf("pprof profile %q unavailable", name)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", err
	}
	ts := c.nowFn().UTC().Format("20060102-150405.000")
	path := filepath.Join(c.dir, fmt.Sprintf("errorfile-%s-profile-%s.pprof", name, ts))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := profile.WriteTo(f, debug); err != nil {
		return "", err
	}
	return path, nil
}
