// Package output serialises inspection reports as a JSON document, NDJSON
// records or CSV rows, rotating the output file by size.
package output

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hellohistory/ErrorFile/config"
	"github.com/Hellohistory/ErrorFile/logger"
	"github.com/Hellohistory/ErrorFile/report"
)

const SchemaVersion = "1.0"

const (
	flushEveryRecords = 256
	flushMaxInterval  = 2 * time.Second
)

// Metrics describes a whole run. Written counts records actually emitted,
// which differs from Total when only failures are written.
type Metrics struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Files     int    `json:"files"`
	Written   int64  `json:"written"`
	report.Summary
}

type Writer struct {
	out     io.Writer
	file    *os.File
	buf     *bufio.Writer
	csvw    *csv.Writer
	mu      sync.Mutex
	first   bool
	metrics *Metrics
	summary report.Summary
	otel    *otelLogger
	base    string
	ext     string
	index   int
	format  string

	onlyFailures bool
	maxSize      int64

	written          atomic.Int64
	recordsSinceSync int
	lastSyncAt       time.Time
}

// New opens the configured output file, or writes to stdout when no file
// name is set. Stdout output is never rotated.
func New(cfg *config.Config, m *Metrics) (*Writer, error) {
	return newWriter(cfg, m, os.Stdout)
}

func newWriter(cfg *config.Config, m *Metrics, stdout io.Writer) (*Writer, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	ext := filepath.Ext(cfg.OutputFileName)
	base := strings.TrimSuffix(cfg.OutputFileName, ext)
	format := strings.ToLower(cfg.OutputFormat)
	if format == "" {
		format = "json"
	}
	switch format {
	case "json", "ndjson", "csv":
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}

	w := &Writer{
		out:          stdout,
		metrics:      m,
		summary:      report.Summary{Tags: map[report.Tag]int{}},
		base:         base,
		ext:          ext,
		format:       format,
		onlyFailures: cfg.OnlyFailures,
		maxSize:      cfg.MaxOutputFileSize,
		lastSyncAt:   time.Now(),
	}
	otel, err := newOtelLogger(cfg)
	if err != nil {
		logger.Warnf("OTEL export disabled: %v", err)
	} else {
		w.otel = otel
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) toFile() bool {
	return w.base+w.ext != ""
}

func (w *Writer) open() error {
	var dst io.Writer = w.out
	if w.toFile() {
		name := w.base + w.ext
		if w.index > 0 {
			name = fmt.Sprintf("%s.%d%s", w.base, w.index, w.ext)
		}
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		w.file = f
		dst = f
	}
	w.buf = bufio.NewWriterSize(dst, 1024*1024)
	w.csvw = nil
	w.first = true

	switch w.format {
	case "csv":
		w.csvw = csv.NewWriter(w.buf)
		if err := w.csvw.Write(csvHeader); err != nil {
			return err
		}
		w.csvw.Flush()
		if err := w.csvw.Error(); err != nil {
			return err
		}
	case "json":
		if _, err := fmt.Fprintf(w.buf, "{\n  \"schema_version\": %q,\n  \"reports\": [\n", SchemaVersion); err != nil {
			return err
		}
	}
	return w.buf.Flush()
}

// WriteReport records r in the run summary and emits it unless only
// failures are wanted and r passed.
func (w *Writer) WriteReport(r report.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.summary.Add(r)
	if w.onlyFailures && r.OK {
		return nil
	}

	var err error
	switch w.format {
	case "csv":
		err = w.writeCSVRow("report", &r, nil)
	case "ndjson":
		err = w.writeNDJSON("report", r)
	default:
		if !w.first {
			if _, err = w.buf.WriteString(",\n"); err != nil {
				return err
			}
		}
		var data []byte
		if data, err = jsonMarshalIndent(r, "    ", "  "); err == nil {
			w.buf.WriteString("    ")
			_, err = w.buf.Write(data)
		}
		w.first = false
	}
	if err != nil {
		return err
	}
	w.written.Add(1)
	w.emitRecordLocked("report", r)

	if err := w.flushLocked(); err != nil {
		return err
	}
	if w.file != nil && w.maxSize > 0 {
		if info, err := w.file.Stat(); err == nil && info.Size() >= w.maxSize {
			return w.rotate()
		}
	}
	return nil
}

// SetMetrics replaces the run metrics; counters the writer tracks itself
// are filled in at close.
func (w *Writer) SetMetrics(m Metrics) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.metrics = &m
}

// Written reports how many records have been emitted so far.
func (w *Writer) Written() int64 {
	return w.written.Load()
}

// Summary returns a copy of the aggregate over every report seen.
func (w *Writer) Summary() report.Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.summary
	s.Tags = make(map[report.Tag]int, len(w.summary.Tags))
	for k, v := range w.summary.Tags {
		s.Tags[k] = v
	}
	return s
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalizeMetricsLocked()
	if w.metrics != nil {
		w.emitRecordLocked("metrics", w.metrics)
	}
	err := w.closeLocked()
	if w.otel != nil {
		w.otel.Shutdown()
	}
	return err
}

func (w *Writer) finalizeMetricsLocked() {
	if w.metrics == nil {
		return
	}
	w.metrics.Summary = w.summary
	w.metrics.Written = w.written.Load()
	if w.metrics.EndTime == "" {
		w.metrics.EndTime = time.Now().UTC().Format(time.RFC3339)
	}
}

func (w *Writer) rotate() error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	w.index++
	return w.open()
}

func (w *Writer) closeLocked() error {
	switch w.format {
	case "csv":
		if w.metrics != nil {
			if err := w.writeCSVRow("metrics", nil, w.metrics); err != nil {
				return err
			}
		}
	case "ndjson":
		if w.metrics != nil {
			if err := w.writeNDJSON("metrics", w.metrics); err != nil {
				return err
			}
		}
	default:
		w.buf.WriteString("\n  ]")
		if w.metrics != nil {
			if data, err := jsonMarshalIndent(w.metrics, "  ", "  "); err == nil {
				w.buf.WriteString(",\n  \"metrics\": ")
				w.buf.Write(data)
			}
		}
		w.buf.WriteString("\n}\n")
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *Writer) flushLocked() error {
	if w.csvw != nil {
		w.csvw.Flush()
		if err := w.csvw.Error(); err != nil {
			return err
		}
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	w.recordsSinceSync++
	if w.file != nil && w.shouldSync() {
		if err := w.file.Sync(); err != nil {
			return err
		}
		w.recordsSinceSync = 0
		w.lastSyncAt = time.Now()
	}
	return nil
}

// shouldSync bounds how much written output a crash can lose: the first
// record, then every flushEveryRecords records or flushMaxInterval.
func (w *Writer) shouldSync() bool {
	if w.recordsSinceSync == 1 && w.written.Load() <= 1 {
		return true
	}
	if w.recordsSinceSync >= flushEveryRecords {
		return true
	}
	return time.Since(w.lastSyncAt) >= flushMaxInterval
}

type ndjsonRecord struct {
	RecordType    string `json:"record_type"`
	SchemaVersion string `json:"schema_version"`
	Payload       any    `json:"payload"`
}

func (w *Writer) writeNDJSON(recordType string, payload any) error {
	data, err := jsonMarshal(ndjsonRecord{RecordType: recordType, SchemaVersion: SchemaVersion, Payload: payload})
	if err != nil {
		return err
	}
	if _, err := w.buf.Write(data); err != nil {
		return err
	}
	return w.buf.WriteByte('\n')
}

var csvHeader = []string{
	"record_type",
	"schema_version",
	"file_path",
	"extension",
	"mode",
	"ok",
	"message",
	"tags",
	"error",
	"cache_hit",
	"duration_ms",
	"metrics",
}

func (w *Writer) writeCSVRow(recordType string, r *report.Report, metrics *Metrics) error {
	row := make([]string, len(csvHeader))
	row[0] = recordType
	row[1] = SchemaVersion
	if r != nil {
		tags := make([]string, len(r.Tags))
		for i, t := range r.Tags {
			tags[i] = string(t)
		}
		row[2] = r.FilePath
		row[3] = r.Extension
		row[4] = string(r.Mode)
		row[5] = strconv.FormatBool(r.OK)
		row[6] = r.Message
		row[7] = strings.Join(tags, ";")
		row[8] = r.Error
		row[9] = strconv.FormatBool(r.CacheHit)
		if r.DurationMS != nil {
			row[10] = strconv.FormatFloat(*r.DurationMS, 'f', 3, 64)
		}
	}
	if metrics != nil {
		row[11] = jsonString(metrics)
	}
	if err := w.csvw.Write(row); err != nil {
		return err
	}
	w.csvw.Flush()
	return w.csvw.Error()
}

func (w *Writer) emitRecordLocked(recordType string, payload any) {
	if w.otel == nil {
		return
	}
	w.otel.Emit(recordType, payload)
}

func jsonString(value any) string {
	if value == nil {
		return ""
	}
	data, err := jsonMarshal(value)
	if err != nil {
		return ""
	}
	return string(data)
}
