package output

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Hellohistory/ErrorFile/config"
	"github.com/Hellohistory/ErrorFile/report"

	otelLog "go.opentelemetry.io/otel/log"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

func findAttr(kvs []otelLog.KeyValue, key string) (otelLog.Value, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return otelLog.Value{}, false
}

func sampleReport() report.Report {
	return report.New("/data/in/photo.jpg", ".jpg", report.ModeFast,
		report.Fail("jpeg has no EOI marker", report.TagCorrupted)).WithDuration(3)
}

func TestSanitizePayloadDropsPath(t *testing.T) {
	raw := payloadToMap(sampleReport())
	sanitized := sanitizePayload("report", raw, otelPolicy{})
	if _, ok := sanitized["file_path"]; ok {
		t.Fatal("expected file path to be stripped")
	}
	if _, ok := raw["file_path"]; !ok {
		t.Fatal("expected original payload to remain unchanged")
	}
	kept := sanitizePayload("report", raw, otelPolicy{includePaths: true})
	if kept["file_path"] != "/data/in/photo.jpg" {
		t.Fatalf("expected path kept, got %v", kept["file_path"])
	}
}

func TestReportSemanticAttributes(t *testing.T) {
	data := payloadToMap(sampleReport())

	kvs := semanticAttributes("report", data, otelPolicy{})
	if _, ok := findAttr(kvs, string(semconv.FilePathKey)); ok {
		t.Fatal("path attribute exported without opt-in")
	}
	if v, ok := findAttr(kvs, string(semconv.FileNameKey)); !ok || v.AsString() != "photo.jpg" {
		t.Fatalf("unexpected file name attribute: %v", v)
	}
	if v, ok := findAttr(kvs, string(semconv.FileExtensionKey)); !ok || v.AsString() != "jpg" {
		t.Fatalf("unexpected extension attribute: %v", v)
	}
	if v, ok := findAttr(kvs, "errorfile.ok"); !ok || v.AsBool() {
		t.Fatalf("unexpected ok attribute: %v", v)
	}
	if v, ok := findAttr(kvs, "errorfile.tags"); !ok || len(v.AsSlice()) != 1 || v.AsSlice()[0].AsString() != "corrupted" {
		t.Fatalf("unexpected tags attribute: %v", v)
	}
	if v, ok := findAttr(kvs, "errorfile.duration_ms"); !ok || v.AsFloat64() != 3 {
		t.Fatalf("unexpected duration attribute: %v", v)
	}

	kvs = semanticAttributes("report", data, otelPolicy{includePaths: true})
	if v, ok := findAttr(kvs, string(semconv.FileDirectoryKey)); !ok || v.AsString() != filepath.Dir("/data/in/photo.jpg") {
		t.Fatalf("unexpected directory attribute: %v", v)
	}
}

func TestMetricsSemanticAttributes(t *testing.T) {
	m := Metrics{StartTime: "2025-01-01T00:00:00Z", Files: 4, Written: 3}
	m.Summary = report.Summary{Total: 4, Passed: 3, Failed: 1}
	kvs := semanticAttributes("metrics", payloadToMap(m), otelPolicy{})
	if v, ok := findAttr(kvs, "errorfile.metrics.failed"); !ok || v.AsInt64() != 1 {
		t.Fatalf("unexpected failed attribute: %v", v)
	}
	if v, ok := findAttr(kvs, "errorfile.metrics.start_time"); !ok || v.AsString() != m.StartTime {
		t.Fatalf("unexpected start time attribute: %v", v)
	}
}

func TestToLogValueSortsMapKeys(t *testing.T) {
	v := toLogValue(map[string]any{"zeta": 1.0, "alpha": "a", "middle": true})
	kvs := v.AsMap()
	if len(kvs) != 3 || kvs[0].Key != "alpha" || kvs[1].Key != "middle" || kvs[2].Key != "zeta" {
		t.Fatalf("unexpected order: %v", kvs)
	}
	if toLogValue(nil).Kind() != otelLog.KindEmpty {
		t.Fatal("expected empty value for nil")
	}
}

func TestSeverityFailed(t *testing.T) {
	if !severityFailed("report", map[string]any{"ok": false}) {
		t.Fatal("failed report should raise severity")
	}
	if severityFailed("report", map[string]any{"ok": true}) || severityFailed("metrics", nil) {
		t.Fatal("unexpected severity")
	}
}

func TestOtelLoggerEndpointAndValidation(t *testing.T) {
	var nilLogger *otelLogger
	if got := nilLogger.Endpoint(); got != "" {
		t.Fatalf("expected empty endpoint for nil logger, got %q", got)
	}
	nilLogger.Emit("report", sampleReport())
	nilLogger.Shutdown()

	if l, err := newOtelLogger(nil); err != nil || l != nil {
		t.Fatalf("expected nil logger for nil config, got %v %v", l, err)
	}
	if l, err := newOtelLogger(&config.Config{}); err != nil || l != nil {
		t.Fatalf("expected nil logger without endpoint, got %v %v", l, err)
	}
	if _, err := newOtelLogger(&config.Config{OtelEndpoint: "localhost:4318"}); err == nil {
		t.Fatal("expected validation error for endpoint without scheme")
	}
}

func TestOtelExportReachesCollector(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		if r.Method == http.MethodPost && r.URL.Path == "/v1/logs" {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{
		OutputFileName: filepath.Join(t.TempDir(), "out.ndjson"),
		OutputFormat:   "ndjson",
		OtelEndpoint:   srv.URL + "/v1/logs",
		OtelTimeout:    5 * time.Second,
	}
	w, err := New(cfg, &Metrics{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if w.otel == nil || w.otel.Endpoint() != cfg.OtelEndpoint {
		t.Fatal("expected OTEL exporter to be configured")
	}
	w.WriteReport(sampleReport())
	w.Close()

	if posts.Load() == 0 {
		t.Fatal("collector received no log export")
	}
}
