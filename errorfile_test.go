package errorfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Hellohistory/ErrorFile/logger"
	"github.com/Hellohistory/ErrorFile/report"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	os.Exit(m.Run())
}

func write(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestInspectBuiltInChecker(t *testing.T) {
	good := write(t, "good.json", `{"ok": true}`)
	bad := write(t, "bad.json", `{"ok": `)

	if r := Inspect(good, DefaultInspectOptions()); !r.OK || r.Mode != ModeDeep {
		t.Fatalf("unexpected report: %+v", r)
	}
	if r := Inspect(bad, DefaultInspectOptions()); r.OK {
		t.Fatalf("truncated json passed: %+v", r)
	}
}

func TestInspectRequestErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.png")
	if r := Inspect(missing, DefaultInspectOptions()); !r.HasTag(report.TagNotFound) {
		t.Fatalf("unexpected report: %+v", r)
	}
	if r := Inspect(missing, InspectOptions{Mode: "quick"}); !r.HasTag(report.TagInvalidMode) {
		t.Fatalf("unexpected report: %+v", r)
	}
}

func TestRegisterOnSharedEngine(t *testing.T) {
	RegisterFunc(".errorfiletest", func(path string, mode Mode) Finding {
		return report.Pass("custom " + string(mode))
	})
	path := write(t, "x.errorfiletest", "anything")
	r := Inspect(path, InspectOptions{Mode: "fast"})
	if !r.OK || r.Message != "custom fast" || r.Extension != ".errorfiletest" {
		t.Fatalf("unexpected report: %+v", r)
	}
}

func TestRegisteredCheckerUnderProcessPool(t *testing.T) {
	RegisterFunc(".errorfilepool", func(string, Mode) Finding { return report.Pass("pooled") })
	path := write(t, "x.errorfilepool", "anything")
	opts := DefaultBatchOptions()
	opts.UseProcessPool = true
	reports, err := InspectMany(context.Background(), []string{path}, opts)
	if err != nil {
		t.Fatalf("InspectMany: %v", err)
	}
	if !reports[0].OK || reports[0].Message != "pooled" {
		t.Fatalf("registration lost under the process pool: %+v", reports[0])
	}
}

func TestInspectMany(t *testing.T) {
	a := write(t, "a.txt", "hello\n")
	b := write(t, "b.unknownext", "data")
	reports, err := InspectMany(context.Background(), []string{a, b, a}, DefaultBatchOptions())
	if err != nil {
		t.Fatalf("InspectMany: %v", err)
	}
	if len(reports) != 3 || !reports[0].OK || !reports[1].HasTag(report.TagUnsupported) || reports[2].FilePath != reports[0].FilePath {
		t.Fatalf("unexpected reports: %+v", reports)
	}
}
