package scanner

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Hellohistory/ErrorFile/logger"
	"github.com/Hellohistory/ErrorFile/plugins"
	"github.com/Hellohistory/ErrorFile/prefilter"
	"github.com/Hellohistory/ErrorFile/registry"
	"github.com/Hellohistory/ErrorFile/report"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

// countingEngine has one checker for .dat that passes unless the file
// contains "bad", counting its calls.
func countingEngine(calls *atomic.Int64) *Engine {
	reg := registry.New()
	reg.RegisterFunc(".dat", func(path string, mode report.Mode) report.Finding {
		calls.Add(1)
		data, err := os.ReadFile(path)
		if err != nil {
			return report.FailErr("read", err, report.TagIOError)
		}
		if strings.Contains(string(data), "bad") {
			return report.Fail("bad content", report.TagCorrupted)
		}
		return report.Pass("fine")
	})
	return New(WithRegistry(reg), WithSignatures(prefilter.NewTable()))
}

func TestInspectInvalidMode(t *testing.T) {
	e := countingEngine(new(atomic.Int64))
	for _, mode := range []string{"bogus", "FAST", "Deep"} {
		r := e.Inspect(filepath.Join(t.TempDir(), "missing.dat"), InspectOptions{Mode: mode, UseCache: true})
		if r.OK || !r.HasTag(report.TagInvalidMode) || r.HasTag(report.TagNotFound) {
			t.Fatalf("%s: unexpected report %+v", mode, r)
		}
	}
	if e.Cache().Len() != 0 {
		t.Fatal("invalid mode report was cached")
	}
}

func TestInspectNotFoundNeverCached(t *testing.T) {
	var calls atomic.Int64
	e := countingEngine(&calls)
	path := filepath.Join(t.TempDir(), "gone.dat")
	for range 2 {
		r := e.Inspect(path, DefaultInspectOptions())
		if r.OK || !r.HasTag(report.TagNotFound) || r.CacheHit {
			t.Fatalf("unexpected report %+v", r)
		}
	}
	if e.Cache().Len() != 0 || calls.Load() != 0 {
		t.Fatalf("cache=%d calls=%d", e.Cache().Len(), calls.Load())
	}
}

func TestInspectDirectory(t *testing.T) {
	e := countingEngine(new(atomic.Int64))
	r := e.Inspect(t.TempDir(), DefaultInspectOptions())
	if r.OK || !r.HasTag(report.TagIOError) {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestInspectReportFields(t *testing.T) {
	e := countingEngine(new(atomic.Int64))
	dir := t.TempDir()
	path := writeFile(t, dir, "Sample.DAT", "ok")
	r := e.Inspect(path, InspectOptions{})
	if !r.OK || r.Mode != report.ModeDeep || r.Extension != ".dat" {
		t.Fatalf("unexpected report %+v", r)
	}
	if !filepath.IsAbs(r.FilePath) || r.DurationMS == nil {
		t.Fatalf("missing path or duration: %+v", r)
	}
	if r.Tags[0] != report.TagOK {
		t.Fatalf("ok tag should come first: %v", r.Tags)
	}
}

func TestInspectCache(t *testing.T) {
	var calls atomic.Int64
	e := countingEngine(&calls)
	path := writeFile(t, t.TempDir(), "a.dat", "good")
	opts := DefaultInspectOptions()

	first := e.Inspect(path, opts)
	second := e.Inspect(path, opts)
	if first.CacheHit || !second.CacheHit {
		t.Fatalf("cache flags: first=%v second=%v", first.CacheHit, second.CacheHit)
	}
	if first.OK != second.OK || first.Message != second.Message || strings.Join(tagStrings(first.Tags), ",") != strings.Join(tagStrings(second.Tags), ",") {
		t.Fatalf("cached report differs: %+v vs %+v", first, second)
	}
	if calls.Load() != 1 {
		t.Fatalf("checker ran %d times", calls.Load())
	}

	fast := opts
	fast.Mode = "fast"
	if r := e.Inspect(path, fast); r.CacheHit {
		t.Fatal("mode must be part of the cache key")
	}
	reordered := opts
	reordered.Denylist = []string{".B", ".a"}
	e.Inspect(path, reordered)
	reordered.Denylist = []string{".a", ".b", ".a"}
	if r := e.Inspect(path, reordered); !r.CacheHit {
		t.Fatal("equivalent deny lists should share a cache entry")
	}

	if err := os.WriteFile(path, []byte("good, but longer now"), 0o644); err != nil {
		t.Fatal(err)
	}
	before := calls.Load()
	if r := e.Inspect(path, opts); r.CacheHit || calls.Load() != before+1 {
		t.Fatalf("changed file served from cache: %+v", r)
	}

	opts.UseCache = false
	if r := e.Inspect(path, opts); r.CacheHit {
		t.Fatal("cache used although disabled")
	}
}

func tagStrings(tags []report.Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

func TestInspectUnsupported(t *testing.T) {
	e := countingEngine(new(atomic.Int64))
	dir := t.TempDir()
	for _, name := range []string{"a.unknownext", "noext"} {
		r := e.Inspect(writeFile(t, dir, name, "x"), DefaultInspectOptions())
		if r.OK || !r.HasTag(report.TagUnsupported) {
			t.Fatalf("%s: unexpected report %+v", name, r)
		}
	}
}

func TestInspectPrefersLongestExtension(t *testing.T) {
	reg := registry.New()
	reg.RegisterFunc(".gz", func(string, report.Mode) report.Finding { return report.Pass("gz") })
	reg.RegisterFunc(".tar.gz", func(string, report.Mode) report.Finding { return report.Pass("tar.gz") })
	e := New(WithRegistry(reg), WithSignatures(prefilter.NewTable()))
	dir := t.TempDir()
	if r := e.Inspect(writeFile(t, dir, "a.tar.gz", "x"), InspectOptions{}); r.Message != "tar.gz" {
		t.Fatalf("got %q", r.Message)
	}
	if r := e.Inspect(writeFile(t, dir, "a.gz", "x"), InspectOptions{}); r.Message != "gz" {
		t.Fatalf("got %q", r.Message)
	}
}

func TestInspectCheckerPanic(t *testing.T) {
	reg := registry.New()
	reg.RegisterFunc(".boom", func(string, report.Mode) report.Finding { panic("kaboom") })
	e := New(WithRegistry(reg))
	r := e.Inspect(writeFile(t, t.TempDir(), "x.boom", "x"), DefaultInspectOptions())
	if r.OK || !r.HasTag(report.TagUnknownError) || r.Error != "kaboom" {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestInspectSignaturePrefilter(t *testing.T) {
	e := New()
	path := writeFile(t, t.TempDir(), "fake.pdf", "this is plain text, not a PDF document")

	r := e.Inspect(path, DefaultInspectOptions())
	if r.OK || !r.HasTag(report.TagInvalidFormat) || !strings.Contains(r.Message, "signature mismatch") {
		t.Fatalf("unexpected report %+v", r)
	}

	opts := DefaultInspectOptions()
	opts.Denylist = []string{".pdf"}
	denied := e.Inspect(path, opts)
	if denied.OK || strings.Contains(denied.Message, "signature mismatch") {
		t.Fatalf("denylisted extension still prefiltered: %+v", denied)
	}

	opts = DefaultInspectOptions()
	opts.Allowlist = []string{".png"}
	if r := e.Inspect(path, opts); strings.Contains(r.Message, "signature mismatch") {
		t.Fatalf("extension outside the allowlist prefiltered: %+v", r)
	}
}

func TestRegisterOverrides(t *testing.T) {
	e := New(WithRegistry(registry.New()))
	e.RegisterFunc(".xyz", func(string, report.Mode) report.Finding { return report.Pass("first") })
	e.RegisterFunc("XYZ", func(string, report.Mode) report.Finding { return report.Pass("second") })
	r := e.Inspect(writeFile(t, t.TempDir(), "a.xyz", "x"), InspectOptions{})
	if r.Message != "second" {
		t.Fatalf("last registration should win, got %q", r.Message)
	}
}

func TestDefaultEngineIsShared(t *testing.T) {
	if Default() != Default() {
		t.Fatal("Default built twice")
	}
	if len(Default().Plugins().Loaded)+len(Default().Plugins().Skipped) != 6 {
		t.Fatalf("unexpected plugin result %+v", Default().Plugins())
	}
}

func TestNewLeavesSkippedGroupReportingToCaller(t *testing.T) {
	var buf bytes.Buffer
	logger.Init("info")
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.Init("error") })

	e := New(WithPlugins(plugins.Group{Name: "ghost"}))
	if got := e.Plugins().Skipped; len(got) != 1 || got[0] != "ghost" {
		t.Fatalf("skipped = %v", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("New logged at info level: %q", buf.String())
	}
}
