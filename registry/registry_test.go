package registry

import (
	"slices"
	"testing"

	"github.com/Hellohistory/ErrorFile/report"
)

func TestCandidates(t *testing.T) {
	cases := []struct {
		name string
		want []string
	}{
		{"archive.tar.gz", []string{".tar.gz", ".gz"}},
		{"/data/Report.PDF", []string{".pdf"}},
		{"README", nil},
		{".bashrc", nil},
		{".config.json", []string{".json"}},
		{"a.b.c.d.e", []string{".c.d.e", ".d.e", ".e"}},
		{"bad..gz", []string{".gz"}},
		{"trailing.", nil},
		{"dir.v2/file", nil},
	}
	for _, tc := range cases {
		got := Candidates(tc.name)
		if !slices.Equal(got, tc.want) {
			t.Fatalf("Candidates(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDisplayExtension(t *testing.T) {
	if got := DisplayExtension("x.tar.gz"); got != ".gz" {
		t.Fatalf("got %q", got)
	}
	if got := DisplayExtension("Makefile"); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeExtension(t *testing.T) {
	if got, ok := NormalizeExtension("TAR.GZ"); !ok || got != ".tar.gz" {
		t.Fatalf("got %q %v", got, ok)
	}
	for _, bad := range []string{"", ".", "..gz", ".a.b.c.d", ".a/b"} {
		if _, ok := NormalizeExtension(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestRegisterLastWins(t *testing.T) {
	r := New()
	r.RegisterFunc(".txt", func(string, report.Mode) report.Finding { return report.Pass("first") })
	r.RegisterFunc("TXT", func(string, report.Mode) report.Finding { return report.Pass("second") })
	c, ok := r.Lookup(".txt")
	if !ok {
		t.Fatal("expected checker")
	}
	if got := c.Check("x.txt", report.ModeFast).Message; got != "second" {
		t.Fatalf("got %q", got)
	}
	if r.Len() != 1 {
		t.Fatalf("expected one entry, got %d", r.Len())
	}
}

func TestRegisterMalformedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New().RegisterFunc("..", func(string, report.Mode) report.Finding { return report.Pass("") })
}

func TestResolvePrefersLongest(t *testing.T) {
	r := New()
	r.RegisterFunc(".gz", func(string, report.Mode) report.Finding { return report.Pass("gz") })
	r.RegisterFunc(".tar.gz", func(string, report.Mode) report.Finding { return report.Pass("tar.gz") })
	ext, _, ok := r.ResolvePath("/x/backup.TAR.GZ")
	if !ok || ext != ".tar.gz" {
		t.Fatalf("got %q %v", ext, ok)
	}
	ext, _, ok = r.ResolvePath("/x/notes.gz")
	if !ok || ext != ".gz" {
		t.Fatalf("got %q %v", ext, ok)
	}
	if _, _, ok := r.ResolvePath("/x/none.bin"); ok {
		t.Fatal("expected no checker")
	}
}

func TestExtensionsSorted(t *testing.T) {
	r := New()
	noop := func(string, report.Mode) report.Finding { return report.Pass("") }
	r.RegisterFunc(".zip", noop)
	r.RegisterFunc(".bmp", noop)
	if got := r.Extensions(); !slices.Equal(got, []string{".bmp", ".zip"}) {
		t.Fatalf("got %v", got)
	}
}
