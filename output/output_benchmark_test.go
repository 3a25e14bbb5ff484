package output

import (
	"io"
	"testing"

	"github.com/Hellohistory/ErrorFile/report"
)

func BenchmarkMarshalReport(b *testing.B) {
	r := report.New(
		"/srv/archive/2025/backup.tar.gz",
		".tar.gz",
		report.ModeDeep,
		report.FailErr("tar member data/db.sqlite is damaged", io.ErrUnexpectedEOF, report.TagCorrupted),
	).WithDuration(12.5)

	b.ReportAllocs()
	for b.Loop() {
		if _, err := jsonMarshalIndent(r, "    ", "  "); err != nil {
			b.Fatal(err)
		}
	}
}
