package archive

import (
	"fmt"

	"github.com/bodgit/sevenzip"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/report"
)

// Check7z parses the archive headers in fast mode and extracts every member
// in deep mode, which verifies the stored CRCs.
func Check7z(path string, mode report.Mode) report.Finding {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return checkers.Corrupt("7z archive", err)
	}
	defer r.Close()

	if mode == report.ModeFast {
		return report.Pass(fmt.Sprintf("7z headers readable (%d entries)", len(r.File)))
	}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return checkers.Corrupt("7z member "+f.Name, err)
		}
		_, err = drain(rc)
		rc.Close()
		if err != nil {
			return checkers.Corrupt("7z member "+f.Name, err)
		}
	}
	return report.Pass(fmt.Sprintf("7z verified (%d entries)", len(r.File)))
}
