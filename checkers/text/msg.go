package text

import (
	"bytes"
	"fmt"
	"io"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/fileio"
	"github.com/Hellohistory/ErrorFile/prefilter"
	"github.com/Hellohistory/ErrorFile/report"
)

// msgProperties is the root property stream every Outlook item carries.
const msgProperties = "__properties_version1.0"

// CheckMSG verifies the OLE2 header in fast mode. Deep mode reads every
// stream of the compound file and requires the top-level property stream.
func CheckMSG(path string, mode report.Mode) report.Finding {
	head, err := fileio.ReadHeader(path, len(prefilter.OLESignature))
	if err != nil {
		return checkers.IOFail(err)
	}
	if !bytes.Equal(head, prefilter.OLESignature) {
		return checkers.Invalid("MSG lacks the OLE2 compound file header", nil)
	}
	if mode == report.ModeFast {
		return report.Pass("MSG header valid")
	}

	streams := 0
	hasProps := false
	err = checkers.WalkCompound(path, func(s checkers.Stream, _ io.Reader) error {
		streams++
		if s.Name == msgProperties && len(s.Path) == 0 {
			hasProps = true
		}
		return nil
	})
	if err != nil {
		return checkers.Corrupt("compound file", err)
	}
	if !hasProps {
		return report.Fail("MSG has no "+msgProperties+" stream", report.TagCorrupted)
	}
	return report.Pass(fmt.Sprintf("MSG compound file readable (%d streams)", streams))
}
