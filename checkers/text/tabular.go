package text

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/fileio"
	"github.com/Hellohistory/ErrorFile/report"
)

func CheckCSV(path string, mode report.Mode) report.Finding {
	return checkDelimited(path, mode, ',', "CSV")
}

func CheckTSV(path string, mode report.Mode) report.Finding {
	return checkDelimited(path, mode, '\t', "TSV")
}

// checkDelimited parses rows with strict quoting. Rows may differ in width.
func checkDelimited(path string, mode report.Mode, comma rune, kind string) report.Finding {
	f, err := fileio.OpenSequential(path)
	if err != nil {
		return checkers.IOFail(err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	rows := 0
	for mode == report.ModeDeep || rows < FastRecordLimit {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return checkers.Invalid(fmt.Sprintf("%s syntax error on line %d", kind, perr.Line), err)
			}
			return checkers.IOFail(err)
		}
		rows++
	}
	return report.Pass(fmt.Sprintf("%s well-formed (%d rows read)", kind, rows))
}
