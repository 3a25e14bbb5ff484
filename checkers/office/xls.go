package office

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/prefilter"
	"github.com/Hellohistory/ErrorFile/report"
)

var oleSignature = prefilter.OLESignature

// BIFF record types the walker cares about.
const (
	recBOF      = 0x0809
	recEOF      = 0x000A
	recFilePass = 0x002F
)

var (
	errNoBOF     = errors.New("workbook stream does not start with a BOF record")
	errEncrypted = errors.New("workbook has a FILEPASS record: encrypted")
)

func streamNames(p string) (map[string]bool, error) {
	return checkers.CompoundNames(p)
}

// CheckXLS requires a compound file with a BIFF workbook stream that opens
// with a BOF record. Deep mode walks every BIFF record, checks that
// substreams are balanced, and reads every other stream to its end.
func CheckXLS(p string, mode report.Mode) report.Finding {
	names, err := streamNames(p)
	if err != nil {
		return checkers.Invalid("not an OLE compound file", err)
	}
	if !names["Workbook"] && !names["Book"] {
		if names["EncryptedPackage"] {
			return report.Fail("workbook is password protected", report.TagEncrypted)
		}
		return checkers.Invalid("compound file has no Workbook stream", nil)
	}

	var walkErr error
	err = checkers.WalkCompound(p, func(s checkers.Stream, r io.Reader) error {
		if s.Name != "Workbook" && s.Name != "Book" {
			return nil
		}
		walkErr = walkBIFF(r, mode == report.ModeDeep)
		return walkErr
	})
	switch {
	case errors.Is(walkErr, errEncrypted):
		return report.FailErr("workbook is password protected", walkErr, report.TagEncrypted)
	case errors.Is(walkErr, errNoBOF):
		return checkers.Invalid("workbook stream is not BIFF", walkErr)
	case walkErr != nil:
		return report.FailErr("workbook records are damaged", walkErr, report.TagCorrupted)
	case err != nil:
		return checkers.Corrupt("compound file", err)
	}
	if mode == report.ModeFast {
		return report.Pass("xls workbook stream present")
	}
	return report.Pass("xls workbook records verified")
}

// walkBIFF reads record headers. In fast mode it stops after the first
// record.
func walkBIFF(r io.Reader, full bool) error {
	var hdr [4]byte
	depth := 0
	first := true
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("record header: %w", err)
		}
		typ := binary.LittleEndian.Uint16(hdr[0:2])
		size := int64(binary.LittleEndian.Uint16(hdr[2:4]))
		if first {
			if typ != recBOF {
				return errNoBOF
			}
			first = false
		}
		switch typ {
		case recBOF:
			depth++
		case recEOF:
			depth--
		case recFilePass:
			return errEncrypted
		}
		if depth < 0 {
			return errors.New("EOF record without matching BOF")
		}
		if n, err := io.CopyN(io.Discard, r, size); err != nil {
			return fmt.Errorf("record 0x%04X truncated after %d of %d bytes: %w", typ, n, size, err)
		}
		if !full && depth == 1 && typ != recBOF {
			return nil
		}
	}
	if first {
		return errNoBOF
	}
	if full && depth != 0 {
		return fmt.Errorf("workbook ends inside a substream (depth %d)", depth)
	}
	return nil
}
