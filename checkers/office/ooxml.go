// Package office checks Office Open XML documents and legacy Excel workbooks.
package office

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/fileio"
	"github.com/Hellohistory/ErrorFile/registry"
	"github.com/Hellohistory/ErrorFile/report"
)

const contentTypesPart = "[Content_Types].xml"

// mainParts names the part without which a package is not a document of
// that kind.
var mainParts = map[string]string{
	".docx": "word/document.xml",
	".xlsx": "xl/workbook.xml",
	".pptx": "ppt/presentation.xml",
}

func Register(reg *registry.Registry) {
	for ext := range mainParts {
		reg.RegisterFunc(ext, ooxmlChecker(ext))
	}
	reg.RegisterFunc(".xls", CheckXLS)
}

func ooxmlChecker(ext string) checkers.Func {
	return func(p string, mode report.Mode) report.Finding {
		return CheckOOXML(p, ext, mode)
	}
}

// CheckOOXML verifies the package layout in fast mode. Deep mode reads every
// part, which verifies each CRC, and requires every XML part to be
// well-formed. Workbooks are additionally loaded row by row.
func CheckOOXML(p, ext string, mode report.Mode) report.Finding {
	if f := encryptedPackage(p); f != nil {
		return *f
	}
	z, err := checkers.OpenZip(p)
	if err != nil {
		return checkers.Invalid("not a zip package", err)
	}
	defer z.Close()

	if !z.Has(contentTypesPart) {
		return checkers.Invalid("missing "+contentTypesPart, nil)
	}
	main := mainParts[ext]
	if !z.Has(main) {
		return checkers.Invalid("missing "+main, nil)
	}
	if mode == report.ModeFast {
		return report.Pass(fmt.Sprintf("%s package layout valid (%d parts)", ext, len(z.File)))
	}

	err = z.ReadZipEntries(func(f *zip.File, r io.Reader) error {
		if !isXMLPart(f.Name) {
			return nil
		}
		return wellFormed(r)
	})
	if err != nil {
		return partFailure(err)
	}

	if ext == ".xlsx" {
		if f := loadWorkbook(p); f != nil {
			return *f
		}
	}
	return report.Pass(fmt.Sprintf("%s package verified (%d parts)", ext, len(z.File)))
}

func isXMLPart(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".xml", ".rels", ".vml":
		return true
	}
	return false
}

// wellFormed decodes every token. Token, unlike RawToken, checks that end
// elements match their start elements.
func wellFormed(r io.Reader) error {
	dec := xml.NewDecoder(r)
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func partFailure(err error) report.Finding {
	var syntax *xml.SyntaxError
	if errors.As(err, &syntax) {
		return report.FailErr("document part is not well-formed XML", err, report.TagCorrupted)
	}
	return checkers.Corrupt("document package", err)
}

func loadWorkbook(p string) *report.Finding {
	wb, err := excelize.OpenFile(p)
	if err != nil {
		f := checkers.Corrupt("workbook", err)
		return &f
	}
	defer wb.Close()
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.Rows(sheet)
		if err != nil {
			f := checkers.Corrupt("worksheet "+sheet, err)
			return &f
		}
		for rows.Next() {
			if _, err := rows.Columns(); err != nil {
				rows.Close()
				f := checkers.Corrupt("worksheet "+sheet, err)
				return &f
			}
		}
		if err := rows.Error(); err != nil {
			rows.Close()
			f := checkers.Corrupt("worksheet "+sheet, err)
			return &f
		}
		rows.Close()
	}
	return nil
}

// encryptedPackage recognises password-protected OOXML, which is stored as
// an OLE compound file holding EncryptionInfo and EncryptedPackage streams.
func encryptedPackage(p string) *report.Finding {
	head, err := fileio.ReadHeader(p, len(oleSignature))
	if err != nil {
		f := checkers.IOFail(err)
		return &f
	}
	if !bytes.Equal(head, oleSignature) {
		return nil
	}
	names, err := streamNames(p)
	if err != nil {
		f := checkers.Invalid("compound file is damaged", err)
		return &f
	}
	if names["EncryptedPackage"] || names["EncryptionInfo"] {
		f := report.Fail("document is password protected", report.TagEncrypted)
		return &f
	}
	f := checkers.Invalid("compound file does not hold an Office Open XML package", nil)
	return &f
}
