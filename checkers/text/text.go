// Package text checks plain text, markup, structured data, mail and
// embedded database files.
package text

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/fileio"
	"github.com/Hellohistory/ErrorFile/registry"
	"github.com/Hellohistory/ErrorFile/report"
)

// PlainTextLimit is how much of a plain text file is read in fast mode.
const PlainTextLimit = 256 * 1024

func Register(reg *registry.Registry) {
	reg.RegisterFunc(".json", CheckJSON)
	reg.RegisterFunc(".ndjson", CheckNDJSON)
	reg.RegisterFunc(".xml", CheckXML)
	checkers.RegisterAll(reg, CheckYAML, ".yaml", ".yml")
	reg.RegisterFunc(".toml", CheckTOML)
	checkers.RegisterAll(reg, CheckINI, ".ini", ".cfg")
	reg.RegisterFunc(".csv", CheckCSV)
	reg.RegisterFunc(".tsv", CheckTSV)
	checkers.RegisterAll(reg, CheckHTML, ".html", ".htm")
	reg.RegisterFunc(".eml", CheckEML)
	reg.RegisterFunc(".rtf", CheckRTF)
	checkers.RegisterAll(reg, CheckPlain, ".txt", ".md", ".log")
	reg.RegisterFunc(".msg", CheckMSG)
	checkers.RegisterAll(reg, CheckSQLite, ".sqlite", ".db")
}

// CheckPlain requires UTF-8 without NUL bytes. Fast mode looks at the first
// PlainTextLimit bytes only.
func CheckPlain(path string, mode report.Mode) report.Finding {
	limit := int64(PlainTextLimit)
	if mode == report.ModeDeep {
		limit = 0
	}
	if _, f, ok := readText(path, limit); !ok {
		return f
	}
	return report.Pass("plain text readable")
}

// readText loads up to limit bytes (all when limit <= 0) and validates them
// as text. The finding is only meaningful when ok is false.
func readText(path string, limit int64) ([]byte, report.Finding, bool) {
	data, err := fileio.ReadFile(path, limit)
	if err != nil {
		return nil, checkers.IOFail(err), false
	}
	if f, ok := validText(data, limit > 0 && int64(len(data)) == limit); !ok {
		return nil, f, false
	}
	return data, report.Finding{}, true
}

func validText(data []byte, prefix bool) (report.Finding, bool) {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return checkers.Invalid(fmt.Sprintf("NUL byte at offset %d; content is binary or damaged", i), nil), false
	}
	if prefix {
		data = trimPartialRune(data)
	}
	if !utf8.Valid(data) {
		return checkers.Invalid(fmt.Sprintf("invalid UTF-8 near offset %d", invalidUTF8Offset(data)), nil), false
	}
	return report.Finding{}, true
}

// trimPartialRune drops a multi-byte sequence cut off by a read limit.
func trimPartialRune(data []byte) []byte {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				return data[:i]
			}
			break
		}
	}
	return data
}

func invalidUTF8Offset(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return len(data)
}
