package images

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/fileio"
	"github.com/Hellohistory/ErrorFile/report"
)

// CheckSVG requires an svg root element; deep mode also requires the whole
// document to be well-formed XML.
func CheckSVG(path string, mode report.Mode) report.Finding {
	data, err := fileio.ReadFile(path, 0)
	if err != nil {
		return checkers.IOFail(err)
	}
	lower := bytes.ToLower(data)
	if !bytes.Contains(lower, []byte("<svg")) || !bytes.Contains(lower, []byte("</svg")) {
		return checkers.Invalid("no <svg> element found", nil)
	}
	if mode == report.ModeFast {
		return report.Pass("svg element present")
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	root := ""
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report.FailErr("svg is not well-formed XML", err, report.TagCorrupted)
		}
		if se, ok := tok.(xml.StartElement); ok && root == "" {
			root = se.Name.Local
		}
	}
	if !strings.EqualFold(root, "svg") {
		return checkers.Invalid("document root is <"+root+">, not <svg>", nil)
	}
	return report.Pass("svg document well-formed")
}
