// Package pdf checks PDF documents with pdfcpu.
package pdf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/fileio"
	"github.com/Hellohistory/ErrorFile/registry"
	"github.com/Hellohistory/ErrorFile/report"
)

const tailWindow = 2048

func Register(reg *registry.Registry) {
	reg.RegisterFunc(".pdf", Check)
}

func configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Check reads the cross-reference table and document info in fast mode and
// runs pdfcpu's object validation plus a page count in deep mode.
func Check(path string, mode report.Mode) report.Finding {
	tail, err := fileio.ReadTail(path, tailWindow)
	if err != nil {
		return checkers.IOFail(err)
	}
	if !strings.Contains(string(tail), "%EOF") {
		return report.Fail("pdf is truncated: %EOF marker missing", report.TagCorrupted)
	}

	f, err := os.Open(path)
	if err != nil {
		return checkers.IOFail(err)
	}
	defer f.Close()

	info, err := api.PDFInfo(f, path, nil, false, configuration())
	if err != nil {
		return classify("pdf structure", err)
	}
	if info.Encrypted {
		return report.Fail("pdf is encrypted", report.TagEncrypted)
	}
	if mode == report.ModeFast {
		return report.Pass(fmt.Sprintf("pdf %s structure readable", info.Version))
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return checkers.IOFail(err)
	}
	if err := api.Validate(f, configuration()); err != nil {
		return classify("pdf objects", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return checkers.IOFail(err)
	}
	pages, err := api.PageCount(f, configuration())
	if err != nil {
		return classify("pdf page tree", err)
	}
	if pages == 0 {
		return report.Fail("pdf has no pages", report.TagCorrupted)
	}
	return report.Pass(fmt.Sprintf("pdf validated (%d pages)", pages))
}

func classify(what string, err error) report.Finding {
	if checkers.IsEncrypted(err) || strings.Contains(strings.ToLower(err.Error()), "decrypt") {
		return report.FailErr("pdf is encrypted", err, report.TagEncrypted)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return report.FailErr(what+" is truncated", err, report.TagCorrupted)
	}
	return report.FailErr(what+" is damaged", err, report.TagCorrupted, report.TagInvalidFormat)
}
