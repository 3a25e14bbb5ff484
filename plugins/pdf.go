//go:build !errorfile_nopdf

package plugins

import "github.com/Hellohistory/ErrorFile/checkers/pdf"

var pdfGroup = Group{Name: "pdf", Register: pdf.Register}
