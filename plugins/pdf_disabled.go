//go:build errorfile_nopdf

package plugins

var pdfGroup = Group{Name: "pdf"}
