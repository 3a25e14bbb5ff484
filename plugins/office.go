//go:build !errorfile_nooffice

package plugins

import "github.com/Hellohistory/ErrorFile/checkers/office"

var officeGroup = Group{Name: "office", Register: office.Register}
