//go:build errorfile_nooffice

package plugins

var officeGroup = Group{Name: "office"}
