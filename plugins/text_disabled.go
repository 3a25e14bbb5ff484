//go:build errorfile_notext

package plugins

var textGroup = Group{Name: "text"}
