//go:build errorfile_noarchive

package plugins

var archiveGroup = Group{Name: "archive"}
