//go:build errorfile_nomedia

package plugins

var mediaGroup = Group{Name: "media"}
