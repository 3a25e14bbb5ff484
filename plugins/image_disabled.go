//go:build errorfile_noimage

package plugins

var imageGroup = Group{Name: "image"}
