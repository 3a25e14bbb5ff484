//go:build !errorfile_noimage

package plugins

import "github.com/Hellohistory/ErrorFile/checkers/images"

var imageGroup = Group{Name: "image", Register: images.Register}
