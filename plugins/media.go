//go:build !errorfile_nomedia

package plugins

import "github.com/Hellohistory/ErrorFile/checkers/media"

var mediaGroup = Group{Name: "media", Register: media.Register}
