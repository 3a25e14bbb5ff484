//go:build !errorfile_noarchive

package plugins

import "github.com/Hellohistory/ErrorFile/checkers/archive"

var archiveGroup = Group{Name: "archive", Register: archive.Register}
