//go:build !errorfile_notext

package plugins

import "github.com/Hellohistory/ErrorFile/checkers/text"

var textGroup = Group{Name: "text", Register: text.Register}
