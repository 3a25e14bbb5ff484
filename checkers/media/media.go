// Package media checks audio and video containers.
package media

import (
	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/registry"
)

func Register(reg *registry.Registry) {
	reg.RegisterFunc(".mp3", CheckMP3)
	checkers.RegisterAll(reg, CheckMP4, ".mp4", ".m4a")
	reg.RegisterFunc(".flac", CheckFLAC)
	checkers.RegisterAll(reg, CheckOgg, ".ogg", ".oga")
	reg.RegisterFunc(".wav", CheckWAV)
}
