//go:build !linux

package fileio

import "os"

func adviseSequential(*os.File) {}
