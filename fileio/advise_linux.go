//go:build linux

package fileio

import (
	"os"

	"golang.org/x/sys/unix"
)

func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
