// Package archive checks zip, tar, 7z and rar archives and single-stream
// compressed files.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/registry"
	"github.com/Hellohistory/ErrorFile/report"
)

func Register(reg *registry.Registry) {
	reg.RegisterFunc(".zip", CheckZip)
	checkers.RegisterAll(reg, CheckTar, ".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tar.xz")
	reg.RegisterFunc(".gz", streamChecker(gzipCodec))
	reg.RegisterFunc(".bz2", streamChecker(bzip2Codec))
	reg.RegisterFunc(".xz", streamChecker(xzCodec))
	reg.RegisterFunc(".7z", Check7z)
	reg.RegisterFunc(".rar", CheckRar)
}

// CheckZip reads the central directory in fast mode and decompresses every
// member in deep mode, which verifies each CRC-32.
func CheckZip(path string, mode report.Mode) report.Finding {
	z, err := checkers.OpenZip(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return checkers.Invalid("zip central directory not found", err)
		}
		return checkers.Corrupt("zip archive", err)
	}
	defer z.Close()

	for _, f := range z.File {
		if f.Flags&0x1 != 0 {
			return report.Fail("zip entry "+f.Name+" is encrypted", report.TagEncrypted)
		}
	}
	if mode == report.ModeFast {
		return report.Pass(fmt.Sprintf("zip directory readable (%d entries)", len(z.File)))
	}
	if err := z.ReadZipEntries(nil); err != nil {
		return checkers.Corrupt("zip member", err)
	}
	return report.Pass(fmt.Sprintf("zip verified (%d entries)", len(z.File)))
}

func drain(r io.Reader) (int64, error) {
	return io.Copy(io.Discard, r)
}
