package archive

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/fileio"
	"github.com/Hellohistory/ErrorFile/report"
)

// CheckTar walks member headers in fast mode and reads every member in deep
// mode. The compression layer is sniffed from the content, not the name.
func CheckTar(path string, mode report.Mode) report.Finding {
	f, err := fileio.OpenSequential(path)
	if err != nil {
		return checkers.IOFail(err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, _ := br.Peek(6)
	if len(head) == 0 {
		return checkers.Invalid("empty file is not a tar archive", nil)
	}
	var r io.Reader = br
	layer := "tar"
	if c, ok := sniff(head); ok {
		dr, err := c.open(br)
		if err != nil {
			return checkers.Corrupt(c.name+" header", err)
		}
		r = dr
		layer = c.name + "-compressed tar"
	}

	tr := tar.NewReader(r)
	members := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, tar.ErrHeader) && members == 0 {
				return checkers.Invalid("not a tar archive", err)
			}
			return checkers.Corrupt(layer, err)
		}
		members++
		if mode == report.ModeDeep && hdr.Typeflag == tar.TypeReg {
			if _, err := drain(tr); err != nil {
				return checkers.Corrupt(layer+" member "+hdr.Name, err)
			}
		}
	}
	if mode == report.ModeDeep {
		// Reading past the tar end marker lets the decompressor verify its
		// trailing checksum.
		if _, err := drain(r); err != nil {
			return checkers.Corrupt(layer, err)
		}
	}
	return report.Pass(fmt.Sprintf("%s readable (%d members)", layer, members))
}
