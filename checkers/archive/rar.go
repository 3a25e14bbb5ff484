package archive

import (
	"errors"
	"fmt"
	"io"

	"github.com/nwaples/rardecode/v2"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/report"
)

// CheckRar walks the file headers in fast mode and extracts every member in
// deep mode. A member using a compression version the decoder lacks stops
// the walk: the archive is then reported as partially verified.
func CheckRar(path string, mode report.Mode) report.Finding {
	r, err := rardecode.OpenReader(path)
	if err != nil {
		return checkers.Corrupt("rar archive", err)
	}
	defer r.Close()

	members := 0
	unverified := 0
	for {
		hdr, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if unsupportedMethod(err) {
			return report.Pass(fmt.Sprintf("rar member %d uses an unsupported compression version; %d members checked", members+1, members), report.TagPartial)
		}
		if err != nil {
			return checkers.Corrupt("rar headers", err)
		}
		members++
		if mode == report.ModeFast || hdr.IsDir {
			continue
		}
		if _, err := drain(r); err != nil {
			if unsupportedMethod(err) {
				unverified++
				continue
			}
			return checkers.Corrupt("rar member "+hdr.Name, err)
		}
	}
	switch {
	case mode == report.ModeFast:
		return report.Pass(fmt.Sprintf("rar headers readable (%d entries)", members))
	case unverified > 0:
		return report.Pass(fmt.Sprintf("rar headers valid; %d of %d members use an unsupported method", unverified, members), report.TagPartial)
	}
	return report.Pass(fmt.Sprintf("rar verified (%d entries)", members))
}

func unsupportedMethod(err error) bool {
	return errors.Is(err, rardecode.ErrUnknownDecoder) || errors.Is(err, rardecode.ErrUnsupportedDecoder)
}
