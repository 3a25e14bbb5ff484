package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/abema/go-mp4"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/report"
)

var errBoxOverrun = errors.New("box extends past end of file")

// CheckMP4 walks the top-level boxes in fast mode, requiring ftyp and moov.
// Deep mode probes the movie with go-mp4 and checks that every chunk offset
// lies inside the file.
func CheckMP4(path string, mode report.Mode) report.Finding {
	f, err := os.Open(path)
	if err != nil {
		return checkers.IOFail(err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return checkers.IOFail(err)
	}

	boxes, err := topLevelBoxes(f, info.Size())
	if err != nil {
		if errors.Is(err, errBoxOverrun) || errors.Is(err, io.ErrUnexpectedEOF) {
			return report.FailErr("mp4 is truncated", err, report.TagCorrupted)
		}
		return checkers.Invalid("mp4 box structure is invalid", err)
	}
	if len(boxes) == 0 || boxes[0] != "ftyp" {
		return checkers.Invalid("mp4 does not start with an ftyp box", nil)
	}
	if !slices.Contains(boxes, "moov") {
		return report.Fail("mp4 has no moov box", report.TagCorrupted)
	}
	if mode == report.ModeFast {
		return report.Pass(fmt.Sprintf("mp4 box layout valid (%d top-level boxes)", len(boxes)))
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return checkers.IOFail(err)
	}
	probe, err := mp4.Probe(f)
	if err != nil {
		return checkers.Corrupt("mp4 movie header", err)
	}
	for _, track := range probe.Tracks {
		for _, chunk := range track.Chunks {
			if chunk.DataOffset >= uint64(info.Size()) {
				return report.Fail(fmt.Sprintf("track %d references data past end of file", track.TrackID), report.TagCorrupted)
			}
		}
	}
	return report.Pass(fmt.Sprintf("mp4 probed (%d tracks)", len(probe.Tracks)))
}

// topLevelBoxes lists the box types at the root of the file.
func topLevelBoxes(r io.ReaderAt, size int64) ([]string, error) {
	var out []string
	var hdr [16]byte
	for off := int64(0); off < size; {
		if size-off < 8 {
			return out, fmt.Errorf("%d trailing bytes at offset %d: %w", size-off, off, io.ErrUnexpectedEOF)
		}
		if _, err := r.ReadAt(hdr[:8], off); err != nil {
			return out, err
		}
		boxSize := int64(binary.BigEndian.Uint32(hdr[0:4]))
		typ := string(hdr[4:8])
		headerLen := int64(8)
		switch boxSize {
		case 0:
			boxSize = size - off
		case 1:
			if _, err := r.ReadAt(hdr[8:16], off+8); err != nil {
				return out, err
			}
			boxSize = int64(binary.BigEndian.Uint64(hdr[8:16]))
			headerLen = 16
		}
		if boxSize < headerLen {
			return out, fmt.Errorf("box %q at offset %d has size %d", typ, off, boxSize)
		}
		if off+boxSize > size {
			return out, fmt.Errorf("box %q at offset %d: %w", typ, off, errBoxOverrun)
		}
		out = append(out, typ)
		off += boxSize
	}
	return out, nil
}
