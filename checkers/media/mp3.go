package media

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/report"
)

// maxLeadingJunk bounds how far the first frame may sit behind the ID3 tag.
const maxLeadingJunk = 64 * 1024

// CheckMP3 decodes the first MPEG audio frame in fast mode and every frame
// in deep mode. Deep mode also parses the ID3v2 tag when there is one.
func CheckMP3(path string, mode report.Mode) report.Finding {
	f, err := os.Open(path)
	if err != nil {
		return checkers.IOFail(err)
	}
	defer f.Close()

	tagSize, err := id3v2Size(f)
	if err != nil {
		return checkers.IOFail(err)
	}
	if mode == report.ModeDeep && tagSize > 0 {
		if _, err := tag.ReadID3v2Tags(f); err != nil {
			return report.FailErr("ID3v2 tag is damaged", err, report.TagCorrupted)
		}
	}
	if _, err := f.Seek(tagSize, io.SeekStart); err != nil {
		return checkers.IOFail(err)
	}

	dec := mp3.NewDecoder(bufio.NewReader(f))
	var frame mp3.Frame
	skipped := 0
	if err := dec.Decode(&frame, &skipped); err != nil {
		return checkers.Invalid("no MPEG audio frame found", err)
	}
	if skipped > maxLeadingJunk {
		return checkers.Invalid(fmt.Sprintf("first audio frame found after %d bytes of junk", skipped), nil)
	}
	if mode == report.ModeFast {
		return report.Pass("mp3 first frame decodes")
	}

	frames := 1
	for {
		err := dec.Decode(&frame, &skipped)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report.FailErr(fmt.Sprintf("mp3 frame %d is damaged", frames+1), err, report.TagCorrupted)
		}
		frames++
	}
	return report.Pass(fmt.Sprintf("mp3 decoded (%d frames)", frames))
}

// id3v2Size returns the byte length of a leading ID3v2 tag, or 0.
func id3v2Size(f *os.File) (int64, error) {
	var hdr [10]byte
	n, err := f.ReadAt(hdr[:], 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if n < 10 || string(hdr[:3]) != "ID3" {
		return 0, nil
	}
	size := int64(hdr[6]&0x7f)<<21 | int64(hdr[7]&0x7f)<<14 | int64(hdr[8]&0x7f)<<7 | int64(hdr[9]&0x7f)
	size += 10
	if hdr[5]&0x10 != 0 {
		size += 10
	}
	return size, nil
}
