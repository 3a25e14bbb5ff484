package media

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/report"
)

const (
	oggHeaderLen = 27

	oggContinued = 0x01
	oggBOS       = 0x02
	oggEOS       = 0x04
)

var oggCRCTable = func() [256]uint32 {
	var t [256]uint32
	for i := range t {
		r := uint32(i) << 24
		for range 8 {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04C11DB7
			} else {
				r <<= 1
			}
		}
		t[i] = r
	}
	return t
}()

func oggCRC(crc uint32, p []byte) uint32 {
	for _, b := range p {
		crc = crc<<8 ^ oggCRCTable[byte(crc>>24)^b]
	}
	return crc
}

type oggPage struct {
	flags    byte
	serial   uint32
	sequence uint32
	size     int
}

var errOggCapture = errors.New("missing OggS capture pattern")

// readOggPage reads one page and verifies its checksum.
func readOggPage(r io.Reader) (oggPage, error) {
	var hdr [oggHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return oggPage{}, err
	}
	if string(hdr[0:4]) != "OggS" {
		return oggPage{}, errOggCapture
	}
	if hdr[4] != 0 {
		return oggPage{}, fmt.Errorf("unsupported ogg version %d", hdr[4])
	}
	segs := make([]byte, hdr[26])
	if _, err := io.ReadFull(r, segs); err != nil {
		return oggPage{}, unexpected(err)
	}
	bodyLen := 0
	for _, s := range segs {
		bodyLen += int(s)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return oggPage{}, unexpected(err)
	}

	want := binary.LittleEndian.Uint32(hdr[22:26])
	clear(hdr[22:26])
	got := oggCRC(0, hdr[:])
	got = oggCRC(got, segs)
	got = oggCRC(got, body)
	page := oggPage{
		flags:    hdr[5],
		serial:   binary.LittleEndian.Uint32(hdr[14:18]),
		sequence: binary.LittleEndian.Uint32(hdr[18:22]),
		size:     oggHeaderLen + len(segs) + bodyLen,
	}
	if got != want {
		return page, fmt.Errorf("page %d of stream %08x: checksum %08x, want %08x", page.sequence, page.serial, got, want)
	}
	return page, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// CheckOgg verifies the first page in fast mode. Deep mode verifies every
// page checksum, the page sequence of each logical stream and the final
// end-of-stream flag.
func CheckOgg(path string, mode report.Mode) report.Finding {
	f, err := os.Open(path)
	if err != nil {
		return checkers.IOFail(err)
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 64*1024)

	first, err := readOggPage(r)
	if err != nil {
		return oggFailure(err, 0)
	}
	if first.flags&oggBOS == 0 {
		return checkers.Invalid("first ogg page lacks the beginning-of-stream flag", nil)
	}
	if mode == report.ModeFast {
		return report.Pass("ogg first page valid")
	}

	next := map[uint32]uint32{first.serial: first.sequence + 1}
	open := map[uint32]bool{first.serial: first.flags&oggEOS == 0}
	pages := 1
	for {
		page, err := readOggPage(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return oggFailure(err, pages)
		}
		pages++
		seq, known := next[page.serial]
		switch {
		case !known && page.flags&oggBOS == 0:
			return report.Fail(fmt.Sprintf("ogg stream %08x starts without a beginning-of-stream page", page.serial), report.TagCorrupted)
		case known && page.sequence != seq:
			return report.Fail(fmt.Sprintf("ogg stream %08x skips from page %d to %d", page.serial, seq-1, page.sequence), report.TagCorrupted)
		}
		next[page.serial] = page.sequence + 1
		open[page.serial] = page.flags&oggEOS == 0
	}
	for serial, unfinished := range open {
		if unfinished {
			return report.Fail(fmt.Sprintf("ogg stream %08x has no end-of-stream page", serial), report.TagCorrupted)
		}
	}
	return report.Pass(fmt.Sprintf("ogg verified (%d pages)", pages))
}

func oggFailure(err error, pages int) report.Finding {
	switch {
	case errors.Is(err, errOggCapture) && pages == 0:
		return checkers.Invalid("not an ogg stream", err)
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return report.FailErr(fmt.Sprintf("ogg is truncated after %d pages", pages), err, report.TagCorrupted)
	}
	return report.FailErr(fmt.Sprintf("ogg page %d is damaged", pages+1), err, report.TagCorrupted)
}
